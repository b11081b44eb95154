// Package typekg builds schema-constrained knowledge graphs from natural
// language. An LLM extracts graph content from source documents, either as
// formal statements validated against the schema or as a simplified line
// format compiled deterministically into statements, and answers questions
// over the same documents through embedding retrieval.
package typekg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aferrante/typekg/compiler"
	"github.com/aferrante/typekg/dataset"
	"github.com/aferrante/typekg/extract"
	"github.com/aferrante/typekg/llm"
	"github.com/aferrante/typekg/retrieval"
	"github.com/aferrante/typekg/schema"
	"github.com/aferrante/typekg/store"
	"github.com/aferrante/typekg/typeql"
)

// Engine ties together storage, the schema model, the LLM providers, and the
// extraction and retrieval pipelines. One Engine owns one database.
type Engine struct {
	cfg   Config
	log   *slog.Logger
	store *store.Store
	model *schema.Model

	requester *extract.Requester
	retriever *retrieval.Engine
}

// New creates an Engine from configuration: it opens the database, builds
// the LLM providers, and loads the schema from Config.SchemaFile or, when
// that is empty, from the store. A missing schema is not an error at
// construction time; operations that need one return ErrSchemaNotLoaded.
func New(cfg Config) (*Engine, error) {
	completion, err := llm.NewProvider(llm.Config(cfg.Completion))
	if err != nil {
		return nil, fmt.Errorf("%w: completion: %v", ErrInvalidConfig, err)
	}
	embedder, err := llm.NewProvider(llm.Config(cfg.Embedding))
	if err != nil {
		return nil, fmt.Errorf("%w: embedding: %v", ErrInvalidConfig, err)
	}
	return NewWithProviders(cfg, completion, embedder)
}

// NewWithProviders is New with explicit providers, for callers that construct
// their own (and for tests).
func NewWithProviders(cfg Config, completion, embedder llm.Provider) (*Engine, error) {
	if cfg.EmbeddingDim <= 0 {
		return nil, fmt.Errorf("%w: embedding_dim must be positive", ErrInvalidConfig)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}

	st, err := store.New(cfg.resolveDBPath(), cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	req := extract.NewRequester(completion)
	if cfg.MaxTokens > 0 {
		req.MaxTokens = cfg.MaxTokens
	}
	if err := loadTemplates(cfg, req); err != nil {
		st.Close()
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		log:       slog.Default(),
		store:     st,
		requester: req,
		retriever: retrieval.New(st, embedder),
	}

	if cfg.SchemaFile != "" {
		if err := e.LoadSchema(context.Background(), cfg.SchemaFile); err != nil {
			st.Close()
			return nil, err
		}
	} else if src, err := st.GetSchemaSource(context.Background()); err == nil {
		m, err := schema.Parse(src)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("stored schema: %w", err)
		}
		e.model = m
	}
	return e, nil
}

func loadTemplates(cfg Config, req *extract.Requester) error {
	overrides := []struct {
		path string
		dst  *extract.Template
	}{
		{cfg.ConstructTemplate, &req.ConstructTemplate},
		{cfg.LinesTemplate, &req.LinesTemplate},
		{cfg.QueryTemplate, &req.QueryTemplate},
		{cfg.AnswerTemplate, &req.AnswerTemplate},
	}
	for _, o := range overrides {
		if o.path == "" {
			continue
		}
		t, err := extract.LoadTemplate(o.path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		*o.dst = t
	}
	return nil
}

// Close releases the engine's database.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store exposes the underlying store for callers that need direct reads.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Schema returns the active schema model, or nil when none is loaded.
func (e *Engine) Schema() *schema.Model {
	return e.model
}

// SetLogger replaces the engine's logger.
func (e *Engine) SetLogger(l *slog.Logger) {
	if l != nil {
		e.log = l
	}
}

// --- Schema lifecycle ---

// LoadSchema parses a schema definition file, persists its source as the
// active schema, and installs the parsed model.
func (e *Engine) LoadSchema(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}
	return e.SetSchema(ctx, string(src))
}

// SetSchema parses schema source text, persists it, and installs the model.
func (e *Engine) SetSchema(ctx context.Context, src string) error {
	m, err := schema.Parse(src)
	if err != nil {
		return err
	}
	if err := e.store.SaveSchemaSource(ctx, src); err != nil {
		return fmt.Errorf("saving schema source: %w", err)
	}
	e.model = m
	return nil
}

// FetchSchema reloads the schema from the store and returns its rendered
// definition text.
func (e *Engine) FetchSchema(ctx context.Context) (string, error) {
	src, err := e.store.GetSchemaSource(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrSchemaNotLoaded
	}
	if err != nil {
		return "", err
	}
	m, err := schema.Parse(src)
	if err != nil {
		return "", fmt.Errorf("stored schema: %w", err)
	}
	e.model = m
	return e.schemaText()
}

// schemaText renders the schema for prompt embedding, in the compact form
// when configured.
func (e *Engine) schemaText() (string, error) {
	if e.model == nil {
		return "", ErrSchemaNotLoaded
	}
	if e.cfg.CompactSchema {
		return e.model.Compact(), nil
	}
	return e.model.Define(), nil
}

// --- Ingestion ---

// IngestResult reports what one ingestion call did.
type IngestResult struct {
	Stored  int `json:"stored"`
	Skipped int `json:"skipped"`
}

// IngestDocuments stores and embeds documents. Titles already present are
// skipped, first write wins. All new documents are embedded in one batch.
func (e *Engine) IngestDocuments(ctx context.Context, docs []dataset.Document) (*IngestResult, error) {
	res := &IngestResult{}
	var newIDs []int64
	var newTexts []string

	for _, d := range docs {
		id, err := e.store.PutDocument(ctx, d.Title, d.Text)
		if errors.Is(err, store.ErrDuplicateTitle) {
			res.Skipped++
			if e.cfg.WarnDuplicateTitles {
				e.log.Warn("duplicate title skipped", "title", d.Title)
			}
			continue
		}
		if err != nil {
			return res, fmt.Errorf("storing %q: %w", d.Title, err)
		}
		res.Stored++
		newIDs = append(newIDs, id)
		newTexts = append(newTexts, d.Text)
	}

	if len(newIDs) == 0 {
		return res, nil
	}
	vecs, err := e.retriever.EmbedDocuments(ctx, newTexts)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	if len(vecs) != len(newIDs) {
		return res, fmt.Errorf("%w: %d embeddings for %d documents", ErrEmbeddingFailed, len(vecs), len(newIDs))
	}
	for i, id := range newIDs {
		if err := e.store.InsertEmbedding(ctx, id, vecs[i]); err != nil {
			return res, fmt.Errorf("storing embedding: %w", err)
		}
	}
	e.log.Info("ingested documents", "stored", res.Stored, "skipped", res.Skipped)
	return res, nil
}

// IngestDataset loads a multi-hop QA dataset file and ingests the unique
// documents from its example contexts.
func (e *Engine) IngestDataset(ctx context.Context, path string) (*IngestResult, error) {
	examples, err := dataset.Load(path)
	if err != nil {
		return nil, err
	}
	return e.IngestDocuments(ctx, dataset.UniqueDocuments(examples))
}

// IngestFile loads a standalone document file (text, PDF, XLSX) and ingests
// its documents.
func (e *Engine) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	docs, err := dataset.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return e.IngestDocuments(ctx, docs)
}

// --- Construction ---

// ConstructResult reports one direct-construction batch: the statements
// accepted into the log and the ones validation rejected.
type ConstructResult struct {
	Accepted []string          `json:"accepted"`
	Rejected []typeql.Rejection `json:"rejected,omitempty"`
}

// ConstructDirect extracts formal graph statements from the named stored
// documents, validates each against the schema, and appends the accepted
// ones to the statement log. Rejected statements are returned, never stored.
func (e *Engine) ConstructDirect(ctx context.Context, titles []string) (*ConstructResult, error) {
	schemaText, err := e.schemaText()
	if err != nil {
		return nil, err
	}
	docs, err := e.lookupDocuments(ctx, titles)
	if err != nil {
		return nil, err
	}

	text, err := e.requester.ExtractDirect(ctx, schemaText, docs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMRequestFailed, err)
	}

	vres := typeql.Validate(e.model, text)
	for _, rej := range vres.Rejected {
		e.log.Warn("statement rejected", "reason", rej.Reason, "statement", rej.Statement)
	}

	origin := strings.Join(titles, ", ")
	records := make([]store.StatementRecord, len(vres.Accepted))
	for i, s := range vres.Accepted {
		records[i] = store.StatementRecord{Text: s, Origin: origin}
	}
	if err := e.store.InsertStatements(ctx, records); err != nil {
		return nil, fmt.Errorf("storing statements: %w", err)
	}
	e.log.Info("direct construction", "accepted", len(vres.Accepted), "rejected", len(vres.Rejected))
	return &ConstructResult{Accepted: vres.Accepted, Rejected: vres.Rejected}, nil
}

// ConstructLines extracts simplified line-format output from the named stored
// documents, compiles it into statements through the canonicalizing compiler,
// and appends the result to the statement log. The compiler result carries
// every recovered defect and the dedup counters.
func (e *Engine) ConstructLines(ctx context.Context, titles []string) (*compiler.Result, error) {
	if e.model == nil {
		return nil, ErrSchemaNotLoaded
	}
	docs, err := e.lookupDocuments(ctx, titles)
	if err != nil {
		return nil, err
	}

	raw, err := e.requester.ExtractLines(ctx, docs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMRequestFailed, err)
	}

	comp := compiler.New(e.model, e.store)
	if attr := e.cfg.EmbedAttribute; attr != "" {
		if _, ok := e.model.Attribute(attr); !ok {
			return nil, fmt.Errorf("%w: embed_attribute %q is not a declared attribute", ErrInvalidConfig, attr)
		}
		comp.EmbedAttr = attr
		comp.EmbedText = func(ctx context.Context, text string) (string, error) {
			vecs, err := e.retriever.EmbedDocuments(ctx, []string{text})
			if err != nil {
				return "", err
			}
			return retrieval.EncodeBase64(vecs[0]), nil
		}
	}
	res, err := comp.Compile(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("compiling lines: %w", err)
	}
	for _, m := range res.Malformed {
		e.log.Warn("malformed line skipped", "line", m.Line, "reason", m.Reason)
	}
	for _, u := range res.Unknown {
		e.log.Warn("unknown reference skipped", "line", u.Line, "reason", u.Reason)
	}

	fallback := strings.Join(titles, ", ")
	records := make([]store.StatementRecord, len(res.Statements))
	for i, st := range res.Statements {
		origin := st.Origin
		if origin == "" {
			origin = fallback
		}
		records[i] = store.StatementRecord{Text: st.Text, Origin: origin}
	}
	if err := e.store.InsertStatements(ctx, records); err != nil {
		return nil, fmt.Errorf("storing statements: %w", err)
	}
	e.log.Info("line construction",
		"statements", len(res.Statements),
		"malformed", len(res.Malformed),
		"unknown", len(res.Unknown),
		"new_entities", res.NewEntities,
		"merged_entities", res.MergedEntities)
	return res, nil
}

// lookupDocuments resolves stored documents by title, preserving order.
func (e *Engine) lookupDocuments(ctx context.Context, titles []string) ([]extract.Document, error) {
	if len(titles) == 0 {
		return nil, ErrNoDocuments
	}
	docs := make([]extract.Document, 0, len(titles))
	for _, title := range titles {
		d, err := e.store.GetDocument(ctx, title)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %q", ErrDocumentNotFound, title)
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, extract.Document{Title: d.Title, Text: d.Text})
	}
	return docs, nil
}

// --- Querying ---

// GenerateQuery translates a natural-language question into a graph match
// query constrained by the schema. The generated query passes the same
// validator as direct construction; a query referencing undeclared names
// returns ErrInvalidQuery instead of flowing to the caller. Accepted queries
// are appended to the query log.
func (e *Engine) GenerateQuery(ctx context.Context, question string) (string, error) {
	schemaText, err := e.schemaText()
	if err != nil {
		return "", err
	}
	q, usage, err := e.requester.GenerateQuery(ctx, schemaText, question)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrLLMRequestFailed, err)
	}
	vres := typeql.Validate(e.model, q)
	if len(vres.Rejected) > 0 {
		return "", fmt.Errorf("%w: %s", ErrInvalidQuery, vres.Rejected[0].Reason)
	}
	if len(vres.Accepted) == 0 {
		return "", fmt.Errorf("%w: no query statements generated", ErrInvalidQuery)
	}
	if err := e.store.LogQuery(ctx, store.QueryLog{
		Question:         question,
		GeneratedQuery:   q,
		ModelUsed:        e.cfg.Completion.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}); err != nil {
		e.log.Warn("query log write failed", "error", err)
	}
	return q, nil
}

// AnswerResult is one answered question with the documents it was grounded on.
type AnswerResult struct {
	Answer string          `json:"answer"`
	Hits   []retrieval.Hit `json:"hits"`
}

// Answer retrieves the top-k documents for the question and asks the model
// to answer from them. The exchange is appended to the query log.
func (e *Engine) Answer(ctx context.Context, question string) (*AnswerResult, error) {
	hits, err := e.retriever.Retrieve(ctx, question, e.cfg.TopK)
	if errors.Is(err, retrieval.ErrEmptyIndex) {
		return nil, ErrNoDocuments
	}
	if err != nil {
		return nil, err
	}

	docs := make([]extract.Document, len(hits))
	titles := make([]string, len(hits))
	for i, h := range hits {
		docs[i] = extract.Document{Title: h.Title, Text: h.Text}
		titles[i] = h.Title
	}

	answer, usage, err := e.requester.Answer(ctx, docs, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLLMRequestFailed, err)
	}

	if err := e.store.LogQuery(ctx, store.QueryLog{
		Question:         question,
		Answer:           answer,
		Documents:        titles,
		ModelUsed:        e.cfg.Completion.Model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}); err != nil {
		e.log.Warn("query log write failed", "error", err)
	}
	return &AnswerResult{Answer: answer, Hits: hits}, nil
}

// Stats returns row counts for the principal store tables.
func (e *Engine) Stats(ctx context.Context) (*store.DBStats, error) {
	return e.store.Stats(ctx)
}
