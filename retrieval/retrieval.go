// Package retrieval ranks stored documents against a question embedding by
// cosine similarity. The ranker is a pure function over an in-memory index,
// so identical inputs always produce identical rankings; ties break
// lexicographically by title.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/aferrante/typekg/llm"
	"github.com/aferrante/typekg/store"
)

// ErrEmptyIndex is returned when ranking is attempted against an index with
// no documents.
var ErrEmptyIndex = errors.New("retrieval: no documents indexed")

// QueryInstruction is the default instruction prefix prepended to questions
// before embedding. Instruction-tuned embedding models score asymmetric
// query/passage pairs better when the query side is marked.
const QueryInstruction = "Instruct: Given a question, retrieve the passages that answer it\nQuery: "

// Entry is one indexed document.
type Entry struct {
	Title  string
	Text   string
	Vector []float32
}

// Hit is a ranked document with its cosine similarity score.
type Hit struct {
	Title string
	Text  string
	Score float64
}

// Index is an in-memory embedding index over stored documents.
type Index struct {
	entries []Entry
}

// NewIndex builds an index from entries. Entries with empty vectors are
// dropped.
func NewIndex(entries []Entry) *Index {
	kept := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if len(e.Vector) > 0 {
			kept = append(kept, e)
		}
	}
	return &Index{entries: kept}
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	return len(ix.entries)
}

// Rank scores every indexed document against the query vector and returns
// the top k hits, highest similarity first. Equal scores order
// lexicographically by title.
func (ix *Index) Rank(query []float32, k int) ([]Hit, error) {
	if len(ix.entries) == 0 {
		return nil, ErrEmptyIndex
	}
	if k <= 0 {
		return nil, fmt.Errorf("retrieval: k must be positive, got %d", k)
	}

	hits := make([]Hit, len(ix.entries))
	for i, e := range ix.entries {
		hits[i] = Hit{Title: e.Title, Text: e.Text, Score: Cosine(query, e.Vector)}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Title < hits[j].Title
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// Cosine computes cosine similarity between two vectors. Mismatched lengths
// compare over the shorter prefix; a zero vector scores 0.
func Cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Engine embeds questions and ranks stored documents against them.
type Engine struct {
	store    *store.Store
	embedder llm.Provider

	// Instruction prefixes the question before embedding. Defaults to
	// QueryInstruction; set empty to embed the bare question.
	Instruction string
}

// New creates a retrieval engine over the store's embeddings.
func New(s *store.Store, embedder llm.Provider) *Engine {
	return &Engine{store: s, embedder: embedder, Instruction: QueryInstruction}
}

// BuildIndex loads every stored document vector into an in-memory index.
func (e *Engine) BuildIndex(ctx context.Context) (*Index, error) {
	embs, err := e.store.AllEmbeddings(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading embeddings: %w", err)
	}
	entries := make([]Entry, 0, len(embs))
	for _, emb := range embs {
		doc, err := e.store.GetDocumentByID(ctx, emb.DocumentID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Title: emb.Title, Text: doc.Text, Vector: emb.Vector})
	}
	return NewIndex(entries), nil
}

// EmbedDocuments embeds passage texts in one batch, without the query
// instruction prefix. Output order matches input order.
func (e *Engine) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding documents: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding documents: got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

// EmbedQuestion embeds one question with the engine's instruction prefix.
func (e *Engine) EmbedQuestion(ctx context.Context, question string) ([]float32, error) {
	q := question
	if e.Instruction != "" && !strings.HasPrefix(q, e.Instruction) {
		q = e.Instruction + q
	}
	vecs, err := e.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, fmt.Errorf("embedding question: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("embedding question: empty embedding returned")
	}
	return vecs[0], nil
}

// Retrieve embeds the question and returns the top-k most similar documents.
func (e *Engine) Retrieve(ctx context.Context, question string, k int) ([]Hit, error) {
	ix, err := e.BuildIndex(ctx)
	if err != nil {
		return nil, err
	}
	qv, err := e.EmbedQuestion(ctx, question)
	if err != nil {
		return nil, err
	}
	return ix.Rank(qv, k)
}
