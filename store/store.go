// Package store persists the engine's state in a single SQLite database:
// source documents, their embeddings (sqlite-vec), the canonical entity
// registry, the accepted statement log, and the active graph schema.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/mattn/go-sqlite3"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrDuplicateTitle is returned by PutDocument when the title is already
// registered. First write wins.
var ErrDuplicateTitle = errors.New("store: duplicate document title")

// Document is a stored source paragraph.
type Document struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

// DocumentHit is a document with its retrieval score.
type DocumentHit struct {
	ID    int64   `json:"id"`
	Title string  `json:"title"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// DocumentEmbedding pairs a document with its stored vector.
type DocumentEmbedding struct {
	DocumentID int64
	Title      string
	Vector     []float32
}

// StatementRecord is one accepted graph-write statement with provenance.
type StatementRecord struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Origin    string `json:"origin,omitempty"`
	CreatedAt string `json:"created_at"`
}

// QueryLog is one answered question for the audit log.
type QueryLog struct {
	Question         string   `json:"question"`
	GeneratedQuery   string   `json:"generated_query"`
	Answer           string   `json:"answer"`
	Documents        []string `json:"documents"`
	ModelUsed        string   `json:"model_used"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
}

// GraphStore is the narrow graph-engine surface the pipelines depend on:
// the active schema text, statement writes, row queries, and document access
// keyed by title.
type GraphStore interface {
	FetchSchema(ctx context.Context) (string, error)
	Insert(ctx context.Context, statement string) error
	Query(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	GetDocument(ctx context.Context, title string) (*Document, error)
	PutDocument(ctx context.Context, title, text string) (int64, error)
}

// Store wraps the SQLite database for all typekg persistence.
type Store struct {
	db           *sql.DB
	embeddingDim int
}

var _ GraphStore = (*Store)(nil)

// New opens (or creates) a SQLite database at the given path and
// initialises the schema including the sqlite-vec virtual table.
func New(dbPath string, embeddingDim int) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL(embeddingDim)); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, embeddingDim: embeddingDim}

	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// EmbeddingDim returns the configured embedding dimension.
func (s *Store) EmbeddingDim() int {
	return s.embeddingDim
}

// --- Document operations ---

// PutDocument registers a document under a unique title. Returns
// ErrDuplicateTitle when the title already exists; the stored text is never
// overwritten.
func (s *Store) PutDocument(ctx context.Context, title, text string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO documents (title, text) VALUES (?, ?)", title, text)
	if err != nil {
		var sqlErr sqlite3.Error
		if errors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return 0, fmt.Errorf("%w: %q", ErrDuplicateTitle, title)
		}
		return 0, err
	}
	return res.LastInsertId()
}

// GetDocument retrieves a document by title.
func (s *Store) GetDocument(ctx context.Context, title string) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, text, created_at FROM documents WHERE title = ?
	`, title).Scan(&doc.ID, &doc.Title, &doc.Text, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document %q", ErrNotFound, title)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// GetDocumentByID retrieves a document by its row id.
func (s *Store) GetDocumentByID(ctx context.Context, id int64) (*Document, error) {
	doc := &Document{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, text, created_at FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Title, &doc.Text, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: document id %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ListDocuments returns all documents in insertion order.
func (s *Store) ListDocuments(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, text, created_at FROM documents ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Text, &d.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CountDocuments returns the number of registered documents.
func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&n)
	return n, err
}

// --- Embedding operations ---

// InsertEmbedding stores a vector embedding for a document.
func (s *Store) InsertEmbedding(ctx context.Context, docID int64, embedding []float32) error {
	if len(embedding) != s.embeddingDim {
		return fmt.Errorf("embedding dimension %d, store expects %d", len(embedding), s.embeddingDim)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO vec_documents (document_id, embedding) VALUES (?, ?)",
		docID, serializeFloat32(embedding))
	return err
}

// HasEmbedding reports whether the document already has a stored vector.
func (s *Store) HasEmbedding(ctx context.Context, docID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM vec_documents WHERE document_id = ?", docID).Scan(&count)
	return count > 0, err
}

// VectorSearch performs a KNN search returning the top-k nearest documents.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, k int) ([]DocumentHit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.document_id, v.distance, d.title, d.text
		FROM vec_documents v
		JOIN documents d ON d.id = v.document_id
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, serializeFloat32(queryEmbedding), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []DocumentHit
	for rows.Next() {
		var r DocumentHit
		var distance float64
		if err := rows.Scan(&r.ID, &distance, &r.Title, &r.Text); err != nil {
			return nil, err
		}
		// Convert distance to similarity score (1 - distance for cosine)
		r.Score = 1.0 - distance
		results = append(results, r)
	}
	return results, rows.Err()
}

// AllEmbeddings returns every stored document vector, for callers that rank
// in process rather than through the vec0 index.
func (s *Store) AllEmbeddings(ctx context.Context) ([]DocumentEmbedding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.document_id, d.title, v.embedding
		FROM vec_documents v
		JOIN documents d ON d.id = v.document_id
		ORDER BY v.document_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DocumentEmbedding
	for rows.Next() {
		var e DocumentEmbedding
		var blob []byte
		if err := rows.Scan(&e.DocumentID, &e.Title, &blob); err != nil {
			return nil, err
		}
		e.Vector = deserializeFloat32(blob)
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Canonical entity operations ---

// ResolveEntity records a canonical entity key and reports whether it
// already existed. Insert-if-absent under the table's unique constraint, so
// concurrent resolvers agree on who created the entity.
func (s *Store) ResolveEntity(ctx context.Context, entityType, normalizedKey string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO canonical_entities (entity_type, key_value) VALUES (?, ?)",
		entityType, normalizedKey)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// CountEntities returns the number of canonical entities.
func (s *Store) CountEntities(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM canonical_entities").Scan(&n)
	return n, err
}

// --- Statement log ---

// InsertStatements appends accepted statements to the log in one transaction.
func (s *Store) InsertStatements(ctx context.Context, stmts []StatementRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		prep, err := tx.PrepareContext(ctx,
			"INSERT INTO statements (text, origin) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer prep.Close()
		for _, st := range stmts {
			if _, err := prep.ExecContext(ctx, st.Text, st.Origin); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListStatements returns the statement log in insertion order.
func (s *Store) ListStatements(ctx context.Context) ([]StatementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, COALESCE(origin, ''), created_at FROM statements ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatementRecord
	for rows.Next() {
		var st StatementRecord
		if err := rows.Scan(&st.ID, &st.Text, &st.Origin, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// StatementsByOrigin returns the statements extracted from one source title.
func (s *Store) StatementsByOrigin(ctx context.Context, origin string) ([]StatementRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, text, COALESCE(origin, ''), created_at FROM statements WHERE origin = ? ORDER BY id",
		origin)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatementRecord
	for rows.Next() {
		var st StatementRecord
		if err := rows.Scan(&st.ID, &st.Text, &st.Origin, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Insert appends one statement to the log without provenance. Batched writes
// with origin tagging go through InsertStatements.
func (s *Store) Insert(ctx context.Context, statement string) error {
	return s.InsertStatements(ctx, []StatementRecord{{Text: statement}})
}

// Query runs a read query against the database and returns its rows.
func (s *Store) Query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

// --- Schema source ---

// SaveSchemaSource stores the active graph schema definition text.
func (s *Store) SaveSchemaSource(ctx context.Context, source string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schema_source (id, source) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET source = excluded.source, updated_at = CURRENT_TIMESTAMP
	`, source)
	return err
}

// FetchSchema returns the active graph schema definition text.
func (s *Store) FetchSchema(ctx context.Context) (string, error) {
	return s.GetSchemaSource(ctx)
}

// GetSchemaSource returns the active graph schema definition text.
func (s *Store) GetSchemaSource(ctx context.Context) (string, error) {
	var src string
	err := s.db.QueryRowContext(ctx, "SELECT source FROM schema_source WHERE id = 1").Scan(&src)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: schema source", ErrNotFound)
	}
	return src, err
}

// --- Query log ---

// LogQuery appends one question exchange, answered or query-generating, to
// the audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	docs, err := json.Marshal(q.Documents)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO query_log (question, generated_query, answer, documents, model_used,
			prompt_tokens, completion_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, q.Question, q.GeneratedQuery, q.Answer, string(docs), q.ModelUsed,
		q.PromptTokens, q.CompletionTokens, q.TotalTokens)
	return err
}

// RecentQueries returns the newest entries of the query audit log.
func (s *Store) RecentQueries(ctx context.Context, limit int) ([]QueryLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT question, generated_query, answer, documents, model_used,
			prompt_tokens, completion_tokens, total_tokens
		FROM query_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryLog
	for rows.Next() {
		var q QueryLog
		var docs string
		if err := rows.Scan(&q.Question, &q.GeneratedQuery, &q.Answer, &docs, &q.ModelUsed,
			&q.PromptTokens, &q.CompletionTokens, &q.TotalTokens); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(docs), &q.Documents); err != nil {
			return nil, fmt.Errorf("decoding query log documents: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// --- Stats ---

// DBStats summarises table sizes for status reporting.
type DBStats struct {
	Documents  int `json:"documents"`
	Embeddings int `json:"embeddings"`
	Entities   int `json:"entities"`
	Statements int `json:"statements"`
	Queries    int `json:"queries"`
}

// Stats returns row counts for all principal tables.
func (s *Store) Stats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM documents", &stats.Documents},
		{"SELECT COUNT(*) FROM vec_documents", &stats.Embeddings},
		{"SELECT COUNT(*) FROM canonical_entities", &stats.Entities},
		{"SELECT COUNT(*) FROM statements", &stats.Statements},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return stats, nil
}

// --- helpers ---

// inTx runs fn inside a transaction, committing on success.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 is the inverse of serializeFloat32.
func deserializeFloat32(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
