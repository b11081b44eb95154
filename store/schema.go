package store

import "fmt"

// schemaSQL returns the DDL for all tables. embeddingDim controls the
// vec0 virtual table dimension.
func schemaSQL(embeddingDim int) string {
	return fmt.Sprintf(`
-- Source paragraphs, one row per document title. Titles are unique: the
-- first write wins and later writes with the same title are rejected.
CREATE TABLE IF NOT EXISTS documents (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL UNIQUE,
    text TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Vector embeddings via sqlite-vec
CREATE VIRTUAL TABLE IF NOT EXISTS vec_documents USING vec0(
    document_id INTEGER PRIMARY KEY,
    embedding float[%d]
);

-- Canonical entity registry: the cross-batch deduplication authority.
-- A row exists iff the entity has been seen by any construction run.
CREATE TABLE IF NOT EXISTS canonical_entities (
    id INTEGER PRIMARY KEY,
    entity_type TEXT NOT NULL,
    key_value TEXT NOT NULL,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(entity_type, key_value)
);

-- Append-only log of accepted graph-write statements with provenance.
CREATE TABLE IF NOT EXISTS statements (
    id INTEGER PRIMARY KEY,
    text TEXT NOT NULL,
    origin TEXT,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- The active graph schema definition, single row.
CREATE TABLE IF NOT EXISTS schema_source (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    source TEXT NOT NULL,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Query audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    question TEXT NOT NULL,
    generated_query TEXT,
    answer TEXT,
    documents JSON,
    model_used TEXT,
    prompt_tokens INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Indexes
CREATE INDEX IF NOT EXISTS idx_entities_type ON canonical_entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_statements_origin ON statements(origin);
`, embeddingDim)
}
