package typekg

import "errors"

var (
	// ErrDocumentNotFound is returned when a document title does not exist in the store.
	ErrDocumentNotFound = errors.New("typekg: document not found")

	// ErrDocumentExists is returned when ingesting a duplicate document title.
	// Ingestion policy is first-write-wins; callers decide whether to warn.
	ErrDocumentExists = errors.New("typekg: document already exists")

	// ErrSchemaNotLoaded is returned when a pipeline runs before a schema is available.
	ErrSchemaNotLoaded = errors.New("typekg: schema not loaded")

	// ErrLLMRequestFailed is returned when a completion request fails.
	ErrLLMRequestFailed = errors.New("typekg: LLM request failed")

	// ErrInvalidQuery is returned when a generated query references names the
	// schema does not declare. The query is rejected, never repaired.
	ErrInvalidQuery = errors.New("typekg: generated query violates schema")

	// ErrEmbeddingFailed is returned when embedding generation fails.
	ErrEmbeddingFailed = errors.New("typekg: embedding generation failed")

	// ErrStoreClosed is returned when operating on a closed store.
	ErrStoreClosed = errors.New("typekg: store is closed")

	// ErrNoDocuments is returned when a construction batch resolves zero documents.
	ErrNoDocuments = errors.New("typekg: no documents found for batch")

	// ErrInvalidConfig is returned for invalid configuration values.
	ErrInvalidConfig = errors.New("typekg: invalid configuration")
)
