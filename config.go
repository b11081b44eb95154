package typekg

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all configuration for the typekg engine. Components receive
// what they need explicitly; nothing reads ambient state.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.typekg/<DBName>.db
	DBPath string `json:"db_path" toml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" toml:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// set: "home" (default) uses ~/.typekg/, "local" uses the working directory.
	StorageDir string `json:"storage_dir" toml:"storage_dir"`

	// SchemaFile is the path to a declarative schema source. When empty the
	// schema is fetched from the store (FetchSchema).
	SchemaFile string `json:"schema_file" toml:"schema_file"`

	// CompactSchema renders the schema in the condensed form when embedding
	// it into prompts (smaller models cope better with it).
	CompactSchema bool `json:"compact_schema" toml:"compact_schema"`

	// LLM providers
	Completion LLMConfig `json:"completion" toml:"completion"`
	Embedding  LLMConfig `json:"embedding" toml:"embedding"`

	// Prompt template files. Empty means the built-in defaults.
	ConstructTemplate  string `json:"construct_template" toml:"construct_template"`
	LinesTemplate      string `json:"lines_template" toml:"lines_template"`
	QueryTemplate      string `json:"query_template" toml:"query_template"`
	AnswerTemplate     string `json:"answer_template" toml:"answer_template"`

	// MaxTokens caps completion length per call.
	MaxTokens int `json:"max_tokens" toml:"max_tokens"`

	// TopK is the number of documents retrieved for RAG answering.
	TopK int `json:"top_k" toml:"top_k"`

	// WarnDuplicateTitles logs a warning when ingestion discards a document
	// whose title is already stored (first-write-wins either way).
	WarnDuplicateTitles bool `json:"warn_duplicate_titles" toml:"warn_duplicate_titles"`

	// EmbedAttribute, when set, makes line construction attach a base64
	// embedding of each entity's key value to the entity under this
	// attribute. The attribute must be declared by the schema.
	EmbedAttribute string `json:"embed_attribute" toml:"embed_attribute"`

	// EmbeddingDim must match the embedding model's output dimension.
	EmbeddingDim int `json:"embedding_dim" toml:"embedding_dim"`
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider string `json:"provider" toml:"provider"` // openaicompat, ollama, openai, claudecli
	Model    string `json:"model" toml:"model"`
	BaseURL  string `json:"base_url" toml:"base_url"`
	APIKey   string `json:"api_key" toml:"api_key"`
}

// DefaultConfig returns a Config with sensible defaults for local inference
// against llama-cpp style servers.
func DefaultConfig() Config {
	return Config{
		DBName:     "typekg",
		StorageDir: "home",
		Completion: LLMConfig{
			Provider: "openaicompat",
			Model:    "default",
			BaseURL:  "http://localhost:8080/v1",
		},
		Embedding: LLMConfig{
			Provider: "openaicompat",
			Model:    "qwen3-embedding-8b",
			BaseURL:  "http://localhost:8081/v1",
		},
		MaxTokens:           4096,
		TopK:                5,
		WarnDuplicateTitles: true,
		EmbeddingDim:        768,
	}
}

// LoadConfig reads a TOML config file over the defaults, then applies
// TYPEKG_* environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides config fields from environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("TYPEKG_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("TYPEKG_COMPLETION_BASE_URL"); v != "" {
		c.Completion.BaseURL = v
	}
	if v := os.Getenv("TYPEKG_COMPLETION_MODEL"); v != "" {
		c.Completion.Model = v
	}
	if v := os.Getenv("TYPEKG_COMPLETION_PROVIDER"); v != "" {
		c.Completion.Provider = v
	}
	if v := os.Getenv("TYPEKG_COMPLETION_API_KEY"); v != "" {
		c.Completion.APIKey = v
	}
	if v := os.Getenv("TYPEKG_EMBED_BASE_URL"); v != "" {
		c.Embedding.BaseURL = v
	}
	if v := os.Getenv("TYPEKG_EMBED_MODEL"); v != "" {
		c.Embedding.Model = v
	}
	if v := os.Getenv("TYPEKG_EMBED_PROVIDER"); v != "" {
		c.Embedding.Provider = v
	}
	if v := os.Getenv("TYPEKG_EMBED_API_KEY"); v != "" {
		c.Embedding.APIKey = v
	}
	if c.Completion.APIKey == "" && c.Completion.Provider == "openai" {
		c.Completion.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Embedding.APIKey == "" && c.Embedding.Provider == "openai" {
		c.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "typekg"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".typekg", name+".db")
	}
}
