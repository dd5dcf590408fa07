// Package config loads the pipeline's version-controlled YAML configuration
// at startup: chunking/linking/claim/theme/retrieval thresholds, the
// ontology and predicate whitelist, provider credentials, and backing-store
// DSNs. An invalid YAML document, or a config that fails validation, fails
// fast before Stage 0 ever runs, per the configuration-errors row of the
// error taxonomy. An omitted threshold is not an error: Load fills it with
// its documented default.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChunkingConfig holds Stage 0 parameters.
type ChunkingConfig struct {
	WindowSentences int `yaml:"window_sentences"`
	Stride          int `yaml:"stride"`
	MaxChars        int `yaml:"max_chars"`
}

// EntityLinkingConfig holds Stage 2 parameters.
type EntityLinkingConfig struct {
	HighThreshold float64 `yaml:"high_threshold"`
	LowThreshold  float64 `yaml:"low_threshold"`
	TopKPerSource int     `yaml:"top_k_per_source"`
}

// ClaimConfig holds Stage 3 parameters.
type ClaimConfig struct {
	WindowSentences int     `yaml:"window_sentences"`
	NLICheck        bool    `yaml:"nli_check"`
	NLIThreshold    float64 `yaml:"nli_threshold"`
}

// ThemeConfig holds Stage 4 parameters.
type ThemeConfig struct {
	MinCommunitySize int  `yaml:"min_community_size"`
	EnableFineLevel  bool `yaml:"enable_fine_level"`
}

// RetrievalConfig holds Stage 7 parameters.
type RetrievalConfig struct {
	TopK               int  `yaml:"top_k"`
	MaxHops            int  `yaml:"max_hops"`
	EnableVectorSearch bool `yaml:"enable_vector_search"`
	EnableGDSCommunity bool `yaml:"enable_gds_community"`
	GenerationMaxRetry int  `yaml:"generation_max_retry"`
}

// OntologyPredicate declares the allowed (subject_type, object_type) pairs
// for one whitelisted predicate.
type OntologyPredicate struct {
	Name  string      `yaml:"name"`
	Pairs [][2]string `yaml:"pairs"` // each pair is [subject_type, object_type]
}

// OntologyConfig is the type system the Entity Linker and Predicate Governor
// gate against. Loaded from version-controlled YAML, never hardcoded.
type OntologyConfig struct {
	NodeTypes  []string            `yaml:"node_types"`
	Predicates []OntologyPredicate `yaml:"predicates"`
}

// PredicateSurfaceMapping is one row of the surface -> canonical table.
type PredicateSurfaceMapping struct {
	Surfaces  []string `yaml:"surfaces"`
	Canonical string   `yaml:"canonical"`
}

// PredicateGovernorConfig holds Stage 5 parameters.
type PredicateGovernorConfig struct {
	SurfaceMap            []PredicateSurfaceMapping `yaml:"surface_map"`
	SynonymThreshold      float64                   `yaml:"synonym_threshold"`
	FeedbackMinRecurrence int                       `yaml:"feedback_min_recurrence"`
}

// LLMProviderConfig configures one named model deployment behind the
// provider-agnostic chat_completion contract (see internal/llm).
type LLMProviderConfig struct {
	Provider    string  `yaml:"provider"` // anthropic|openai|google
	Model       string  `yaml:"model"`
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url,omitempty"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	// LogPayloads enables debug-level logging of redacted prompt/response
	// bodies for every ChatCompletion call. Off by default since prompts
	// routinely carry excerpted document text.
	LogPayloads bool `yaml:"log_payloads,omitempty"`
}

// EmbeddingConfig configures the embedding provider contract. Also consumed
// directly by internal/embedding's generic HTTP transport for self-hosted
// embedding servers (e.g. llama.cpp-compatible).
type EmbeddingConfig struct {
	Provider  string `yaml:"provider"` // openai|google|http
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	APIKey    string `yaml:"api_key"`
	APIHeader string `yaml:"api_header"`
	// Headers carries extra static headers (e.g. a gateway key) applied to
	// every request without overriding APIHeader/APIKey.
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout int               `yaml:"timeout_seconds"`
	Dim     int               `yaml:"dim"`
}

// S3SSEConfig configures server-side encryption for blob storage writes.
type S3SSEConfig struct {
	Mode     string `yaml:"mode"` // "", sse-s3, sse-kms
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// S3Config configures the Document raw-content blob store.
type S3Config struct {
	Bucket                string      `yaml:"bucket"`
	Region                string      `yaml:"region"`
	Endpoint              string      `yaml:"endpoint,omitempty"`
	AccessKey             string      `yaml:"access_key,omitempty"`
	SecretKey             string      `yaml:"secret_key,omitempty"`
	Prefix                string      `yaml:"prefix,omitempty"`
	UsePathStyle          bool        `yaml:"use_path_style,omitempty"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify,omitempty"`
	SSE                   S3SSEConfig `yaml:"sse,omitempty"`
}

// PostgresConfig configures the property-graph store.
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// QdrantConfig configures the vector index.
type QdrantConfig struct {
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"`
}

// RedisConfig configures the read-mostly alias/predicate cache and the
// review queue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db"`
}

// KafkaConfig configures the build-version commit event stream.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// ClickHouseConfig configures the metrics-over-build_version history store.
type ClickHouseConfig struct {
	DSN string `yaml:"dsn"`
}

// TelemetryConfig controls OpenTelemetry tracing/metrics export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig controls the ambient zerolog setup.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogPath string `yaml:"log_path,omitempty"`
}

// Config is the top-level, version-controlled configuration document. It is
// loaded once at startup and passed down through PipelineContext; nothing in
// the pipeline reads ambient/global configuration state.
type Config struct {
	BuildVersionPrefix string `yaml:"build_version_prefix"`
	EmbedDim           int    `yaml:"embed_dim"`

	Chunking  ChunkingConfig          `yaml:"chunking"`
	Linking   EntityLinkingConfig     `yaml:"entity_linking"`
	Claims    ClaimConfig             `yaml:"claims"`
	Theme     ThemeConfig             `yaml:"theme"`
	Retrieval RetrievalConfig         `yaml:"retrieval"`
	Ontology  OntologyConfig          `yaml:"ontology"`
	Predicate PredicateGovernorConfig `yaml:"predicate_governor"`

	LLM       LLMProviderConfig `yaml:"llm"`
	Embedding EmbeddingConfig   `yaml:"embedding"`

	Postgres   PostgresConfig   `yaml:"postgres"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
	Blob       S3Config         `yaml:"blob"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// Load reads filename, applies .env overrides if envFile is non-empty (a
// local-development convenience), fills in documented defaults, and
// validates the result. A validation failure is
// returned wrapped with an "invalid config" prefix so callers can treat it
// as a startup-fatal configuration error.
func Load(filename string, envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile) // best-effort; missing .env is not fatal
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chunking.WindowSentences <= 0 {
		cfg.Chunking.WindowSentences = 4
	}
	if cfg.Chunking.Stride <= 0 {
		cfg.Chunking.Stride = 2
	}
	if cfg.Chunking.MaxChars <= 0 {
		cfg.Chunking.MaxChars = 1200
	}
	if cfg.Linking.HighThreshold <= 0 {
		cfg.Linking.HighThreshold = 0.85
	}
	if cfg.Linking.LowThreshold <= 0 {
		cfg.Linking.LowThreshold = 0.65
	}
	if cfg.Linking.TopKPerSource <= 0 {
		cfg.Linking.TopKPerSource = 8
	}
	if cfg.Claims.WindowSentences <= 0 {
		cfg.Claims.WindowSentences = 8
	}
	if cfg.Theme.MinCommunitySize <= 0 {
		cfg.Theme.MinCommunitySize = 3
	}
	if cfg.Retrieval.TopK <= 0 {
		cfg.Retrieval.TopK = 10
	}
	if cfg.Retrieval.MaxHops <= 0 {
		cfg.Retrieval.MaxHops = 2
	}
	if cfg.Retrieval.GenerationMaxRetry <= 0 {
		cfg.Retrieval.GenerationMaxRetry = 2
	}
	if cfg.Predicate.SynonymThreshold <= 0 {
		cfg.Predicate.SynonymThreshold = 0.8
	}
	if cfg.Predicate.FeedbackMinRecurrence <= 0 {
		cfg.Predicate.FeedbackMinRecurrence = 3
	}
	if cfg.EmbedDim <= 0 {
		cfg.EmbedDim = 1536
	}
	if cfg.BuildVersionPrefix == "" {
		cfg.BuildVersionPrefix = "build"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Qdrant.Metric == "" {
		cfg.Qdrant.Metric = "cosine"
	}
}

func validate(cfg *Config) error {
	if cfg.Linking.LowThreshold >= cfg.Linking.HighThreshold {
		return fmt.Errorf("entity_linking.low_threshold (%.2f) must be below high_threshold (%.2f)",
			cfg.Linking.LowThreshold, cfg.Linking.HighThreshold)
	}
	if len(cfg.Ontology.NodeTypes) == 0 {
		return fmt.Errorf("ontology.node_types must declare at least one node type")
	}
	if len(cfg.Ontology.Predicates) == 0 {
		return fmt.Errorf("ontology.predicates must declare at least one whitelisted predicate")
	}
	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required")
	}
	return nil
}
