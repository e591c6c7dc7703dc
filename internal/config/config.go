// Package config loads the application configuration from file and
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// APIConfig defines the HTTP API server configuration
type APIConfig struct {
	ListenAddress  string          `mapstructure:"listen_address"`
	ReadTimeout    time.Duration   `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration   `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration   `mapstructure:"idle_timeout"`
	EnableCORS     bool            `mapstructure:"enable_cors"`
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	RateLimit      RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig defines token-bucket rate limiting for the chat endpoints
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	Limit   float64 `mapstructure:"limit"`
	Burst   int     `mapstructure:"burst"`
}

// AWSConfig defines AWS credentials and region settings shared by all AWS
// service clients
type AWSConfig struct {
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token"`
	// Endpoint overrides the AWS endpoint, for LocalStack and other
	// S3-compatible services
	Endpoint string `mapstructure:"endpoint"`
}

// S3Config defines the vector store bucket settings
type S3Config struct {
	Bucket           string        `mapstructure:"bucket"`
	VectorPrefix     string        `mapstructure:"vector_prefix"`
	ForcePathStyle   bool          `mapstructure:"force_path_style"`
	UploadPartSize   int64         `mapstructure:"upload_part_size"`
	DownloadPartSize int64         `mapstructure:"download_part_size"`
	Concurrency      int           `mapstructure:"concurrency"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
}

// BedrockConfig defines model invocation settings
type BedrockConfig struct {
	ModelID           string        `mapstructure:"model_id"`
	EmbeddingsModelID string        `mapstructure:"embeddings_model_id"`
	MaxTokens         int           `mapstructure:"max_tokens"`
	// Temperature is the only sampling knob: the model rejects requests
	// carrying both temperature and top_p.
	Temperature    float64       `mapstructure:"temperature"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// KnowledgeBaseConfig defines the managed retrieve-and-generate tier.
// The tier is disabled when KnowledgeBaseID is empty.
type KnowledgeBaseConfig struct {
	KnowledgeBaseID string `mapstructure:"knowledge_base_id"`
	ModelARN        string `mapstructure:"model_arn"`
	TopK            int    `mapstructure:"top_k"`
}

// RAGConfig defines retrieval and chunking parameters
type RAGConfig struct {
	TopK          int     `mapstructure:"top_k"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
	ChunkSize     int     `mapstructure:"chunk_size"`
	ChunkOverlap  int     `mapstructure:"chunk_overlap"`
}

// SessionConfig defines session store limits
type SessionConfig struct {
	MaxSessions           int `mapstructure:"max_sessions"`
	MaxMessagesPerSession int `mapstructure:"max_messages_per_session"`
}

// DatabaseConfig defines the durable conversation store. The durable store
// is disabled when DSN is empty; conversations then live only in memory.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// WebSocketConfig defines the duplex chat channel settings
type WebSocketConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
}

// ToolsConfig defines the external tool server registry
type ToolsConfig struct {
	Enabled bool         `mapstructure:"enabled"`
	Servers []ToolServer `mapstructure:"servers"`
}

// ToolServer describes one registered tool server endpoint
type ToolServer struct {
	Name    string        `mapstructure:"name"`
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LoggingConfig defines log output settings
type LoggingConfig struct {
	Level string `mapstructure:"level"`
}

// Config holds the complete application configuration
type Config struct {
	API           APIConfig           `mapstructure:"api"`
	AWS           AWSConfig           `mapstructure:"aws"`
	S3            S3Config            `mapstructure:"s3"`
	Bedrock       BedrockConfig       `mapstructure:"bedrock"`
	KnowledgeBase KnowledgeBaseConfig `mapstructure:"knowledge_base"`
	RAG           RAGConfig           `mapstructure:"rag"`
	Session       SessionConfig       `mapstructure:"session"`
	Database      DatabaseConfig      `mapstructure:"database"`
	WebSocket     WebSocketConfig     `mapstructure:"websocket"`
	Tools         ToolsConfig         `mapstructure:"tools"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configFile := os.Getenv("DOCUCHAT_CONFIG_FILE")
	if configFile == "" {
		configFile = "configs/config.yaml"
	}
	v.SetConfigFile(configFile)

	// Environment variables prefixed with DOCUCHAT_ override file values,
	// e.g. DOCUCHAT_S3_BUCKET overrides s3.bucket
	v.SetEnvPrefix("DOCUCHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Config file is not required when environment variables are set
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures
func (c *Config) Validate() error {
	if c.RAG.TopK < 1 {
		return fmt.Errorf("rag.top_k must be at least 1, got %d", c.RAG.TopK)
	}
	if c.RAG.MinSimilarity < -1 || c.RAG.MinSimilarity > 1 {
		return fmt.Errorf("rag.min_similarity must be in [-1, 1], got %f", c.RAG.MinSimilarity)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)",
			c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	if c.Session.MaxSessions < 1 {
		return fmt.Errorf("session.max_sessions must be at least 1, got %d", c.Session.MaxSessions)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// API defaults
	v.SetDefault("api.listen_address", ":8000")
	v.SetDefault("api.read_timeout", 30*time.Second)
	v.SetDefault("api.write_timeout", 30*time.Second)
	v.SetDefault("api.idle_timeout", 90*time.Second)
	v.SetDefault("api.enable_cors", true)
	v.SetDefault("api.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("api.rate_limit.enabled", false)
	v.SetDefault("api.rate_limit.limit", 10.0)
	v.SetDefault("api.rate_limit.burst", 20)

	// AWS defaults
	v.SetDefault("aws.region", "us-east-1")

	// S3 vector store defaults
	v.SetDefault("s3.vector_prefix", "vectors/")
	v.SetDefault("s3.upload_part_size", int64(5*1024*1024))
	v.SetDefault("s3.download_part_size", int64(5*1024*1024))
	v.SetDefault("s3.concurrency", 5)
	v.SetDefault("s3.request_timeout", 30*time.Second)

	// Bedrock defaults
	v.SetDefault("bedrock.model_id", "global.anthropic.claude-sonnet-4-5-20250929-v1:0")
	v.SetDefault("bedrock.embeddings_model_id", "amazon.titan-embed-text-v2:0")
	v.SetDefault("bedrock.max_tokens", 4096)
	v.SetDefault("bedrock.temperature", 0.7)
	v.SetDefault("bedrock.request_timeout", 120*time.Second)

	// Knowledge Base defaults
	v.SetDefault("knowledge_base.top_k", 5)

	// RAG defaults
	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.min_similarity", 0.7)
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 100)

	// Session defaults
	v.SetDefault("session.max_sessions", 1000)
	v.SetDefault("session.max_messages_per_session", 100)

	// Database defaults
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// WebSocket defaults
	v.SetDefault("websocket.enabled", true)
	v.SetDefault("websocket.max_message_size", int64(64*1024))
	v.SetDefault("websocket.ping_interval", 30*time.Second)
	v.SetDefault("websocket.write_timeout", 10*time.Second)

	// Tools defaults
	v.SetDefault("tools.enabled", false)

	// Logging defaults
	v.SetDefault("logging.level", "INFO")
}
