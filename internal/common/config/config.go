// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Warehouse WarehouseConfig `mapstructure:"warehouse"`
	Vector    VectorConfig    `mapstructure:"vector"`
	Cache     CacheConfig     `mapstructure:"cache"`
	GenAI     GenAIConfig     `mapstructure:"genai"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Prompt    PromptConfig    `mapstructure:"prompt"`
	Chart     ChartConfig     `mapstructure:"chart"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // seconds
}

// WarehouseConfig holds the analytical database connection plus the session
// context applied before every generated query runs.
type WarehouseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`

	// Session context, the analog of USE ROLE / USE SCHEMA.
	Role         string `mapstructure:"role"`
	Schema       string `mapstructure:"schema"`
	QueryTimeout int    `mapstructure:"query_timeout"` // milliseconds
}

// GetDSN returns the PostgreSQL connection string
func (w WarehouseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		w.Host, w.Port, w.User, w.Password, w.Database, w.SSLMode,
	)
}

type VectorConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
	Timeout   int      `mapstructure:"timeout"` // milliseconds
}

type CacheConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	TTL       int    `mapstructure:"ttl"` // seconds, 0 = no expiry
}

// GenAIConfig holds settings for the generative model service.
type GenAIConfig struct {
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	Timeout     int     `mapstructure:"timeout"` // milliseconds
	MaxRetries  int     `mapstructure:"max_retries"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// GetTimeout returns the model call timeout as a duration.
func (g GenAIConfig) GetTimeout() time.Duration {
	return time.Duration(g.Timeout) * time.Millisecond
}

// RetrievalConfig controls context retrieval and the graph fallback.
type RetrievalConfig struct {
	TopK      int    `mapstructure:"top_k"`
	MinRecall int    `mapstructure:"min_recall"` // below this, fall back to the graph
	GraphPath string `mapstructure:"graph_path"`
	DocsPath  string `mapstructure:"docs_path"`
	Timeout   int    `mapstructure:"timeout"` // milliseconds, vector query budget
}

type PromptConfig struct {
	MaxContextChars int `mapstructure:"max_context_chars"`
}

type ChartConfig struct {
	CategoryCardinality int `mapstructure:"category_cardinality"`
}

// AuthConfig holds settings for the users-file credential store.
type AuthConfig struct {
	UsersFile string `mapstructure:"users_file"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
