package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	Task     TaskConfig     `mapstructure:"task"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret              string `mapstructure:"jwt_secret"               validate:"required,min=32"`
	TokenLifetimeMinutes   int    `mapstructure:"token_lifetime_minutes"   validate:"required,gt=0"`
	RefreshLifetimeMinutes int    `mapstructure:"refresh_lifetime_minutes" validate:"required,gt=0"`
}

// TaskConfig contains settings for the background task subsystem.
type TaskConfig struct {
	// WorkerCount is the fixed size of the worker pool.
	WorkerCount int `mapstructure:"worker_count" validate:"required,gt=0"`

	// QueueSize bounds the submission queue; submissions beyond it are
	// rejected rather than blocking the request path.
	QueueSize int `mapstructure:"queue_size" validate:"required,gt=0"`

	// RetentionWindow is how long finished tasks stay queryable.
	// Zero means terminal tasks are evicted on the next janitor sweep.
	RetentionWindow time.Duration `mapstructure:"retention_window" validate:"min=0"`

	// SweepInterval is how often the janitor scans for expired tasks.
	SweepInterval time.Duration `mapstructure:"sweep_interval" validate:"required,gt=0"`
}

// LLMConfig contains all LLM integration related settings.
type LLMConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required"`
	ModelName    string `mapstructure:"model_name"     validate:"required"`
}
