package config

import (
	"fmt"
	"time"

	"bibleverse-backend/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Firestore FirestoreConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Cassandra CassandraConfig
	Gemini    GeminiConfig
	Circle    CircleConfig
	JWT       JWTConfig
	Log       LogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port             int
	Environment      string // development, staging, production
	ServiceName      string
	AllowedOrigins   []string
	WSMaxConnections int
}

// FirestoreConfig selects the document store backing calls, participants and tasks.
// An empty ProjectID runs the service on in-memory stores.
type FirestoreConfig struct {
	ProjectID       string
	CredentialsPath string
}

// DatabaseConfig holds CockroachDB configuration (governance logs)
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// RedisConfig holds Redis configuration (call locks, event fan-out)
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// CassandraConfig holds Cassandra configuration (call transcripts)
type CassandraConfig struct {
	Enabled  bool
	Hosts    []string
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
}

// GeminiConfig configures the moderator announcement generator.
// An empty APIKey disables generation and the fallback templates are used.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Endpoint string
	Timeout  time.Duration
}

// CircleConfig holds circle-talking policy knobs
type CircleConfig struct {
	OrderRule       string // join, identity, store
	LockTTL         time.Duration
	LockWait        time.Duration
	DisableAuthz    bool
	TranscriptLimit int
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret   string
	Audience string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:             env.GetInt("PORT", 8085),
			Environment:      env.GetString("ENV", "development"),
			ServiceName:      env.GetString("SERVICE_NAME", "call-service"),
			AllowedOrigins:   env.GetStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			WSMaxConnections: env.GetInt("WS_MAX_CONNECTIONS", 1000),
		},
		Firestore: FirestoreConfig{
			ProjectID:       env.GetStringFromFile("FIREBASE_PROJECT_ID", ""),
			CredentialsPath: env.GetString("FIREBASE_CREDENTIALS_PATH", env.GetString("GOOGLE_APPLICATION_CREDENTIALS", "")),
		},
		Database: DatabaseConfig{
			Enabled:  env.GetBool("DB_ENABLED", false),
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 26257),
			User:     env.GetString("DB_USER", "root"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "bibleverse"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  env.GetBool("REDIS_ENABLED", false),
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Cassandra: CassandraConfig{
			Enabled:  env.GetBool("CASSANDRA_ENABLED", false),
			Hosts:    env.GetStringSlice("CASSANDRA_HOSTS", []string{"localhost"}),
			Keyspace: env.GetString("CASSANDRA_KEYSPACE", "bibleverse_ks"),
			Username: env.GetString("CASSANDRA_USER", ""),
			Password: env.GetStringFromFile("CASSANDRA_PASSWORD", ""),
			Timeout:  env.GetDuration("CASSANDRA_TIMEOUT", 600*time.Millisecond),
		},
		Gemini: GeminiConfig{
			APIKey:   env.GetStringFromFile("GEMINI_API_KEY", ""),
			Model:    env.GetString("GEMINI_MODEL", "gemini-pro"),
			Endpoint: env.GetString("GEMINI_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			Timeout:  env.GetDuration("GEMINI_TIMEOUT", 5*time.Second),
		},
		Circle: CircleConfig{
			OrderRule:       env.GetString("CIRCLE_ORDER_RULE", "join"),
			LockTTL:         env.GetDuration("CIRCLE_LOCK_TTL", 15*time.Second),
			LockWait:        env.GetDuration("CIRCLE_LOCK_WAIT", 5*time.Second),
			DisableAuthz:    env.GetBool("CIRCLE_DISABLE_AUTHZ", false),
			TranscriptLimit: env.GetInt("CIRCLE_TRANSCRIPT_LIMIT", 100),
		},
		JWT: JWTConfig{
			Secret:   env.GetStringFromFile("JWT_SECRET", ""),
			Audience: env.GetString("JWT_AUDIENCE", "bibleverse-api"),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/app.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET must be set")
	}
	if c.Server.Environment == "production" {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if c.Firestore.ProjectID == "" {
			return fmt.Errorf("FIREBASE_PROJECT_ID must be set in production")
		}
		if c.Circle.DisableAuthz {
			return fmt.Errorf("CIRCLE_DISABLE_AUTHZ is not allowed in production")
		}
	}

	switch c.Circle.OrderRule {
	case "join", "identity", "store":
	default:
		return fmt.Errorf("CIRCLE_ORDER_RULE must be one of join, identity, store (got %q)", c.Circle.OrderRule)
	}

	if c.Circle.LockTTL <= 0 || c.Circle.LockWait <= 0 {
		return fmt.Errorf("CIRCLE_LOCK_TTL and CIRCLE_LOCK_WAIT must be positive")
	}
	// The lock is held across the announcement call, so it must outlive it
	if c.Circle.LockTTL <= c.Gemini.Timeout+c.Circle.LockWait {
		return fmt.Errorf("CIRCLE_LOCK_TTL (%s) must exceed GEMINI_TIMEOUT plus CIRCLE_LOCK_WAIT (%s)",
			c.Circle.LockTTL, c.Gemini.Timeout+c.Circle.LockWait)
	}

	return nil
}

// IsProduction reports whether the service runs in production mode
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}
