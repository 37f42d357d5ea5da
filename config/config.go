package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/upb/authgate/models"
)

// MinSigningKeyLength is the shortest accepted HMAC signing secret in bytes
const MinSigningKeyLength = 32

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Auth          AuthConfig
	Database      *DatabaseConfig // Optional: audit logs stay in memory when nil
	Audit         AuditConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host               string
	Port               int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	ShutdownTimeout    time.Duration
	RequestTimeout     time.Duration
	CORSAllowedOrigins []string
}

// AuthConfig holds credential issuance and authorization settings
type AuthConfig struct {
	SigningKey            string // HMAC secret (HS256)
	PrivateKey            string // inline PEM or path (RS256/ES256); wins over SigningKey
	Issuer                string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	AdminOverride         bool
	BcryptCost            int
	RevocationPrunePeriod time.Duration
	Users                 []UserEntry
	StaticTokens          []StaticToken
}

// UserEntry is a login principal from AUTH_USERS
type UserEntry struct {
	Identity string
	Secret   string
	Role     models.Role
	Email    string
}

// StaticToken is a pre-shared opaque token from AUTH_STATIC_TOKENS
type StaticToken struct {
	Token    string
	Identity string
	Role     models.Role
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuditConfig sizes the asynchronous audit pipeline
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

const (
	defaultUsers        = "admin:admin123:admin:admin@example.com,user1:user123:user:user1@example.com,operator:operator123:operator:operator@example.com"
	defaultStaticTokens = "api_token_admin_12345:admin:admin,api_token_user_67890:user1:user,api_token_service_abcde:service_account:service"
)

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	environment := getEnv("ENVIRONMENT", "development")

	// demo principals and tokens are only loaded outside production
	usersDefault, tokensDefault := defaultUsers, defaultStaticTokens
	if isProduction(environment) {
		usersDefault, tokensDefault = "", ""
	}

	users, err := parseUsers(getEnv("AUTH_USERS", usersDefault))
	if err != nil {
		return nil, fmt.Errorf("AUTH_USERS: %w", err)
	}
	tokens, err := parseStaticTokens(getEnv("AUTH_STATIC_TOKENS", tokensDefault))
	if err != nil {
		return nil, fmt.Errorf("AUTH_STATIC_TOKENS: %w", err)
	}

	cfg := &Config{
		Environment: environment,
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "0.0.0.0"),
			Port:               getPort(),
			ReadTimeout:        getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:       getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Auth: AuthConfig{
			SigningKey:            getEnv("JWT_SIGNING_KEY", ""),
			PrivateKey:            getEnv("JWT_PRIVATE_KEY", ""),
			Issuer:                getEnv("JWT_ISSUER", "authgate"),
			AccessTTL:             getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL:            getEnvAsDuration("JWT_REFRESH_TTL", 720*time.Hour),
			AdminOverride:         getEnvAsBool("AUTH_ADMIN_OVERRIDE", true),
			BcryptCost:            getEnvAsInt("BCRYPT_COST", 10),
			RevocationPrunePeriod: getEnvAsDuration("REVOCATION_PRUNE_INTERVAL", 10*time.Minute),
			Users:                 users,
			StaticTokens:          tokens,
		},
		Database: loadDatabaseConfig(),
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	// Signing key validation
	if c.Auth.PrivateKey == "" {
		if c.Auth.SigningKey == "" && c.IsProduction() {
			return fmt.Errorf("JWT_SIGNING_KEY or JWT_PRIVATE_KEY is required in production")
		}
		if c.Auth.SigningKey != "" && len(c.Auth.SigningKey) < MinSigningKeyLength {
			return fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes", MinSigningKeyLength)
		}
	}
	if c.Auth.AccessTTL <= 0 {
		return fmt.Errorf("access token TTL must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return fmt.Errorf("refresh token TTL must not be shorter than access token TTL")
	}
	if c.IsProduction() {
		if err := rejectDemoCredentials(c.Auth); err != nil {
			return err
		}
	}
	for _, u := range c.Auth.Users {
		if !u.Role.Valid() {
			return fmt.Errorf("user %q has invalid role %q", u.Identity, u.Role)
		}
	}
	for _, t := range c.Auth.StaticTokens {
		if !t.Role.Valid() {
			return fmt.Errorf("static token for %q has invalid role %q", t.Identity, t.Role)
		}
	}

	// Database validation (only when configured)
	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.Audit.BufferSize <= 0 || c.Audit.WorkerCount <= 0 {
		return fmt.Errorf("audit buffer size and worker count must be positive")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return isProduction(c.Environment)
}

func isProduction(environment string) bool {
	return environment == "production" || environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			return fmt.Sprintf("host=%s port=%s database=%s", u.Hostname(), port, strings.TrimPrefix(u.Path, "/"))
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads database config from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	pool := DatabaseConfig{
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		pool.ConnectionString = dbURL
		return &pool
	}
	host := getEnv("DB_HOST", "")
	if host == "" {
		return nil
	}

	pool.Host = host
	pool.Port = getEnvAsInt("DB_PORT", 5432)
	pool.User = getEnv("DB_USER", "authgate")
	pool.Password = getEnv("DB_PASSWORD", "")
	pool.Database = getEnv("DB_NAME", "authgate")
	pool.SSLMode = getEnv("DB_SSLMODE", "disable")
	return &pool
}

// parseUsers parses "identity:secret:role[:email]" entries separated by commas
func parseUsers(raw string) ([]UserEntry, error) {
	var users []UserEntry
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) < 3 || len(parts) > 4 {
			return nil, fmt.Errorf("entry %q must be identity:secret:role[:email]", entry)
		}
		u := UserEntry{Identity: parts[0], Secret: parts[1], Role: models.Role(parts[2])}
		if len(parts) == 4 {
			u.Email = parts[3]
		}
		if u.Identity == "" || u.Secret == "" {
			return nil, fmt.Errorf("entry %q has an empty identity or secret", entry)
		}
		users = append(users, u)
	}
	return users, nil
}

// rejectDemoCredentials fails when any built-in demo login or static token is configured
func rejectDemoCredentials(auth AuthConfig) error {
	demoUsers, _ := parseUsers(defaultUsers)
	for _, u := range auth.Users {
		for _, d := range demoUsers {
			if u.Identity == d.Identity && u.Secret == d.Secret {
				return fmt.Errorf("AUTH_USERS must not use the demo login for %q in production", u.Identity)
			}
		}
	}

	demoTokens, _ := parseStaticTokens(defaultStaticTokens)
	for _, t := range auth.StaticTokens {
		for _, d := range demoTokens {
			if t.Token == d.Token {
				return fmt.Errorf("AUTH_STATIC_TOKENS must not use the demo token of %q in production", d.Identity)
			}
		}
	}
	return nil
}

// parseStaticTokens parses "token:identity:role" entries separated by commas
func parseStaticTokens(raw string) ([]StaticToken, error) {
	var tokens []StaticToken
	for _, entry := range splitList(raw) {
		parts := strings.Split(entry, ":")
		if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("entry must be token:identity:role")
		}
		tokens = append(tokens, StaticToken{Token: parts[0], Identity: parts[1], Role: models.Role(parts[2])})
	}
	return tokens, nil
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8080)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8080
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	values := splitList(os.Getenv(key))
	if len(values) == 0 {
		return defaultValue
	}
	return values
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
