package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Issuer         string // Issuer claim for tokens (default: roomkey-identity)
	BootstrapToken string // Optional: token required to perform bootstrap

	StoreDriver   string // Store driver (sqlite, memory) (default: sqlite)
	DatabaseFile  string // Path to SQLite database file (default: ./identity.db)
	PepperFile    string // Path to file containing pepper for password hashing (default: ./pepper)
	MasterKeyPath string // Optional: path to the master key sealing config secrets
	MasterKey     string // Optional: master key value, used when no path is set

	Env                 string        // Environment (dev, staging, prod) (default: dev)
	LogLevel            string        // Log level (debug, info, warn, error) (default: info)
	LogFormat           string        // Log format (json, text) (default: json)
	Port                int           // HTTP server port (default: 8080)
	ShutdownGracePeriod time.Duration // Graceful shutdown timeout (default: 10s)

	PublicURL string // Base URL of this service, used for SSO callbacks (default: http://localhost:8080)
	AppURL    string // Frontend origin SSO callbacks redirect to (default: http://localhost:3000)

	StateStore    string // SSO state store (memory, redis) (default: memory)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string // Key prefix (default: roomkey:)

	SyncEnabled           bool          // Run scheduled directory syncs on this replica (default: true)
	SyncReconcileInterval time.Duration // Scheduler reconciliation tick (default: 5m)
	DirectoryTimeout      time.Duration // Directory connection timeout (default: 10s)
	SSOHTTPTimeout        time.Duration // IdP HTTP timeout (default: 10s)

	SessionTTL        time.Duration // Full session lifetime (default: 24h)
	RememberMeTTL     time.Duration // "Keep me logged in" lifetime (default: 720h)
	PartialSessionTTL time.Duration // Partial (2FA pending) session lifetime (default: 10m)
	TOTPIssuer        string        // Issuer label in authenticator apps (default: Roomkey)

	SAMLCertFile string // Optional: SP certificate, generated when both are empty
	SAMLKeyFile  string // Optional: SP private key
}

// LoadConfig reads the environment. A .env file in the working directory is
// loaded first when present.
func LoadConfig() Config {
	_ = godotenv.Load()

	cfg := Config{
		Issuer:         getEnvOrDefault("IDENTITY_ISSUER", "roomkey-identity"),
		BootstrapToken: os.Getenv("BOOTSTRAP_TOKEN"),

		StoreDriver:   strings.ToLower(getEnvOrDefault("STORE_DRIVER", "sqlite")),
		DatabaseFile:  getEnvOrDefault("DATABASE_FILE", "identity.db"),
		PepperFile:    getEnvOrDefault("PEPPER_FILE", "pepper"),
		MasterKeyPath: os.Getenv("MASTER_KEY_PATH"),
		MasterKey:     os.Getenv("IDENTITY_MASTER_KEY"),

		Env:                 getEnvOrDefault("ENV", "dev"),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:           getEnvOrDefault("LOG_FORMAT", "json"),
		Port:                getEnvIntOrDefault("PORT", 8080),
		ShutdownGracePeriod: getEnvDurationOrDefault("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		PublicURL: strings.TrimRight(getEnvOrDefault("PUBLIC_URL", "http://localhost:8080"), "/"),
		AppURL:    strings.TrimRight(getEnvOrDefault("APP_URL", "http://localhost:3000"), "/"),

		StateStore:    strings.ToLower(getEnvOrDefault("STATE_STORE", "memory")),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvIntOrDefault("REDIS_DB", 0),
		RedisPrefix:   getEnvOrDefault("REDIS_PREFIX", "roomkey:"),

		SyncEnabled:           getEnvBoolOrDefault("SYNC_ENABLED", true),
		SyncReconcileInterval: getEnvDurationOrDefault("SYNC_RECONCILE_INTERVAL", 5*time.Minute),
		DirectoryTimeout:      getEnvDurationOrDefault("DIRECTORY_TIMEOUT", 10*time.Second),
		SSOHTTPTimeout:        getEnvDurationOrDefault("SSO_HTTP_TIMEOUT", 10*time.Second),

		SessionTTL:        getEnvDurationOrDefault("SESSION_TTL", 24*time.Hour),
		RememberMeTTL:     getEnvDurationOrDefault("REMEMBER_ME_TTL", 30*24*time.Hour),
		PartialSessionTTL: getEnvDurationOrDefault("PARTIAL_SESSION_TTL", 10*time.Minute),
		TOTPIssuer:        getEnvOrDefault("TOTP_ISSUER", "Roomkey"),

		SAMLCertFile: os.Getenv("SAML_SP_CERT_FILE"),
		SAMLKeyFile:  os.Getenv("SAML_SP_KEY_FILE"),
	}

	return cfg
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if intValue, err := strconv.Atoi(value); err == nil {
		return intValue
	}

	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Try parsing as integer minutes
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}

	return defaultValue
}
