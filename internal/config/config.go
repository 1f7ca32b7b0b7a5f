package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	AuthJWTSecret string

	// MasterKey seeds the credential vault. Required before any provider
	// credentials can be stored or read.
	MasterKey string

	// WebhookSecrets holds deploy-time fallback webhook secrets keyed by
	// provider, for single-tenant installs without a stored provider config.
	WebhookSecrets map[string]string

	DefaultTenantID int64
	DefaultBranchID int64

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn int
	DBMaxOpenConn int

	// Connection recycling, in minutes. Zero disables the limit.
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
}

var knownProviders = []string{"talabat", "ubereats", "careemnow", "mrsool"}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	secrets := map[string]string{}
	for _, provider := range knownProviders {
		key := "SUFRA_" + strings.ToUpper(provider) + "_WEBHOOK_SECRET"
		if value := strings.TrimSpace(os.Getenv(key)); value != "" {
			secrets[provider] = value
		}
	}

	return Config{
		AppName:         getenv("APP_SERVICE", "sufra"),
		AppVersion:      getenv("APP_VERSION", "0.1.0"),
		Environment:     getenv("ENVIRONMENT", "development"),
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		AuthJWTSecret:   strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		MasterKey:       strings.TrimSpace(getenv("SUFRA_MASTER_KEY", "")),
		WebhookSecrets:  secrets,
		DefaultTenantID: getenvInt64("SUFRA_DEFAULT_TENANT", 0),
		DefaultBranchID: getenvInt64("SUFRA_DEFAULT_BRANCH", 0),
		OTLPEndpoint:    getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:          getenv("DATABASE_TYPE", "postgres"),
		DBHost:          getenv("DATABASE_HOST", "localhost"),
		DBPort:          getenv("DATABASE_PORT", "5432"),
		DBName:          getenv("DATABASE_NAME", "sufra"),
		DBUser:          getenv("DATABASE_USER", "postgres"),
		DBPassword:      getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:       getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:   getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:   getenvInt("DATABASE_MAX_OPEN_CONN", 25),

		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME_MIN", 30),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME_MIN", 5),
	}
}

// WebhookSecret returns the deploy-time fallback secret for a provider.
func (c Config) WebhookSecret(provider string) string {
	return c.WebhookSecrets[strings.ToLower(strings.TrimSpace(provider))]
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
