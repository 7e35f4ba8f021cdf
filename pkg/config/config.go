package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration from environment variables
type Config struct {
	// Application
	AppPort    string
	AppEnv     string
	LogLevel   string
	CORSOrigin string

	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SchemaPath string

	// Sessions
	SessionSecret      string
	AdminSessionTTL    time.Duration
	CustomerSessionTTL time.Duration
	CartCookieTTL      time.Duration
	CookieSecure       bool

	// Admin bootstrap; both empty means no account is seeded
	AdminUsername string
	AdminPassword string

	// Storefront
	StoreName      string
	WhatsAppPhone  string
	CurrencySymbol string

	// Media host
	CloudinaryURL     string
	MediaUploadPreset string
	MediaFolder       string
	MediaMaxBytes     int64

	// OpenTelemetry
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPProtocol  string
	OTELExporterOTLPHeaders   string // key1=value1,key2=value2
	OTELExporterOTLPInsecure  bool   // true for http://, false for https://
	OTELServiceName           string
	OTELServiceVersion        string
	OTELDeploymentEnvironment string
}

// LoadConfig loads configuration from .env file and environment variables with defaults
func LoadConfig() *Config {
	// .env is optional; only complain when it exists but cannot be parsed
	if err := godotenv.Load(); err != nil {
		if _, ok := err.(*os.PathError); !ok {
			slog.Warn("error loading .env file", "error", err)
		}
	}

	return &Config{
		AppPort:    getEnv("APP_PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		CORSOrigin: getEnv("CORS_ORIGIN", "*"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "xenastore"),
		SchemaPath: getEnv("DB_SCHEMA_PATH", "schema.sql"),

		SessionSecret:      getEnv("SESSION_SECRET", "dev-only-change-me"),
		AdminSessionTTL:    getEnvDuration("ADMIN_SESSION_TTL", 12*time.Hour),
		CustomerSessionTTL: getEnvDuration("CUSTOMER_SESSION_TTL", 30*24*time.Hour),
		CartCookieTTL:      getEnvDuration("CART_COOKIE_TTL", 365*24*time.Hour),
		CookieSecure:       getEnvBool("COOKIE_SECURE", false),

		AdminUsername: getEnv("ADMIN_USERNAME", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),

		StoreName:      getEnv("STORE_NAME", "Xena Store"),
		WhatsAppPhone:  getEnv("WHATSAPP_PHONE", "2348000000000"),
		CurrencySymbol: getEnv("CURRENCY_SYMBOL", "₦"),

		CloudinaryURL:     getEnv("CLOUDINARY_URL", ""),
		MediaUploadPreset: getEnv("MEDIA_UPLOAD_PRESET", ""),
		MediaFolder:       getEnv("MEDIA_FOLDER", "xena-store/products"),
		MediaMaxBytes:     int64(getEnvInt("MEDIA_MAX_BYTES", 5<<20)),

		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
		OTELExporterOTLPProtocol:  getEnv("OTEL_EXPORTER_OTLP_PROTOCOL", "http/protobuf"),
		OTELExporterOTLPHeaders:   getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
		OTELExporterOTLPInsecure:  getEnvBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "xena-store"),
		OTELServiceVersion:        getEnv("OTEL_SERVICE_VERSION", "1.0.0"),
		OTELDeploymentEnvironment: getEnv("OTEL_DEPLOYMENT_ENVIRONMENT", "development"),
	}
}

// GetDSN returns the MySQL DSN string
func (c *Config) GetDSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true&charset=utf8mb4&clientFoundRows=true"
}

// IsProduction reports whether the app runs with APP_ENV=production
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if value == "true" || value == "1" || value == "yes" {
			return true
		}
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}
