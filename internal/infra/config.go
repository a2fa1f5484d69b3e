package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	LogLevel         string
	Port             string
	JWTSecret        string
	AccessTokenTTL   time.Duration
	RefreshTokenTTL  time.Duration
	CookieSecure     bool
	GeoIPDBPath      string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string

	// Generation.
	GenerationProvider string
	GeminiAPIKey       string
	GeminiModel        string
	GeminiBaseURL      string
	OpenAIAPIKey       string
	OpenAIModel        string
	OpenAIBaseURL      string
	OpenAIOrg          string
	MaxConcurrentJobs  int
	AttachWait         time.Duration
	AttachmentMaxBytes int64
	JobRetention       time.Duration
	StreamIdleTimeout  time.Duration
	StreamBuffer       int
	CancelOnDisconnect bool
	PublicBaseURL      string

	// Token store.
	TokenStore    string
	TokenTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Persistence.
	PersistenceDriver string
	DatabaseURL       string
	DBMaxConns        int
	MongoURI          string
	MongoDatabase     string
	MongoCollection   string

	// Exports.
	ExportStorage     string
	ExportDir         string
	PDFFontPath       string
	S3Bucket          string
	S3Region          string
	S3Endpoint        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AccessTokenTTL:   getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL:  getEnvDuration("REFRESH_TOKEN_TTL", 30*24*time.Hour),
		CookieSecure:     getEnvBool("COOKIE_SECURE", false),
		GeoIPDBPath:      os.Getenv("GEOIP_DB_PATH"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      getEnvList("CORS_ORIGINS", []string{"*"}),

		GenerationProvider: strings.ToLower(getEnv("GENERATION_PROVIDER", "gemini")),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:      getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:      getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIOrg:          os.Getenv("OPENAI_ORG"),
		MaxConcurrentJobs:  getEnvInt("GENERATION_MAX_CONCURRENT", 16),
		AttachWait:         getEnvDuration("GENERATION_ATTACH_WAIT", 5*time.Second),
		AttachmentMaxBytes: int64(getEnvInt("ATTACHMENT_MAX_BYTES", 10<<20)),
		JobRetention:       getEnvDuration("JOB_RETENTION", 10*time.Minute),
		StreamIdleTimeout:  getEnvDuration("STREAM_IDLE_TIMEOUT", 60*time.Second),
		StreamBuffer:       getEnvInt("STREAM_BUFFER", 256),
		CancelOnDisconnect: getEnvBool("CANCEL_ON_DISCONNECT", false),
		PublicBaseURL:      strings.TrimRight(os.Getenv("PUBLIC_BASE_URL"), "/"),

		TokenStore:    strings.ToLower(getEnv("TOKEN_STORE", "memory")),
		TokenTTL:      getEnvDuration("TOKEN_TTL", 15*time.Minute),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		PersistenceDriver: strings.ToLower(getEnv("PERSISTENCE_DRIVER", "postgres")),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		DBMaxConns:        getEnvInt("DB_MAX_CONNS", 10),
		MongoURI:          getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase:     getEnv("MONGO_DATABASE", "edugen"),
		MongoCollection:   getEnv("MONGO_COLLECTION", "artifacts"),

		ExportStorage:     strings.ToLower(getEnv("EXPORT_STORAGE", "file")),
		ExportDir:         getEnv("EXPORT_DIR", "./data/exports"),
		PDFFontPath:       os.Getenv("PDF_FONT_PATH"),
		S3Bucket:          os.Getenv("S3_BUCKET"),
		S3Region:          getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:        os.Getenv("S3_ENDPOINT"),
		S3AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		S3Prefix:          os.Getenv("S3_PREFIX"),
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	switch cfg.GenerationProvider {
	case "gemini":
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when GENERATION_PROVIDER=openai")
		}
	default:
		return nil, fmt.Errorf("unsupported GENERATION_PROVIDER %q", cfg.GenerationProvider)
	}

	switch cfg.TokenStore {
	case "memory", "redis":
	default:
		return nil, fmt.Errorf("unsupported TOKEN_STORE %q", cfg.TokenStore)
	}

	switch cfg.PersistenceDriver {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	case "mongo", "memory":
	default:
		return nil, fmt.Errorf("unsupported PERSISTENCE_DRIVER %q", cfg.PersistenceDriver)
	}

	switch cfg.ExportStorage {
	case "file":
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("S3_BUCKET is required when EXPORT_STORAGE=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported EXPORT_STORAGE %q", cfg.ExportStorage)
	}

	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("TOKEN_TTL must be positive")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("90s") or bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if i, err := strconv.Atoi(v); err == nil {
		return time.Duration(i) * time.Second
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
