// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, rate limiting, the
// extraction oracle, image storage, and observability.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "invoice-chat-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// OracleConfig defines the extraction oracle (OpenRouter) settings.
type OracleConfig struct {
	APIKey  string        // OPENROUTER_API_KEY
	Model   string        // OPENROUTER_MODEL
	BaseURL string        // OPENROUTER_BASE_URL
	Timeout time.Duration // ORACLE_TIMEOUT for one completion round-trip
}

// StorageConfig defines S3-compatible object storage for chat images.
// When Endpoint/AccessKey/SecretKey/Bucket are not all set, image upload is
// reported as unavailable rather than failing startup.
type StorageConfig struct {
	Endpoint      string // S3_ENDPOINT (host[:port], no scheme)
	AccessKey     string // S3_ACCESS_KEY
	SecretKey     string // S3_SECRET_KEY
	Bucket        string // S3_BUCKET
	Region        string // S3_REGION
	UseSSL        bool   // S3_USE_SSL
	PublicBaseURL string // S3_PUBLIC_BASE_URL; default derives from endpoint+bucket
}

// Configured reports whether enough settings are present to upload.
func (s StorageConfig) Configured() bool {
	return s.Endpoint != "" && s.AccessKey != "" && s.SecretKey != "" && s.Bucket != ""
}

// CompanyConfig holds the issuing party's details printed on invoices and
// used in generated email bodies.
type CompanyConfig struct {
	Name    string // COMPANY_NAME
	Email   string // COMPANY_EMAIL
	Address string // COMPANY_ADDRESS
	Phone   string // COMPANY_PHONE
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath         string // SQLite path
	PDFDir         string // directory for rendered invoice PDFs
	MaxUploadBytes int64  // cap on image upload size

	// Oracle
	Oracle OracleConfig

	// Storage
	Storage StorageConfig

	// Company / branding
	Company CompanyConfig
	// BrandingOverrides maps a lowercased client key to the display name
	// printed on that client's invoices instead of the company name.
	// Parsed from BRANDING_OVERRIDES (JSON object, string → string).
	BrandingOverrides map[string]string
	// EmailTemplates maps a lowercased client key to an email body template.
	// Parsed from EMAIL_TEMPLATES (JSON object). The empty key "" overrides
	// the built-in default template.
	EmailTemplates map[string]string

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:         getenv("DB_PATH", "app.db"),
		PDFDir:         getenv("PDF_DIR", "invoices"),
		MaxUploadBytes: int64(getint("MAX_UPLOAD_BYTES", 10<<20)),

		// Oracle
		Oracle: OracleConfig{
			APIKey:  getenv("OPENROUTER_API_KEY", ""),
			Model:   getenv("OPENROUTER_MODEL", "anthropic/claude-3.5-sonnet"),
			BaseURL: getenv("OPENROUTER_BASE_URL", "https://openrouter.ai/api/v1"),
			Timeout: getdur("ORACLE_TIMEOUT", 60*time.Second),
		},

		// Storage
		Storage: StorageConfig{
			Endpoint:      getenv("S3_ENDPOINT", ""),
			AccessKey:     getenv("S3_ACCESS_KEY", ""),
			SecretKey:     getenv("S3_SECRET_KEY", ""),
			Bucket:        getenv("S3_BUCKET", ""),
			Region:        getenv("S3_REGION", "us-east-1"),
			UseSSL:        getbool("S3_USE_SSL", true),
			PublicBaseURL: getenv("S3_PUBLIC_BASE_URL", ""),
		},

		// Company / branding
		Company: CompanyConfig{
			Name:    getenv("COMPANY_NAME", "Your Company Name"),
			Email:   getenv("COMPANY_EMAIL", ""),
			Address: getenv("COMPANY_ADDRESS", ""),
			Phone:   getenv("COMPANY_PHONE", ""),
		},
		BrandingOverrides: getmap("BRANDING_OVERRIDES"),
		EmailTemplates:    getmap("EMAIL_TEMPLATES"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "invoice-chat-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.PDFDir) == "" {
		return cfg, errors.New("PDF_DIR must not be empty")
	}
	if cfg.MaxUploadBytes <= 0 {
		return cfg, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}
	if cfg.Oracle.Timeout <= 0 {
		return cfg, errors.New("ORACLE_TIMEOUT must be > 0")
	}
	if strings.TrimSpace(cfg.Oracle.BaseURL) == "" {
		return cfg, errors.New("OPENROUTER_BASE_URL must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// getmap parses a JSON object of string→string; malformed input yields an
// empty map rather than failing startup. Keys are lowercased.
func getmap(k string) map[string]string {
	out := map[string]string{}
	v, ok := os.LookupEnv(k)
	if !ok || strings.TrimSpace(v) == "" {
		return out
	}
	var raw map[string]string
	if err := json.Unmarshal([]byte(v), &raw); err != nil {
		return out
	}
	for key, val := range raw {
		out[strings.ToLower(strings.TrimSpace(key))] = val
	}
	return out
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
