package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	APIPort  string
	LogLevel string

	BackendURL            string
	BackendTimeoutSeconds int
	RetryMaxAttempts      int
	BreakerEnabled        bool

	UploadDir           string
	ExportDir           string
	MaxUploadRequestMB  int
	PDFStrictValidation bool
	DeleteConcurrency   int

	PostgresDSN    string
	HistorySession string

	NATSURL     string
	NATSSubject string

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int
	APIMaxConnections     int
}

// Load reads the configuration from the environment. When CONFIG_FILE names a
// YAML file its values are used as defaults that environment variables
// override.
func Load() (Config, error) {
	file, err := readFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		return Config{}, err
	}
	return load(source{file: file}), nil
}

func load(src source) Config {
	return Config{
		APIPort:  src.mustEnv("API_PORT", "8080"),
		LogLevel: src.mustEnv("LOG_LEVEL", "info"),

		BackendURL:            src.mustEnv("BACKEND_URL", "http://localhost:5000"),
		BackendTimeoutSeconds: src.mustEnvInt("BACKEND_TIMEOUT_SECONDS", 600),
		RetryMaxAttempts:      src.mustEnvInt("RETRY_MAX_ATTEMPTS", 3),
		BreakerEnabled:        src.mustEnvBool("BREAKER_ENABLED", true),

		UploadDir:           src.mustEnv("UPLOAD_DIR", "./data/uploads"),
		ExportDir:           src.mustEnv("EXPORT_DIR", "./data/exports"),
		MaxUploadRequestMB:  src.mustEnvInt("MAX_UPLOAD_REQUEST_MB", 256),
		PDFStrictValidation: src.mustEnvBool("PDF_STRICT_VALIDATION", false),
		DeleteConcurrency:   src.mustEnvInt("DELETE_CONCURRENCY", 4),

		PostgresDSN:    src.mustEnv("POSTGRES_DSN", ""),
		HistorySession: src.mustEnv("HISTORY_SESSION", ""),

		NATSURL:     src.mustEnv("NATS_URL", ""),
		NATSSubject: src.mustEnv("NATS_SUBJECT", "pdfqa.lifecycle"),

		APIRateLimitRPS:       src.mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:     src.mustEnvInt("API_RATE_LIMIT_BURST", 0),
		APIMaxInFlight:        src.mustEnvInt("API_MAX_IN_FLIGHT", 32),
		APIBackpressureWaitMS: src.mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),
		APIMaxConnections:     src.mustEnvInt("API_MAX_CONNECTIONS", 256),
	}
}

// source resolves a key from the environment first and the config file second.
type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	out := make(map[string]string, len(parsed))
	for key, value := range parsed {
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("parse config file %s: key %q must be a scalar", path, key)
		case nil:
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(value)
	}
	return out, nil
}

func (s source) lookup(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return s.file[key]
}

func (s source) mustEnv(key, fallback string) string {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	return v
}

func (s source) mustEnvInt(key string, fallback int) int {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvFloat(key string, fallback float64) float64 {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func (s source) mustEnvBool(key string, fallback bool) bool {
	v := s.lookup(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}
