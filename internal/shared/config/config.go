package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultMaxConcurrency = 5
	DefaultPollInterval   = 5 * time.Second
	DefaultRetryAttempts  = 2
	DefaultRetryBaseDelay = time.Second
	DefaultOutputSuffix   = "_searchable"
	maxRetryAttempts      = 10
)

// Config holds application configuration.
type Config struct {
	Env             string
	ObjectStoreType string
	LocalSourceDir  string
	LocalOutputDir  string
	AWSRegion       string
	SourceBucket    string
	SourcePrefix    string
	OutputBucket    string
	OutputPrefix    string
	SSEKMSKeyID     string

	AnalysisEndpoint     string
	AnalysisKey          string
	AnalysisTenantID     string
	AnalysisClientID     string
	AnalysisClientSecret string
	AnalysisModel        string
	AnalysisAPIVersion   string
	AnalysisTimeout      time.Duration

	MaxConcurrency      int
	PollInterval        time.Duration
	RetryAttempts       int
	RetryBaseDelay      time.Duration
	OutputSuffix        string
	RejectUnreadablePDF bool

	DatabaseURL     string
	EventsQueueURL  string
	StatusAddr      string
	ShutdownTimeout time.Duration
}

// Warning describes a configuration value that was replaced by a safe default.
type Warning struct {
	Key      string
	Value    string
	Replaced string
	Reason   string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s=%q %s; using %s", w.Key, w.Value, w.Reason, w.Replaced)
}

// Load reads configuration from environment variables with sensible defaults.
// Values that cannot be parsed keep their raw form so Validate can report them.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && strings.TrimSpace(os.Getenv("DOCINTEL_ENDPOINT")) == "" {
		log.Printf("DOCINTEL_ENDPOINT is required in production")
	}

	return Config{
		Env:             env,
		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalSourceDir:  getEnv("LOCAL_SOURCE_DIR", "./data/source"),
		LocalOutputDir:  getEnv("LOCAL_OUTPUT_DIR", "./data/output"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		SourceBucket:    getEnv("SOURCE_BUCKET", ""),
		SourcePrefix:    getEnv("SOURCE_PREFIX", ""),
		OutputBucket:    getEnv("OUTPUT_BUCKET", ""),
		OutputPrefix:    getEnv("OUTPUT_PREFIX", ""),
		SSEKMSKeyID:     getEnv("SSE_KMS_KEY_ID", ""),

		AnalysisEndpoint:     strings.TrimRight(getEnv("DOCINTEL_ENDPOINT", ""), "/"),
		AnalysisKey:          getEnv("DOCINTEL_KEY", ""),
		AnalysisTenantID:     getEnv("DOCINTEL_TENANT_ID", ""),
		AnalysisClientID:     getEnv("DOCINTEL_CLIENT_ID", ""),
		AnalysisClientSecret: getEnv("DOCINTEL_CLIENT_SECRET", ""),
		AnalysisModel:        getEnv("DOCINTEL_MODEL", "prebuilt-read"),
		AnalysisAPIVersion:   getEnv("DOCINTEL_API_VERSION", "2024-11-30"),
		AnalysisTimeout:      getEnvSeconds("DOCINTEL_TIMEOUT_SECONDS", 30*time.Second),

		MaxConcurrency:      getEnvInt("MAX_CONCURRENT_OPERATIONS", DefaultMaxConcurrency),
		PollInterval:        getEnvSeconds("POLLING_INTERVAL_SECONDS", DefaultPollInterval),
		RetryAttempts:       getEnvInt("RETRY_ATTEMPTS", DefaultRetryAttempts),
		RetryBaseDelay:      time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", int(DefaultRetryBaseDelay/time.Millisecond))) * time.Millisecond,
		OutputSuffix:        getEnv("OUTPUT_SUFFIX", DefaultOutputSuffix),
		RejectUnreadablePDF: getEnvBool("REJECT_UNREADABLE_PDF", false),

		DatabaseURL:     dbURL,
		EventsQueueURL:  getEnv("RUN_EVENTS_SQS_QUEUE_URL", ""),
		StatusAddr:      getEnv("STATUS_ADDR", ""),
		ShutdownTimeout: getEnvSeconds("SHUTDOWN_TIMEOUT_SECONDS", 30*time.Second),
	}
}

// Validate clamps out-of-range values in place and reports each replacement as a Warning.
// An error is returned only for problems no default can fix.
func (c *Config) Validate() ([]Warning, error) {
	var warnings []Warning
	if c.MaxConcurrency < 1 {
		warnings = append(warnings, Warning{
			Key:      "MAX_CONCURRENT_OPERATIONS",
			Value:    strconv.Itoa(c.MaxConcurrency),
			Replaced: "1",
			Reason:   "must be at least 1",
		})
		c.MaxConcurrency = 1
	}
	if c.PollInterval <= 0 {
		warnings = append(warnings, Warning{
			Key:      "POLLING_INTERVAL_SECONDS",
			Value:    c.PollInterval.String(),
			Replaced: DefaultPollInterval.String(),
			Reason:   "must be positive",
		})
		c.PollInterval = DefaultPollInterval
	}
	if c.RetryAttempts < 0 || c.RetryAttempts > maxRetryAttempts {
		replaced := 0
		if c.RetryAttempts > maxRetryAttempts {
			replaced = maxRetryAttempts
		}
		warnings = append(warnings, Warning{
			Key:      "RETRY_ATTEMPTS",
			Value:    strconv.Itoa(c.RetryAttempts),
			Replaced: strconv.Itoa(replaced),
			Reason:   fmt.Sprintf("must be within 0..%d", maxRetryAttempts),
		})
		c.RetryAttempts = replaced
	}
	if c.RetryBaseDelay < 0 {
		warnings = append(warnings, Warning{
			Key:      "RETRY_BASE_DELAY_MS",
			Value:    c.RetryBaseDelay.String(),
			Replaced: DefaultRetryBaseDelay.String(),
			Reason:   "must not be negative",
		})
		c.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if strings.TrimSpace(c.OutputSuffix) == "" {
		warnings = append(warnings, Warning{
			Key:      "OUTPUT_SUFFIX",
			Value:    c.OutputSuffix,
			Replaced: DefaultOutputSuffix,
			Reason:   "must not be empty",
		})
		c.OutputSuffix = DefaultOutputSuffix
	}
	if c.AnalysisTimeout <= 0 {
		warnings = append(warnings, Warning{
			Key:      "DOCINTEL_TIMEOUT_SECONDS",
			Value:    c.AnalysisTimeout.String(),
			Replaced: "30s",
			Reason:   "must be positive",
		})
		c.AnalysisTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout <= 0 {
		warnings = append(warnings, Warning{
			Key:      "SHUTDOWN_TIMEOUT_SECONDS",
			Value:    c.ShutdownTimeout.String(),
			Replaced: "30s",
			Reason:   "must be positive",
		})
		c.ShutdownTimeout = 30 * time.Second
	}

	var errs []error
	if c.ObjectStoreType == "s3" {
		if strings.TrimSpace(c.SourceBucket) == "" {
			errs = append(errs, errors.New("SOURCE_BUCKET is required when OBJECT_STORE=s3"))
		}
		if strings.TrimSpace(c.OutputBucket) == "" {
			errs = append(errs, errors.New("OUTPUT_BUCKET is required when OBJECT_STORE=s3"))
		}
		if c.SourceBucket != "" && c.SourceBucket == c.OutputBucket && prefixesOverlap(c.SourcePrefix, c.OutputPrefix) {
			errs = append(errs, errors.New("SOURCE_PREFIX and OUTPUT_PREFIX must not overlap in the same bucket"))
		}
	} else if dirsOverlap(c.LocalSourceDir, c.LocalOutputDir) {
		errs = append(errs, errors.New("LOCAL_SOURCE_DIR and LOCAL_OUTPUT_DIR must not overlap"))
	}
	if !isDevLike(c.Env) && strings.TrimSpace(c.AnalysisEndpoint) == "" {
		errs = append(errs, errors.New("DOCINTEL_ENDPOINT is required"))
	}
	if c.AnalysisClientID != "" && (c.AnalysisTenantID == "" || c.AnalysisClientSecret == "") {
		errs = append(errs, errors.New("DOCINTEL_CLIENT_ID requires DOCINTEL_TENANT_ID and DOCINTEL_CLIENT_SECRET"))
	}
	return warnings, errors.Join(errs...)
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

// getEnvInt returns def for unset values and -1 for unparseable ones so Validate clamps them.
func getEnvInt(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config %s invalid int %q: %v", key, raw, err)
		return -1
	}
	return val
}

func getEnvSeconds(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config %s invalid number %q: %v", key, raw, err)
		return -1
	}
	return time.Duration(val * float64(time.Second))
}

func getEnvBool(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return val
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}

func normalizePrefix(prefix string) string {
	return strings.Trim(strings.TrimSpace(prefix), "/")
}

// prefixesOverlap reports whether either key prefix contains the other.
func prefixesOverlap(a, b string) bool {
	a, b = normalizePrefix(a), normalizePrefix(b)
	if a == "" || b == "" || a == b {
		return true
	}
	return strings.HasPrefix(a+"/", b+"/") || strings.HasPrefix(b+"/", a+"/")
}

func dirsOverlap(a, b string) bool {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" {
		return false
	}
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return within(absA, absB) || within(absB, absA)
}

func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func isDevLike(env string) bool {
	switch env {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// IsDevLike reports whether the configured environment tolerates missing optional backends.
func (c Config) IsDevLike() bool {
	return isDevLike(c.Env)
}
