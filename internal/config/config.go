// Package config builds the immutable runtime configuration for dogeexport.
//
// Sources, highest precedence first:
//   - CLI overrides (Config.Apply), applied once before any component is built
//   - process environment (DOGE_* variables)
//   - a .env file (godotenv), never overriding real environment variables
//   - built-in defaults (Default)
//
// The resulting Config is passed by value into every constructor; nothing reads
// the environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full runtime configuration.
type Config struct {
	// API
	BaseURL    string
	APIKey     string
	APIVersion string

	// Requests
	RequestTimeout       time.Duration
	MaxRetries           int
	MaxRecordsPerRequest int
	BatchSize            int
	MaxPages             int

	// Output
	OutputDir        string
	Engine           string
	IncludeTimestamp bool

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Metrics
	MetricsBackend string
	PushgatewayURL string
	MetricsTags    string

	CategoriesFile string
	Categories     []Category
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		BaseURL:              "https://api.doge.gov",
		RequestTimeout:       30 * time.Second,
		MaxRetries:           3,
		MaxRecordsPerRequest: 1000,
		BatchSize:            100,
		MaxPages:             1000,
		OutputDir:            "doge_data",
		Engine:               "excelize-stream",
		IncludeTimestamp:     true,
		LogLevel:             "INFO",
		LogFormat:            "text",
		LogFile:              "doge_export.log",
		MetricsBackend:       "none",
		PushgatewayURL:       "http://localhost:9091",
		Categories:           DefaultCategories(),
	}
}

// LookupFunc has the shape of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load builds a Config from lookup on top of Default, then validates it.
//
// Errors:
//   - unparsable numbers, durations or booleans (all reported, joined)
//   - an unreadable or invalid categories file
//   - validation failures (see Validate)
func Load(lookup LookupFunc) (Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := Default()
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
			return
		}
		*dst = n
	}
	flag := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
			return
		}
		*dst = b
	}

	str("DOGE_API_BASE_URL", &cfg.BaseURL)
	str("DOGE_API_KEY", &cfg.APIKey)
	str("DOGE_API_VERSION", &cfg.APIVersion)

	if v, ok := lookup("DOGE_REQUEST_TIMEOUT"); ok && strings.TrimSpace(v) != "" {
		d, err := parseSeconds(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOGE_REQUEST_TIMEOUT: %w", err))
		} else {
			cfg.RequestTimeout = d
		}
	}
	num("DOGE_REQUEST_MAX_RETRIES", &cfg.MaxRetries)
	num("DOGE_MAX_RECORDS_PER_REQUEST", &cfg.MaxRecordsPerRequest)
	num("DOGE_BATCH_SIZE", &cfg.BatchSize)
	num("DOGE_MAX_PAGES", &cfg.MaxPages)

	str("DOGE_OUTPUT_DIR", &cfg.OutputDir)
	str("DOGE_EXCEL_ENGINE", &cfg.Engine)
	flag("DOGE_INCLUDE_TIMESTAMP", &cfg.IncludeTimestamp)

	str("DOGE_LOG_LEVEL", &cfg.LogLevel)
	str("DOGE_LOG_FORMAT", &cfg.LogFormat)
	str("DOGE_LOG_FILE", &cfg.LogFile)

	str("DOGE_METRICS_BACKEND", &cfg.MetricsBackend)
	str("DOGE_PUSHGATEWAY_URL", &cfg.PushgatewayURL)
	str("DOGE_METRICS_TAGS", &cfg.MetricsTags)

	str("DOGE_CATEGORIES_FILE", &cfg.CategoriesFile)
	if cfg.CategoriesFile != "" {
		cats, err := LoadCategoryFile(cfg.CategoriesFile, cfg.Categories)
		if err != nil {
			errs = append(errs, err)
		} else {
			cfg.Categories = cats
		}
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DotEnvLookup returns a LookupFunc that consults the real environment first and
// then the given .env file. A missing file is not an error; the real
// environment alone is used.
func DotEnvLookup(path string) (LookupFunc, error) {
	if path == "" {
		path = ".env"
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.LookupEnv, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := vals[key]
		return v, ok
	}, nil
}

// parseSeconds accepts a plain number of seconds ("30", "2.5") or a Go duration ("45s").
func parseSeconds(v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(f * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", v)
	}
	return d, nil
}

// Validate checks value ranges and enumerations. All problems are reported.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("base URL %q must be an absolute http(s) URL", c.BaseURL))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request timeout must be > 0"))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must be >= 0"))
	}
	if c.MaxRecordsPerRequest <= 0 {
		errs = append(errs, fmt.Errorf("max records per request must be > 0"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be > 0"))
	}
	if c.MaxPages <= 0 {
		errs = append(errs, fmt.Errorf("max pages must be > 0"))
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, fmt.Errorf("output directory must not be empty"))
	}
	if strings.TrimSpace(c.Engine) == "" {
		errs = append(errs, fmt.Errorf("spreadsheet engine must not be empty"))
	}
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "", "DEBUG", "INFO", "WARN", "WARNING", "ERROR", "CRITICAL":
	default:
		errs = append(errs, fmt.Errorf("log level %q must be DEBUG, INFO, WARNING or ERROR", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", c.LogFormat))
	}
	switch strings.ToLower(c.MetricsBackend) {
	case "", "none", "datadog", "pushgateway":
	default:
		errs = append(errs, fmt.Errorf("metrics backend %q must be none, datadog or pushgateway", c.MetricsBackend))
	}

	seen := map[string]bool{}
	for i, cat := range c.Categories {
		if cat.Name == "" || cat.Endpoint == "" {
			errs = append(errs, fmt.Errorf("categories[%d]: name and endpoint are required", i))
			continue
		}
		if seen[cat.Name] {
			errs = append(errs, fmt.Errorf("categories[%d]: duplicate name %q", i, cat.Name))
		}
		seen[cat.Name] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Overrides are the CLI flags that adjust configuration.
type Overrides struct {
	OutputDir   string
	NoTimestamp bool
	Verbose     bool
}

// Apply returns a copy of c with CLI overrides applied.
func (c Config) Apply(o Overrides) Config {
	if strings.TrimSpace(o.OutputDir) != "" {
		c.OutputDir = o.OutputDir
	}
	if o.NoTimestamp {
		c.IncludeTimestamp = false
	}
	if o.Verbose {
		c.LogLevel = "DEBUG"
	}
	c.Categories = append([]Category(nil), c.Categories...)
	return c
}

// PageSize is the per_page value injected during pagination.
func (c Config) PageSize() int {
	if c.BatchSize > c.MaxRecordsPerRequest {
		return c.MaxRecordsPerRequest
	}
	return c.BatchSize
}

// LogPath resolves LogFile against OutputDir. Empty means no log file.
func (c Config) LogPath() string {
	if c.LogFile == "" || filepath.IsAbs(c.LogFile) {
		return c.LogFile
	}
	return filepath.Join(c.OutputDir, c.LogFile)
}

// Category looks up a category by name.
func (c Config) Category(name string) (Category, bool) {
	for _, cat := range c.Categories {
		if cat.Name == name {
			return cat, true
		}
	}
	return Category{}, false
}

// CategoryNames lists category names in export order.
func (c Config) CategoryNames() []string {
	out := make([]string, 0, len(c.Categories))
	for _, cat := range c.Categories {
		out = append(out, cat.Name)
	}
	return out
}
