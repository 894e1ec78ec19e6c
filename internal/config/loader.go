package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc returns the value of an environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads the configuration from the process environment and validates it.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom reads the configuration through lookup and validates it.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg, err := Parse(lookup)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// Parse reads the configuration through lookup without validating it, for
// commands that need only part of it.
func Parse(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}
	if err := populate(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	return cfg, nil
}

// Overlay returns a lookup that answers from vars first, then from next.
func Overlay(vars map[string]string, next LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		if v, ok := vars[key]; ok {
			return v, true
		}
		return next(key)
	}
}

var (
	durationType = reflect.TypeOf(time.Duration(0))
	timeType     = reflect.TypeOf(time.Time{})
)

// populate fills tagged fields of v, descending into nested structs.
func populate(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if !fv.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != timeType {
			if err := populate(fv, lookup); err != nil {
				return err
			}
			continue
		}

		name := field.Tag.Get("env")
		if name == "" {
			continue
		}

		value := get(lookup, name)
		if value == "" {
			if alt := field.Tag.Get("envAlt"); alt != "" {
				value = get(lookup, alt)
			}
		}
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", name)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := assign(fv, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", name, value, err)
		}
	}
	return nil
}

func get(lookup LookupFunc, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}

// assign parses value into a field of kind string, int, duration, bool or
// []string (comma separated).
func assign(fv reflect.Value, value string) error {
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %w", err)
		}
		fv.SetInt(int64(d))

	case fv.Kind() == reflect.String:
		fv.SetString(value)

	case fv.Kind() == reflect.Int || fv.Kind() == reflect.Int64:
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer: %w", err)
		}
		fv.SetInt(n)

	case fv.Kind() == reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		fv.SetBool(b)

	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		var items []string
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		fv.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", fv.Type())
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	// Server
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		add("SERVER_PORT (%d) must be 1-65535", c.Server.Port)
	}
	if c.Server.ReadTimeout < 0 {
		add("SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		add("SERVER_SHUTDOWN_TIMEOUT must be positive")
	}

	// Source
	switch strings.ToLower(c.Source.Mode) {
	case ModeSheets:
		if c.Source.SpreadsheetID == "" {
			add("SPREADSHEET_ID is required when SOURCE_MODE=sheets")
		}
	case ModeXLSX:
		if c.Source.XLSXPath == "" {
			add("XLSX_PATH is required when SOURCE_MODE=xlsx")
		}
	default:
		add("SOURCE_MODE (%q) must be one of: sheets, xlsx", c.Source.Mode)
	}

	// Layout
	if err := c.Layout.Core().Validate(); err != nil {
		add("layout: %v", err)
	}

	// Fetch
	if c.Fetch.MaxConcurrent <= 0 {
		add("FETCH_MAX_CONCURRENT must be positive")
	}
	if c.Fetch.MaxWaitTime <= 0 {
		add("FETCH_MAX_WAIT_TIME must be positive")
	}
	if c.Fetch.Timeout <= 0 {
		add("FETCH_TIMEOUT must be positive")
	}
	if c.Fetch.BuildConcurrency <= 0 {
		add("FETCH_BUILD_CONCURRENCY must be positive")
	}

	// Database, only when configured
	if c.Database.Enabled() {
		if c.Database.MaxConns <= 0 {
			add("DB_MAX_CONNS must be positive")
		}
		if c.Database.MinConns < 0 {
			add("DB_MIN_CONNS must be non-negative")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			add("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", c.Database.MaxConns, c.Database.MinConns)
		}
	}

	// Rate limits
	if c.Rate.Enabled && (c.Rate.RequestsPerMinute <= 0 || c.Rate.BatchLimit <= 0) {
		add("RATE_LIMIT_REQUESTS_PER_MINUTE and RATE_LIMIT_BATCH must be positive when rate limiting is enabled")
	}

	// Security
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		add("REQUIRE_API_KEY is true but API_KEYS is empty")
	}

	// Metrics
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		add("METRICS_PATH (%q) must start with /", c.Metrics.Path)
	}

	// Logging
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		add("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		add("LOG_FORMAT (%q) must be one of: text, json", c.Logging.Format)
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// String renders the configuration for logs with secrets masked.
func (c *Config) String() string {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Addr: %q}, ", c.Server.Addr())
	fmt.Fprintf(&b, "Source: {Mode: %q, SpreadsheetID: %q, AccessToken: %q, XLSXPath: %q}, ",
		c.Source.Mode, c.Source.SpreadsheetID, mask(c.Source.AccessToken), c.Source.XLSXPath)
	fmt.Fprintf(&b, "Layout: {Title: %d, Validation: %d, First: %d, Sort: %v, Vertical: %v}, ",
		c.Layout.TitleLine, c.Layout.ValidationLine, c.Layout.FirstDataLine, c.Layout.Sort, c.Layout.Vertical)
	fmt.Fprintf(&b, "Fetch: {MaxConcurrent: %d, Timeout: %s}, ", c.Fetch.MaxConcurrent, c.Fetch.Timeout)
	fmt.Fprintf(&b, "Database: {URL: %q, MaxConns: %d}, ", mask(c.Database.URL), c.Database.MaxConns)
	fmt.Fprintf(&b, "Rate: {Enabled: %v, RequestsPerMinute: %d}, ", c.Rate.Enabled, c.Rate.RequestsPerMinute)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d}, ", c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
