// Package config loads sheetjson settings from the environment.
//
// Every field is read from an environment variable named in its env tag,
// falling back to the envAlt tag and then to the default tag. Load validates
// the result so a misconfigured server fails at startup, not on the first
// request.
package config

import (
	"net"
	"strconv"
	"time"

	"github.com/JonMunkholm/sheetjson/internal/core"
)

// Source modes.
const (
	ModeSheets = "sheets" // Google Sheets API
	ModeXLSX   = "xlsx"   // Local workbook file
)

// Config holds all settings.
type Config struct {
	Server   ServerConfig
	Source   SourceConfig
	Layout   LayoutConfig
	Fetch    FetchConfig
	Database DatabaseConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Metrics  MetricsConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `env:"SERVER_HOST" default:"0.0.0.0"`
	Port            int           `env:"SERVER_PORT" default:"8080"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"90s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a whole request, fetch included.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// SourceConfig says where spreadsheets come from.
type SourceConfig struct {
	// Mode is "sheets" or "xlsx".
	Mode string `env:"SOURCE_MODE" default:"sheets"`

	// SpreadsheetID is the Google spreadsheet id, or a label for the workbook
	// in xlsx mode.
	SpreadsheetID string `env:"SPREADSHEET_ID" envAlt:"SHEET_ID"`

	// CredentialsFile is the OAuth client JSON downloaded from Google Cloud.
	CredentialsFile string `env:"GOOGLE_CREDENTIALS_FILE" default:"credentials.json"`

	// TokenFile caches the token obtained by the consent flow.
	TokenFile string `env:"GOOGLE_TOKEN_FILE" default:"token.json"`

	// AccessToken is used verbatim when set, skipping the files above.
	AccessToken string `env:"GOOGLE_ACCESS_TOKEN"`

	// Endpoint overrides the Sheets API base URL.
	Endpoint string `env:"SHEETS_ENDPOINT"`

	// XLSXPath is the workbook read in xlsx mode.
	XLSXPath string `env:"XLSX_PATH"`
}

// LayoutConfig is the default table layout.
type LayoutConfig struct {
	TitleLine      int  `env:"LAYOUT_TITLE_LINE" default:"1"`
	ValidationLine int  `env:"LAYOUT_VALIDATION_LINE" default:"2"`
	FirstDataLine  int  `env:"LAYOUT_FIRST_LINE" default:"3"`
	Sort           bool `env:"LAYOUT_SORT" default:"false"`
	Vertical       bool `env:"LAYOUT_VERTICAL" default:"false"`
}

// Core converts the settings to a core.Layout.
func (l LayoutConfig) Core() core.Layout {
	layout := core.Layout{
		TitleLine:      l.TitleLine,
		ValidationLine: l.ValidationLine,
		FirstDataLine:  l.FirstDataLine,
		Sort:           l.Sort,
	}
	if l.Vertical {
		layout.Orientation = core.ColumnMajor
	}
	return layout
}

// FetchConfig bounds work against the source.
type FetchConfig struct {
	// MaxConcurrent is the number of transport calls allowed at once.
	MaxConcurrent int `env:"FETCH_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a call waits for a free slot.
	MaxWaitTime time.Duration `env:"FETCH_MAX_WAIT_TIME" default:"30s"`

	// Timeout bounds a single fetch, including record building.
	Timeout time.Duration `env:"FETCH_TIMEOUT" default:"45s"`

	// BuildConcurrency is the number of tables a batch builds at once.
	BuildConcurrency int `env:"FETCH_BUILD_CONCURRENCY" default:"4"`
}

// DatabaseConfig holds the optional fetch history database.
// History is disabled when URL is empty.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" envAlt:"DB_URL"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"0"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// Enabled reports whether a database is configured.
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// BatchLimit applies to /api/batch, which fans out to every table.
	BatchLimit int `env:"RATE_LIMIT_BATCH" default:"10"`
}

// SecurityConfig holds access settings for the HTTP API.
type SecurityConfig struct {
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
	RequireAPIKey  bool     `env:"REQUIRE_API_KEY" default:"false"`
	APIKeys        []string `env:"API_KEYS"`
	EnableCSP      bool     `env:"SECURITY_ENABLE_CSP" default:"true"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `env:"METRICS_ENABLED" default:"true"`
	Path    string `env:"METRICS_PATH" default:"/metrics"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the listen address in host:port form.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
