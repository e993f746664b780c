package config

import (
	"encoding/json"
	"time"
)

// MatchType defines how a path pattern is interpreted.
type MatchType string

const (
	// MatchTypeExact matches the path exactly.
	MatchTypeExact MatchType = "Exact"
	// MatchTypePrefix matches any path starting with the prefix.
	MatchTypePrefix MatchType = "Prefix"
)

// LogLevel defines the minimum severity for error logs.
type LogLevel string

const (
	LogLevelTrace   LogLevel = "TRACE"
	LogLevelDebug   LogLevel = "DEBUG"
	LogLevelInfo    LogLevel = "INFO"
	LogLevelWarning LogLevel = "WARNING"
	LogLevelError   LogLevel = "ERROR"
)

// Transform types understood by the interceptor builder.
const (
	TransformGzip      = "gzip"
	TransformBrotli    = "brotli"
	TransformPadding   = "padding"
	TransformSSE       = "sse"
	TransformJSONP     = "jsonp"
	TransformTrackSize = "track_size"
)

// Subscribe transports.
const (
	SubscribeStreaming   = "streaming"
	SubscribeLongPolling = "long-polling"
	SubscribeSSE         = "sse"
)

// Handler types registered by cmd/server.
const (
	HandlerTypeSubscribe = "Subscribe"
	HandlerTypePublish   = "Publish"
	HandlerTypeWebSocket = "WebSocket"
	HandlerTypeMetrics   = "Metrics"
)

// Defaults applied by applyDefaults.
const (
	DefaultAddress                 = "127.0.0.1:8080"
	DefaultGracefulShutdownTimeout = "30s"
	DefaultReadHeaderTimeout       = "10s"
	DefaultContentType             = "text/plain"
	DefaultCharset                 = "UTF-8"
	DefaultIdleTimeout             = "5m"
	DefaultReaperInterval          = "30s"
	DefaultLogFormat               = "json"
)

// Config is the top-level configuration structure for the server.
type Config struct {
	Server  *ServerConfig  `json:"server,omitempty" toml:"server,omitempty" validate:"required"`
	Writer  *WriterConfig  `json:"writer,omitempty" toml:"writer,omitempty" validate:"required"`
	Reaper  *ReaperConfig  `json:"reaper,omitempty" toml:"reaper,omitempty" validate:"required"`
	Routing *RoutingConfig `json:"routing,omitempty" toml:"routing,omitempty"`
	Logging *LoggingConfig `json:"logging,omitempty" toml:"logging,omitempty" validate:"required"`
}

// ServerConfig holds general server settings.
type ServerConfig struct {
	Address                 *string `json:"address,omitempty" toml:"address,omitempty" validate:"required"`
	EnableH2C               *bool   `json:"enable_h2c,omitempty" toml:"enable_h2c,omitempty"`
	GracefulShutdownTimeout *string `json:"graceful_shutdown_timeout,omitempty" toml:"graceful_shutdown_timeout,omitempty" validate:"omitempty,duration"` // e.g., "30s"
	ReadHeaderTimeout       *string `json:"read_header_timeout,omitempty" toml:"read_header_timeout,omitempty" validate:"omitempty,duration"`
}

// WriterConfig holds the defaults every streaming response writer starts from.
type WriterConfig struct {
	DefaultContentType string            `json:"default_content_type,omitempty" toml:"default_content_type,omitempty"`
	DefaultCharset     string            `json:"default_charset,omitempty" toml:"default_charset,omitempty"`
	Transforms         []TransformConfig `json:"transforms,omitempty" toml:"transforms,omitempty" validate:"dive"`
}

// TransformConfig describes one interceptor in a transform chain.
// Only the fields relevant to Type are read.
type TransformConfig struct {
	Type      string `json:"type" toml:"type" validate:"required,transform_type"`
	Level     *int   `json:"level,omitempty" toml:"level,omitempty" validate:"omitempty,min=-2,max=11"` // gzip, brotli
	Size      *int   `json:"size,omitempty" toml:"size,omitempty" validate:"omitempty,min=1"`          // padding
	Callback  string `json:"callback,omitempty" toml:"callback,omitempty"`                             // jsonp
	Delimiter string `json:"delimiter,omitempty" toml:"delimiter,omitempty"`                           // track_size
}

// ReaperConfig configures the idle writer reaper.
type ReaperConfig struct {
	Enabled     *bool   `json:"enabled,omitempty" toml:"enabled,omitempty"`
	IdleTimeout *string `json:"idle_timeout,omitempty" toml:"idle_timeout,omitempty" validate:"omitempty,duration"`
	Interval    *string `json:"interval,omitempty" toml:"interval,omitempty" validate:"omitempty,duration"`
}

// RoutingConfig contains the list of routes.
type RoutingConfig struct {
	Routes []Route `json:"routes,omitempty" toml:"routes,omitempty" validate:"dive"`
}

// Route defines a single routing rule.
type Route struct {
	PathPattern   string          `json:"path_pattern" toml:"path_pattern" validate:"required,startswith=/"`
	MatchType     MatchType       `json:"match_type" toml:"match_type" validate:"required,oneof=Exact Prefix"`
	HandlerType   string          `json:"handler_type" toml:"handler_type" validate:"required"`
	HandlerConfig json.RawMessage `json:"handler_config,omitempty" toml:"handler_config,omitempty"`
}

// LoggingConfig holds logging configurations.
type LoggingConfig struct {
	LogLevel  LogLevel         `json:"log_level,omitempty" toml:"log_level,omitempty" validate:"omitempty,oneof=TRACE DEBUG INFO WARNING ERROR"`
	Format    string           `json:"format,omitempty" toml:"format,omitempty" validate:"omitempty,oneof=json console"`
	AccessLog *AccessLogConfig `json:"access_log,omitempty" toml:"access_log,omitempty"`
	ErrorLog  *ErrorLogConfig  `json:"error_log,omitempty" toml:"error_log,omitempty"`
}

// AccessLogConfig configures access logging.
type AccessLogConfig struct {
	Enabled *bool  `json:"enabled,omitempty" toml:"enabled,omitempty"`
	Target  string `json:"target,omitempty" toml:"target,omitempty" validate:"omitempty,log_target"`
}

// ErrorLogConfig configures error logging.
type ErrorLogConfig struct {
	Target string `json:"target,omitempty" toml:"target,omitempty" validate:"omitempty,log_target"`
}

// SubscribeHandlerConfig is the HandlerConfig for "Subscribe" routes.
type SubscribeHandlerConfig struct {
	Transport    string            `json:"transport,omitempty" validate:"omitempty,oneof=streaming long-polling sse"`
	DefaultTopic string            `json:"default_topic,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	Transforms   []TransformConfig `json:"transforms,omitempty" validate:"dive"`
}

// PublishHandlerConfig is the HandlerConfig for "Publish" routes.
type PublishHandlerConfig struct {
	DefaultTopic string `json:"default_topic,omitempty"`
	MaxBodyBytes int64  `json:"max_body_bytes,omitempty" validate:"omitempty,min=1"`
}

// WebSocketHandlerConfig is the HandlerConfig for "WebSocket" routes.
type WebSocketHandlerConfig struct {
	DefaultTopic   string   `json:"default_topic,omitempty"`
	ReadLimit      int64    `json:"read_limit,omitempty" validate:"omitempty,min=1"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// IsFilePath reports whether a log target names a file rather than a standard stream.
func IsFilePath(target string) bool {
	return target != "" && target != "stdout" && target != "stderr"
}

// durationOr parses a validated duration string, falling back to def when unset.
func durationOr(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

// ShutdownTimeout returns the graceful shutdown bound.
func (c *ServerConfig) ShutdownTimeout() time.Duration {
	return durationOr(c.GracefulShutdownTimeout, 30*time.Second)
}

// HeaderTimeout returns the read-header timeout for the HTTP server.
func (c *ServerConfig) HeaderTimeout() time.Duration {
	return durationOr(c.ReadHeaderTimeout, 10*time.Second)
}

// H2C reports whether cleartext HTTP/2 is enabled.
func (c *ServerConfig) H2C() bool {
	return c.EnableH2C != nil && *c.EnableH2C
}

// IsEnabled reports whether the reaper should run.
func (c *ReaperConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// IdleTimeoutDuration returns how long a writer may go without a write before it is reaped.
func (c *ReaperConfig) IdleTimeoutDuration() time.Duration {
	return durationOr(c.IdleTimeout, 5*time.Minute)
}

// IntervalDuration returns the sweep period.
func (c *ReaperConfig) IntervalDuration() time.Duration {
	return durationOr(c.Interval, 30*time.Second)
}
