package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeTempFile creates a file with the given content and extension in a
// test-scoped directory and returns its path.
func writeTempFile(t *testing.T, content string, ext string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test-config"+ext)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

// checkErrorContains checks if the error is not nil and its message contains the expected substring.
func checkErrorContains(t *testing.T, err error, expectedSubstring string) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected an error containing %q, but got nil", expectedSubstring)
	}
	if !strings.Contains(err.Error(), expectedSubstring) {
		t.Fatalf("Expected error message to contain %q, but got: %v", expectedSubstring, err)
	}
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	_, err := LoadConfig("")
	checkErrorContains(t, err, "configuration file path cannot be empty")
}

func TestLoadConfig_NonExistentFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "non_existent_file.json"))
	checkErrorContains(t, err, "failed to read configuration file")
}

func TestLoadConfig_ValidJSON(t *testing.T) {
	path := writeTempFile(t, `{"server": {"address": ":8080"}}`, ".json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed for valid JSON: %v", err)
	}
	if cfg.Server == nil || cfg.Server.Address == nil || *cfg.Server.Address != ":8080" {
		t.Errorf("Expected server address to be :8080, got %v", cfg.Server)
	}
}

func TestLoadConfig_ValidTOML(t *testing.T) {
	path := writeTempFile(t, "[server]\naddress = \":9090\"\nenable_h2c = true\n", ".toml")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed for valid TOML: %v", err)
	}
	if *cfg.Server.Address != ":9090" {
		t.Errorf("Expected server address to be :9090, got %q", *cfg.Server.Address)
	}
	if !cfg.Server.H2C() {
		t.Error("Expected h2c to be enabled")
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		_, err := LoadConfig(writeTempFile(t, "", ".json"))
		checkErrorContains(t, err, "failed to parse JSON configuration")
	})
	t.Run("toml", func(t *testing.T) {
		cfg, err := LoadConfig(writeTempFile(t, "", ".toml"))
		if err != nil {
			t.Fatalf("An empty TOML file should load with defaults, got: %v", err)
		}
		if *cfg.Server.Address != DefaultAddress {
			t.Errorf("Expected default address %q, got %q", DefaultAddress, *cfg.Server.Address)
		}
	})
}

func TestLoadConfig_InvalidSyntax(t *testing.T) {
	_, err := LoadConfig(writeTempFile(t, `{"server": {`, ".json"))
	checkErrorContains(t, err, "failed to parse JSON configuration")

	_, err = LoadConfig(writeTempFile(t, "[server\naddress = ", ".toml"))
	checkErrorContains(t, err, "failed to parse TOML configuration")
}

func TestLoadConfig_UnknownField(t *testing.T) {
	_, err := LoadConfig(writeTempFile(t, `{"server": {"adress": ":1"}}`, ".json"))
	checkErrorContains(t, err, "unknown field")

	_, err = LoadConfig(writeTempFile(t, "[writer]\ncharset = \"UTF-8\"\n", ".toml"))
	checkErrorContains(t, err, "unknown field")
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path string
		data string
		want Format
	}{
		{"config.json", "", FormatJSON},
		{"CONFIG.JSON", "", FormatJSON},
		{"config.toml", "{", FormatTOML},
		{"config", "  \n{\"server\":{}}", FormatJSON},
		{"config.conf", "[server]", FormatTOML},
		{"config", "", FormatTOML},
	}
	for _, tt := range tests {
		if got := DetectFormat(tt.path, []byte(tt.data)); got != tt.want {
			t.Errorf("DetectFormat(%q, %q) = %q, want %q", tt.path, tt.data, got, tt.want)
		}
	}
}

func TestParseConfig_UnsupportedFormat(t *testing.T) {
	_, err := ParseConfig([]byte("{}"), Format("yaml"))
	checkErrorContains(t, err, `unsupported configuration format "yaml"`)
}

func TestLoadConfig_DefaultsApplied(t *testing.T) {
	cfg, err := LoadConfig(writeTempFile(t, `{}`, ".json"))
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if *cfg.Server.Address != DefaultAddress {
		t.Errorf("Server.Address = %q, want %q", *cfg.Server.Address, DefaultAddress)
	}
	if cfg.Server.H2C() {
		t.Error("h2c should be disabled by default")
	}
	if got := cfg.Server.ShutdownTimeout(); got != 30*time.Second {
		t.Errorf("ShutdownTimeout() = %v, want 30s", got)
	}
	if got := cfg.Server.HeaderTimeout(); got != 10*time.Second {
		t.Errorf("HeaderTimeout() = %v, want 10s", got)
	}
	if cfg.Writer.DefaultContentType != DefaultContentType || cfg.Writer.DefaultCharset != DefaultCharset {
		t.Errorf("Writer defaults = %q/%q", cfg.Writer.DefaultContentType, cfg.Writer.DefaultCharset)
	}
	if len(cfg.Writer.Transforms) != 0 {
		t.Errorf("Expected no default transforms, got %v", cfg.Writer.Transforms)
	}
	if !cfg.Reaper.IsEnabled() {
		t.Error("Reaper should be enabled by default")
	}
	if got := cfg.Reaper.IdleTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("IdleTimeoutDuration() = %v, want 5m", got)
	}
	if got := cfg.Reaper.IntervalDuration(); got != 30*time.Second {
		t.Errorf("IntervalDuration() = %v, want 30s", got)
	}
	if cfg.Logging.LogLevel != LogLevelInfo || cfg.Logging.Format != DefaultLogFormat {
		t.Errorf("Logging defaults = %q/%q", cfg.Logging.LogLevel, cfg.Logging.Format)
	}
	if !*cfg.Logging.AccessLog.Enabled || cfg.Logging.AccessLog.Target != "stdout" {
		t.Errorf("AccessLog defaults = %v/%q", *cfg.Logging.AccessLog.Enabled, cfg.Logging.AccessLog.Target)
	}
	if cfg.Logging.ErrorLog.Target != "stderr" {
		t.Errorf("ErrorLog.Target = %q, want stderr", cfg.Logging.ErrorLog.Target)
	}
}

func TestDefault_IsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestLoadConfig_JSONAndTOMLAgree(t *testing.T) {
	jsonContent := `{
  "server": {"address": "127.0.0.1:7000", "graceful_shutdown_timeout": "5s"},
  "writer": {
    "default_charset": "ISO-8859-1",
    "transforms": [{"type": "gzip", "level": 5}]
  },
  "reaper": {"enabled": false},
  "routing": {
    "routes": [
      {"path_pattern": "/sub", "match_type": "Exact", "handler_type": "Subscribe",
       "handler_config": {"transport": "sse", "default_topic": "news"}}
    ]
  },
  "logging": {"log_level": "DEBUG", "format": "console"}
}`
	tomlContent := `
[server]
address = "127.0.0.1:7000"
graceful_shutdown_timeout = "5s"

[writer]
default_charset = "ISO-8859-1"

[[writer.transforms]]
type = "gzip"
level = 5

[reaper]
enabled = false

[[routing.routes]]
path_pattern = "/sub"
match_type = "Exact"
handler_type = "Subscribe"

[routing.routes.handler_config]
transport = "sse"
default_topic = "news"

[logging]
log_level = "DEBUG"
format = "console"
`
	fromJSON, err := LoadConfig(writeTempFile(t, jsonContent, ".json"))
	if err != nil {
		t.Fatalf("JSON: %v", err)
	}
	fromTOML, err := LoadConfig(writeTempFile(t, tomlContent, ".toml"))
	if err != nil {
		t.Fatalf("TOML: %v", err)
	}

	for name, cfg := range map[string]*Config{"json": fromJSON, "toml": fromTOML} {
		t.Run(name, func(t *testing.T) {
			if *cfg.Server.Address != "127.0.0.1:7000" {
				t.Errorf("address = %q", *cfg.Server.Address)
			}
			if cfg.Server.ShutdownTimeout() != 5*time.Second {
				t.Errorf("shutdown timeout = %v", cfg.Server.ShutdownTimeout())
			}
			if cfg.Writer.DefaultCharset != "ISO-8859-1" {
				t.Errorf("charset = %q", cfg.Writer.DefaultCharset)
			}
			if len(cfg.Writer.Transforms) != 1 || cfg.Writer.Transforms[0].Type != TransformGzip ||
				cfg.Writer.Transforms[0].Level == nil || *cfg.Writer.Transforms[0].Level != 5 {
				t.Errorf("transforms = %+v", cfg.Writer.Transforms)
			}
			if cfg.Reaper.IsEnabled() {
				t.Error("reaper should be disabled")
			}
			if cfg.Logging.LogLevel != LogLevelDebug || cfg.Logging.Format != "console" {
				t.Errorf("logging = %q/%q", cfg.Logging.LogLevel, cfg.Logging.Format)
			}
			if len(cfg.Routing.Routes) != 1 {
				t.Fatalf("routes = %d, want 1", len(cfg.Routing.Routes))
			}
			sub, err := ParseSubscribeHandlerConfig(cfg.Routing.Routes[0].HandlerConfig)
			if err != nil {
				t.Fatalf("ParseSubscribeHandlerConfig: %v", err)
			}
			if sub.Transport != SubscribeSSE || sub.DefaultTopic != "news" {
				t.Errorf("handler config = %+v", sub)
			}
		})
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "bad shutdown timeout",
			content: `{"server": {"graceful_shutdown_timeout": "soon"}}`,
			wantErr: "GracefulShutdownTimeout must be a positive duration",
		},
		{
			name:    "negative reaper interval",
			content: `{"reaper": {"interval": "-1s"}}`,
			wantErr: "Interval must be a positive duration",
		},
		{
			name:    "unknown transform",
			content: `{"writer": {"transforms": [{"type": "zip"}]}}`,
			wantErr: "Transforms[0].Type must be one of: gzip brotli padding sse jsonp track_size",
		},
		{
			name:    "transform without type",
			content: `{"writer": {"transforms": [{"level": 1}]}}`,
			wantErr: "Transforms[0].Type is required",
		},
		{
			name:    "level too high",
			content: `{"writer": {"transforms": [{"type": "brotli", "level": 12}]}}`,
			wantErr: "Level must be at most 11",
		},
		{
			name:    "padding size zero",
			content: `{"writer": {"transforms": [{"type": "padding", "size": 0}]}}`,
			wantErr: "Size must be at least 1",
		},
		{
			name:    "bad match type",
			content: `{"routing": {"routes": [{"path_pattern": "/a", "match_type": "Regex", "handler_type": "Subscribe"}]}}`,
			wantErr: "MatchType must be one of: Exact Prefix",
		},
		{
			name:    "relative path pattern",
			content: `{"routing": {"routes": [{"path_pattern": "a", "match_type": "Exact", "handler_type": "Subscribe"}]}}`,
			wantErr: `PathPattern must start with "/"`,
		},
		{
			name:    "missing handler type",
			content: `{"routing": {"routes": [{"path_pattern": "/a", "match_type": "Exact"}]}}`,
			wantErr: "HandlerType is required",
		},
		{
			name: "duplicate route",
			content: `{"routing": {"routes": [
				{"path_pattern": "/a", "match_type": "Exact", "handler_type": "Subscribe"},
				{"path_pattern": "/a", "match_type": "Exact", "handler_type": "Publish"}]}}`,
			wantErr: `routing.routes[1]: duplicate Exact route for "/a"`,
		},
		{
			name:    "bad log level",
			content: `{"logging": {"log_level": "VERBOSE"}}`,
			wantErr: "LogLevel must be one of: TRACE DEBUG INFO WARNING ERROR",
		},
		{
			name:    "bad log format",
			content: `{"logging": {"format": "xml"}}`,
			wantErr: "Format must be one of: json console",
		},
		{
			name:    "relative log file",
			content: `{"logging": {"error_log": {"target": "logs/error.log"}}}`,
			wantErr: "must be 'stdout', 'stderr' or an absolute file path",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeTempFile(t, tt.content, ".json"))
			checkErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadConfig_SameRouteDifferentMatchType(t *testing.T) {
	content := `{"routing": {"routes": [
		{"path_pattern": "/a", "match_type": "Exact", "handler_type": "Subscribe"},
		{"path_pattern": "/a", "match_type": "Prefix", "handler_type": "Publish"}]}}`
	if _, err := LoadConfig(writeTempFile(t, content, ".json")); err != nil {
		t.Fatalf("Exact and Prefix routes on one pattern should be accepted: %v", err)
	}
}

func TestParseSubscribeHandlerConfig(t *testing.T) {
	cfg, err := ParseSubscribeHandlerConfig(nil)
	if err != nil {
		t.Fatalf("nil config: %v", err)
	}
	if cfg.Transport != SubscribeStreaming {
		t.Errorf("default transport = %q, want %q", cfg.Transport, SubscribeStreaming)
	}

	cfg, err = ParseSubscribeHandlerConfig(json.RawMessage(`null`))
	if err != nil || cfg.Transport != SubscribeStreaming {
		t.Errorf("null config: %+v, %v", cfg, err)
	}

	cfg, err = ParseSubscribeHandlerConfig(json.RawMessage(`{"transport": "long-polling", "content_type": "application/json", "transforms": [{"type": "padding", "size": 16}]}`))
	if err != nil {
		t.Fatalf("valid config: %v", err)
	}
	if cfg.Transport != SubscribeLongPolling || cfg.ContentType != "application/json" || len(cfg.Transforms) != 1 {
		t.Errorf("parsed = %+v", cfg)
	}

	_, err = ParseSubscribeHandlerConfig(json.RawMessage(`{"transport": "carrier-pigeon"}`))
	checkErrorContains(t, err, "Transport must be one of: streaming long-polling sse")

	_, err = ParseSubscribeHandlerConfig(json.RawMessage(`{"transforms": [{"type": "rot13"}]}`))
	checkErrorContains(t, err, "Transforms[0].Type must be one of")

	_, err = ParseSubscribeHandlerConfig(json.RawMessage(`{"topic": "x"}`))
	checkErrorContains(t, err, "failed to parse handler_config")
}

func TestParsePublishHandlerConfig(t *testing.T) {
	cfg, err := ParsePublishHandlerConfig(nil)
	if err != nil {
		t.Fatalf("nil config: %v", err)
	}
	if cfg.MaxBodyBytes != 1<<20 {
		t.Errorf("default MaxBodyBytes = %d, want %d", cfg.MaxBodyBytes, 1<<20)
	}

	cfg, err = ParsePublishHandlerConfig(json.RawMessage(`{"default_topic": "news", "max_body_bytes": 10}`))
	if err != nil {
		t.Fatalf("valid config: %v", err)
	}
	if cfg.DefaultTopic != "news" || cfg.MaxBodyBytes != 10 {
		t.Errorf("parsed = %+v", cfg)
	}

	_, err = ParsePublishHandlerConfig(json.RawMessage(`{"max_body_bytes": -1}`))
	checkErrorContains(t, err, "MaxBodyBytes must be at least 1")
}

func TestParseWebSocketHandlerConfig(t *testing.T) {
	cfg, err := ParseWebSocketHandlerConfig(json.RawMessage(`{"allowed_origins": ["https://example.com"]}`))
	if err != nil {
		t.Fatalf("valid config: %v", err)
	}
	if cfg.ReadLimit != 64<<10 {
		t.Errorf("default ReadLimit = %d, want %d", cfg.ReadLimit, 64<<10)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}

	_, err = ParseWebSocketHandlerConfig(json.RawMessage(`{"read_limit": -5}`))
	checkErrorContains(t, err, "ReadLimit must be at least 1")
}

func TestIsFilePath(t *testing.T) {
	tests := map[string]bool{
		"":               false,
		"stdout":         false,
		"stderr":         false,
		"/var/log/a.log": true,
		"relative/a.log": true,
	}
	for target, want := range tests {
		if got := IsFilePath(target); got != want {
			t.Errorf("IsFilePath(%q) = %v, want %v", target, got, want)
		}
	}
}

func TestDurationAccessors_FallBack(t *testing.T) {
	bad := "nope"
	c := &ReaperConfig{IdleTimeout: &bad}
	if got := c.IdleTimeoutDuration(); got != 5*time.Minute {
		t.Errorf("IdleTimeoutDuration() with unparsable value = %v, want 5m", got)
	}
	var s ServerConfig
	if got := s.ShutdownTimeout(); got != 30*time.Second {
		t.Errorf("ShutdownTimeout() on zero config = %v, want 30s", got)
	}
	if s.H2C() {
		t.Error("H2C() on zero config should be false")
	}
}
