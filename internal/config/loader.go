package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Format identifies the on-disk encoding of a configuration file.
type Format string

const (
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// LoadConfig reads, parses, defaults and validates the configuration at filePath.
// The format is taken from the file extension, falling back to content sniffing.
func LoadConfig(filePath string) (*Config, error) {
	if filePath == "" {
		return nil, fmt.Errorf("configuration file path cannot be empty")
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", filePath, err)
	}
	cfg, err := ParseConfig(data, DetectFormat(filePath, data))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filePath, err)
	}
	return cfg, nil
}

// DetectFormat guesses the configuration format from the path and content.
func DetectFormat(filePath string, data []byte) Format {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		return FormatJSON
	case ".toml":
		return FormatTOML
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return FormatJSON
	}
	return FormatTOML
}

// ParseConfig decodes data in the given format, applies defaults and validates the result.
func ParseConfig(data []byte, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON configuration: %w", err)
		}
	case FormatTOML:
		// handler_config is opaque JSON to the loader, so TOML is decoded
		// generically and re-encoded as JSON to keep RawMessage fields intact.
		var raw map[string]interface{}
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("failed to parse TOML configuration: %w", err)
		}
		asJSON, err := json.Marshal(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to re-encode TOML configuration: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(asJSON))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("failed to map TOML configuration: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported configuration format %q", format)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a validated configuration with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server == nil {
		cfg.Server = &ServerConfig{}
	}
	if cfg.Server.Address == nil {
		cfg.Server.Address = strPtr(DefaultAddress)
	}
	if cfg.Server.EnableH2C == nil {
		cfg.Server.EnableH2C = boolPtr(false)
	}
	if cfg.Server.GracefulShutdownTimeout == nil {
		cfg.Server.GracefulShutdownTimeout = strPtr(DefaultGracefulShutdownTimeout)
	}
	if cfg.Server.ReadHeaderTimeout == nil {
		cfg.Server.ReadHeaderTimeout = strPtr(DefaultReadHeaderTimeout)
	}

	if cfg.Writer == nil {
		cfg.Writer = &WriterConfig{}
	}
	if cfg.Writer.DefaultContentType == "" {
		cfg.Writer.DefaultContentType = DefaultContentType
	}
	if cfg.Writer.DefaultCharset == "" {
		cfg.Writer.DefaultCharset = DefaultCharset
	}

	if cfg.Reaper == nil {
		cfg.Reaper = &ReaperConfig{}
	}
	if cfg.Reaper.Enabled == nil {
		cfg.Reaper.Enabled = boolPtr(true)
	}
	if cfg.Reaper.IdleTimeout == nil {
		cfg.Reaper.IdleTimeout = strPtr(DefaultIdleTimeout)
	}
	if cfg.Reaper.Interval == nil {
		cfg.Reaper.Interval = strPtr(DefaultReaperInterval)
	}

	if cfg.Logging == nil {
		cfg.Logging = &LoggingConfig{}
	}
	if cfg.Logging.LogLevel == "" {
		cfg.Logging.LogLevel = LogLevelInfo
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}
	if cfg.Logging.AccessLog == nil {
		cfg.Logging.AccessLog = &AccessLogConfig{}
	}
	if cfg.Logging.AccessLog.Enabled == nil {
		cfg.Logging.AccessLog.Enabled = boolPtr(true)
	}
	if cfg.Logging.AccessLog.Target == "" {
		cfg.Logging.AccessLog.Target = "stdout"
	}
	if cfg.Logging.ErrorLog == nil {
		cfg.Logging.ErrorLog = &ErrorLogConfig{}
	}
	if cfg.Logging.ErrorLog.Target == "" {
		cfg.Logging.ErrorLog.Target = "stderr"
	}
}

// ParseSubscribeHandlerConfig decodes and validates a Subscribe route's handler_config.
func ParseSubscribeHandlerConfig(raw json.RawMessage) (*SubscribeHandlerConfig, error) {
	cfg := &SubscribeHandlerConfig{}
	if err := decodeHandlerConfig(raw, cfg); err != nil {
		return nil, err
	}
	if cfg.Transport == "" {
		cfg.Transport = SubscribeStreaming
	}
	return cfg, nil
}

// ParsePublishHandlerConfig decodes and validates a Publish route's handler_config.
func ParsePublishHandlerConfig(raw json.RawMessage) (*PublishHandlerConfig, error) {
	cfg := &PublishHandlerConfig{}
	if err := decodeHandlerConfig(raw, cfg); err != nil {
		return nil, err
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = 1 << 20
	}
	return cfg, nil
}

// ParseWebSocketHandlerConfig decodes and validates a WebSocket route's handler_config.
func ParseWebSocketHandlerConfig(raw json.RawMessage) (*WebSocketHandlerConfig, error) {
	cfg := &WebSocketHandlerConfig{}
	if err := decodeHandlerConfig(raw, cfg); err != nil {
		return nil, err
	}
	if cfg.ReadLimit == 0 {
		cfg.ReadLimit = 64 << 10
	}
	return cfg, nil
}

func decodeHandlerConfig(raw json.RawMessage, dst interface{}) error {
	if len(bytes.TrimSpace(raw)) > 0 && string(bytes.TrimSpace(raw)) != "null" {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(dst); err != nil {
			return fmt.Errorf("failed to parse handler_config: %w", err)
		}
	}
	return validateStruct(dst)
}

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }
