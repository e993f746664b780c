package logger

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"example.com/chunkcast/internal/config"
)

// LogFields carries structured key/value pairs attached to a log entry.
type LogFields map[string]interface{}

// Logger is a general logger that contains specific loggers for access and errors.
// A nil *Logger is valid and discards everything.
type Logger struct {
	errorLog  zerolog.Logger
	accessLog *zerolog.Logger

	mu    sync.Mutex
	files []*os.File
}

// NewLogger creates and configures a new Logger instance.
func NewLogger(cfg *config.LoggingConfig) (*Logger, error) {
	if cfg == nil {
		return nil, fmt.Errorf("logging configuration cannot be nil")
	}
	l := &Logger{}

	errorTarget := "stderr"
	if cfg.ErrorLog != nil && cfg.ErrorLog.Target != "" {
		errorTarget = cfg.ErrorLog.Target
	}
	errorOut, err := l.open(errorTarget)
	if err != nil {
		return nil, fmt.Errorf("failed to open error log %s: %w", errorTarget, err)
	}
	l.errorLog = zerolog.New(formatWriter(errorOut, cfg.Format)).
		Level(zerologLevel(cfg.LogLevel)).
		With().Timestamp().Logger()

	if cfg.AccessLog != nil && (cfg.AccessLog.Enabled == nil || *cfg.AccessLog.Enabled) {
		accessTarget := cfg.AccessLog.Target
		if accessTarget == "" {
			accessTarget = "stdout"
		}
		accessOut, err := l.open(accessTarget)
		if err != nil {
			l.CloseLogFiles()
			return nil, fmt.Errorf("failed to open access log %s: %w", accessTarget, err)
		}
		al := zerolog.New(formatWriter(accessOut, cfg.Format)).With().Timestamp().Logger()
		l.accessLog = &al
	}
	return l, nil
}

// New returns a Logger writing JSON error entries to w at the given level.
// Access logging is disabled.
func New(w io.Writer, level config.LogLevel) *Logger {
	return &Logger{
		errorLog: zerolog.New(w).Level(zerologLevel(level)).With().Timestamp().Logger(),
	}
}

// NewWithAccess is New plus an access log written to accessW.
func NewWithAccess(w, accessW io.Writer, level config.LogLevel) *Logger {
	l := New(w, level)
	al := zerolog.New(accessW).With().Timestamp().Logger()
	l.accessLog = &al
	return l
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{errorLog: zerolog.Nop()}
}

func (l *Logger) open(target string) (io.Writer, error) {
	switch target {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	f, err := os.OpenFile(target, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.files = append(l.files, f)
	l.mu.Unlock()
	return f, nil
}

func formatWriter(w io.Writer, format string) io.Writer {
	if format == "console" {
		return zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: time.RFC3339}
	}
	return w
}

func zerologLevel(level config.LogLevel) zerolog.Level {
	switch level {
	case config.LogLevelTrace:
		return zerolog.TraceLevel
	case config.LogLevelDebug:
		return zerolog.DebugLevel
	case config.LogLevelWarning:
		return zerolog.WarnLevel
	case config.LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// With returns a child logger that adds fields to every error-log entry.
func (l *Logger) With(fields LogFields) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{
		errorLog:  l.errorLog.With().Fields(map[string]interface{}(fields)).Logger(),
		accessLog: l.accessLog,
	}
}

func (l *Logger) log(ev *zerolog.Event, msg string, fields []LogFields) {
	if ev == nil {
		return
	}
	for _, f := range fields {
		if f != nil {
			ev = ev.Fields(map[string]interface{}(f))
		}
	}
	ev.Msg(msg)
}

func (l *Logger) Trace(msg string, fields ...LogFields) {
	if l != nil {
		l.log(l.errorLog.Trace(), msg, fields)
	}
}

func (l *Logger) Debug(msg string, fields ...LogFields) {
	if l != nil {
		l.log(l.errorLog.Debug(), msg, fields)
	}
}

func (l *Logger) Info(msg string, fields ...LogFields) {
	if l != nil {
		l.log(l.errorLog.Info(), msg, fields)
	}
}

func (l *Logger) Warn(msg string, fields ...LogFields) {
	if l != nil {
		l.log(l.errorLog.Warn(), msg, fields)
	}
}

func (l *Logger) Error(msg string, fields ...LogFields) {
	if l != nil {
		l.log(l.errorLog.Error(), msg, fields)
	}
}

// Access writes one access log entry for a finished request.
func (l *Logger) Access(req *http.Request, status int, responseBytes int64, duration time.Duration) {
	if l == nil || l.accessLog == nil {
		return
	}
	host, port, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		host, port = req.RemoteAddr, "0"
	}
	ev := l.accessLog.Log().
		Str("remote_addr", host).
		Str("remote_port", port).
		Str("protocol", req.Proto).
		Str("method", req.Method).
		Str("uri", req.RequestURI).
		Int("status", status).
		Int64("resp_bytes", responseBytes).
		Int64("duration_ms", duration.Milliseconds())
	if ua := req.UserAgent(); ua != "" {
		ev = ev.Str("user_agent", ua)
	}
	if ref := req.Referer(); ref != "" {
		ev = ev.Str("referer", ref)
	}
	ev.Send()
}

// CloseLogFiles closes any log files opened by NewLogger.
// This would be called during server shutdown.
func (l *Logger) CloseLogFiles() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.files = nil
	return firstErr
}
