// Package testutil starts a complete chunkcast server in-process for
// end-to-end tests and provides small HTTP helpers around it.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"

	"example.com/chunkcast/internal/app"
	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
)

// TestRequest models an HTTP request for E2E testing.
type TestRequest struct {
	Method  string
	Path    string // Should include query string if any, e.g., "/path?query=value"
	Headers http.Header
	Body    []byte
}

// BodyMatcher defines a way to match the response body.
type BodyMatcher interface {
	Match(body []byte) (bool, string) // Returns match status and a description of mismatch
}

// ExactBodyMatcher matches the body exactly.
type ExactBodyMatcher struct {
	ExpectedBody []byte
}

// Match implements BodyMatcher for ExactBodyMatcher.
func (m *ExactBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Equal(m.ExpectedBody, body) {
		return true, ""
	}
	return false, fmt.Sprintf("bodies do not match exactly. Expected: %q, Got: %q", string(m.ExpectedBody), string(body))
}

// StringContainsBodyMatcher checks if the body contains a specific substring.
type StringContainsBodyMatcher struct {
	Substring string
}

// Match implements BodyMatcher for StringContainsBodyMatcher.
func (m *StringContainsBodyMatcher) Match(body []byte) (bool, string) {
	if bytes.Contains(body, []byte(m.Substring)) {
		return true, ""
	}
	return false, fmt.Sprintf("body does not contain substring: %q. Body: %q", m.Substring, string(body))
}

// ActualResponse stores the actual outcome of an HTTP request.
type ActualResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// SafeBuffer is a bytes.Buffer safe for one writer and concurrent readers.
type SafeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// ServerInstance is a running in-process server.
type ServerInstance struct {
	App        *app.App
	Config     *config.Config // as loaded back from ConfigPath
	Address    string         // e.g. "127.0.0.1:41234"
	ConfigPath string
	LogBuffer  *SafeBuffer // error and access log lines, JSON

	serveErr chan error
	stopOnce sync.Once
	stopErr  error
	cleanup  func()
}

// WriteTempConfig writes configData to a temporary JSON or TOML file and
// returns its path and a cleanup function that removes it.
func WriteTempConfig(configData interface{}, format string) (filePath string, cleanupFunc func(), err error) {
	var data []byte
	var ext string

	switch strings.ToLower(format) {
	case "json":
		data, err = json.MarshalIndent(configData, "", "  ")
		ext = ".json"
	case "toml":
		// Round-trip through JSON so json.RawMessage fields become tables
		// rather than byte arrays.
		var asJSON []byte
		asJSON, err = json.Marshal(configData)
		if err != nil {
			break
		}
		var generic map[string]interface{}
		if err = json.Unmarshal(asJSON, &generic); err != nil {
			break
		}
		buf := new(bytes.Buffer)
		if err = toml.NewEncoder(buf).Encode(generic); err == nil {
			data = buf.Bytes()
		}
		ext = ".toml"
	default:
		err = fmt.Errorf("unsupported config format: %s", format)
	}
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal config data to %s: %w", format, err)
	}

	tmpFile, err := os.CreateTemp("", "testconfig-*"+ext)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create temp config file: %w", err)
	}
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to write to temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", nil, fmt.Errorf("failed to close temp config file: %w", err)
	}

	filePath = tmpFile.Name()
	cleanupFunc = func() { os.Remove(filePath) }
	return filePath, cleanupFunc, nil
}

// StartTestServer writes cfg to disk in the given format, loads it back
// through the regular loader and serves it on a free loopback port.
// cfg.Server.Address is overwritten with that port.
func StartTestServer(cfg *config.Config, format string) (*ServerInstance, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	addr := ln.Addr().String()
	if cfg.Server == nil {
		cfg.Server = &config.ServerConfig{}
	}
	cfg.Server.Address = &addr

	path, cleanup, err := WriteTempConfig(cfg, format)
	if err != nil {
		ln.Close()
		return nil, err
	}
	loaded, err := config.LoadConfig(path)
	if err != nil {
		ln.Close()
		cleanup()
		return nil, fmt.Errorf("failed to load %s config: %w", format, err)
	}

	logs := &SafeBuffer{}
	lg := logger.NewWithAccess(logs, logs, loaded.Logging.LogLevel)
	a, err := app.New(loaded, lg)
	if err != nil {
		ln.Close()
		cleanup()
		return nil, fmt.Errorf("failed to build server: %w", err)
	}

	instance := &ServerInstance{
		App:        a,
		Config:     loaded,
		Address:    addr,
		ConfigPath: path,
		LogBuffer:  logs,
		serveErr:   make(chan error, 1),
		cleanup:    cleanup,
	}
	go func() {
		instance.serveErr <- a.Serve(ln)
	}()

	select {
	case <-a.Server.Ready():
	case err := <-instance.serveErr:
		cleanup()
		return nil, fmt.Errorf("server exited during startup: %w. Logs captured:\n%s", err, logs.String())
	case <-time.After(10 * time.Second):
		instance.Stop()
		return nil, fmt.Errorf("server not ready at %s. Logs captured:\n%s", addr, logs.String())
	}
	return instance, nil
}

// URL returns an http:// URL for path on the instance.
func (s *ServerInstance) URL(path string) string {
	return "http://" + s.Address + path
}

// SafeGetLogs returns everything logged so far.
func (s *ServerInstance) SafeGetLogs() string {
	return s.LogBuffer.String()
}

// Stop shuts the server down gracefully and removes the config file. Only
// the first call acts.
func (s *ServerInstance) Stop() error {
	s.stopOnce.Do(func() {
		defer s.cleanup()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.App.Shutdown(ctx); err != nil {
			s.stopErr = err
			return
		}
		select {
		case err := <-s.serveErr:
			s.stopErr = err
		case <-ctx.Done():
			s.stopErr = fmt.Errorf("server did not return from Serve: %w", ctx.Err())
		}
	})
	return s.stopErr
}

// Do sends request to the instance and reads the whole response.
func (s *ServerInstance) Do(request TestRequest) (*ActualResponse, error) {
	method := request.Method
	if method == "" {
		method = http.MethodGet
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, s.URL(request.Path), bytes.NewReader(request.Body))
	if err != nil {
		return nil, err
	}
	for name, values := range request.Headers {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &ActualResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}, nil
}

// WaitForSubscribers polls until topic has n subscribers or timeout passes.
func (s *ServerInstance) WaitForSubscribers(topic string, n int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		got := s.App.Broadcaster.Subscribers(topic)
		if got == n {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("topic %q has %d subscribers after %v, want %d", topic, got, timeout, n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
