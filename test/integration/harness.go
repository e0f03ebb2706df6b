// Package integration provides a reusable test harness for end-to-end
// testing of the TCE server. It starts a full HTTP server wired with the
// real engine, an in-memory workflow store, and a test JWT issuer.
package integration

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/usemanusai/tce/internal/config"
	"github.com/usemanusai/tce/internal/definition"
	"github.com/usemanusai/tce/internal/engine"
	"github.com/usemanusai/tce/internal/executor"
	"github.com/usemanusai/tce/internal/observability"
	"github.com/usemanusai/tce/internal/transport"
)

const authSecretEnv = "TCE_IT_AUTH_SECRET"

// TestHarness encapsulates a fully wired server instance for integration
// testing.
type TestHarness struct {
	t      *testing.T
	server *httptest.Server
	issuer *tokenIssuer

	// Internal components exposed for advanced test scenarios.
	Engine    *engine.Engine
	Store     *engine.MemoryStore
	Registry  *definition.Registry
	Executors *executor.Registry

	cfg *config.Config
}

// HarnessOption configures the test harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	definitionDirs []string
	authDisabled   bool
	handlerTimeout time.Duration
	engine         func(*config.EngineConfig)
	executors      map[string]executor.Func
}

// WithDefinitions sets the definition directories to load. Relative paths
// are resolved from the testdata directory.
func WithDefinitions(dirs ...string) HarnessOption {
	return func(c *harnessConfig) {
		c.definitionDirs = dirs
	}
}

// WithoutAuth disables bearer-token authentication.
func WithoutAuth() HarnessOption {
	return func(c *harnessConfig) {
		c.authDisabled = true
	}
}

// WithHandlerTimeout sets the per-request handler timeout.
func WithHandlerTimeout(d time.Duration) HarnessOption {
	return func(c *harnessConfig) {
		c.handlerTimeout = d
	}
}

// WithEngineConfig mutates the engine configuration before the engine is
// built.
func WithEngineConfig(mutate func(*config.EngineConfig)) HarnessOption {
	return func(c *harnessConfig) {
		c.engine = mutate
	}
}

// WithExecutor registers an extra executor alongside the built-ins.
func WithExecutor(name string, fn executor.Func) HarnessOption {
	return func(c *harnessConfig) {
		if c.executors == nil {
			c.executors = make(map[string]executor.Func)
		}
		c.executors[name] = fn
	}
}

// NewTestHarness creates and starts a full server instance. The server is
// automatically cleaned up when the test completes.
func NewTestHarness(t *testing.T, opts ...HarnessOption) *TestHarness {
	t.Helper()

	hc := &harnessConfig{
		handlerTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(hc)
	}

	if len(hc.definitionDirs) == 0 {
		hc.definitionDirs = []string{filepath.Join(testdataDir(), "definitions")}
	}

	h := &TestHarness{t: t}

	// Step 1: Token issuer and signing secret.
	h.issuer = newTokenIssuer(t)
	t.Setenv(authSecretEnv, h.issuer.Secret())

	// Step 2: Config.
	cfg := config.Defaults()
	cfg.Server.HandlerTimeout = config.Duration(hc.handlerTimeout)
	cfg.Auth = config.AuthConfig{
		Enabled:   !hc.authDisabled,
		SecretEnv: authSecretEnv,
		Issuer:    h.issuer.issuer,
		Audience:  h.issuer.audience,
	}
	cfg.Engine.BackoffBase = config.Duration(5 * time.Millisecond)
	cfg.Engine.BackoffCeiling = config.Duration(40 * time.Millisecond)
	if hc.engine != nil {
		hc.engine(&cfg.Engine)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("harness config: %v", err)
	}
	h.cfg = cfg

	// Step 3: Executors.
	h.Executors = executor.NewRegistry()
	if err := executor.RegisterBuiltins(h.Executors); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	for name, fn := range hc.executors {
		if err := h.Executors.Register(name, fn); err != nil {
			t.Fatalf("register executor %s: %v", name, err)
		}
	}

	// Step 4: Definitions.
	loader := definition.NewLoader()
	templates, err := loader.LoadAll(hc.definitionDirs)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	if verrs := definition.NewValidator().Validate(templates, h.Executors); len(verrs) > 0 {
		t.Fatalf("invalid definitions: %v", verrs)
	}
	h.Registry = definition.NewRegistry(templates)

	// Step 5: Store and engine. Metrics go to a private registry so
	// parallel harnesses never collide.
	h.Store = engine.NewMemoryStore()
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	h.Engine = engine.NewEngine(h.Store, h.Executors, cfg.Engine, nil, metrics)

	// Step 6: Router and server.
	router := transport.NewRouter(transport.Dependencies{
		Config:      cfg,
		Engine:      h.Engine,
		Definitions: h.Registry,
		Executors:   h.Executors,
		Store:       h.Store,
		Metrics:     metrics,
	})
	h.server = httptest.NewServer(router)
	t.Cleanup(h.server.Close)

	return h
}

// BaseURL returns the test server's base URL.
func (h *TestHarness) BaseURL() string {
	return h.server.URL
}

// GenerateToken creates a valid JWT with the given claims.
func (h *TestHarness) GenerateToken(claims TestClaims) string {
	return h.issuer.GenerateToken(claims)
}

// GenerateExpiredToken creates a JWT that has already expired.
func (h *TestHarness) GenerateExpiredToken(claims TestClaims) string {
	return h.issuer.GenerateExpiredToken(claims)
}

// GET performs an authenticated GET request.
func (h *TestHarness) GET(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodGet, path, nil, token, nil)
}

// POST performs an authenticated POST request with a JSON body.
func (h *TestHarness) POST(path string, body any, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, nil)
}

// DELETE performs an authenticated DELETE request.
func (h *TestHarness) DELETE(path, token string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodDelete, path, nil, token, nil)
}

// POSTWithHeaders performs an authenticated POST with additional headers.
func (h *TestHarness) POSTWithHeaders(path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()
	return h.doRequest(http.MethodPost, path, body, token, headers)
}

func (h *TestHarness) doRequest(method, path string, body any, token string, headers map[string]string) *http.Response {
	h.t.Helper()

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			h.t.Fatalf("marshal request body: %v", err)
		}
		bodyReader = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(context.Background(), method, h.server.URL+path, bodyReader)
	if err != nil {
		h.t.Fatalf("create request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		h.t.Fatalf("%s %s failed: %v", method, path, err)
	}
	return resp
}

// ParseJSON reads the response body and unmarshals it into the target.
func (h *TestHarness) ParseJSON(resp *http.Response, target any) {
	h.t.Helper()
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		h.t.Fatalf("read response body: %v", err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		h.t.Fatalf("unmarshal response body: %v\nbody: %s", err, string(data))
	}
}

// AssertStatus checks that the response has the expected status code.
func (h *TestHarness) AssertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
}

// AssertJSON checks the response status and parses the body.
func (h *TestHarness) AssertJSON(t *testing.T, resp *http.Response, expected int, target any) {
	t.Helper()
	if resp.StatusCode != expected {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("status = %d, want %d\nbody: %s", resp.StatusCode, expected, string(body))
	}
	h.ParseJSON(resp, target)
}

// testdataDir resolves the testdata directory relative to this source file.
func testdataDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "testdata")
}
