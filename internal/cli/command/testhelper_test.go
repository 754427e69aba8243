package command

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/yndnr/docsnap/internal/cli/config"
)

// mockServer is an admin API stand-in that records every request.
type mockServer struct {
	*httptest.Server
	mux *http.ServeMux

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
	Body   map[string]any
}

func newMockServer(t *testing.T) *mockServer {
	t.Helper()
	m := &mockServer{mux: http.NewServeMux()}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recordedRequest{
			Method: r.Method,
			Path:   r.URL.EscapedPath(),
			Auth:   r.Header.Get("Authorization"),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		m.mu.Lock()
		m.requests = append(m.requests, rec)
		m.mu.Unlock()
		m.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mockServer) handle(pattern string, handler http.HandlerFunc) {
	m.mux.HandleFunc(pattern, handler)
}

func (m *mockServer) recorded() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

func (m *mockServer) last(t *testing.T) recordedRequest {
	t.Helper()
	reqs := m.recorded()
	if len(reqs) == 0 {
		t.Fatal("no request reached the server")
	}
	return reqs[len(reqs)-1]
}

// okResponse writes a success envelope.
func okResponse(status int, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, status, map[string]any{
			"success":    true,
			"code":       "OK",
			"message":    "success",
			"request_id": "req-test",
			"data":       data,
		})
	}
}

// errorResponse writes an error envelope, optionally with a partial result.
func errorResponse(status int, code, message string, data any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"success":    false,
			"code":       code,
			"message":    message,
			"request_id": "req-test",
		}
		if data != nil {
			body["data"] = data
		}
		w.Header().Set("X-Error-Code", code)
		writeEnvelope(w, status, body)
	}
}

func writeEnvelope(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// runCLI runs the app against srv (may be nil) with an isolated config
// file and stdin. It returns stdout.
func runCLI(t *testing.T, srv *mockServer, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCLIEnv(t, nil, srv, stdin, args...)
}

// runCLIEnv is runCLI with DOCSNAP_* variables replaced by env.
func runCLIEnv(t *testing.T, env map[string]string, srv *mockServer, stdin string, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{config.EnvServer, config.EnvToken, config.EnvCAFile, config.EnvInsecure, config.EnvOutput} {
		t.Setenv(key, env[key])
	}

	app := App()
	var out, errOut bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &errOut
	app.Reader = strings.NewReader(stdin)

	full := []string{"docsnap-cli", "--config", filepath.Join(t.TempDir(), "cli.yaml")}
	if srv != nil {
		full = append(full, "--server", srv.URL)
	}
	full = append(full, args...)

	err := app.Run(full)
	return out.String(), err
}
