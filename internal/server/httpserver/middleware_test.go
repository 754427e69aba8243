package httpserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/yndnr/docsnap/internal/telemetry/logger"
	"github.com/yndnr/docsnap/internal/telemetry/metric"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := RequestID()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = logger.RequestIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("generates request ID when not provided", func(t *testing.T) {
		rec := serve(handler, httptest.NewRequest("GET", "/test", nil))

		requestID := rec.Header().Get("X-Request-ID")
		if !strings.HasPrefix(requestID, "req-") || len(requestID) != 4+26 {
			t.Errorf("expected req-<ulid>, got %q", requestID)
		}
		if seen != requestID {
			t.Errorf("context request ID = %q, want %q", seen, requestID)
		}
	})

	t.Run("preserves existing request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", "existing-id-123")

		rec := serve(handler, req)

		if got := rec.Header().Get("X-Request-ID"); got != "existing-id-123" {
			t.Errorf("expected 'existing-id-123', got %s", got)
		}
	})

	t.Run("replaces oversized request ID", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLength+1))

		rec := serve(handler, req)

		if got := rec.Header().Get("X-Request-ID"); !strings.HasPrefix(got, "req-") {
			t.Errorf("expected generated ID, got %q", got)
		}
	})
}

func TestChain(t *testing.T) {
	var order []int
	mark := func(n int) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, n)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		order = append(order, 4)
		w.WriteHeader(http.StatusOK)
	}), mark(1), mark(2), mark(3))

	serve(handler, httptest.NewRequest("GET", "/test", nil))

	expected := []int{1, 2, 3, 4}
	if len(order) != len(expected) {
		t.Fatalf("expected %d calls, got %d", len(expected), len(order))
	}
	for i, v := range expected {
		if order[i] != v {
			t.Errorf("expected order[%d] = %d, got %d", i, v, order[i])
		}
	}
}

func TestAdminAuth(t *testing.T) {
	handler := AdminAuth("s3cret-token", logger.Discard())(okHandler)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid token", "Bearer s3cret-token", http.StatusOK},
		{"case-insensitive scheme", "bearer s3cret-token", http.StatusOK},
		{"wrong token", "Bearer nope", http.StatusUnauthorized},
		{"missing header", "", http.StatusUnauthorized},
		{"basic scheme", "Basic czNjcmV0", http.StatusUnauthorized},
		{"empty bearer", "Bearer ", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/admin/v1/backups/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := serve(handler, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusUnauthorized {
				if got := rec.Header().Get("X-Error-Code"); got != "DS-AUTH-4010" {
					t.Errorf("X-Error-Code = %q, want DS-AUTH-4010", got)
				}
				var body errorBody
				if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
					t.Fatalf("decode: %v", err)
				}
				if body.Success || body.Code != "DS-AUTH-4010" {
					t.Errorf("body = %+v", body)
				}
			}
		})
	}

	t.Run("empty token disables auth", func(t *testing.T) {
		rec := serve(AdminAuth("", logger.Discard())(okHandler), httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})
}

func TestNetworkACL(t *testing.T) {
	tests := []struct {
		name       string
		allow      []string
		remote     string
		wantStatus int
	}{
		{"allows all when allowlist is empty", nil, "192.168.1.100:12345", http.StatusOK},
		{"allows matching single IP", []string{"192.168.1.100"}, "192.168.1.100:12345", http.StatusOK},
		{"allows matching CIDR", []string{"10.0.0.0/8"}, "10.1.2.3:12345", http.StatusOK},
		{"denies non-matching IP", []string{"192.168.1.0/24"}, "10.0.0.1:12345", http.StatusForbidden},
		{"supports IPv6", []string{"2001:db8::/32"}, "[2001:db8::1]:12345", http.StatusOK},
		{"single IPv6", []string{"::1"}, "[::1]:5090", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := NetworkACL(tt.allow, logger.Discard())
			if err != nil {
				t.Fatalf("NetworkACL() error = %v", err)
			}
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remote

			rec := serve(mw(okHandler), req)

			if rec.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantStatus == http.StatusForbidden && rec.Header().Get("X-Error-Code") != "DS-AUTH-4031" {
				t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
			}
		})
	}

	t.Run("rejects invalid entries", func(t *testing.T) {
		for _, entry := range []string{"not-an-ip", "10.0.0.0/99"} {
			if _, err := NetworkACL([]string{entry}, logger.Discard()); err == nil {
				t.Errorf("NetworkACL(%q) expected error", entry)
			}
		}
	})
}

func TestRateLimit(t *testing.T) {
	t.Run("limits requests from same IP", func(t *testing.T) {
		handler := RateLimit(NewRateLimiters(0.001, 2))(okHandler)

		for i := 0; i < 2; i++ {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "10.0.0.99:12345"
			if rec := serve(handler, req); rec.Code != http.StatusOK {
				t.Errorf("request %d: expected status 200, got %d", i+1, rec.Code)
			}
		}

		req := httptest.NewRequest("GET", "/test", nil)
		req.RemoteAddr = "10.0.0.99:12345"
		rec := serve(handler, req)
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected status 429, got %d", rec.Code)
		}
		if rec.Header().Get("Retry-After") == "" {
			t.Error("expected Retry-After header")
		}
		if rec.Header().Get("X-Error-Code") != "DS-SYS-4290" {
			t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
		}
	})

	t.Run("different IPs have separate limits", func(t *testing.T) {
		limiters := NewRateLimiters(0.001, 1)
		handler := RateLimit(limiters)(okHandler)

		for _, addr := range []string{"192.168.100.1:1", "192.168.100.2:1"} {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = addr
			if rec := serve(handler, req); rec.Code != http.StatusOK {
				t.Errorf("%s: expected status 200, got %d", addr, rec.Code)
			}
		}
		if limiters.Len() != 2 {
			t.Errorf("Len() = %d, want 2", limiters.Len())
		}
		limiters.Reset()
		if limiters.Len() != 0 {
			t.Errorf("Len() after Reset = %d, want 0", limiters.Len())
		}
	})

	t.Run("tokens refill over time", func(t *testing.T) {
		handler := RateLimit(NewRateLimiters(10, 1))(okHandler)
		send := func() int {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = "10.0.0.88:12345"
			return serve(handler, req).Code
		}

		send()
		if code := send(); code != http.StatusTooManyRequests {
			t.Errorf("expected status 429, got %d", code)
		}
		time.Sleep(200 * time.Millisecond)
		if code := send(); code != http.StatusOK {
			t.Errorf("after refill: expected status 200, got %d", code)
		}
	})

	t.Run("nil registry disables limiting", func(t *testing.T) {
		handler := RateLimit(nil)(okHandler)
		for i := 0; i < 50; i++ {
			if rec := serve(handler, httptest.NewRequest("GET", "/", nil)); rec.Code != http.StatusOK {
				t.Fatalf("request %d: status %d", i, rec.Code)
			}
		}
	})

	t.Run("concurrent requests", func(t *testing.T) {
		handler := RateLimit(NewRateLimiters(1, 100))(okHandler)

		var wg sync.WaitGroup
		var mu sync.Mutex
		success, limited := 0, 0
		for i := 0; i < 200; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				req := httptest.NewRequest("GET", "/test", nil)
				req.RemoteAddr = "192.168.1.1:12345"
				rec := serve(handler, req)
				mu.Lock()
				defer mu.Unlock()
				if rec.Code == http.StatusOK {
					success++
				} else {
					limited++
				}
			}()
		}
		wg.Wait()

		if success < 100 || success > 105 {
			t.Errorf("success = %d, want about the burst of 100", success)
		}
		if limited == 0 {
			t.Error("expected some rate-limited requests")
		}
	})
}

func TestNewRateLimiters_DefaultBurst(t *testing.T) {
	tests := []struct {
		rps  float64
		want int
	}{
		{0.5, 1},
		{5, 5},
		{5.5, 6},
	}
	for _, tt := range tests {
		if got := NewRateLimiters(tt.rps, 0).burst; got != tt.want {
			t.Errorf("burst for %v rps = %d, want %d", tt.rps, got, tt.want)
		}
	}
}

func TestRecover(t *testing.T) {
	log := logger.Discard()

	t.Run("recovers from panic", func(t *testing.T) {
		handler := Recover(log)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			panic("test panic")
		}))

		rec := serve(handler, httptest.NewRequest("GET", "/test", nil))

		if rec.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rec.Code)
		}
		if rec.Header().Get("X-Error-Code") != "DS-SYS-5000" {
			t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
		}
	})

	t.Run("passes through normal requests", func(t *testing.T) {
		rec := serve(Recover(log)(okHandler), httptest.NewRequest("GET", "/test", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rec.Code)
		}
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"X-Forwarded-For", map[string]string{"X-Forwarded-For": "10.0.0.1, 10.0.0.2"}, "192.168.1.1:12345", "10.0.0.1"},
		{"X-Real-IP", map[string]string{"X-Real-IP": "10.0.0.1"}, "192.168.1.1:12345", "10.0.0.1"},
		{"RemoteAddr", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"IPv6 RemoteAddr", nil, "[::1]:8080", "::1"},
		{"RemoteAddr without port", nil, "192.168.1.1", "192.168.1.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAudit(t *testing.T) {
	var logBuffer strings.Builder
	log := slog.New(slog.NewTextHandler(&logBuffer, nil))

	tests := []struct {
		name    string
		status  int
		wantMsg string
	}{
		{"logs successful requests", http.StatusOK, "request completed"},
		{"logs client errors", http.StatusBadRequest, "request completed with client error"},
		{"logs server errors", http.StatusInternalServerError, "request completed with error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logBuffer.Reset()
			m := metric.New()
			handler := Audit(log, m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))

			req := httptest.NewRequest("POST", "/admin/v1/backups/snapshots", nil)
			req = req.WithContext(logger.WithRequestID(req.Context(), "test-req-123"))
			serve(handler, req)

			out := logBuffer.String()
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("expected %q, got: %s", tt.wantMsg, out)
			}
			if !strings.Contains(out, "request_id=test-req-123") {
				t.Errorf("expected request id in log, got: %s", out)
			}
			if got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues("POST", strconv.Itoa(tt.status))); got != 1 {
				t.Errorf("http requests counter = %v, want 1", got)
			}
		})
	}

	t.Run("nil metrics", func(t *testing.T) {
		rec := serve(Audit(log, nil)(okHandler), httptest.NewRequest("GET", "/", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d", rec.Code)
		}
	})
}

func TestResponseWriter(t *testing.T) {
	t.Run("captures first status code", func(t *testing.T) {
		wrapped := wrapResponseWriter(httptest.NewRecorder())

		wrapped.WriteHeader(http.StatusCreated)
		wrapped.WriteHeader(http.StatusTeapot)

		if wrapped.statusCode != http.StatusCreated {
			t.Errorf("expected status 201, got %d", wrapped.statusCode)
		}
	})

	t.Run("defaults to 200", func(t *testing.T) {
		wrapped := wrapResponseWriter(httptest.NewRecorder())
		wrapped.Write([]byte("ok"))

		if wrapped.statusCode != http.StatusOK {
			t.Errorf("expected default status 200, got %d", wrapped.statusCode)
		}
	})

	t.Run("does not double wrap", func(t *testing.T) {
		inner := wrapResponseWriter(httptest.NewRecorder())
		if wrapResponseWriter(inner) != inner {
			t.Error("wrapResponseWriter should reuse an existing wrapper")
		}
	})
}
