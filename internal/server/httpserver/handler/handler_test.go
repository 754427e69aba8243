package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/backup/dirlock"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
)

var specs = []domain.CollectionSpec{{Name: "users"}, {Name: "orders"}}

type fixture struct {
	h     *Handler
	svc   *backup.Service
	store docstore.Store
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := docstore.NewMemoryStore(specs)
	exp, err := exporter.New(store, specs)
	if err != nil {
		t.Fatal(err)
	}
	svc, err := backup.New(backup.Config{Dir: t.TempDir()}, exp, nil, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{h: New(svc, store, logger.Discard()), svc: svc, store: store}
}

func (f *fixture) seed(t *testing.T, collection string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		doc := domain.Document{"_id": id, "updatedAt": time.Now().UTC().Format(time.RFC3339Nano)}
		if err := f.store.Upsert(context.Background(), collection, id, doc); err != nil {
			t.Fatal(err)
		}
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
	}
	req = req.WithContext(logger.WithRequestID(req.Context(), "req-test"))
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, resp
}

func decodeData(t *testing.T, resp Response, v any) {
	t.Helper()
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatal(err)
	}
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{"DS-SNAP-4040", http.StatusNotFound},
		{"DS-STORE-4040", http.StatusNotFound},
		{"DS-LOCK-4090", http.StatusConflict},
		{"DS-SNAP-4220", http.StatusUnprocessableEntity},
		{"DS-ARG-4001", http.StatusBadRequest},
		{"DS-ARG-4002", http.StatusBadRequest},
		{"DS-AUTH-4010", http.StatusUnauthorized},
		{"DS-AUTH-4031", http.StatusForbidden},
		{"DS-SYS-4290", http.StatusTooManyRequests},
		{"DS-STORE-5030", http.StatusServiceUnavailable},
		{"DS-SNAP-5001", http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := errorCodeToHTTPStatus(tt.code); got != tt.want {
				t.Errorf("errorCodeToHTTPStatus(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestHealthAndReady(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, "GET", "/health", "")
	if rec.Code != http.StatusOK || !resp.Success || resp.RequestID != "req-test" {
		t.Errorf("/health: %d %+v", rec.Code, resp)
	}

	rec, resp = f.do(t, "GET", "/ready", "")
	if rec.Code != http.StatusOK || !resp.Success {
		t.Errorf("/ready: %d %+v", rec.Code, resp)
	}

	f.store.Close()
	rec, resp = f.do(t, "GET", "/ready", "")
	if rec.Code != http.StatusServiceUnavailable || resp.Code != "DS-STORE-5030" {
		t.Errorf("/ready after close: %d %+v", rec.Code, resp)
	}
}

func TestStatusSummary(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "users", "u1", "u2")

	rec, resp := f.do(t, "GET", "/admin/v1/status/summary", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var summary StatusSummary
	decodeData(t, resp, &summary)

	if summary.Status != "ok" || summary.Engine != docstore.EngineMemory {
		t.Errorf("summary = %+v", summary)
	}
	if summary.BackupDir != f.svc.Dir() {
		t.Errorf("BackupDir = %q, want %q", summary.BackupDir, f.svc.Dir())
	}
	if len(summary.Collections) != 2 {
		t.Fatalf("collections = %+v", summary.Collections)
	}
	counts := map[string]int{}
	for _, c := range summary.Collections {
		counts[c.Name] = c.Documents
	}
	if counts["users"] != 2 || counts["orders"] != 0 {
		t.Errorf("counts = %v", counts)
	}
	if summary.Build.Version == "" {
		t.Error("build version should be set")
	}
}

func TestCreateSnapshot(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "users", "u1")

	rec, resp := f.do(t, "POST", "/admin/v1/backups/snapshots", `{"kind":"full","compress":false}`)
	if rec.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("full: %d %+v", rec.Code, resp)
	}
	var full struct {
		Filename   string `json:"filename"`
		Compressed bool   `json:"compressed"`
	}
	decodeData(t, resp, &full)
	if full.Compressed || full.Filename == "" {
		t.Errorf("full = %+v", full)
	}

	rec, resp = f.do(t, "POST", "/admin/v1/backups/snapshots", `{"kind":"incremental"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("incremental: %d %+v", rec.Code, resp)
	}
	var inc struct {
		Kind    string `json:"kind"`
		BasedOn string `json:"basedOn"`
	}
	decodeData(t, resp, &inc)
	if inc.Kind != "incremental" || inc.BasedOn != full.Filename {
		t.Errorf("incremental = %+v, want basedOn %s", inc, full.Filename)
	}

	rec, resp = f.do(t, "POST", "/admin/v1/backups/snapshots", "")
	if rec.Code != http.StatusCreated {
		t.Errorf("empty body should create a full snapshot, got %d %+v", rec.Code, resp)
	}
}

func TestCreateSnapshot_BadRequests(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"unknown kind", `{"kind":"differential"}`, "DS-ARG-4001"},
		{"malformed json", `{"kind":`, "DS-ARG-4001"},
		{"unknown field", `{"knd":"full"}`, "DS-ARG-4001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := f.do(t, "POST", "/admin/v1/backups/snapshots", tt.body)
			if rec.Code != http.StatusBadRequest || resp.Code != tt.code || resp.Success {
				t.Errorf("%d %+v", rec.Code, resp)
			}
			if rec.Header().Get("X-Error-Code") != tt.code {
				t.Errorf("X-Error-Code = %q", rec.Header().Get("X-Error-Code"))
			}
		})
	}
}

func TestListAndStats(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "users", "u1")
	f.do(t, "POST", "/admin/v1/backups/snapshots", `{"kind":"full"}`)

	rec, resp := f.do(t, "GET", "/admin/v1/backups/snapshots", "")
	var list struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	decodeData(t, resp, &list)
	if rec.Code != http.StatusOK || list.Total != 1 || len(list.Items) != 1 {
		t.Errorf("list: %d %+v", rec.Code, list)
	}

	rec, resp = f.do(t, "GET", "/admin/v1/backups/stats", "")
	var st struct {
		Count     int `json:"count"`
		FullCount int `json:"fullCount"`
	}
	decodeData(t, resp, &st)
	if rec.Code != http.StatusOK || st.Count != 1 || st.FullCount != 1 {
		t.Errorf("stats: %d %+v", rec.Code, st)
	}
}

func TestPreviewAndDelete_Errors(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{"preview missing", "GET", "/admin/v1/backups/snapshots/full_backup_1.json/preview", http.StatusNotFound, "DS-SNAP-4040"},
		{"delete missing", "DELETE", "/admin/v1/backups/snapshots/full_backup_1.json", http.StatusNotFound, "DS-SNAP-4040"},
		{"delete dotdot", "DELETE", "/admin/v1/backups/snapshots/..backup.json", http.StatusBadRequest, "DS-ARG-4001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := f.do(t, tt.method, tt.path, "")
			if rec.Code != tt.status || resp.Code != tt.code {
				t.Errorf("%d %+v, want %d %s", rec.Code, resp, tt.status, tt.code)
			}
		})
	}
}

func TestPrune(t *testing.T) {
	f := newFixture(t)

	rec, resp := f.do(t, "POST", "/admin/v1/backups/prune", "")
	if rec.Code != http.StatusBadRequest || resp.Code != "DS-ARG-4002" {
		t.Errorf("missing days: %d %+v", rec.Code, resp)
	}

	rec, resp = f.do(t, "POST", "/admin/v1/backups/prune?days=abc", "")
	if rec.Code != http.StatusBadRequest || resp.Code != "DS-ARG-4001" {
		t.Errorf("bad days: %d %+v", rec.Code, resp)
	}

	rec, resp = f.do(t, "POST", "/admin/v1/backups/prune", `{"days":30}`)
	var res struct {
		DeletedCount int `json:"deletedCount"`
	}
	decodeData(t, resp, &res)
	if rec.Code != http.StatusOK || res.DeletedCount != 0 {
		t.Errorf("prune: %d %+v", rec.Code, resp)
	}

	rec, _ = f.do(t, "POST", "/admin/v1/backups/prune?days=7", "")
	if rec.Code != http.StatusOK {
		t.Errorf("prune via query: %d", rec.Code)
	}
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "users", "u1", "u2")
	_, resp := f.do(t, "POST", "/admin/v1/backups/snapshots", `{"kind":"full"}`)
	var snap struct {
		Filename string `json:"filename"`
	}
	decodeData(t, resp, &snap)

	t.Run("missing filename", func(t *testing.T) {
		rec, resp := f.do(t, "POST", "/admin/v1/backups/restores", `{}`)
		if rec.Code != http.StatusBadRequest || resp.Code != "DS-ARG-4002" {
			t.Errorf("%d %+v", rec.Code, resp)
		}
	})

	t.Run("bad strategy", func(t *testing.T) {
		rec, resp := f.do(t, "POST", "/admin/v1/backups/restores", `{"filename":"`+snap.Filename+`","merge_strategy":"merge"}`)
		if rec.Code != http.StatusBadRequest || resp.Code != "DS-ARG-4001" {
			t.Errorf("%d %+v", rec.Code, resp)
		}
	})

	t.Run("skip existing", func(t *testing.T) {
		rec, resp := f.do(t, "POST", "/admin/v1/backups/restores", `{"filename":"`+snap.Filename+`"}`)
		var res struct {
			Inserted int `json:"insertedCount"`
			Skipped  int `json:"skippedCount"`
		}
		decodeData(t, resp, &res)
		if rec.Code != http.StatusOK || res.Inserted != 0 || res.Skipped != 2 {
			t.Errorf("%d %+v", rec.Code, res)
		}
	})

	t.Run("clear and replace", func(t *testing.T) {
		rec, resp := f.do(t, "POST", "/admin/v1/backups/restores",
			`{"filename":"`+snap.Filename+`","clear_existing":true,"merge_strategy":"replace"}`)
		var res struct {
			Cleared  int `json:"cleared"`
			Inserted int `json:"insertedCount"`
		}
		decodeData(t, resp, &res)
		if rec.Code != http.StatusOK || res.Inserted != 2 {
			t.Errorf("%d %+v", rec.Code, resp)
		}
	})
}

func TestLockContention(t *testing.T) {
	f := newFixture(t)

	lock, err := dirlock.For(f.svc.Dir())
	if err != nil {
		t.Fatal(err)
	}
	release, err := lock.TryWrite("test")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	rec, resp := f.do(t, "POST", "/admin/v1/backups/snapshots", `{"kind":"full"}`)
	if rec.Code != http.StatusConflict || resp.Code != "DS-LOCK-4090" {
		t.Errorf("%d %+v", rec.Code, resp)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After on contention")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest("PUT", "/admin/v1/backups/stats", nil)
	rec := httptest.NewRecorder()
	f.h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}
