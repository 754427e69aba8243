package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/backup/catalog"
	"github.com/yndnr/docsnap/internal/backup/dirlock"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/storage/docstore"
)

var specs = []domain.CollectionSpec{{Name: "users"}, {Name: "guilds"}}

type fixture struct {
	dir   string
	store docstore.Store
	mgr   *Manager
	codec *archive.Codec
	clock time.Time
}

func newFixture(t *testing.T, store docstore.Store) *fixture {
	t.Helper()
	dir := t.TempDir()
	if store == nil {
		store = docstore.NewMemoryStore(specs)
	}
	exp, err := exporter.New(store, specs)
	if err != nil {
		t.Fatal(err)
	}
	lock, err := dirlock.For(dir)
	if err != nil {
		t.Fatal(err)
	}
	f := &fixture{
		dir:   dir,
		store: store,
		codec: archive.NewCodec(),
		clock: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.mgr = NewManager(catalog.New(dir), lock, exp, f.codec, Config{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.mgr.SetClock(func() time.Time { return f.clock })
	return f
}

func (f *fixture) put(t *testing.T, collection, id string, modified time.Time) {
	t.Helper()
	doc := domain.Document{"_id": id, "updatedAt": modified.Format(time.RFC3339Nano)}
	if err := f.store.Upsert(context.Background(), collection, id, doc); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) decode(t *testing.T, name string) *archive.Envelope {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.dir, name))
	if err != nil {
		t.Fatal(err)
	}
	env, err := f.codec.Decode(data)
	if err != nil {
		t.Fatalf("Decode(%s) error = %v", name, err)
	}
	return env
}

func TestCreateFull(t *testing.T) {
	f := newFixture(t, nil)
	for _, id := range []string{"a", "b", "c"} {
		f.put(t, "users", id, f.clock.Add(-time.Hour))
	}

	res, err := f.mgr.CreateFull(context.Background(), false)
	if err != nil {
		t.Fatalf("CreateFull() error = %v", err)
	}
	if res.Filename != "full_backup_1709294400000.json" {
		t.Errorf("Filename = %q", res.Filename)
	}
	if res.Statistics.Collections["users"] != 3 || res.Statistics.TotalCollections != 2 {
		t.Errorf("Statistics = %+v", res.Statistics)
	}
	if res.Compressed || len(res.Checksum) != 64 {
		t.Errorf("result = %+v", res)
	}

	env := f.decode(t, res.Filename)
	if env.Kind != archive.KindFull || env.Collections["users"].Count != 3 {
		t.Errorf("envelope = %+v", env)
	}
	if _, ok := env.Collections["guilds"]; !ok {
		t.Error("empty tracked collection missing from full snapshot")
	}

	info, _ := os.Stat(filepath.Join(f.dir, res.Filename))
	if info.Size() != res.Size {
		t.Errorf("Size = %d, file has %d", res.Size, info.Size())
	}
}

func TestCreateFull_CompressedAndCollision(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "users", "a", f.clock)

	first, err := f.mgr.CreateFull(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.mgr.CreateFull(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasSuffix(first.Filename, ".json.gz") || !first.Compressed {
		t.Errorf("first = %+v", first)
	}
	if first.Filename == second.Filename {
		t.Fatal("same-millisecond snapshots must get distinct names")
	}
	if second.Filename != "full_backup_1709294400001.json.gz" {
		t.Errorf("second.Filename = %q", second.Filename)
	}
	if !f.decode(t, second.Filename).Timestamp.Equal(second.Timestamp) {
		t.Error("envelope timestamp must match the filename stamp")
	}
}

func TestCreateIncremental_Scenario(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for _, id := range []string{"u1", "u2", "u3"} {
		f.put(t, "users", id, f.clock.Add(-24*time.Hour))
	}

	full, err := f.mgr.CreateFull(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if full.Statistics.Collections["users"] != 3 {
		t.Fatalf("full users = %d, want 3", full.Statistics.Collections["users"])
	}

	f.clock = f.clock.Add(time.Hour)
	f.put(t, "users", "u2", f.clock)
	f.put(t, "users", "u4", f.clock)

	inc, err := f.mgr.CreateIncremental(ctx)
	if err != nil {
		t.Fatalf("CreateIncremental() error = %v", err)
	}
	if inc.Kind != archive.KindIncremental || inc.BasedOn != full.Filename {
		t.Errorf("incremental header = %s based on %q", inc.Kind, inc.BasedOn)
	}
	if !inc.Compressed || !strings.HasPrefix(inc.Filename, "incremental_backup_") {
		t.Errorf("incremental = %+v", inc)
	}

	env := f.decode(t, inc.Filename)
	users := env.Collections["users"]
	if users.Count != 2 {
		t.Fatalf("incremental users count = %d, want 2", users.Count)
	}
	got := map[string]bool{}
	for _, d := range users.Documents {
		id, _ := d.Identity("_id")
		got[id] = true
	}
	if !got["u2"] || !got["u4"] {
		t.Errorf("incremental ids = %v, want u2 and u4", got)
	}
}

func TestCreateIncremental_IncludesDocumentAtBaseTimestamp(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.put(t, "users", "u1", f.clock.Add(-time.Hour))

	full, err := f.mgr.CreateFull(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	// Written after the full fetch but stamped with the same millisecond.
	f.put(t, "users", "same-ms", full.Timestamp.Add(400*time.Microsecond))
	f.clock = f.clock.Add(time.Hour)

	inc, err := f.mgr.CreateIncremental(ctx)
	if err != nil {
		t.Fatal(err)
	}
	users := f.decode(t, inc.Filename).Collections["users"]
	if users.Count != 1 {
		t.Fatalf("incremental users count = %d, want 1", users.Count)
	}
	if id, _ := users.Documents[0].Identity("_id"); id != "same-ms" {
		t.Errorf("incremental id = %q, want same-ms", id)
	}
}

func TestCreateIncremental_NoChanges(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.put(t, "users", "u1", f.clock.Add(-time.Hour))

	if _, err := f.mgr.CreateFull(ctx, true); err != nil {
		t.Fatal(err)
	}
	f.clock = f.clock.Add(time.Hour)

	inc, err := f.mgr.CreateIncremental(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for name, n := range inc.Statistics.Collections {
		if n != 0 {
			t.Errorf("collection %s count = %d, want 0", name, n)
		}
	}
}

func TestCreateIncremental_FallsBackToFull(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "users", "u1", f.clock)

	res, err := f.mgr.CreateIncremental(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !res.FellBackToFull || res.Kind != archive.KindFull || !res.Compressed {
		t.Errorf("result = %+v, want compressed full fallback", res)
	}
}

type failingStore struct {
	docstore.Store
	fail string
}

func (s failingStore) Find(ctx context.Context, collection string, filter docstore.Filter) ([]domain.Document, error) {
	if collection == s.fail {
		return nil, errors.New("disk on fire")
	}
	return s.Store.Find(ctx, collection, filter)
}

func TestCreateFull_FetchFailureWritesNothing(t *testing.T) {
	f := newFixture(t, failingStore{Store: docstore.NewMemoryStore(specs), fail: "guilds"})

	_, err := f.mgr.CreateFull(context.Background(), true)
	if !domain.IsDomainError(err, "DS-SNAP-5002") {
		t.Fatalf("CreateFull() error = %v, want export failure", err)
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 0 {
		t.Errorf("backup dir has %d entries after failure, want 0", len(entries))
	}
}

func TestCreateFull_CancelledWritesNothing(t *testing.T) {
	f := newFixture(t, nil)
	f.put(t, "users", "a", f.clock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.mgr.CreateFull(ctx, false); !errors.Is(err, context.Canceled) {
		t.Fatalf("CreateFull() error = %v, want context.Canceled", err)
	}
	entries, _ := os.ReadDir(f.dir)
	if len(entries) != 0 {
		t.Errorf("backup dir has %d entries after cancellation, want 0", len(entries))
	}
}

func TestCreate_LockContention(t *testing.T) {
	f := newFixture(t, nil)
	release, err := f.mgr.lock.TryApply("apply")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	if _, err := f.mgr.CreateFull(context.Background(), true); !domain.IsDomainError(err, "DS-LOCK-4090") {
		t.Errorf("CreateFull() error = %v, want contention", err)
	}
	if _, err := f.mgr.CreateIncremental(context.Background()); !domain.IsDomainError(err, "DS-LOCK-4090") {
		t.Errorf("CreateIncremental() error = %v, want contention", err)
	}
}

func TestBaseTime_FallsBackToEnvelope(t *testing.T) {
	f := newFixture(t, nil)
	env := archive.NewEnvelope(archive.KindFull, time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC))
	data, err := f.codec.Encode(env, archive.CompressionGzip)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(f.dir, "full_backup_manual.json.gz"), data, 0o600); err != nil {
		t.Fatal(err)
	}

	ts, err := f.mgr.baseTime("full_backup_manual.json.gz")
	if err != nil {
		t.Fatalf("baseTime() error = %v", err)
	}
	if !ts.Equal(env.Timestamp) {
		t.Errorf("baseTime() = %v, want %v", ts, env.Timestamp)
	}
}
