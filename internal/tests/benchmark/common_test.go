package benchmark

import (
	"context"
	"fmt"
	"runtime"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/backup/archive"
	"github.com/yndnr/docsnap/internal/backup/exporter"
	"github.com/yndnr/docsnap/internal/core/domain"
	"github.com/yndnr/docsnap/internal/storage/docstore"
	"github.com/yndnr/docsnap/internal/telemetry/logger"
)

// DocumentCounts defines the collection sizes for benchmarking.
var DocumentCounts = []int{1000, 10000, 50000}

// SmallDocumentCounts for quick benchmarks.
var SmallDocumentCounts = []int{100, 1000, 5000}

var benchSpecs = []domain.CollectionSpec{{Name: "users"}, {Name: "orders"}}

// newDocument builds a document of realistic shape.
func newDocument(i int, modified time.Time) domain.Document {
	return domain.Document{
		"_id":       ulid.Make().String(),
		"updatedAt": modified.UTC().Format(time.RFC3339Nano),
		"email":     fmt.Sprintf("user-%d@example.com", i),
		"name":      fmt.Sprintf("User %d", i),
		"plan":      []string{"free", "pro", "team"}[i%3],
		"visits":    float64(i % 500),
		"tags":      []any{"bench", fmt.Sprintf("cohort-%d", i%20)},
	}
}

// prefillStore seeds every benchmark collection with count documents.
func prefillStore(ctx context.Context, b *testing.B, store docstore.Store, count int) {
	b.Helper()
	modified := time.Now().Add(-time.Hour)
	for _, spec := range benchSpecs {
		for i := 0; i < count; i++ {
			doc := newDocument(i, modified)
			id, _ := doc.Identity(domain.DefaultIdentityField)
			if err := store.Upsert(ctx, spec.Name, id, doc); err != nil {
				b.Fatalf("seed %s: %v", spec.Name, err)
			}
		}
	}
}

// newEnvelope builds a full envelope with count documents per collection.
func newEnvelope(count int) *archive.Envelope {
	env := archive.NewEnvelope(archive.KindFull, time.Now())
	modified := time.Now().Add(-time.Hour)
	for _, spec := range benchSpecs {
		docs := make([]domain.Document, count)
		for i := range docs {
			docs[i] = newDocument(i, modified)
		}
		env.SetCollection(spec.Name, docs)
	}
	return env
}

// newService builds a backup service over a prefilled memory store.
func newService(b *testing.B, cfg backup.Config, count int) (*backup.Service, docstore.Store) {
	b.Helper()
	if cfg.Dir == "" {
		cfg.Dir = b.TempDir()
	}
	store := docstore.NewMemoryStore(benchSpecs)
	prefillStore(context.Background(), b, store, count)

	exp, err := exporter.New(store, benchSpecs)
	if err != nil {
		b.Fatalf("exporter.New: %v", err)
	}
	svc, err := backup.New(cfg, exp, nil, logger.Discard())
	if err != nil {
		b.Fatalf("backup.New: %v", err)
	}
	return svc, store
}

// reportMemory reports memory usage.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithDocumentCounts runs a benchmark function with various collection sizes.
func runWithDocumentCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("docs_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}
