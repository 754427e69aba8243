package benchmark

import (
	"context"
	"testing"
	"time"

	"github.com/yndnr/docsnap/internal/backup"
	"github.com/yndnr/docsnap/internal/backup/restore"
	"github.com/yndnr/docsnap/internal/core/domain"
)

// BenchmarkSnapshotCreateFull benchmarks full snapshot creation at various scales.
func BenchmarkSnapshotCreateFull(b *testing.B) {
	runWithDocumentCounts(b, SmallDocumentCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		svc, _ := newService(b, backup.Config{}, count)

		// Each iteration needs a distinct filename.
		base := time.Now()
		i := 0
		svc.SetClock(func() time.Time { return base.Add(time.Duration(i) * time.Millisecond) })

		b.ResetTimer()
		b.ReportAllocs()

		for i = 0; i < b.N; i++ {
			if _, err := svc.CreateFull(ctx, true); err != nil {
				b.Fatalf("CreateFull failed: %v", err)
			}
		}

		b.StopTimer()
		reportMemory(b, "mem")
	})
}

// BenchmarkSnapshotCreateIncremental benchmarks incremental snapshots where
// a tenth of the documents changed since the baseline.
func BenchmarkSnapshotCreateIncremental(b *testing.B) {
	runWithDocumentCounts(b, SmallDocumentCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		svc, store := newService(b, backup.Config{}, count)

		base := time.Now()
		svc.SetClock(func() time.Time { return base })
		if _, err := svc.CreateFull(ctx, true); err != nil {
			b.Fatalf("CreateFull failed: %v", err)
		}
		for j := 0; j < count/10; j++ {
			doc := newDocument(j, base.Add(time.Minute))
			id, _ := doc.Identity(domain.DefaultIdentityField)
			if err := store.Upsert(ctx, "users", id, doc); err != nil {
				b.Fatal(err)
			}
		}

		i := 0
		svc.SetClock(func() time.Time { return base.Add(time.Hour + time.Duration(i)*time.Millisecond) })

		b.ResetTimer()
		b.ReportAllocs()

		for i = 0; i < b.N; i++ {
			if _, err := svc.CreateIncremental(ctx); err != nil {
				b.Fatalf("CreateIncremental failed: %v", err)
			}
		}
	})
}

// BenchmarkSnapshotRestore benchmarks a clearing restore of a full snapshot.
func BenchmarkSnapshotRestore(b *testing.B) {
	runWithDocumentCounts(b, SmallDocumentCounts, func(b *testing.B, count int) {
		ctx := context.Background()
		svc, _ := newService(b, backup.Config{}, count)

		snap, err := svc.CreateFull(ctx, true)
		if err != nil {
			b.Fatalf("CreateFull failed: %v", err)
		}
		opts := restore.Options{ClearExisting: true, MergeStrategy: restore.MergeSkip}

		b.ResetTimer()
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			res, err := svc.ApplyRestore(ctx, snap.Filename, opts)
			if err != nil {
				b.Fatalf("ApplyRestore failed: %v", err)
			}
			if res.Inserted != 2*count {
				b.Fatalf("inserted %d, want %d", res.Inserted, 2*count)
			}
		}
	})
}

// BenchmarkSnapshotList benchmarks catalog listing with many files.
func BenchmarkSnapshotList(b *testing.B) {
	ctx := context.Background()
	svc, _ := newService(b, backup.Config{Compression: "none"}, 10)

	base := time.Now()
	for i := 0; i < 200; i++ {
		svc.SetClock(func() time.Time { return base.Add(time.Duration(i) * time.Second) })
		if _, err := svc.CreateFull(ctx, false); err != nil {
			b.Fatalf("CreateFull failed: %v", err)
		}
	}

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		entries, err := svc.ListSnapshots(ctx)
		if err != nil {
			b.Fatalf("ListSnapshots failed: %v", err)
		}
		if len(entries) != 200 {
			b.Fatalf("entries = %d, want 200", len(entries))
		}
	}
}
