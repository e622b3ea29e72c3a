package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRecordAndReadCycles(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	started := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	first, err := store.RecordCycle(ctx, Cycle{
		RunID: "run-1", Account: "alice",
		StartedAt: started, FinishedAt: started.Add(time.Minute),
		Uploaded: 3, Duplicates: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.RecordCycle(ctx, Cycle{
		RunID: "run-2", Account: "bob",
		StartedAt: started.Add(time.Hour), FinishedAt: started.Add(time.Hour + time.Minute),
		Failed: 2, Error: "store unavailable",
	}); err != nil {
		t.Fatal(err)
	}

	cycles, err := store.RecentCycles(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 2 {
		t.Fatalf("got %d cycles", len(cycles))
	}
	if cycles[0].Account != "bob" || cycles[1].Account != "alice" {
		t.Errorf("cycles must come newest first: %v, %v", cycles[0].Account, cycles[1].Account)
	}
	if cycles[1].ID != first || cycles[1].Uploaded != 3 || cycles[1].Duplicates != 1 {
		t.Errorf("first cycle row = %+v", cycles[1])
	}
	if !cycles[1].StartedAt.Equal(started) {
		t.Errorf("started_at = %v, want %v", cycles[1].StartedAt, started)
	}
	if cycles[0].Error != "store unavailable" {
		t.Errorf("error column = %q", cycles[0].Error)
	}
}

func TestRecordAndReadOutcomes(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	cycleID, err := store.RecordCycle(ctx, Cycle{
		RunID: "run-1", Account: "alice",
		StartedAt: time.Now(), FinishedAt: time.Now(),
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, outcome := range []Outcome{
		{CycleID: cycleID, Path: "/w/alice/a.jpg", Outcome: "uploaded"},
		{CycleID: cycleID, Path: "/w/alice/b.jpg", Outcome: "duplicate", Detail: "bulk check"},
	} {
		if err := store.RecordOutcome(ctx, outcome); err != nil {
			t.Fatal(err)
		}
	}

	outcomes, err := store.RecentOutcomes(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes", len(outcomes))
	}
	if outcomes[0].Path != "/w/alice/b.jpg" || outcomes[0].Outcome != "duplicate" {
		t.Errorf("newest outcome = %+v", outcomes[0])
	}
	if outcomes[0].Account != "alice" {
		t.Errorf("account join = %q", outcomes[0].Account)
	}
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := Open(ctx, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := store.db.ExecContext(ctx, "UPDATE schema_version SET version = 99"); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(ctx, path); !errors.Is(err, ErrSchemaMismatch) {
		t.Fatalf("want ErrSchemaMismatch, got %v", err)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		store, err := Open(ctx, path)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		if err := store.Close(); err != nil {
			t.Fatal(err)
		}
	}
}
