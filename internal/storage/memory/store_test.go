package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
	"github.com/stagetrack/stagetrack/internal/storage/storagetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storagetest.Run(t, New())
}

func TestMemoryStore_CreateLedger(t *testing.T) {
	store := New()
	ctx := context.Background()

	ledger, err := store.CreateLedger(ctx, "pipe-1")
	if err != nil {
		t.Fatalf("CreateLedger() error = %v", err)
	}
	if ledger.PipelineID != "pipe-1" {
		t.Errorf("PipelineID = %v, want pipe-1", ledger.PipelineID)
	}
	if ledger.ID == "" {
		t.Error("ID should not be empty")
	}

	_, err = store.CreateLedger(ctx, "pipe-1")
	if !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("second CreateLedger() error = %v, want ErrAlreadyExists", err)
	}

	retrieved, err := store.FindLedger(ctx, "pipe-1")
	if err != nil {
		t.Fatalf("FindLedger() error = %v", err)
	}
	if retrieved.ID != ledger.ID {
		t.Errorf("ID = %v, want %v", retrieved.ID, ledger.ID)
	}
}

func TestMemoryStore_FindLedgerNotFound(t *testing.T) {
	store := New()

	_, err := store.FindLedger(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindLedger() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_RecordCommit(t *testing.T) {
	store := New()
	ctx := context.Background()
	first := time.UnixMilli(100)

	inserted, err := store.RecordCommit(ctx, "pipe-1", "qa-env", domain.CommitEntry{RevisionID: "abc", Timestamp: first})
	if err != nil {
		t.Fatalf("RecordCommit() error = %v", err)
	}
	if !inserted {
		t.Error("first RecordCommit() should insert")
	}

	inserted, err = store.RecordCommit(ctx, "pipe-1", "qa-env", domain.CommitEntry{RevisionID: "abc", Timestamp: time.UnixMilli(500)})
	if err != nil {
		t.Fatalf("RecordCommit() error = %v", err)
	}
	if inserted {
		t.Error("duplicate RecordCommit() should not insert")
	}

	ledger, err := store.FindLedger(ctx, "pipe-1")
	if err != nil {
		t.Fatalf("FindLedger() error = %v", err)
	}
	got := ledger.Commits("qa-env")["abc"].Timestamp
	if !got.Equal(first) {
		t.Errorf("Timestamp = %v, want %v", got, first)
	}
}

func TestMemoryStore_FindLedgerReturnsCopy(t *testing.T) {
	store := New()
	ctx := context.Background()

	if _, err := store.RecordCommit(ctx, "pipe-1", "COMMIT", domain.CommitEntry{RevisionID: "abc", Timestamp: time.UnixMilli(1)}); err != nil {
		t.Fatalf("RecordCommit() error = %v", err)
	}

	ledger, _ := store.FindLedger(ctx, "pipe-1")
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "def"})

	again, _ := store.FindLedger(ctx, "pipe-1")
	if again.Commits("COMMIT").Has("def") {
		t.Error("mutating a returned ledger leaked into the store")
	}
}

func TestMemoryStore_Owners(t *testing.T) {
	store := New()
	ctx := context.Background()

	owner := &domain.Owner{ID: "dash-1", StageEnvironments: map[string]string{"QA": "qa-env"}}
	if err := store.SaveOwner(ctx, owner); err != nil {
		t.Fatalf("SaveOwner() error = %v", err)
	}

	got, err := store.FindOwner(ctx, "dash-1")
	if err != nil {
		t.Fatalf("FindOwner() error = %v", err)
	}
	if got.EnvironmentFor("QA") != "qa-env" {
		t.Errorf("EnvironmentFor(QA) = %q, want qa-env", got.EnvironmentFor("QA"))
	}

	if _, err := store.FindOwner(ctx, "dash-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("FindOwner() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_CollectorItems(t *testing.T) {
	store := New()
	ctx := context.Background()

	item := &domain.CollectorItem{ID: "pipe-1", Options: map[string]any{"dashboardId": "dash-1"}}
	if err := store.SaveCollectorItem(ctx, item); err != nil {
		t.Fatalf("SaveCollectorItem() error = %v", err)
	}

	got, err := store.FindCollectorItem(ctx, "pipe-1")
	if err != nil {
		t.Fatalf("FindCollectorItem() error = %v", err)
	}
	ownerID, err := got.OwnerID()
	if err != nil {
		t.Fatalf("OwnerID() error = %v", err)
	}
	if ownerID != "dash-1" {
		t.Errorf("OwnerID() = %v, want dash-1", ownerID)
	}

	if err := store.SaveCollectorItem(ctx, &domain.CollectorItem{}); err == nil {
		t.Error("SaveCollectorItem() without id should fail")
	}
}
