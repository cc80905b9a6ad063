// Package storagetest holds the behavioral contract every storage.Store
// implementation must satisfy.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
)

// Run exercises st against the storage contract.
func Run(t *testing.T, st storage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("ledger", func(t *testing.T) { runLedgerContract(ctx, t, st) })
	t.Run("owner", func(t *testing.T) { runOwnerContract(ctx, t, st) })
	t.Run("collector item", func(t *testing.T) { runCollectorItemContract(ctx, t, st) })
}

func runLedgerContract(ctx context.Context, t *testing.T, st storage.Store) {
	if _, err := st.FindLedger(ctx, "contract-missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("FindLedger(missing) error = %v, want ErrNotFound", err)
	}

	created, err := st.CreateLedger(ctx, "contract-pipe")
	if err != nil {
		t.Fatalf("CreateLedger() error = %v", err)
	}
	if created.ID == "" || created.PipelineID != "contract-pipe" {
		t.Errorf("CreateLedger() = %+v", created)
	}
	if _, err := st.CreateLedger(ctx, "contract-pipe"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("CreateLedger(duplicate) error = %v, want ErrAlreadyExists", err)
	}

	first := time.UnixMilli(1_700_000_000_123).UTC()
	inserted, err := st.RecordCommit(ctx, "contract-pipe", "qa-env", domain.CommitEntry{RevisionID: "abc", Timestamp: first})
	if err != nil {
		t.Fatalf("RecordCommit() error = %v", err)
	}
	if !inserted {
		t.Error("RecordCommit() should insert a new revision")
	}
	inserted, err = st.RecordCommit(ctx, "contract-pipe", "qa-env", domain.CommitEntry{RevisionID: "abc", Timestamp: first.Add(time.Hour)})
	if err != nil {
		t.Fatalf("RecordCommit() error = %v", err)
	}
	if inserted {
		t.Error("RecordCommit() overwrote an existing revision")
	}

	ledger, err := st.FindLedger(ctx, "contract-pipe")
	if err != nil {
		t.Fatalf("FindLedger() error = %v", err)
	}
	if ledger.ID != created.ID {
		t.Errorf("ledger ID = %q, want %q", ledger.ID, created.ID)
	}
	got, ok := ledger.Commits("qa-env")["abc"]
	if !ok {
		t.Fatalf("Commits(qa-env) = %v, want abc", ledger.Commits("qa-env"))
	}
	if !got.Timestamp.Equal(first) {
		t.Errorf("Timestamp = %v, want %v", got.Timestamp, first)
	}
	if len(ledger.Commits("prod-env")) != 0 {
		t.Errorf("Commits(prod-env) = %v, want empty", ledger.Commits("prod-env"))
	}

	// Recording into an unknown pipeline creates its ledger.
	if _, err := st.RecordCommit(ctx, "contract-fresh", "COMMIT", domain.CommitEntry{RevisionID: "def", Timestamp: first}); err != nil {
		t.Fatalf("RecordCommit(fresh) error = %v", err)
	}
	fresh, err := st.FindLedger(ctx, "contract-fresh")
	if err != nil {
		t.Fatalf("FindLedger(fresh) error = %v", err)
	}
	if !fresh.Commits("COMMIT").Has("def") {
		t.Errorf("fresh ledger missing def: %v", fresh.Environments)
	}
	if _, err := st.CreateLedger(ctx, "contract-fresh"); !errors.Is(err, storage.ErrAlreadyExists) {
		t.Errorf("CreateLedger(fresh) error = %v, want ErrAlreadyExists", err)
	}
}

func runOwnerContract(ctx context.Context, t *testing.T, st storage.Store) {
	if _, err := st.FindOwner(ctx, "contract-missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("FindOwner(missing) error = %v, want ErrNotFound", err)
	}
	if err := st.SaveOwner(ctx, &domain.Owner{}); err == nil {
		t.Error("SaveOwner() without id should fail")
	}

	owner := &domain.Owner{
		ID:                "contract-dash",
		Title:             "Payments",
		StageEnvironments: map[string]string{"QA": "qa-env", "PROD": "prod-env"},
	}
	if err := st.SaveOwner(ctx, owner); err != nil {
		t.Fatalf("SaveOwner() error = %v", err)
	}

	got, err := st.FindOwner(ctx, "contract-dash")
	if err != nil {
		t.Fatalf("FindOwner() error = %v", err)
	}
	if got.Title != "Payments" || got.EnvironmentFor("QA") != "qa-env" || got.EnvironmentFor("PROD") != "prod-env" {
		t.Errorf("FindOwner() = %+v", got)
	}

	owner.StageEnvironments = map[string]string{"QA": "qa-2"}
	if err := st.SaveOwner(ctx, owner); err != nil {
		t.Fatalf("SaveOwner(replace) error = %v", err)
	}
	got, err = st.FindOwner(ctx, "contract-dash")
	if err != nil {
		t.Fatalf("FindOwner() error = %v", err)
	}
	if got.EnvironmentFor("QA") != "qa-2" || got.EnvironmentFor("PROD") != "" {
		t.Errorf("replaced owner = %+v", got)
	}
}

func runCollectorItemContract(ctx context.Context, t *testing.T, st storage.Store) {
	if _, err := st.FindCollectorItem(ctx, "contract-missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("FindCollectorItem(missing) error = %v, want ErrNotFound", err)
	}

	item := &domain.CollectorItem{
		ID:      "contract-item",
		Options: map[string]any{domain.OwnerOptionKey: "contract-dash"},
	}
	if err := st.SaveCollectorItem(ctx, item); err != nil {
		t.Fatalf("SaveCollectorItem() error = %v", err)
	}

	got, err := st.FindCollectorItem(ctx, "contract-item")
	if err != nil {
		t.Fatalf("FindCollectorItem() error = %v", err)
	}
	ownerID, err := got.OwnerID()
	if err != nil {
		t.Fatalf("OwnerID() error = %v", err)
	}
	if ownerID != "contract-dash" {
		t.Errorf("OwnerID() = %q, want contract-dash", ownerID)
	}
}
