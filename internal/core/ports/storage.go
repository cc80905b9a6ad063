package ports

import (
	"context"

	"github.com/stagetrack/stagetrack/internal/core/domain"
)

// LedgerStore persists per-pipeline commit ledgers.
type LedgerStore interface {
	// FindLedger returns the ledger for a pipeline, or storage.ErrNotFound.
	FindLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error)

	// CreateLedger persists an empty ledger. It fails with
	// storage.ErrAlreadyExists when another writer created it first.
	CreateLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error)

	// RecordCommit adds a commit to an environment bucket if the revision is
	// not already there, creating the ledger when needed. It reports whether
	// the entry was written.
	RecordCommit(ctx context.Context, pipelineID, environment string, entry domain.CommitEntry) (bool, error)
}

// OwnerStore persists the dashboards that map stages to environments.
type OwnerStore interface {
	// FindOwner returns the owner, or storage.ErrNotFound.
	FindOwner(ctx context.Context, ownerID string) (*domain.Owner, error)

	// SaveOwner creates or replaces an owner.
	SaveOwner(ctx context.Context, owner *domain.Owner) error
}

// CollectorItemStore persists the records linking pipelines to owners.
type CollectorItemStore interface {
	// FindCollectorItem returns the item, or storage.ErrNotFound.
	FindCollectorItem(ctx context.Context, id string) (*domain.CollectorItem, error)

	// SaveCollectorItem creates or replaces an item.
	SaveCollectorItem(ctx context.Context, item *domain.CollectorItem) error
}

// Store bundles every collaborator the pipeline service reads from.
type Store interface {
	LedgerStore
	OwnerStore
	CollectorItemStore

	// Close releases the underlying connection.
	Close() error
}
