package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/google/uuid"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
)

// Store is an in-memory implementation of storage.Store
type Store struct {
	mu      sync.RWMutex
	ledgers map[string]*domain.Ledger
	owners  map[string]*domain.Owner
	items   map[string]*domain.CollectorItem
}

var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		ledgers: make(map[string]*domain.Ledger),
		owners:  make(map[string]*domain.Owner),
		items:   make(map[string]*domain.CollectorItem),
	}
}

func (s *Store) FindLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger, exists := s.ledgers[pipelineID]
	if !exists {
		return nil, fmt.Errorf("ledger for pipeline %s: %w", pipelineID, storage.ErrNotFound)
	}
	return ledger.Clone(), nil
}

func (s *Store) CreateLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ledgers[pipelineID]; exists {
		return nil, fmt.Errorf("ledger for pipeline %s: %w", pipelineID, storage.ErrAlreadyExists)
	}

	ledger := domain.NewLedger(uuid.NewString(), pipelineID)
	s.ledgers[pipelineID] = ledger
	return ledger.Clone(), nil
}

func (s *Store) RecordCommit(ctx context.Context, pipelineID, environment string, entry domain.CommitEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ledger, exists := s.ledgers[pipelineID]
	if !exists {
		ledger = domain.NewLedger(uuid.NewString(), pipelineID)
		s.ledgers[pipelineID] = ledger
	}
	return ledger.Record(environment, entry), nil
}

func (s *Store) FindOwner(ctx context.Context, ownerID string) (*domain.Owner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	owner, exists := s.owners[ownerID]
	if !exists {
		return nil, fmt.Errorf("owner %s: %w", ownerID, storage.ErrNotFound)
	}
	cp := *owner
	cp.StageEnvironments = maps.Clone(owner.StageEnvironments)
	return &cp, nil
}

func (s *Store) SaveOwner(ctx context.Context, owner *domain.Owner) error {
	if owner.ID == "" {
		return fmt.Errorf("owner id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *owner
	cp.StageEnvironments = maps.Clone(owner.StageEnvironments)
	s.owners[owner.ID] = &cp
	return nil
}

func (s *Store) FindCollectorItem(ctx context.Context, id string) (*domain.CollectorItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item, exists := s.items[id]
	if !exists {
		return nil, fmt.Errorf("collector item %s: %w", id, storage.ErrNotFound)
	}
	cp := *item
	cp.Options = maps.Clone(item.Options)
	return &cp, nil
}

func (s *Store) SaveCollectorItem(ctx context.Context, item *domain.CollectorItem) error {
	if item.ID == "" {
		return fmt.Errorf("collector item id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *item
	cp.Options = maps.Clone(item.Options)
	s.items[item.ID] = &cp
	return nil
}

func (s *Store) Close() error {
	return nil
}
