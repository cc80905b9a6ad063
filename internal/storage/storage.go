package storage

import (
	"errors"

	"github.com/stagetrack/stagetrack/internal/core/ports"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// Re-export storage interfaces from core/ports so adapters only import this package.
type (
	LedgerStore        = ports.LedgerStore
	OwnerStore         = ports.OwnerStore
	CollectorItemStore = ports.CollectorItemStore
	Store              = ports.Store
)
