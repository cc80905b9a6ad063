package pipeline

import (
	"sort"

	"github.com/stagetrack/stagetrack/internal/core/domain"
)

// Engine computes which commits are stuck at each stage of a registry.
type Engine struct {
	registry *domain.StageRegistry
}

// NewEngine creates an Engine over a fixed stage registry.
func NewEngine(registry *domain.StageRegistry) *Engine {
	return &Engine{registry: registry}
}

// Registry returns the stage registry the engine evaluates against.
func (e *Engine) Registry() *domain.StageRegistry {
	return e.registry
}

// NotPropagated returns the commits present at stage that were not observed
// at any strictly later stage, each reconciled with its per-stage first-entry
// timestamps. Results are ordered by entry time at stage, then revision id.
func (e *Engine) NotPropagated(owner *domain.Owner, ledger *domain.Ledger, stage domain.Stage) []domain.ReconciledCommit {
	start := CommitsAt(owner, ledger, stage)

	later := make(map[string]struct{})
	for _, s := range e.registry.After(stage) {
		for rev := range CommitsAt(owner, ledger, s) {
			later[rev] = struct{}{}
		}
	}

	stuck := make([]domain.CommitEntry, 0, len(start))
	for rev, entry := range start {
		if _, advanced := later[rev]; advanced {
			continue
		}
		stuck = append(stuck, entry)
	}
	sort.Slice(stuck, func(i, j int) bool {
		if !stuck[i].Timestamp.Equal(stuck[j].Timestamp) {
			return stuck[i].Timestamp.Before(stuck[j].Timestamp)
		}
		return stuck[i].RevisionID < stuck[j].RevisionID
	})

	out := make([]domain.ReconciledCommit, 0, len(stuck))
	for _, entry := range stuck {
		out = append(out, e.Reconcile(domain.NewReconciledCommit(entry), owner, ledger))
	}
	return out
}

// Reconcile walks every stage in order and records the first timestamp at
// which the commit entered each stage it reached. Timestamps already present
// on commit are kept; the input is not modified.
func (e *Engine) Reconcile(commit domain.ReconciledCommit, owner *domain.Owner, ledger *domain.Ledger) domain.ReconciledCommit {
	out := commit.Clone()
	for _, stage := range e.registry.Stages() {
		entry, ok := CommitsAt(owner, ledger, stage)[out.RevisionID]
		if !ok {
			continue
		}
		out.Record(stage.Name, entry.Timestamp)
	}
	return out
}

// UnmappedStages lists, in registry order, the deploy stages the owner has
// no environment for.
func (e *Engine) UnmappedStages(owner *domain.Owner) []string {
	unmapped := []string{}
	for _, stage := range e.registry.Stages() {
		if stage.Type != domain.StageTypeDeploy {
			continue
		}
		if _, ok := ResolveEnvironmentName(stage, owner); !ok {
			unmapped = append(unmapped, stage.Name)
		}
	}
	return unmapped
}
