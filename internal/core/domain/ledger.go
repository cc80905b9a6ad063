package domain

import (
	"fmt"
	"time"
)

// CommitEntry records the first time a revision was observed in an environment.
type CommitEntry struct {
	RevisionID string    `json:"revision_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// CommitSet maps revision id to the entry recorded for it.
type CommitSet map[string]CommitEntry

// Has reports whether the revision is present.
func (c CommitSet) Has(revision string) bool {
	_, ok := c[revision]
	return ok
}

// Ledger is the per-pipeline record of which commits entered which
// environments and when.
type Ledger struct {
	ID           string               `json:"id"`
	PipelineID   string               `json:"pipeline_id"`
	Environments map[string]CommitSet `json:"environments"`
	CreatedAt    time.Time            `json:"created_at"`
}

// NewLedger returns an empty ledger for pipelineID.
func NewLedger(id, pipelineID string) *Ledger {
	return &Ledger{
		ID:           id,
		PipelineID:   pipelineID,
		Environments: make(map[string]CommitSet),
		CreatedAt:    time.Now().UTC(),
	}
}

// Commits returns the bucket for environment, or an empty set when nothing
// has been recorded for it. The ledger is never modified.
func (l *Ledger) Commits(environment string) CommitSet {
	if l == nil {
		return CommitSet{}
	}
	if set, ok := l.Environments[environment]; ok {
		return set
	}
	return CommitSet{}
}

// Record adds entry to the environment bucket unless the revision is already
// present. Existing entries are never overwritten.
func (l *Ledger) Record(environment string, entry CommitEntry) bool {
	if l.Environments == nil {
		l.Environments = make(map[string]CommitSet)
	}
	set, ok := l.Environments[environment]
	if !ok {
		set = make(CommitSet)
		l.Environments[environment] = set
	}
	if set.Has(entry.RevisionID) {
		return false
	}
	set[entry.RevisionID] = entry
	return true
}

// Clone returns a deep copy of the ledger.
func (l *Ledger) Clone() *Ledger {
	out := &Ledger{
		ID:           l.ID,
		PipelineID:   l.PipelineID,
		CreatedAt:    l.CreatedAt,
		Environments: make(map[string]CommitSet, len(l.Environments)),
	}
	for env, set := range l.Environments {
		cp := make(CommitSet, len(set))
		for rev, e := range set {
			cp[rev] = e
		}
		out.Environments[env] = cp
	}
	return out
}

// Owner is the dashboard that maps deploy stages to concrete environment
// names for one pipeline.
type Owner struct {
	ID                string            `json:"id" yaml:"id"`
	Title             string            `json:"title,omitempty" yaml:"title"`
	StageEnvironments map[string]string `json:"stage_environments" yaml:"stage_environments"`
}

// EnvironmentFor returns the environment configured for the stage name.
func (o *Owner) EnvironmentFor(stageName string) string {
	if o == nil {
		return ""
	}
	return o.StageEnvironments[stageName]
}

// OwnerOptionKey is the collector item option holding the owner id.
const OwnerOptionKey = "dashboardId"

// CollectorItem links an external pipeline identifier to its owner.
type CollectorItem struct {
	ID      string         `json:"id" yaml:"id"`
	Options map[string]any `json:"options" yaml:"options"`
}

// OwnerID extracts the owner id from the item's options.
func (c *CollectorItem) OwnerID() (string, error) {
	raw, ok := c.Options[OwnerOptionKey]
	if !ok {
		return "", &LinkageError{PipelineID: c.ID, Reason: fmt.Sprintf("option %q is missing", OwnerOptionKey)}
	}
	id, ok := raw.(string)
	if !ok {
		return "", &LinkageError{PipelineID: c.ID, Reason: fmt.Sprintf("option %q is %T, want string", OwnerOptionKey, raw)}
	}
	if id == "" {
		return "", &LinkageError{PipelineID: c.ID, Reason: fmt.Sprintf("option %q is empty", OwnerOptionKey)}
	}
	return id, nil
}
