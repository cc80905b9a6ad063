package domain

import "time"

// ReconciledCommit is a surviving commit enriched with the first time it was
// seen at each stage. Stage timestamps are append-only.
type ReconciledCommit struct {
	RevisionID      string               `json:"revision_id"`
	StageTimestamps map[string]time.Time `json:"stage_timestamps"`
}

// NewReconciledCommit starts a reconciled commit for the entry.
func NewReconciledCommit(entry CommitEntry) ReconciledCommit {
	return ReconciledCommit{
		RevisionID:      entry.RevisionID,
		StageTimestamps: make(map[string]time.Time),
	}
}

// Record stores t under stage unless a timestamp is already present.
// It reports whether the value was written.
func (c *ReconciledCommit) Record(stage string, t time.Time) bool {
	if c.StageTimestamps == nil {
		c.StageTimestamps = make(map[string]time.Time)
	}
	if _, exists := c.StageTimestamps[stage]; exists {
		return false
	}
	c.StageTimestamps[stage] = t
	return true
}

// Timestamp returns the recorded timestamp for stage.
func (c ReconciledCommit) Timestamp(stage string) (time.Time, bool) {
	t, ok := c.StageTimestamps[stage]
	return t, ok
}

// Clone returns a copy that does not alias the timestamp map.
func (c ReconciledCommit) Clone() ReconciledCommit {
	out := ReconciledCommit{
		RevisionID:      c.RevisionID,
		StageTimestamps: make(map[string]time.Time, len(c.StageTimestamps)),
	}
	for k, v := range c.StageTimestamps {
		out.StageTimestamps[k] = v
	}
	return out
}

// StageReport is the per-pipeline result: the non-propagated commits for
// every stage plus the deploy stages with no environment configured.
type StageReport struct {
	PipelineID     string                        `json:"pipeline_id"`
	Stages         map[string][]ReconciledCommit `json:"stages"`
	UnmappedStages []string                      `json:"unmapped_stages"`
}

// NewStageReport returns an empty report for pipelineID.
func NewStageReport(pipelineID string) *StageReport {
	return &StageReport{
		PipelineID:     pipelineID,
		Stages:         make(map[string][]ReconciledCommit),
		UnmappedStages: []string{},
	}
}
