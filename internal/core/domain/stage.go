// Package domain holds the pipeline propagation model: stages, ledgers,
// owners and the reports built from them.
package domain

import (
	"fmt"
	"strings"
)

// StageType categorizes a pipeline stage.
type StageType string

const (
	StageTypeCommit StageType = "COMMIT"
	StageTypeBuild  StageType = "BUILD"
	StageTypeDeploy StageType = "DEPLOY"
)

// Known reports whether t is one of the built-in stage types.
func (t StageType) Known() bool {
	switch t {
	case StageTypeCommit, StageTypeBuild, StageTypeDeploy:
		return true
	default:
		return false
	}
}

// ParseStageType normalizes a configured stage type. Unknown values are kept
// as-is; they resolve through the owner mapping like deploy stages but are
// never reported as unmapped.
func ParseStageType(s string) StageType {
	return StageType(strings.ToUpper(strings.TrimSpace(s)))
}

// Resolution describes how a stage is turned into an environment name.
type Resolution int

const (
	// SelfResolving stages use their own name as the environment name.
	SelfResolving Resolution = iota
	// MappedByOwner stages are looked up in the owner's stage mapping.
	MappedByOwner
)

func (r Resolution) String() string {
	switch r {
	case SelfResolving:
		return "self"
	case MappedByOwner:
		return "owner"
	default:
		return fmt.Sprintf("resolution(%d)", int(r))
	}
}

// Resolution returns the environment resolution strategy for the stage type.
func (t StageType) Resolution() Resolution {
	switch t {
	case StageTypeCommit, StageTypeBuild:
		return SelfResolving
	default:
		return MappedByOwner
	}
}

// Stage is a named, typed step in a delivery pipeline.
type Stage struct {
	Name string    `json:"name"`
	Type StageType `json:"type"`
}

// Equal reports whether two stages share both name and type.
func (s Stage) Equal(other Stage) bool {
	return s.Name == other.Name && s.Type == other.Type
}

func (s Stage) String() string {
	return s.Name + "(" + string(s.Type) + ")"
}

// StageRegistry is the fixed, ordered list of stages. The ordinal of a stage
// is its index; the last stage is the terminal ("production") stage.
type StageRegistry struct {
	stages []Stage
	index  map[string]int
}

// NewStageRegistry validates and freezes an ordered stage list.
func NewStageRegistry(stages []Stage) (*StageRegistry, error) {
	if len(stages) == 0 {
		return nil, fmt.Errorf("stage registry requires at least one stage")
	}

	r := &StageRegistry{
		stages: make([]Stage, len(stages)),
		index:  make(map[string]int, len(stages)),
	}
	for i, s := range stages {
		if s.Name == "" {
			return nil, fmt.Errorf("stage %d has no name", i)
		}
		if s.Type == "" {
			return nil, fmt.Errorf("stage %q has no type", s.Name)
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stage name %q", s.Name)
		}
		r.stages[i] = s
		r.index[s.Name] = i
	}
	return r, nil
}

// Stages returns a copy of the ordered stages.
func (r *StageRegistry) Stages() []Stage {
	out := make([]Stage, len(r.stages))
	copy(out, r.stages)
	return out
}

// Ordinal returns the position of stage in the registry, or -1 when the
// stage is not registered.
func (r *StageRegistry) Ordinal(stage Stage) int {
	i, ok := r.index[stage.Name]
	if !ok || !r.stages[i].Equal(stage) {
		return -1
	}
	return i
}

// Terminal returns the last stage.
func (r *StageRegistry) Terminal() Stage {
	return r.stages[len(r.stages)-1]
}

// IsTerminal reports whether stage is the terminal stage.
func (r *StageRegistry) IsTerminal(stage Stage) bool {
	return r.Terminal().Equal(stage)
}

// After returns every stage strictly later than stage. An unregistered stage
// has no later stages.
func (r *StageRegistry) After(stage Stage) []Stage {
	i := r.Ordinal(stage)
	if i < 0 {
		return nil
	}
	return append([]Stage(nil), r.stages[i+1:]...)
}
