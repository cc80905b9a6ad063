package pipeline

import "github.com/stagetrack/stagetrack/internal/core/domain"

// ResolveEnvironmentName maps a stage to the environment name its commits are
// recorded under. Commit and build stages name themselves; every other stage
// is looked up in the owner's mapping and is absent when unset or empty.
func ResolveEnvironmentName(stage domain.Stage, owner *domain.Owner) (string, bool) {
	switch stage.Type.Resolution() {
	case domain.SelfResolving:
		return stage.Name, true
	case domain.MappedByOwner:
		name := owner.EnvironmentFor(stage.Name)
		return name, name != ""
	default:
		return "", false
	}
}

// CommitsAt returns the commits recorded for the stage's environment. A stage
// without an environment contributes an empty set.
func CommitsAt(owner *domain.Owner, ledger *domain.Ledger, stage domain.Stage) domain.CommitSet {
	env, ok := ResolveEnvironmentName(stage, owner)
	if !ok {
		return domain.CommitSet{}
	}
	return ledger.Commits(env)
}
