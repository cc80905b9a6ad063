package pipeline

import (
	"testing"
	"time"

	"github.com/stagetrack/stagetrack/internal/core/domain"
)

var (
	stageCommit = domain.Stage{Name: "COMMIT", Type: domain.StageTypeCommit}
	stageBuild  = domain.Stage{Name: "BUILD", Type: domain.StageTypeBuild}
	stageQA     = domain.Stage{Name: "QA", Type: domain.StageTypeDeploy}
	stageProd   = domain.Stage{Name: "PROD", Type: domain.StageTypeDeploy}
)

func ms(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func mustRegistry(t *testing.T, stages ...domain.Stage) *domain.StageRegistry {
	t.Helper()
	r, err := domain.NewStageRegistry(stages)
	if err != nil {
		t.Fatalf("NewStageRegistry() error = %v", err)
	}
	return r
}

// scenarioLedger has abc committed at 100 and deployed to qa-env at 200.
func scenarioLedger() *domain.Ledger {
	l := domain.NewLedger("ledger-1", "pipe-1")
	l.Record("COMMIT", domain.CommitEntry{RevisionID: "abc", Timestamp: ms(100)})
	l.Record("qa-env", domain.CommitEntry{RevisionID: "abc", Timestamp: ms(200)})
	return l
}

func scenarioOwner() *domain.Owner {
	return &domain.Owner{ID: "dash-1", StageEnvironments: map[string]string{"QA": "qa-env"}}
}

func revisions(commits []domain.ReconciledCommit) []string {
	out := make([]string, len(commits))
	for i, c := range commits {
		out[i] = c.RevisionID
	}
	return out
}

func TestResolveEnvironmentName(t *testing.T) {
	owner := &domain.Owner{StageEnvironments: map[string]string{
		"COMMIT": "ignored",
		"QA":     "qa-env",
		"PROD":   "",
	}}

	tests := []struct {
		name   string
		stage  domain.Stage
		owner  *domain.Owner
		want   string
		wantOK bool
	}{
		{name: "commit names itself", stage: stageCommit, owner: owner, want: "COMMIT", wantOK: true},
		{name: "build names itself without owner", stage: stageBuild, owner: nil, want: "BUILD", wantOK: true},
		{name: "deploy mapped", stage: stageQA, owner: owner, want: "qa-env", wantOK: true},
		{name: "deploy mapped to empty", stage: stageProd, owner: owner, want: "", wantOK: false},
		{name: "deploy unmapped", stage: domain.Stage{Name: "PERF", Type: domain.StageTypeDeploy}, owner: owner, wantOK: false},
		{name: "deploy without owner", stage: stageQA, owner: nil, wantOK: false},
		{name: "other type uses owner", stage: domain.Stage{Name: "QA", Type: "GATE"}, owner: owner, want: "qa-env", wantOK: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveEnvironmentName(tt.stage, tt.owner)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ResolveEnvironmentName() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestCommitsAt(t *testing.T) {
	ledger := scenarioLedger()
	owner := scenarioOwner()

	if got := CommitsAt(owner, ledger, stageQA); !got.Has("abc") {
		t.Errorf("CommitsAt(QA) = %v, want abc", got)
	}
	if got := CommitsAt(owner, ledger, stageProd); len(got) != 0 {
		t.Errorf("CommitsAt(PROD) = %v, want empty", got)
	}
	if got := CommitsAt(owner, ledger, stageBuild); len(got) != 0 {
		t.Errorf("CommitsAt(BUILD) = %v, want empty", got)
	}
	if len(ledger.Environments) != 2 {
		t.Errorf("CommitsAt() created buckets: %v", ledger.Environments)
	}
}

func TestEngine_Scenario(t *testing.T) {
	e := NewEngine(mustRegistry(t, stageCommit, stageBuild, stageQA, stageProd))
	ledger := scenarioLedger()
	owner := scenarioOwner()

	if got := e.NotPropagated(owner, ledger, stageCommit); len(got) != 0 {
		t.Errorf("NotPropagated(COMMIT) = %v, want empty", revisions(got))
	}
	if got := e.NotPropagated(owner, ledger, stageBuild); len(got) != 0 {
		t.Errorf("NotPropagated(BUILD) = %v, want empty", revisions(got))
	}

	qa := e.NotPropagated(owner, ledger, stageQA)
	if len(qa) != 1 || qa[0].RevisionID != "abc" {
		t.Fatalf("NotPropagated(QA) = %v, want [abc]", revisions(qa))
	}
	want := map[string]time.Time{"COMMIT": ms(100), "QA": ms(200)}
	if len(qa[0].StageTimestamps) != len(want) {
		t.Errorf("StageTimestamps = %v, want %v", qa[0].StageTimestamps, want)
	}
	for stage, ts := range want {
		if got, ok := qa[0].Timestamp(stage); !ok || !got.Equal(ts) {
			t.Errorf("StageTimestamps[%s] = %v, want %v", stage, got, ts)
		}
	}

	if got := e.UnmappedStages(owner); len(got) != 1 || got[0] != "PROD" {
		t.Errorf("UnmappedStages() = %v, want [PROD]", got)
	}
}

func TestEngine_NotPropagatedSkippedStages(t *testing.T) {
	e := NewEngine(mustRegistry(t, stageCommit, stageBuild, stageQA, stageProd))
	owner := &domain.Owner{StageEnvironments: map[string]string{"QA": "qa-env", "PROD": "prod-env"}}

	ledger := domain.NewLedger("l", "p")
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "a", Timestamp: ms(1)})
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "b", Timestamp: ms(2)})
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "c", Timestamp: ms(3)})
	ledger.Record("BUILD", domain.CommitEntry{RevisionID: "b", Timestamp: ms(5)})
	// a skips BUILD and QA on its way to PROD.
	ledger.Record("prod-env", domain.CommitEntry{RevisionID: "a", Timestamp: ms(10)})

	if got := revisions(e.NotPropagated(owner, ledger, stageCommit)); len(got) != 1 || got[0] != "c" {
		t.Errorf("NotPropagated(COMMIT) = %v, want [c]", got)
	}
	if got := revisions(e.NotPropagated(owner, ledger, stageBuild)); len(got) != 1 || got[0] != "b" {
		t.Errorf("NotPropagated(BUILD) = %v, want [b]", got)
	}
	if got := revisions(e.NotPropagated(owner, ledger, stageProd)); len(got) != 1 || got[0] != "a" {
		t.Errorf("NotPropagated(PROD) = %v, want [a]", got)
	}
}

func TestEngine_NotPropagatedNeverReportsLaterCommits(t *testing.T) {
	registry := mustRegistry(t, stageCommit, stageBuild, stageQA, stageProd)
	e := NewEngine(registry)
	owner := &domain.Owner{StageEnvironments: map[string]string{"QA": "qa-env", "PROD": "prod-env"}}

	envs := []string{"COMMIT", "BUILD", "qa-env", "prod-env"}
	ledger := domain.NewLedger("l", "p")
	// Revision r<mask> is present in the environments selected by the bits of mask.
	for mask := 1; mask < 1<<len(envs); mask++ {
		rev := "r" + string(rune('a'+mask))
		for i, env := range envs {
			if mask&(1<<i) != 0 {
				ledger.Record(env, domain.CommitEntry{RevisionID: rev, Timestamp: ms(int64(mask*10 + i))})
			}
		}
	}

	stages := registry.Stages()
	for i, stage := range stages {
		for _, c := range e.NotPropagated(owner, ledger, stage) {
			for _, later := range stages[i+1:] {
				if CommitsAt(owner, ledger, later).Has(c.RevisionID) {
					t.Errorf("NotPropagated(%s) reported %s, which reached %s", stage.Name, c.RevisionID, later.Name)
				}
			}
		}
	}
}

func TestEngine_NotPropagatedOrder(t *testing.T) {
	e := NewEngine(mustRegistry(t, stageCommit, stageBuild))
	ledger := domain.NewLedger("l", "p")
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "z", Timestamp: ms(1)})
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "b", Timestamp: ms(3)})
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "a", Timestamp: ms(3)})

	got := revisions(e.NotPropagated(nil, ledger, stageCommit))
	want := []string{"z", "a", "b"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("NotPropagated() order = %v, want %v", got, want)
		}
	}
}

func TestEngine_ReconcileFirstHitWins(t *testing.T) {
	// QA and QA2 both map to qa-env, so abc is found at two stages.
	qa2 := domain.Stage{Name: "QA2", Type: domain.StageTypeDeploy}
	e := NewEngine(mustRegistry(t, stageCommit, stageQA, qa2))
	owner := &domain.Owner{StageEnvironments: map[string]string{"QA": "qa-env", "QA2": "qa-env"}}

	ledger := domain.NewLedger("l", "p")
	ledger.Record("COMMIT", domain.CommitEntry{RevisionID: "abc", Timestamp: ms(100)})
	ledger.Record("qa-env", domain.CommitEntry{RevisionID: "abc", Timestamp: ms(200)})

	seed := domain.ReconciledCommit{
		RevisionID:      "abc",
		StageTimestamps: map[string]time.Time{"COMMIT": ms(50)},
	}
	got := e.Reconcile(seed, owner, ledger)

	if ts, _ := got.Timestamp("COMMIT"); !ts.Equal(ms(50)) {
		t.Errorf("COMMIT = %v, want existing 50", ts)
	}
	if ts, _ := got.Timestamp("QA"); !ts.Equal(ms(200)) {
		t.Errorf("QA = %v, want 200", ts)
	}
	if ts, _ := got.Timestamp("QA2"); !ts.Equal(ms(200)) {
		t.Errorf("QA2 = %v, want 200", ts)
	}
	if len(seed.StageTimestamps) != 1 {
		t.Errorf("Reconcile() mutated its input: %v", seed.StageTimestamps)
	}
}

func TestEngine_UnmappedStages(t *testing.T) {
	perf := domain.Stage{Name: "PERF", Type: domain.StageTypeDeploy}
	gate := domain.Stage{Name: "GATE", Type: "APPROVAL"}
	e := NewEngine(mustRegistry(t, stageCommit, stageBuild, stageQA, gate, perf, stageProd))

	tests := []struct {
		name  string
		owner *domain.Owner
		want  []string
	}{
		{name: "no owner mapping", owner: &domain.Owner{}, want: []string{"QA", "PERF", "PROD"}},
		{name: "empty string counts as unmapped", owner: &domain.Owner{StageEnvironments: map[string]string{"QA": "qa", "PERF": "", "PROD": "prod"}}, want: []string{"PERF"}},
		{name: "all mapped", owner: &domain.Owner{StageEnvironments: map[string]string{"QA": "qa", "PERF": "perf", "PROD": "prod"}}, want: []string{}},
		{name: "commit and build mapped to empty are ignored", owner: &domain.Owner{StageEnvironments: map[string]string{"COMMIT": "", "BUILD": "", "QA": "qa", "PERF": "perf", "PROD": "prod"}}, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.UnmappedStages(tt.owner)
			if len(got) != len(tt.want) {
				t.Fatalf("UnmappedStages() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("UnmappedStages()[%d] = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}
