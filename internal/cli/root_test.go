package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stagetrack/stagetrack/internal/server"
)

func executeCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(new(bytes.Buffer))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// writeProject writes a config and seed fixture into a temp dir and returns
// the config path.
func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	fixture := `
owners:
  - id: dash-1
    stage_environments:
      QA: qa-env
collector_items:
  - id: pipe-1
    options:
      dashboardId: dash-1
commits:
  - {pipeline: pipe-1, environment: COMMIT, revision: abc, timestamp: 100}
  - {pipeline: pipe-1, environment: qa-env, revision: abc, timestamp: 200}
`
	seedPath := filepath.Join(dir, "seed.yaml")
	if err := os.WriteFile(seedPath, []byte(fixture), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	config := `
storage:
  type: memory
seed:
  path: ` + seedPath + `
pipeline:
  stages:
    - {name: COMMIT, type: COMMIT}
    - {name: BUILD, type: BUILD}
    - {name: QA, type: DEPLOY}
    - {name: PROD, type: DEPLOY}
`
	configPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return configPath
}

func TestVersionCommand(t *testing.T) {
	SetVersion("test-version")
	out, err := executeCommand("version", "--config", filepath.Join(t.TempDir(), "none.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "test-version") {
		t.Errorf("expected version output to contain 'test-version', got: %s", out)
	}
}

func TestRootHelp(t *testing.T) {
	out, err := executeCommand("--help")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, sub := range []string{"serve", "report", "seed", "stages", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help output missing subcommand %q", sub)
		}
	}
}

func TestStagesCommand(t *testing.T) {
	out, err := executeCommand("stages", "--config", writeProject(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected 4 stages, got: %s", out)
	}
	if !strings.Contains(lines[0], "COMMIT") || !strings.Contains(lines[0], "self") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[3], "PROD") || !strings.Contains(lines[3], "terminal") {
		t.Errorf("line 3 = %q", lines[3])
	}
}

func TestReportCommand(t *testing.T) {
	out, err := executeCommand("report", "pipe-1", "orphan", "--begin", "0", "--end", "1000", "--config", writeProject(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []server.PipelineResponse
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("report output is not JSON: %v\n%s", err, out)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if qa := got[0].Stages["QA"]; len(qa) != 1 || qa[0].RevisionID != "abc" {
		t.Errorf("Stages[QA] = %+v", qa)
	}
	if got[1].Error == nil {
		t.Error("expected an error entry for orphan")
	}
}

func TestReportCommand_RequiresID(t *testing.T) {
	if _, err := executeCommand("report", "--config", writeProject(t)); err == nil {
		t.Error("expected error without collector item ids")
	}
}

func TestSeedCommand(t *testing.T) {
	configPath := writeProject(t)
	seedPath := filepath.Join(filepath.Dir(configPath), "seed.yaml")

	out, err := executeCommand("seed", seedPath, "--config", configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "new commits: 2") {
		t.Errorf("unexpected seed output: %s", out)
	}
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  type: cassandra\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := executeCommand("stages", "--config", path); err == nil {
		t.Error("expected invalid config to fail")
	}
}
