// Package seed loads owners, collector items and ledger commits from a YAML
// fixture into a store.
//
// A fixture looks like:
//
//	owners:
//	  - id: dash-1
//	    title: Payments
//	    stage_environments:
//	      QA: qa-env
//	      PROD: prod-env
//	collector_items:
//	  - id: pipe-1
//	    options:
//	      dashboardId: dash-1
//	commits:
//	  - pipeline: pipe-1
//	    environment: COMMIT
//	    revision: abc123
//	    timestamp: 2024-05-01T10:00:00Z   # or epoch millis
//
// Applying a fixture is idempotent: owners and items are replaced, commits
// are only added when absent.
package seed

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
)

type Fixture struct {
	Owners         []domain.Owner         `yaml:"owners"`
	CollectorItems []domain.CollectorItem `yaml:"collector_items"`
	Commits        []Commit               `yaml:"commits"`
}

type Commit struct {
	Pipeline    string    `yaml:"pipeline"`
	Environment string    `yaml:"environment"`
	Revision    string    `yaml:"revision"`
	Timestamp   Timestamp `yaml:"timestamp"`
}

// Timestamp accepts RFC 3339 strings or epoch milliseconds.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", node.Line)
	}
	if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		t.Time = time.UnixMilli(ms).UTC()
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, node.Value)
	if err != nil {
		return fmt.Errorf("line %d: timestamp %q is neither RFC 3339 nor epoch millis", node.Line, node.Value)
	}
	t.Time = parsed.UTC()
	return nil
}

// Load reads and validates the fixture at path.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a fixture.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks that every record carries its identifiers.
func (f *Fixture) Validate() error {
	for i, o := range f.Owners {
		if o.ID == "" {
			return fmt.Errorf("owners[%d]: id is required", i)
		}
	}
	for i, item := range f.CollectorItems {
		if item.ID == "" {
			return fmt.Errorf("collector_items[%d]: id is required", i)
		}
	}
	for i, c := range f.Commits {
		switch {
		case c.Pipeline == "":
			return fmt.Errorf("commits[%d]: pipeline is required", i)
		case c.Environment == "":
			return fmt.Errorf("commits[%d]: environment is required", i)
		case c.Revision == "":
			return fmt.Errorf("commits[%d]: revision is required", i)
		case c.Timestamp.IsZero():
			return fmt.Errorf("commits[%d]: timestamp is required", i)
		}
	}
	return nil
}

// Result counts what Apply wrote.
type Result struct {
	Owners         int
	CollectorItems int
	Commits        int // newly recorded; already-present revisions are skipped
}

// Apply writes the fixture into store.
func Apply(ctx context.Context, store storage.Store, f *Fixture) (Result, error) {
	var res Result

	for i := range f.Owners {
		if err := store.SaveOwner(ctx, &f.Owners[i]); err != nil {
			return res, fmt.Errorf("save owner %s: %w", f.Owners[i].ID, err)
		}
		res.Owners++
	}

	for i := range f.CollectorItems {
		if err := store.SaveCollectorItem(ctx, &f.CollectorItems[i]); err != nil {
			return res, fmt.Errorf("save collector item %s: %w", f.CollectorItems[i].ID, err)
		}
		res.CollectorItems++
	}

	for _, c := range f.Commits {
		inserted, err := store.RecordCommit(ctx, c.Pipeline, c.Environment, domain.CommitEntry{
			RevisionID: c.Revision,
			Timestamp:  c.Timestamp.Truncate(time.Millisecond),
		})
		if err != nil {
			return res, fmt.Errorf("record commit %s in %s/%s: %w", c.Revision, c.Pipeline, c.Environment, err)
		}
		if inserted {
			res.Commits++
		}
	}

	return res, nil
}
