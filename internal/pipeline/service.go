package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
)

// DefaultMaxParallel bounds how many pipelines a search evaluates at once.
const DefaultMaxParallel = 4

// SearchRequest asks for reports on several pipelines over one window.
type SearchRequest struct {
	PipelineIDs []string
	Begin       *time.Time
	End         *time.Time
}

// PipelineResult is the outcome for one requested pipeline. Exactly one of
// Report and Err is set.
type PipelineResult struct {
	PipelineID string
	Report     *domain.StageReport
	Err        error
}

// Service is the entry point used by the HTTP API and the CLI.
type Service struct {
	builder     *Builder
	store       storage.Store
	maxParallel int
	logger      *slog.Logger
}

// NewService wires a Service over a registry and store.
func NewService(registry *domain.StageRegistry, store storage.Store, maxParallel int, logger *slog.Logger, opts ...BuilderOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	opts = append([]BuilderOption{WithLogger(logger)}, opts...)
	return &Service{
		builder:     NewBuilder(NewEngine(registry), store, opts...),
		store:       store,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

// Registry returns the stage registry in use.
func (s *Service) Registry() *domain.StageRegistry {
	return s.builder.engine.Registry()
}

// Search builds a report for every requested pipeline. Pipelines are
// independent and evaluated concurrently; results keep request order.
// Linkage and missing-owner failures are returned per pipeline, any other
// error aborts the whole search.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]PipelineResult, error) {
	results := make([]PipelineResult, len(req.PipelineIDs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, id := range req.PipelineIDs {
		g.Go(func() error {
			report, err := s.builder.BuildResponse(gctx, id, req.Begin, req.End)
			if err != nil {
				if domain.IsPerPipeline(err) {
					s.logger.Warn("pipeline report unavailable",
						slog.String("pipeline_id", id),
						slog.String("error", err.Error()))
					results[i] = PipelineResult{PipelineID: id, Err: err}
					return nil
				}
				return fmt.Errorf("pipeline %s: %w", id, err)
			}
			results[i] = PipelineResult{PipelineID: id, Report: report}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// RecordCommit appends a commit to a pipeline's environment bucket. An
// existing entry for the same revision is left untouched; the return value
// reports whether a new entry was written.
func (s *Service) RecordCommit(ctx context.Context, pipelineID, environment, revision string, at time.Time) (bool, error) {
	if pipelineID == "" || environment == "" || revision == "" {
		return false, domain.ErrInvalidRequest("pipeline, environment and revision are required")
	}
	inserted, err := s.store.RecordCommit(ctx, pipelineID, environment, domain.CommitEntry{
		RevisionID: revision,
		Timestamp:  at.UTC().Truncate(time.Millisecond),
	})
	if err != nil {
		return false, fmt.Errorf("record commit: %w", err)
	}
	if inserted {
		s.logger.Debug("recorded commit",
			slog.String("pipeline_id", pipelineID),
			slog.String("environment", environment),
			slog.String("revision", revision))
	}
	return inserted, nil
}
