package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stagetrack/stagetrack/internal/core/domain"
	"github.com/stagetrack/stagetrack/internal/storage"
)

const (
	tracerName = "github.com/stagetrack/stagetrack/internal/pipeline"

	// maxCreateAttempts bounds the find/create/re-fetch loop in GetOrCreateLedger.
	maxCreateAttempts = 3
)

// Builder assembles a StageReport for one pipeline identifier.
type Builder struct {
	engine *Engine
	store  storage.Store
	now    func() time.Time
	logger *slog.Logger
	tracer trace.Tracer
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the wall clock used for default date windows.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) {
		b.now = now
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder reading from store.
func NewBuilder(engine *Engine, store storage.Store, opts ...BuilderOption) *Builder {
	b := &Builder{
		engine: engine,
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetOrCreateLedger returns the ledger for pipelineID, persisting an empty
// one on first sight. Two callers may race to create the same ledger; the
// loser sees storage.ErrAlreadyExists and re-reads the winner's ledger.
func (b *Builder) GetOrCreateLedger(ctx context.Context, pipelineID string) (*domain.Ledger, error) {
	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		ledger, err := b.store.FindLedger(ctx, pipelineID)
		if err == nil {
			return ledger, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("find ledger: %w", err)
		}

		ledger, err = b.store.CreateLedger(ctx, pipelineID)
		if err == nil {
			b.logger.Debug("created ledger", slog.String("pipeline_id", pipelineID))
			return ledger, nil
		}
		if !errors.Is(err, storage.ErrAlreadyExists) {
			return nil, fmt.Errorf("create ledger: %w", err)
		}

		b.logger.Debug("ledger created concurrently, re-fetching",
			slog.String("pipeline_id", pipelineID),
			slog.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("ledger for pipeline %s: not readable after %d attempts", pipelineID, maxCreateAttempts)
}

// ResolveOwner follows the ledger's collector item to its owner.
func (b *Builder) ResolveOwner(ctx context.Context, ledger *domain.Ledger) (*domain.CollectorItem, *domain.Owner, error) {
	item, err := b.store.FindCollectorItem(ctx, ledger.PipelineID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, &domain.LinkageError{PipelineID: ledger.PipelineID, Reason: "collector item not found"}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find collector item: %w", err)
	}

	ownerID, err := item.OwnerID()
	if err != nil {
		return nil, nil, err
	}

	owner, err := b.store.FindOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, &domain.OwnerNotFoundError{PipelineID: ledger.PipelineID, OwnerID: ownerID}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("find owner: %w", err)
	}
	return item, owner, nil
}

// BuildResponse computes the stuck commits per stage for pipelineID. Only the
// terminal stage is filtered by the [begin, end] window; nil bounds default
// to the last DefaultWindowDays up to now.
func (b *Builder) BuildResponse(ctx context.Context, pipelineID string, begin, end *time.Time) (*domain.StageReport, error) {
	ctx, span := b.tracer.Start(ctx, "pipeline.build_response",
		trace.WithAttributes(attribute.String("pipeline.id", pipelineID)))
	defer span.End()

	report, err := b.buildResponse(ctx, pipelineID, begin, end)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return report, nil
}

func (b *Builder) buildResponse(ctx context.Context, pipelineID string, begin, end *time.Time) (*domain.StageReport, error) {
	ledger, err := b.GetOrCreateLedger(ctx, pipelineID)
	if err != nil {
		return nil, err
	}

	item, owner, err := b.ResolveOwner(ctx, ledger)
	if err != nil {
		return nil, err
	}

	window := NewWindow(b.now(), begin, end)
	registry := b.engine.Registry()

	report := domain.NewStageReport(item.ID)
	for _, stage := range registry.Stages() {
		commits := b.engine.NotPropagated(owner, ledger, stage)
		if registry.IsTerminal(stage) {
			commits = FilterWindow(commits, stage.Name, window)
		}
		report.Stages[stage.Name] = commits
	}
	report.UnmappedStages = b.engine.UnmappedStages(owner)

	return report, nil
}
