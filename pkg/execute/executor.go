package execute

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/sitesync/sitesync/pkg/model"
	"github.com/sitesync/sitesync/pkg/plan"
	"github.com/sitesync/sitesync/pkg/provider"
	"github.com/sitesync/sitesync/pkg/telemetry"
)

// Executor applies restore plans through a provider. Operations within
// one site run strictly in plan order; concurrency happens across
// sites (see Pool). The executor is safe for concurrent use.
type Executor struct {
	provider provider.Provider
	gate     *RateGate
	retry    RetryPolicy
	logger   zerolog.Logger
	metrics  *telemetry.Metrics
	tracer   *telemetry.Tracer
}

// NewExecutor creates an executor. gate and metrics may be nil.
func NewExecutor(p provider.Provider, gate *RateGate, retry RetryPolicy, logger zerolog.Logger, metrics *telemetry.Metrics) *Executor {
	return &Executor{
		provider: p,
		gate:     gate,
		retry:    retry,
		logger:   logger.With().Str("component", "executor").Logger(),
		metrics:  metrics,
	}
}

// WithTracer attaches a tracer; when set, every executed operation
// runs inside its own span.
func (e *Executor) WithTracer(t *telemetry.Tracer) *Executor {
	e.tracer = t
	return e
}

// ExecuteSite runs one site's plan to completion or cancellation. A
// cancelled context lets the in-flight operation finish its current
// attempt, then marks the remainder not started. The report always
// covers every planned operation.
func (e *Executor) ExecuteSite(ctx context.Context, rp *plan.RestorePlan) *SiteReport {
	report := &SiteReport{
		SiteID:    rp.SiteID,
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, 0, len(rp.Operations)),
	}
	logger := e.logger.With().Str("site_id", rp.SiteID).Logger()
	if id := telemetry.TraceID(ctx); id != "" {
		logger = logger.With().Str("trace_id", id).Logger()
	}
	e.metrics.RecordSiteRunStarted()

	// Identities whose write failed or was blocked; their dependents
	// are blocked instead of attempted.
	dead := make(map[model.Ref]struct{})
	stopped := false

	for _, op := range rp.Operations {
		outcome := Outcome{Kind: op.Kind, EntityType: op.EntityType, Key: op.Key}

		switch {
		case op.Kind == plan.KindSkip:
			outcome.Status = StatusSkipped
			outcome.Reason = op.Reason

		case stopped || ctx.Err() != nil:
			stopped = true
			outcome.Status = StatusNotStarted
			outcome.Reason = "run stopped before operation"

		case e.isBlocked(op, dead):
			outcome.Status = StatusBlocked
			outcome.Reason = "dependency failed earlier in the run"
			dead[model.Ref{Type: op.EntityType, Key: op.Key}] = struct{}{}

		default:
			start := time.Now()
			opCtx := ctx
			var span trace.Span
			if e.tracer != nil {
				opCtx, span = e.tracer.StartOperationSpan(ctx, rp.SiteID, string(op.Kind), string(op.EntityType), op.Key)
			}
			attempts, err := e.apply(opCtx, rp.SiteID, op, &report.Retries)
			outcome.Attempts = attempts
			switch {
			case err == nil:
				outcome.Status = StatusSucceeded
				e.metrics.RecordOperation(string(op.Kind), "succeeded", string(op.EntityType), time.Since(start))
				logger.Debug().
					Str("kind", string(op.Kind)).
					Str("entity_type", string(op.EntityType)).
					Str("key", op.Key).
					Msg("Operation applied")

			case ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)):
				// Cancellation cut the waiting around the write (rate
				// gate, retry backoff), never the write itself. Nothing
				// was applied, so the operation never started.
				stopped = true
				outcome.Status = StatusNotStarted
				outcome.Reason = "run stopped before operation"
				logger.Warn().
					Str("kind", string(op.Kind)).
					Str("entity_type", string(op.EntityType)).
					Str("key", op.Key).
					Msg("Run cancelled while waiting to apply")

			default:
				outcome.Status = StatusFailed
				outcome.Reason = err.Error()
				dead[model.Ref{Type: op.EntityType, Key: op.Key}] = struct{}{}
				e.metrics.RecordOperation(string(op.Kind), "failed", string(op.EntityType), time.Since(start))
				logger.Error().Err(err).
					Str("kind", string(op.Kind)).
					Str("entity_type", string(op.EntityType)).
					Str("key", op.Key).
					Int("attempts", attempts).
					Msg("Operation failed")
			}
			if span != nil {
				if err != nil {
					span.SetAttributes(telemetry.AttrErrorClass.String(string(provider.ClassOf(err))))
					telemetry.RecordError(span, err)
				} else {
					telemetry.RecordSuccess(span)
				}
				span.End()
			}
		}

		report.Outcomes = append(report.Outcomes, outcome)
	}

	report.CompletedAt = time.Now()
	report.resolveStatus()
	e.metrics.RecordSiteRunCompleted(string(report.Status), report.CompletedAt.Sub(report.StartedAt))

	logger.Info().
		Str("status", string(report.Status)).
		Int("operations", len(report.Outcomes)).
		Int("retries", report.Retries).
		Msg("Site run finished")
	return report
}

// isBlocked reports whether any entity the operation references is in
// the dead set. Deletes never block; removing a dependent of a failed
// write is still safe.
func (e *Executor) isBlocked(op plan.Operation, dead map[model.Ref]struct{}) bool {
	if op.Kind == plan.KindDelete {
		return false
	}
	for _, ref := range model.References(op.Entity) {
		if _, ok := dead[ref]; ok {
			return true
		}
	}
	return false
}

// apply executes one operation with rate pacing and retry. The retry
// counter on the report is advanced through retries.
func (e *Executor) apply(ctx context.Context, siteID string, op plan.Operation, retries *int) (int, error) {
	call := func(ctx context.Context) error {
		if err := e.gate.Wait(ctx); err != nil {
			return provider.NewTransient("rate budget wait aborted", err).WithSite(siteID)
		}
		// A write that has started must finish. Cancellation only cuts
		// the waiting around it, so the provider call itself runs on a
		// context that cannot be cancelled.
		writeCtx := context.WithoutCancel(ctx)
		start := time.Now()
		var err error
		switch op.Kind {
		case plan.KindCreate:
			_, err = e.provider.Create(writeCtx, siteID, op.Entity)
		case plan.KindUpdate:
			_, err = e.provider.Update(writeCtx, siteID, op.Entity)
		case plan.KindDelete:
			err = e.provider.Delete(writeCtx, siteID, op.EntityType, op.Key)
			if provider.IsNotFound(err) {
				// Already gone; the desired state holds.
				err = nil
			}
		}
		e.metrics.RecordProviderCall(string(op.Kind), time.Since(start))
		if err != nil {
			e.metrics.RecordProviderError(string(op.Kind), string(provider.ClassOf(err)))
		}
		return err
	}

	return e.retry.Do(ctx, call, func(attempt int, err error) {
		*retries++
		e.metrics.RecordRetry(string(provider.ClassOf(err)))
		e.logger.Warn().Err(err).
			Str("site_id", siteID).
			Str("key", op.Key).
			Int("attempt", attempt).
			Msg("Retrying operation")
	})
}
