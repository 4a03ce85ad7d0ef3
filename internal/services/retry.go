// Package services – retry coordination.
//
// RetryFailed re-dispatches only the failed result rows of a federated
// submission, reusing the orchestrator's fan-out primitive. Each call is a
// single bounded attempt; scheduling repeated retries (and any backoff) is
// the caller's concern, typically an external cron sweep.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/repo"
)

// RetryFailed re-dispatches the failed directories of a submission. With no
// failed rows it returns an empty outcome list and leaves the overall status
// untouched. Shares the per-id advisory lock with Dispatch: the two must not
// run concurrently for one submission.
func (s *OrchestratorService) RetryFailed(ctx context.Context, id string) ([]DispatchOutcome, error) {
	tr := otel.Tracer("services/OrchestratorService")
	ctx, span := tr.Start(ctx, "RetryFailed",
		trace.WithAttributes(attribute.String("submission.id", id)),
	)
	defer span.End()

	if _, loaded := s.inflight.LoadOrStore(id, struct{}{}); loaded {
		return nil, ErrDispatchInFlight
	}
	defer s.inflight.Delete(id)

	sub, err := repo.GetFederatedSubmission(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, err
	}

	failed, err := repo.ListResultsByState(ctx, s.DB, id, domain.ResultFailed)
	if err != nil {
		return nil, err
	}
	if len(failed) == 0 {
		return []DispatchOutcome{}, nil
	}

	work := make([]dispatchTarget, 0, len(failed))
	for _, row := range failed {
		work = append(work, dispatchTarget{
			resultID:    row.ID,
			instanceURL: row.InstanceURL,
			directoryID: row.DirectoryID,
		})
	}

	outcomes := s.dispatchTargets(ctx, sub, work)

	// Survives an aggregate deadline that expired mid-fan-out; see Dispatch.
	if err := s.recomputeStatus(context.WithoutCancel(ctx), id); err != nil {
		return nil, err
	}
	return outcomes, nil
}
