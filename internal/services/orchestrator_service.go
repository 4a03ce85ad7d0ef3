// Package services – OrchestratorService
//
// This file implements federated submission orchestration: creating the
// FederatedSubmission aggregate (cost computation + payment gating) and
// dispatching one outbound submission per chosen directory under a bounded
// fan-out.
//
// The central design rule: partner failures are data, not errors. A target
// that times out or returns non-2xx becomes a "failed" FederationResult row;
// it never aborts the dispatch of sibling targets and never surfaces as an
// error from Dispatch. Errors are reserved for precondition violations
// (validation, unknown ids, unsettled payment, concurrent dispatch).
package services

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/partner"
	"github.com/launchdir/go-federation-backend/internal/payments"
	"github.com/launchdir/go-federation-backend/internal/repo"
)

var dispatchOutcomes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "federation_dispatch_outcomes_total",
		Help: "Per-directory dispatch outcomes.",
	},
	[]string{"outcome"}, // submitted | failed | skipped
)

func init() {
	prometheus.MustRegister(dispatchOutcomes)
}

// Submitter posts submissions to partner directories. Implemented by
// *partner.Client; faked in tests.
type Submitter interface {
	Submit(ctx context.Context, baseURL string, req partner.SubmitRequest) (*partner.SubmitResponse, error)
}

// SubmissionInput is the local submission content to publish.
type SubmissionInput struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	OwnerID     string `json:"owner_id"`
}

// DispatchOutcome is the per-directory result of one dispatch invocation.
type DispatchOutcome struct {
	InstanceURL string             `json:"instance_url"`
	DirectoryID string             `json:"directory_id"`
	State       domain.ResultState `json:"state"`
	RemoteID    string             `json:"remote_id,omitempty"`
	Error       string             `json:"error,omitempty"`
	// Skipped marks targets that already succeeded earlier and were not
	// re-sent (dispatch idempotency).
	Skipped bool `json:"skipped,omitempty"`
}

// OrchestratorService creates federated submissions and dispatches them.
type OrchestratorService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Client posts the outbound submissions.
	Client Submitter
	// Gateway opens and checks payment sessions.
	Gateway payments.Gateway

	// Concurrency bounds the per-directory fan-out; values < 1 mean 5.
	Concurrency int
	// PerTargetTimeout bounds each outbound submission; values <= 0 mean 10s.
	PerTargetTimeout time.Duration

	// inflight holds the submission ids with a dispatch or retry running.
	// Dispatch and RetryFailed must not run concurrently for one id; this
	// advisory lock makes the second caller fail fast instead.
	inflight sync.Map
}

// NewOrchestratorService constructs an OrchestratorService with default bounds.
func NewOrchestratorService(db *gorm.DB, client Submitter, gw payments.Gateway) *OrchestratorService {
	return &OrchestratorService{
		DB:               db,
		Client:           client,
		Gateway:          gw,
		Concurrency:      5,
		PerTargetTimeout: 10 * time.Second,
	}
}

// Create validates the submission and selection, computes the total cost,
// persists the aggregate with its immutable target set, and — for paid
// submissions — opens a payment session. Free submissions are dispatched
// immediately.
//
// Returns the persisted submission and, for paid submissions, the open
// payment session the caller must complete out-of-band.
func (s *OrchestratorService) Create(ctx context.Context, input SubmissionInput, selection []SelectedDirectory) (*domain.FederatedSubmission, *payments.Session, error) {
	tr := otel.Tracer("services/OrchestratorService")
	ctx, span := tr.Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("owner.id", input.OwnerID),
			attribute.Int("selection.count", len(selection)),
		),
	)
	defer span.End()

	if !validSubmissionURL(input.URL) {
		return nil, nil, ErrMissingSubmissionURL
	}
	if strings.TrimSpace(input.OwnerID) == "" {
		return nil, nil, ErrMissingOwner
	}

	est, err := CalculateCost(selection)
	if err != nil {
		return nil, nil, err
	}

	status := domain.SubmissionPendingSubmission
	if est.Total > 0 {
		status = domain.SubmissionPendingPayment
	}

	sub := &domain.FederatedSubmission{
		OwnerID:       strings.TrimSpace(input.OwnerID),
		SubmissionURL: strings.TrimSpace(input.URL),
		Title:         strings.TrimSpace(input.Title),
		Description:   strings.TrimSpace(input.Description),
		TotalAmount:   est.Total,
		Currency:      est.Currency,
		Status:        status,
	}
	targets := make([]repo.NewTarget, 0, len(selection))
	for _, sel := range selection {
		targets = append(targets, repo.NewTarget{
			InstanceURL:   strings.TrimRight(sel.InstanceURL, "/"),
			DirectoryID:   sel.DirectoryID,
			DirectoryName: sel.DirectoryName,
			FeeAmount:     sel.FeeAmount,
			FeeCurrency:   est.Currency,
		})
	}

	sub, err = repo.CreateFederatedSubmission(ctx, s.DB, sub, targets)
	if err != nil {
		return nil, nil, err
	}

	// Free submissions skip payment entirely.
	if est.Total == 0 {
		if _, derr := s.Dispatch(ctx, sub.ID); derr != nil {
			return nil, nil, derr
		}
		sub, err = repo.GetFederatedSubmission(ctx, s.DB, sub.ID)
		return sub, nil, err
	}

	session, err := s.Gateway.CreateSession(ctx, est.Total, est.Currency, map[string]string{
		"federated_submission_id": sub.ID,
	})
	if err != nil {
		// The aggregate stays in pending_payment; the caller may retry the
		// session later.
		return sub, nil, fmt.Errorf("%w: %s", ErrPaymentSession, err)
	}
	if err := repo.SetPaymentRef(ctx, s.DB, sub.ID, session.ID); err != nil {
		return sub, nil, err
	}
	sub.PaymentRef = &session.ID

	return sub, session, nil
}

// Dispatch publishes a federated submission to every chosen directory that
// has not already succeeded. It is safe to call repeatedly: result rows are
// created idempotently and succeeded targets are skipped without new
// outbound requests.
//
// A submission still in pending_payment is dispatched only once its payment
// session reports settled; otherwise ErrPaymentRequired.
func (s *OrchestratorService) Dispatch(ctx context.Context, id string) ([]DispatchOutcome, error) {
	tr := otel.Tracer("services/OrchestratorService")
	ctx, span := tr.Start(ctx, "Dispatch",
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

	if sub.Status == domain.SubmissionPendingPayment {
		if err := s.requireSettled(ctx, sub); err != nil {
			return nil, err
		}
		if err := repo.UpdateSubmissionStatus(ctx, s.DB, id, domain.SubmissionPendingSubmission); err != nil {
			return nil, err
		}
	}

	targets, err := repo.ListTargets(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}

	// Idempotent row creation: one pending result per target unless a row
	// already exists from an earlier invocation.
	work := make([]dispatchTarget, 0, len(targets))
	outcomes := make([]DispatchOutcome, 0, len(targets))
	for _, t := range targets {
		row, err := repo.EnsureResult(ctx, s.DB, id, t.InstanceURL, t.DirectoryID)
		if err != nil {
			return nil, err
		}
		if row.State.Succeeded() {
			dispatchOutcomes.WithLabelValues("skipped").Inc()
			outcomes = append(outcomes, DispatchOutcome{
				InstanceURL: t.InstanceURL,
				DirectoryID: t.DirectoryID,
				State:       row.State,
				RemoteID:    row.RemoteID,
				Skipped:     true,
			})
			continue
		}
		work = append(work, dispatchTarget{
			resultID:    row.ID,
			instanceURL: t.InstanceURL,
			directoryID: t.DirectoryID,
		})
	}

	outcomes = append(outcomes, s.dispatchTargets(ctx, sub, work)...)

	// The recompute must run even when the aggregate deadline expired during
	// the fan-out: deadline-cut targets are already recorded as failed rows,
	// and the overall status has to reflect them.
	if err := s.recomputeStatus(context.WithoutCancel(ctx), id); err != nil {
		return nil, err
	}
	return outcomes, nil
}

// dispatchTarget is one unit of outbound work: a result row plus its
// destination.
type dispatchTarget struct {
	resultID    string
	instanceURL string
	directoryID string
}

// dispatchTargets is the shared fan-out primitive used by Dispatch and
// RetryFailed. It sends one submission per target with bounded concurrency,
// each under its own timeout, records every outcome on the result row, and
// returns only after all targets have resolved (the join before the overall
// status is recomputed).
func (s *OrchestratorService) dispatchTargets(ctx context.Context, sub *domain.FederatedSubmission, targets []dispatchTarget) []DispatchOutcome {
	outcomes := make([]DispatchOutcome, len(targets))

	g := new(errgroup.Group)
	limit := s.Concurrency
	if limit < 1 {
		limit = 5
	}
	g.SetLimit(limit)

	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			outcomes[i] = s.dispatchOne(ctx, sub, t)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// dispatchOne sends a single submission and persists the resulting state.
// Partner failures become failed rows, never errors.
func (s *OrchestratorService) dispatchOne(ctx context.Context, sub *domain.FederatedSubmission, t dispatchTarget) DispatchOutcome {
	out := DispatchOutcome{InstanceURL: t.instanceURL, DirectoryID: t.directoryID}

	timeout := s.PerTargetTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := s.Client.Submit(reqCtx, t.instanceURL, partner.SubmitRequest{
		URL:         sub.SubmissionURL,
		Title:       sub.Title,
		Description: sub.Description,
		DirectoryID: t.directoryID,
	})
	if err != nil {
		msg := err.Error()
		if ctx.Err() != nil {
			msg = "dispatch deadline exceeded: " + msg
		}
		out.State = domain.ResultFailed
		out.Error = msg
		dispatchOutcomes.WithLabelValues("failed").Inc()
		// Persist with a fresh context: the aggregate deadline must not
		// prevent recording the failure it caused.
		s.markFailed(t.resultID, msg)
		return out
	}

	out.State = domain.ResultSubmitted
	out.RemoteID = resp.SubmissionID
	dispatchOutcomes.WithLabelValues("submitted").Inc()
	if err := repo.MarkResultSubmitted(context.WithoutCancel(ctx), s.DB, t.resultID, resp.SubmissionID); err != nil {
		out.State = domain.ResultFailed
		out.Error = "record result: " + err.Error()
	}
	return out
}

func (s *OrchestratorService) markFailed(resultID, msg string) {
	_ = repo.MarkResultFailed(context.Background(), s.DB, resultID, msg)
}

// recomputeStatus derives the overall submission status from all result rows.
// Runs strictly after the fan-out join.
func (s *OrchestratorService) recomputeStatus(ctx context.Context, id string) error {
	rows, err := repo.ListResults(ctx, s.DB, id)
	if err != nil {
		return err
	}
	states := make([]domain.ResultState, len(rows))
	for i, r := range rows {
		states[i] = r.State
	}
	return repo.UpdateSubmissionStatus(ctx, s.DB, id, domain.OverallStatus(states))
}

// requireSettled checks the payment session of a pending_payment submission.
func (s *OrchestratorService) requireSettled(ctx context.Context, sub *domain.FederatedSubmission) error {
	if sub.PaymentRef == nil {
		// pending_payment without a session: the gateway rejected session
		// creation earlier. The caller must re-create the session first.
		return ErrPaymentRequired
	}
	settled, err := s.Gateway.IsSettled(ctx, *sub.PaymentRef)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrPaymentRequired, err)
	}
	if !settled {
		return ErrPaymentRequired
	}
	return nil
}

// validSubmissionURL reports whether raw is an absolute http(s) URL.
func validSubmissionURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
