// Package services – StatusService
//
// Read-only status aggregation: joins a FederatedSubmission with its
// FederationResults and computes a summary of counts by state. A missing
// submission is "nothing to show" (nil, nil), not an error — callers render
// it as a 404 or empty view as they see fit.
package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/repo"
)

// StatusSummary counts a submission's results by state.
type StatusSummary struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Submitted int64 `json:"submitted"`
	Failed    int64 `json:"failed"`
	Approved  int64 `json:"approved"`
	Rejected  int64 `json:"rejected"`
}

// SubmissionStatus joins the aggregate, its result rows, and the summary.
type SubmissionStatus struct {
	Submission domain.FederatedSubmission `json:"submission"`
	Results    []domain.FederationResult  `json:"results"`
	Summary    StatusSummary              `json:"summary"`
}

// StatusService reads federated submission state; it never mutates rows.
type StatusService struct {
	// DB is the GORM handle used for reads.
	DB *gorm.DB
}

// NewStatusService constructs a StatusService.
func NewStatusService(db *gorm.DB) *StatusService {
	return &StatusService{DB: db}
}

// GetStatus returns the submission, its results, and a computed summary, or
// (nil, nil) when the submission id is unknown.
func (s *StatusService) GetStatus(ctx context.Context, id string) (*SubmissionStatus, error) {
	sub, err := repo.GetFederatedSubmission(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	results, err := repo.ListResults(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}
	counts, err := repo.CountResultsByState(ctx, s.DB, id)
	if err != nil {
		return nil, err
	}

	summary := StatusSummary{
		Pending:   counts[domain.ResultPending],
		Submitted: counts[domain.ResultSubmitted],
		Failed:    counts[domain.ResultFailed],
		Approved:  counts[domain.ResultApproved],
		Rejected:  counts[domain.ResultRejected],
	}
	for _, n := range counts {
		summary.Total += n
	}

	return &SubmissionStatus{
		Submission: *sub,
		Results:    results,
		Summary:    summary,
	}, nil
}
