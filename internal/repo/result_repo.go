// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// FederationResult model: the per-directory outcome rows owned by a
// FederatedSubmission.
//
// Result rows form an audit trail. They are created at dispatch time
// (idempotently), transitioned by dispatch/retry, and never deleted.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchdir/go-federation-backend/internal/domain"
)

// EnsureResult returns the existing result row for (submissionID, instanceURL,
// directoryID), creating it in state "pending" when absent. It is safe to call
// repeatedly; a concurrent insert losing the unique-index race falls back to
// re-reading the winner's row.
func EnsureResult(ctx context.Context, db *gorm.DB, submissionID, instanceURL, directoryID string) (*domain.FederationResult, error) {
	var row domain.FederationResult
	err := db.WithContext(ctx).
		Where("submission_id = ? AND instance_url = ? AND directory_id = ?", submissionID, instanceURL, directoryID).
		First(&row).Error
	if err == nil {
		return &row, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	row = domain.FederationResult{
		ID:           uuid.NewString(),
		SubmissionID: submissionID,
		InstanceURL:  instanceURL,
		DirectoryID:  directoryID,
		State:        domain.ResultPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if cerr := db.WithContext(ctx).Create(&row).Error; cerr != nil {
		if isUniqueViolation(cerr) {
			// Lost the race; the row exists now.
			err = db.WithContext(ctx).
				Where("submission_id = ? AND instance_url = ? AND directory_id = ?", submissionID, instanceURL, directoryID).
				First(&row).Error
			if err != nil {
				return nil, err
			}
			return &row, nil
		}
		return nil, cerr
	}
	return &row, nil
}

// ListResults returns all result rows of a submission in insertion order.
func ListResults(ctx context.Context, db *gorm.DB, submissionID string) ([]domain.FederationResult, error) {
	var out []domain.FederationResult
	err := db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// ListResultsByState returns the result rows of a submission currently in the
// given state, in insertion order.
func ListResultsByState(ctx context.Context, db *gorm.DB, submissionID string, state domain.ResultState) ([]domain.FederationResult, error) {
	var out []domain.FederationResult
	err := db.WithContext(ctx).
		Where("submission_id = ? AND state = ?", submissionID, state).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// MarkResultSubmitted transitions a result row to "submitted", storing the
// remote submission id and the submission timestamp, and clearing any error
// left by an earlier failed attempt.
func MarkResultSubmitted(ctx context.Context, db *gorm.DB, id, remoteID string) error {
	now := time.Now().UTC()
	res := db.WithContext(ctx).
		Model(&domain.FederationResult{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":        domain.ResultSubmitted,
			"remote_id":    remoteID,
			"last_error":   "",
			"submitted_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// MarkResultFailed transitions a result row to "failed" and records a
// human-readable error message.
func MarkResultFailed(ctx context.Context, db *gorm.DB, id, msg string) error {
	res := db.WithContext(ctx).
		Model(&domain.FederationResult{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":      domain.ResultFailed,
			"last_error": msg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// CountResultsByState returns a map from result state to row count for one
// submission. States with zero rows are absent from the map.
func CountResultsByState(ctx context.Context, db *gorm.DB, submissionID string) (map[domain.ResultState]int64, error) {
	type bucket struct {
		State domain.ResultState
		N     int64
	}
	var rows []bucket
	err := db.WithContext(ctx).
		Model(&domain.FederationResult{}).
		Select("state, COUNT(*) AS n").
		Where("submission_id = ?", submissionID).
		Group("state").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ResultState]int64, len(rows))
	for _, b := range rows {
		out[b.State] = b.N
	}
	return out, nil
}
