// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// FederatedSubmission aggregate and its immutable FederationTarget rows.
//
// The aggregate and its targets are always written together in one
// transaction: the chosen directory set is immutable after creation, so
// there is no API to add or remove targets afterwards.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchdir/go-federation-backend/internal/domain"
)

// NewTarget describes one chosen directory (with its fee snapshot) at
// submission-creation time.
type NewTarget struct {
	InstanceURL   string
	DirectoryID   string
	DirectoryName string
	FeeAmount     int64
	FeeCurrency   string
}

// CreateFederatedSubmission inserts the aggregate row and one target row per
// chosen directory in a single transaction. The submission ID is a randomly
// generated UUID and CreatedAt is set to UTC.
func CreateFederatedSubmission(ctx context.Context, db *gorm.DB, sub *domain.FederatedSubmission, targets []NewTarget) (*domain.FederatedSubmission, error) {
	now := time.Now().UTC()
	sub.ID = uuid.NewString()
	sub.CreatedAt = now

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		for _, t := range targets {
			row := &domain.FederationTarget{
				ID:            uuid.NewString(),
				SubmissionID:  sub.ID,
				InstanceURL:   t.InstanceURL,
				DirectoryID:   t.DirectoryID,
				DirectoryName: t.DirectoryName,
				FeeAmount:     t.FeeAmount,
				FeeCurrency:   t.FeeCurrency,
				CreatedAt:     now,
			}
			if err := tx.Create(row).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// GetFederatedSubmission fetches the aggregate by ID, or ErrNotFound.
func GetFederatedSubmission(ctx context.Context, db *gorm.DB, id string) (*domain.FederatedSubmission, error) {
	var sub domain.FederatedSubmission
	err := db.WithContext(ctx).Where("id = ?", id).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListTargets returns the chosen directory set of a submission in insertion
// order.
func ListTargets(ctx context.Context, db *gorm.DB, submissionID string) ([]domain.FederationTarget, error) {
	var out []domain.FederationTarget
	err := db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("created_at asc").
		Find(&out).Error
	return out, err
}

// UpdateSubmissionStatus sets the overall status of a submission. If no rows
// are affected the submission is unknown and ErrNotFound is returned.
func UpdateSubmissionStatus(ctx context.Context, db *gorm.DB, id string, status domain.SubmissionStatus) error {
	res := db.WithContext(ctx).
		Model(&domain.FederatedSubmission{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetPaymentRef stores the payment session reference on a submission.
func SetPaymentRef(ctx context.Context, db *gorm.DB, id, ref string) error {
	res := db.WithContext(ctx).
		Model(&domain.FederatedSubmission{}).
		Where("id = ?", id).
		Update("payment_ref", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
