// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/launchdir/go-federation-backend/internal/domain"
)

// InstancesStats returns aggregate metadata for the instance registry: the
// total number of rows (optionally scoped to one status) and the maximum
// UpdatedAt timestamp among those rows.
//
// When no instances match, the returned count is 0 and maxUpdatedAt is nil.
func InstancesStats(ctx context.Context, db *gorm.DB, status domain.InstanceStatus) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.FederationInstance{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// ResultsStats returns aggregate metadata for the result rows of one
// submission: the total number of rows and the maximum UpdatedAt timestamp.
//
// When the submission has no results yet, the returned count is 0 and
// maxUpdatedAt is nil.
func ResultsStats(ctx context.Context, db *gorm.DB, submissionID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.FederationResult{}).Where("submission_id = ?", submissionID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
