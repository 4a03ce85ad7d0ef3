// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// FederationInstance model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When an instance is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateInstance returns ErrDuplicate when the base URL is already
//     registered.
//   - On other DB errors, the raw gorm error is propagated.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchdir/go-federation-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateInstance inserts a new FederationInstance with status "unverified".
// The instance ID is a randomly generated UUID and CreatedAt is set to UTC.
// A second registration of the same base URL returns ErrDuplicate.
func CreateInstance(ctx context.Context, db *gorm.DB, name, baseURL, contactEmail string) (*domain.FederationInstance, error) {
	inst := &domain.FederationInstance{
		ID:           uuid.NewString(),
		Name:         name,
		BaseURL:      baseURL,
		ContactEmail: contactEmail,
		Status:       domain.InstanceUnverified,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(inst).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return inst, nil
}

// ListInstances returns all known instances ordered by creation time
// descending. When status is non-empty, only instances with that status are
// returned. It returns an empty slice when nothing matches.
func ListInstances(ctx context.Context, db *gorm.DB, status domain.InstanceStatus) ([]domain.FederationInstance, error) {
	var out []domain.FederationInstance
	q := db.WithContext(ctx).Order("created_at desc")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Find(&out).Error
	return out, err
}

// GetInstance fetches a single instance by ID. If the record does not exist,
// it returns ErrNotFound.
func GetInstance(ctx context.Context, db *gorm.DB, id string) (*domain.FederationInstance, error) {
	var inst domain.FederationInstance
	err := db.WithContext(ctx).Where("id = ?", id).First(&inst).Error
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// UpdateInstanceStatus transitions an instance's status. When seen is true the
// last-seen timestamp is refreshed as well. If no rows are affected the
// instance is unknown and ErrNotFound is returned.
func UpdateInstanceStatus(ctx context.Context, db *gorm.DB, id string, status domain.InstanceStatus, seen bool) error {
	updates := map[string]any{"status": status}
	if seen {
		updates["last_seen_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.FederationInstance{}).
		Where("id = ?", id).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
