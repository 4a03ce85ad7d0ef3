// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed
// federated-submission request, keyed by (owner_id, scope, key). It enables
// safe retries for the submission-creating POST endpoint by returning the
// originally produced submission without re-executing side effects (cost
// computation, payment session creation, row inserts).
type Idempotency struct {
	ID           string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	OwnerID      string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_scope_key,priority:1"`
	Scope        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_scope_key,priority:2"`
	Key          string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_owner_scope_key,priority:3"`
	SubmissionID string    `gorm:"type:TEXT NOT NULL"`
	Status       int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt    time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt    time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
