// Package domain defines the persistence models for federation instances,
// federated submissions, their chosen targets, and per-directory results.
// These types are mapped with GORM and form the core data layer of the
// federation backend.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// InstanceStatus is the operational status of a FederationInstance.
type InstanceStatus string

const (
	// InstanceActive marks an instance that answered a recent health ping.
	InstanceActive InstanceStatus = "active"
	// InstanceInactive marks an instance that stopped answering pings.
	// Instances are deactivated instead of deleted.
	InstanceInactive InstanceStatus = "inactive"
	// InstanceUnverified is the initial status after registration, before
	// the first successful health ping.
	InstanceUnverified InstanceStatus = "unverified"
)

// ValidInstanceStatus reports whether s is one of the known instance statuses.
func ValidInstanceStatus(s InstanceStatus) bool {
	switch s {
	case InstanceActive, InstanceInactive, InstanceUnverified:
		return true
	}
	return false
}

// SubmissionStatus is the overall status of a FederatedSubmission. It is
// derived from the states of the submission's FederationResults, except for
// the two pre-dispatch states.
type SubmissionStatus string

const (
	// SubmissionPendingPayment means a payment session is open and dispatch
	// has not happened yet.
	SubmissionPendingPayment SubmissionStatus = "pending_payment"
	// SubmissionPendingSubmission means the submission is paid (or free) and
	// awaiting dispatch.
	SubmissionPendingSubmission SubmissionStatus = "pending_submission"
	// SubmissionSubmitted means every target accepted the submission.
	SubmissionSubmitted SubmissionStatus = "submitted"
	// SubmissionPartial means some targets accepted and some failed. Retry
	// remains available; this is a normal outcome, not an error.
	SubmissionPartial SubmissionStatus = "partially_submitted"
	// SubmissionFailed means every target failed.
	SubmissionFailed SubmissionStatus = "failed"
)

// ResultState is the state of a single FederationResult.
type ResultState string

const (
	// ResultPending is the initial state, set when the result row is created
	// at dispatch time.
	ResultPending ResultState = "pending"
	// ResultSubmitted means the partner accepted the submission and returned
	// a remote submission id.
	ResultSubmitted ResultState = "submitted"
	// ResultFailed means the outbound request failed (non-2xx, timeout,
	// network error, or malformed response).
	ResultFailed ResultState = "failed"
	// ResultApproved is a remote-confirmed state that may follow submitted.
	ResultApproved ResultState = "approved"
	// ResultRejected is a remote-confirmed state that may follow submitted.
	ResultRejected ResultState = "rejected"
)

// Succeeded reports whether the state counts as a successful outcome when the
// overall submission status is recomputed.
func (s ResultState) Succeeded() bool {
	return s == ResultSubmitted || s == ResultApproved
}

// FederationInstance is a remote, independently operated directory service
// participating in the federation network.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Name: display name reported at registration.
//   - BaseURL: absolute http(s) root of the partner API; unique.
//   - ContactEmail: operator contact, validated at registration.
//   - Status: active/inactive/unverified (enforced by DB constraint).
//   - LastSeenAt: time of the last successful health contact (nil until the
//     first successful ping).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker; instances are deactivated, never
//     hard-deleted.
type FederationInstance struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	Name         string         `json:"name"          gorm:"type:varchar(255);not null"`
	BaseURL      string         `json:"base_url"      gorm:"type:varchar(512);not null;uniqueIndex:ux_instance_base_url"`
	ContactEmail string         `json:"contact_email" gorm:"type:varchar(255);not null"`
	Status       InstanceStatus `json:"status"        gorm:"type:varchar(16);not null;index;check:status IN ('active','inactive','unverified')"`
	LastSeenAt   *time.Time     `json:"last_seen_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-"             gorm:"index"`
}

// TableName returns the database table name for FederationInstance.
func (FederationInstance) TableName() string { return "federation_instances" }

// FederatedSubmission is the aggregate tracking one local submission's
// publication attempt across a chosen set of directories. The chosen set is
// immutable after creation (see FederationTarget); changing targets requires
// a new FederatedSubmission.
//
// Fields:
//   - ID: UUID primary key (char(36)).
//   - OwnerID: identifier of the submitting user; indexed.
//   - SubmissionURL / Title / Description: snapshot of the local submission
//     content used to build the outbound payload.
//   - TotalAmount: total cost in minor units of Currency.
//   - PaymentRef: payment session reference; nil means the submission is free.
//   - Status: overall status, derived from the FederationResults after each
//     dispatch or retry.
type FederatedSubmission struct {
	ID            string           `json:"id"             gorm:"type:char(36);primaryKey"`
	OwnerID       string           `json:"owner_id"       gorm:"type:varchar(64);not null;index:idx_owner_submissions"`
	SubmissionURL string           `json:"submission_url" gorm:"type:varchar(2048);not null"`
	Title         string           `json:"title"          gorm:"type:varchar(255)"`
	Description   string           `json:"description"    gorm:"type:text"`
	TotalAmount   int64            `json:"total_amount"   gorm:"not null"`
	Currency      string           `json:"currency"       gorm:"type:varchar(3);not null"`
	PaymentRef    *string          `json:"payment_ref,omitempty" gorm:"type:varchar(255)"`
	Status        SubmissionStatus `json:"status"         gorm:"type:varchar(32);not null;index;check:status IN ('pending_payment','pending_submission','submitted','partially_submitted','failed')"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeletedAt     gorm.DeletedAt   `json:"-"              gorm:"index"`
}

// TableName returns the database table name for FederatedSubmission.
func (FederatedSubmission) TableName() string { return "federated_submissions" }

// FederationTarget records one directory chosen for a FederatedSubmission,
// with the fee quoted at selection time. Target rows are written once in the
// creation transaction and never modified; they are the source of truth for
// what dispatch has to deliver.
//
// The (submission, instance URL, directory id) triple is the natural key.
type FederationTarget struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	SubmissionID  string    `json:"submission_id"  gorm:"type:char(36);not null;index;uniqueIndex:ux_target_submission_dir,priority:1"`
	InstanceURL   string    `json:"instance_url"   gorm:"type:varchar(512);not null;uniqueIndex:ux_target_submission_dir,priority:2"`
	DirectoryID   string    `json:"directory_id"   gorm:"type:varchar(255);not null;uniqueIndex:ux_target_submission_dir,priority:3"`
	DirectoryName string    `json:"directory_name" gorm:"type:varchar(255)"`
	FeeAmount     int64     `json:"fee_amount"     gorm:"not null"`
	FeeCurrency   string    `json:"fee_currency"   gorm:"type:varchar(3);not null"`
	CreatedAt     time.Time `json:"created_at"`

	// Submission is the owning aggregate. Targets are cascade-deleted with it.
	Submission FederatedSubmission `json:"-" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FederationTarget.
func (FederationTarget) TableName() string { return "federation_targets" }

// FederationResult is the per-directory outcome record and the unit of retry.
// Exactly one row exists per (submission, instance URL, directory id); rows
// are created at dispatch time, mutated only by dispatch/retry, and never
// deleted (audit trail).
//
// Fields:
//   - State: pending → submitted|failed; approved/rejected may follow
//     submitted once the partner confirms remotely.
//   - RemoteID: submission id assigned by the partner (set on success).
//   - LastError: human-readable failure description (set on failure).
//   - SubmittedAt: time of the successful outbound submission.
type FederationResult struct {
	ID           string         `json:"id"            gorm:"type:char(36);primaryKey"`
	SubmissionID string         `json:"submission_id" gorm:"type:char(36);not null;index;uniqueIndex:ux_result_submission_dir,priority:1"`
	InstanceURL  string         `json:"instance_url"  gorm:"type:varchar(512);not null;uniqueIndex:ux_result_submission_dir,priority:2"`
	DirectoryID  string         `json:"directory_id"  gorm:"type:varchar(255);not null;uniqueIndex:ux_result_submission_dir,priority:3"`
	State        ResultState    `json:"state"         gorm:"type:varchar(16);not null;index;check:state IN ('pending','submitted','failed','approved','rejected')"`
	RemoteID     string         `json:"remote_id,omitempty"  gorm:"type:varchar(255)"`
	LastError    string         `json:"last_error,omitempty" gorm:"type:text"`
	SubmittedAt  *time.Time     `json:"submitted_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `json:"-" gorm:"index"`

	// Submission is the owning aggregate. Results are cascade-deleted with it,
	// though deletion is not an exposed operation.
	Submission FederatedSubmission `json:"-" gorm:"foreignKey:SubmissionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for FederationResult.
func (FederationResult) TableName() string { return "federation_results" }

// OverallStatus derives the aggregate submission status from a set of result
// states. It is only meaningful after a dispatch has resolved every target:
// all succeeded → submitted, none succeeded → failed, otherwise partial.
func OverallStatus(states []ResultState) SubmissionStatus {
	if len(states) == 0 {
		return SubmissionFailed
	}
	succeeded := 0
	for _, s := range states {
		if s.Succeeded() {
			succeeded++
		}
	}
	switch succeeded {
	case len(states):
		return SubmissionSubmitted
	case 0:
		return SubmissionFailed
	default:
		return SubmissionPartial
	}
}
