// Package services – RegistryService
//
// This file implements the partner registry: registering federation
// instances, listing them, transitioning their status, and health-pinging
// them. Registration validates the base URL and contact email; new instances
// start as "unverified" and are promoted to "active" only by a successful
// ping. Instances are never hard-deleted, only deactivated.
//
// Service-level errors (e.g., ErrInstanceNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
// Ping never returns an error: it is used in bulk sweeps, so failures are
// reported inside the result instead.
package services

import (
	"context"
	"errors"
	"net/mail"
	"net/url"
	"strings"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/partner"
	"github.com/launchdir/go-federation-backend/internal/repo"
)

// Pinger issues health requests against partner instances. Implemented by
// *partner.Client; faked in tests.
type Pinger interface {
	// Ping reports partner health; it never returns an error.
	Ping(ctx context.Context, baseURL string) partner.PingResult
}

// PingReport is the outcome of pinging one registered instance, including the
// status the registry moved the instance to as a consequence.
type PingReport struct {
	InstanceID string                `json:"instance_id"`
	BaseURL    string                `json:"base_url"`
	Result     partner.PingResult    `json:"result"`
	NewStatus  domain.InstanceStatus `json:"new_status"`
}

// RegistryService manages the set of known federation instances.
type RegistryService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Pinger issues outbound health requests.
	Pinger Pinger
}

// NewRegistryService constructs a RegistryService.
func NewRegistryService(db *gorm.DB, p Pinger) *RegistryService {
	return &RegistryService{DB: db, Pinger: p}
}

// Register validates and persists a new federation instance with status
// "unverified". The base URL must be absolute http(s); the contact email must
// parse. Registering an already-known base URL returns repo.ErrDuplicate.
func (s *RegistryService) Register(ctx context.Context, name, baseURL, contactEmail string) (*domain.FederationInstance, error) {
	tr := otel.Tracer("services/RegistryService")
	ctx, span := tr.Start(ctx, "Register",
		trace.WithAttributes(attribute.String("instance.base_url", baseURL)),
	)
	defer span.End()

	name = strings.TrimSpace(name)
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if name == "" {
		name = baseURL
	}

	if !validBaseURL(baseURL) {
		return nil, ErrInvalidBaseURL
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(contactEmail)); err != nil {
		return nil, ErrInvalidContactEmail
	}

	return repo.CreateInstance(ctx, s.DB, name, baseURL, strings.TrimSpace(contactEmail))
}

// List returns known instances, optionally filtered by status. An unknown
// status value fails validation rather than silently matching nothing.
func (s *RegistryService) List(ctx context.Context, status domain.InstanceStatus) ([]domain.FederationInstance, error) {
	if status != "" && !domain.ValidInstanceStatus(status) {
		return nil, ErrInvalidStatus
	}
	return repo.ListInstances(ctx, s.DB, status)
}

// UpdateStatus transitions an instance's status and refreshes its last-seen
// timestamp. Returns ErrInstanceNotFound for unknown ids.
func (s *RegistryService) UpdateStatus(ctx context.Context, id string, status domain.InstanceStatus) error {
	if !domain.ValidInstanceStatus(status) {
		return ErrInvalidStatus
	}
	err := repo.UpdateInstanceStatus(ctx, s.DB, id, status, true)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrInstanceNotFound
	}
	return err
}

// Ping health-checks one registered instance and applies the resulting status
// transition: a healthy ping promotes unverified/inactive instances to active
// and refreshes last-seen; a failed ping demotes active instances to
// inactive. Ping never returns an error for partner-side failures; only an
// unknown id is an error.
func (s *RegistryService) Ping(ctx context.Context, id string) (*PingReport, error) {
	tr := otel.Tracer("services/RegistryService")
	ctx, span := tr.Start(ctx, "Ping",
		trace.WithAttributes(attribute.String("instance.id", id)),
	)
	defer span.End()

	inst, err := repo.GetInstance(ctx, s.DB, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, err
	}

	res := s.Pinger.Ping(ctx, inst.BaseURL)

	newStatus := inst.Status
	switch {
	case res.Healthy:
		newStatus = domain.InstanceActive
	case inst.Status == domain.InstanceActive:
		newStatus = domain.InstanceInactive
	}
	if newStatus != inst.Status || res.Healthy {
		// Status updates from pings are best effort; the ping outcome is the
		// interesting part even when the write fails.
		if uerr := repo.UpdateInstanceStatus(ctx, s.DB, id, newStatus, res.Healthy); uerr != nil && !errors.Is(uerr, gorm.ErrRecordNotFound) {
			return nil, uerr
		}
	}

	return &PingReport{
		InstanceID: inst.ID,
		BaseURL:    inst.BaseURL,
		Result:     res,
		NewStatus:  newStatus,
	}, nil
}

// validBaseURL reports whether raw is an absolute http(s) URL with a host.
func validBaseURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
