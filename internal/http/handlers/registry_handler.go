// Partner registry HTTP handlers.
//
// This file exposes REST endpoints for the federation instance registry and
// the merged directory catalog:
//   - POST /instances             (register a partner instance)
//   - GET  /instances             (list, optional ?status= filter, ETag support)
//   - PUT  /instances/{id}/status (manual status transition)
//   - POST /instances/{id}/ping   (health-check one instance)
//   - GET  /directories           (merged catalog across active instances)
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/partner"
	"github.com/launchdir/go-federation-backend/internal/payments"
	"github.com/launchdir/go-federation-backend/internal/repo"
	"github.com/launchdir/go-federation-backend/internal/services"
	"github.com/launchdir/go-federation-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// RegistryService defines partner registry operations consumed by HTTP handlers.
//
// Implementations should be safe for concurrent use and must honor the
// provided context for cancellation and timeouts.
type RegistryService interface {
	// Register adds a partner instance in status "unverified".
	Register(ctx context.Context, name, baseURL, contactEmail string) (*domain.FederationInstance, error)
	// List returns known instances, optionally filtered by status.
	List(ctx context.Context, status domain.InstanceStatus) ([]domain.FederationInstance, error)
	// UpdateStatus transitions an instance's lifecycle status.
	UpdateStatus(ctx context.Context, id string, status domain.InstanceStatus) error
	// Ping health-checks one instance and applies the status transition.
	Ping(ctx context.Context, id string) (*services.PingReport, error)
}

// CatalogService defines directory discovery operations.
type CatalogService interface {
	// Discover merges directory listings from all active instances.
	Discover(ctx context.Context, filter services.DiscoverFilter) ([]partner.RemoteDirectory, error)
}

// OrchestratorService defines federated submission lifecycle operations.
type OrchestratorService interface {
	// Create persists a federated submission and opens a payment session for
	// paid directory sets.
	Create(ctx context.Context, input services.SubmissionInput, selection []services.SelectedDirectory) (*domain.FederatedSubmission, *payments.Session, error)
	// Dispatch publishes a submission to every chosen directory.
	Dispatch(ctx context.Context, id string) ([]services.DispatchOutcome, error)
	// RetryFailed re-dispatches only the failed directories.
	RetryFailed(ctx context.Context, id string) ([]services.DispatchOutcome, error)
}

// StatusService defines read-only submission status aggregation.
type StatusService interface {
	// GetStatus returns the aggregate with per-directory results, or nil for
	// unknown ids.
	GetStatus(ctx context.Context, id string) (*services.SubmissionStatus, error)
}

//
// Handler wiring
//

// Handlers groups HTTP endpoints for the registry, catalog, and federated
// submissions. It depends on abstract service interfaces to keep transport
// concerns separate from business logic. The database handle is injected
// separately and serves only transport-level concerns (ETag stats and
// idempotency records); it may be nil, which disables those features.
type Handlers struct {
	db        *gorm.DB
	regSvc    RegistryService
	catSvc    CatalogService
	orchSvc   OrchestratorService
	statusSvc StatusService
}

// New constructs and returns a Handlers instance bound to the given services.
func New(db *gorm.DB, reg RegistryService, cat CatalogService, orch OrchestratorService, status StatusService) *Handlers {
	return &Handlers{db: db, regSvc: reg, catSvc: cat, orchSvc: orch, statusSvc: status}
}

// ownerID extracts the authenticated owner id from Gin context (set by
// upstream middleware). If absent, it falls back to "X-User-ID" header (tests
// use it), and finally to "demo-user". It never touches c.Request if it's nil.
func ownerID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

//
// DTOs
//

// RegisterInstanceRequest is the JSON payload for registering a partner instance.
type RegisterInstanceRequest struct {
	// Name is a human-readable label; defaults to the base URL when empty.
	Name string `json:"name" example:"Indie Launch List"`
	// BaseURL is the root of the partner's federation API.
	BaseURL string `json:"base_url" binding:"required" example:"https://indielaunch.example"`
	// ContactEmail is the partner's operational contact.
	ContactEmail string `json:"contact_email" binding:"required" example:"ops@indielaunch.example"`
}

// UpdateInstanceStatusRequest is the JSON payload for a manual status transition.
type UpdateInstanceStatusRequest struct {
	Status string `json:"status" binding:"required" example:"active"`
}

// ListInstancesResponse wraps the instance list.
type ListInstancesResponse struct {
	Instances []domain.FederationInstance `json:"instances"`
}

// ListDirectoriesResponse wraps the merged directory catalog.
type ListDirectoriesResponse struct {
	Directories []partner.RemoteDirectory `json:"directories"`
}

//
// Handlers
//

// RegisterInstance godoc
// @ID          registerInstance
// @Summary     Register a partner instance
// @Description Adds a federation partner in status "unverified"; it joins discovery once activated.
// @Tags        Registry
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.RegisterInstanceRequest  true  "Instance payload"
//
// @Success     201  {object}  domain.FederationInstance
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Base URL already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /instances [post]
func (h *Handlers) RegisterInstance(c *gin.Context) {
	var req RegisterInstanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	inst, err := h.regSvc.Register(c.Request.Context(), req.Name, req.BaseURL, req.ContactEmail)
	switch {
	case err == nil:
		ok(c, http.StatusCreated, inst)
	case errors.Is(err, services.ErrInvalidBaseURL), errors.Is(err, services.ErrInvalidContactEmail):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, repo.ErrDuplicate):
		fail(c, http.StatusConflict, ErrCodeConflict, "base URL already registered")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeRegisterFailed, err.Error())
	}
}

// ListInstances godoc
// @ID          listInstances
// @Summary     List partner instances
// @Description Returns all registered instances, optionally filtered by status. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Registry
// @Produce     json
//
// @Param       status         query   string  false "Filter by status"            Enums(active, inactive, unverified)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} handlers.ListInstancesResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /instances [get]
func (h *Handlers) ListInstances(c *gin.Context) {
	ctx := c.Request.Context()
	status := domain.InstanceStatus(strings.TrimSpace(c.Query("status")))

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.InstancesStats(ctx, h.db, status)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"instances:%s:%d:%d"`, status, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	items, err := h.regSvc.List(ctx, status)
	if err != nil {
		if errors.Is(err, services.ErrInvalidStatus) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListInstancesResponse{Instances: items})
}

// UpdateInstanceStatus godoc
// @ID          updateInstanceStatus
// @Summary     Transition an instance's status
// @Description Manually activates or deactivates a registered instance.
// @Tags        Registry
// @Accept      json
// @Produce     json
//
// @Param       id    path  string  true  "Instance ID (UUID)"  format(uuid)
// @Param       body  body  handlers.UpdateInstanceStatusRequest  true  "New status"
//
// @Success     204  {string} string "No Content"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Instance not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /instances/{id}/status [put]
func (h *Handlers) UpdateInstanceStatus(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "instance id must be a UUID")
		return
	}

	var req UpdateInstanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	err := h.regSvc.UpdateStatus(c.Request.Context(), id, domain.InstanceStatus(strings.TrimSpace(req.Status)))
	switch {
	case err == nil:
		noContent(c)
	case errors.Is(err, services.ErrInvalidStatus):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInstanceNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "instance not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// PingInstance godoc
// @ID          pingInstance
// @Summary     Health-check a partner instance
// @Description Pings the instance's federation health endpoint and applies the resulting status transition.
// @Tags        Registry
// @Produce     json
//
// @Param       id  path  string  true  "Instance ID (UUID)"  format(uuid)
//
// @Success     200  {object} services.PingReport
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Instance not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /instances/{id}/ping [post]
func (h *Handlers) PingInstance(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "instance id must be a UUID")
		return
	}

	report, err := h.regSvc.Ping(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, report)
	case errors.Is(err, services.ErrInstanceNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "instance not found")
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

// ListDirectories godoc
// @ID          listDirectories
// @Summary     Discover directories across the federation
// @Description Merges directory listings from all active instances; unreachable partners are skipped.
// @Tags        Catalog
// @Produce     json
//
// @Param       category  query  string  false "Filter by category"  example(saas)
// @Param       limit     query  int     false "Cap the result size" minimum(1)
//
// @Success     200  {object} handlers.ListDirectoriesResponse
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /directories [get]
func (h *Handlers) ListDirectories(c *gin.Context) {
	filter := services.DiscoverFilter{
		Category: strings.TrimSpace(c.Query("category")),
		Limit:    utils.AtoiDefault(c.Query("limit"), 0),
	}
	if filter.Limit < 0 {
		filter.Limit = 0
	}

	dirs, err := h.catSvc.Discover(c.Request.Context(), filter)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeDiscoverFailed, err.Error())
		return
	}
	ok(c, http.StatusOK, ListDirectoriesResponse{Directories: dirs})
}
