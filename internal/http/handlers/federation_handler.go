// Federated submission HTTP handlers.
//
// This file exposes REST endpoints for the submission lifecycle:
//   - POST /federation/cost                          (quote a directory set)
//   - POST /federation/submissions                   (create, idempotency-keyed)
//   - POST /federation/submissions/{id}/dispatch     (publish to partners)
//   - POST /federation/submissions/{id}/retry        (re-send failed targets)
//   - GET  /federation/submissions/{id}              (aggregate status, ETag support)
//
// Partner-side failures never surface as HTTP errors here: they arrive as
// failed entries inside the outcome list with a 200 response.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/http/middleware"
	"github.com/launchdir/go-federation-backend/internal/payments"
	"github.com/launchdir/go-federation-backend/internal/repo"
	"github.com/launchdir/go-federation-backend/internal/services"
)

// idempotencyScope namespaces stored idempotency records for the
// submission-creating endpoint.
const idempotencyScope = "federation.submissions"

//
// DTOs
//

// SelectedDirectoryRequest is one chosen directory inside a cost or
// submission payload.
type SelectedDirectoryRequest struct {
	InstanceURL   string `json:"instance_url" binding:"required" example:"https://indielaunch.example"`
	DirectoryID   string `json:"directory_id" binding:"required" example:"main"`
	DirectoryName string `json:"directory_name" example:"Main Directory"`
	FeeAmount     int64  `json:"fee_amount" example:"500"`
	FeeCurrency   string `json:"fee_currency" example:"USD"`
}

// CostRequest is the JSON payload for quoting a directory set.
type CostRequest struct {
	Directories []SelectedDirectoryRequest `json:"directories" binding:"required"`
}

// CreateSubmissionRequest is the JSON payload for creating a federated
// submission.
type CreateSubmissionRequest struct {
	URL         string                     `json:"url" binding:"required" example:"https://example.com/app"`
	Title       string                     `json:"title" example:"Example App"`
	Description string                     `json:"description" example:"An example application"`
	Directories []SelectedDirectoryRequest `json:"directories" binding:"required"`
}

// CreateSubmissionResponse pairs the persisted submission with the payment
// session the client must complete (absent for free directory sets).
type CreateSubmissionResponse struct {
	Submission *domain.FederatedSubmission `json:"submission"`
	Payment    *payments.Session           `json:"payment,omitempty"`
}

// DispatchResponse carries the per-directory outcomes of a dispatch or retry.
type DispatchResponse struct {
	SubmissionID string                     `json:"submission_id"`
	Outcomes     []services.DispatchOutcome `json:"outcomes"`
}

func toSelection(in []SelectedDirectoryRequest) []services.SelectedDirectory {
	out := make([]services.SelectedDirectory, 0, len(in))
	for _, d := range in {
		out = append(out, services.SelectedDirectory{
			InstanceURL:   d.InstanceURL,
			DirectoryID:   d.DirectoryID,
			DirectoryName: d.DirectoryName,
			FeeAmount:     d.FeeAmount,
			FeeCurrency:   d.FeeCurrency,
		})
	}
	return out
}

// isValidationErr reports whether err is a selection/input validation error
// that maps to 400.
func isValidationErr(err error) bool {
	return errors.Is(err, services.ErrEmptyDirectorySet) ||
		errors.Is(err, services.ErrCurrencyMismatch) ||
		errors.Is(err, services.ErrInvalidCurrency) ||
		errors.Is(err, services.ErrNegativeFee) ||
		errors.Is(err, services.ErrMissingSubmissionURL) ||
		errors.Is(err, services.ErrMissingOwner)
}

//
// Handlers
//

// QuoteCost godoc
// @ID          quoteCost
// @Summary     Quote the cost of a directory set
// @Description Sums the fee snapshots of the selected directories; all fees must share one currency.
// @Tags        Federation
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CostRequest  true  "Selected directories"
//
// @Success     200  {object} services.CostEstimate
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Router      /federation/cost [post]
func (h *Handlers) QuoteCost(c *gin.Context) {
	var req CostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	est, err := services.CalculateCost(toSelection(req.Directories))
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	ok(c, http.StatusOK, est)
}

// CreateSubmission godoc
// @ID          createSubmission
// @Summary     Create a federated submission
// @Description Persists the submission with its immutable directory set. Paid sets open a payment session; free sets dispatch immediately. Safe to retry with an Idempotency-Key header.
// @Tags        Federation
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  false "Owner ID (demo header)"  example(user123)
// @Param       Idempotency-Key  header  string  false "Client-chosen retry key"
// @Param       body             body    handlers.CreateSubmissionRequest  true  "Submission payload"
//
// @Success     200  {object} handlers.CreateSubmissionResponse "Replay of a previous creation"
// @Success     201  {object} handlers.CreateSubmissionResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Failure     502  {object} handlers.ErrorResponse "Payment gateway failure"
// @Router      /federation/submissions [post]
func (h *Handlers) CreateSubmission(c *gin.Context) {
	ctx := c.Request.Context()
	owner := ownerID(c)

	var req CreateSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Replay: return the previously created submission untouched.
	key, hasKey := middleware.GetIdempotencyKey(c)
	if hasKey && h.db != nil && middleware.IsReplay(c) {
		if rec, err := repo.GetIdempotency(ctx, h.db, owner, idempotencyScope, key, time.Now().UTC()); err == nil {
			if sub, err := repo.GetFederatedSubmission(ctx, h.db, rec.SubmissionID); err == nil {
				ok(c, http.StatusOK, CreateSubmissionResponse{Submission: sub})
				return
			}
		}
	}

	input := services.SubmissionInput{
		URL:         req.URL,
		Title:       req.Title,
		Description: req.Description,
		OwnerID:     owner,
	}
	sub, session, err := h.orchSvc.Create(ctx, input, toSelection(req.Directories))
	switch {
	case err == nil:
	case isValidationErr(err):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	case errors.Is(err, services.ErrPaymentSession):
		// The aggregate is persisted; surface it so the client can retry the
		// session via dispatch later.
		fail(c, http.StatusBadGateway, ErrCodePaymentSession, err.Error())
		return
	default:
		fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		return
	}

	// Record the idempotency key after a successful creation (best effort;
	// a concurrent duplicate is harmless).
	if hasKey && h.db != nil {
		ttl := middleware.IdempotencyTTLFrom(c)
		_, _ = repo.CreateIdempotency(ctx, h.db, owner, idempotencyScope, key, sub.ID, http.StatusCreated, ttl)
	}

	ok(c, http.StatusCreated, CreateSubmissionResponse{Submission: sub, Payment: session})
}

// DispatchSubmission godoc
// @ID          dispatchSubmission
// @Summary     Dispatch a submission to its directories
// @Description Publishes the submission to every chosen directory that has not already succeeded. Requires a settled payment session for paid sets.
// @Tags        Federation
// @Produce     json
//
// @Param       id  path  string  true  "Submission ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.DispatchResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     402  {object} handlers.ErrorResponse "Payment required"
// @Failure     404  {object} handlers.ErrorResponse "Submission not found"
// @Failure     409  {object} handlers.ErrorResponse "Dispatch already running"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /federation/submissions/{id}/dispatch [post]
func (h *Handlers) DispatchSubmission(c *gin.Context) {
	h.runDispatch(c, h.orchSvc.Dispatch)
}

// RetrySubmission godoc
// @ID          retrySubmission
// @Summary     Retry the failed directories of a submission
// @Description Re-sends the submission only to directories whose last attempt failed. Succeeded directories are never re-sent.
// @Tags        Federation
// @Produce     json
//
// @Param       id  path  string  true  "Submission ID (UUID)"  format(uuid)
//
// @Success     200  {object} handlers.DispatchResponse
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Submission not found"
// @Failure     409  {object} handlers.ErrorResponse "Dispatch already running"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /federation/submissions/{id}/retry [post]
func (h *Handlers) RetrySubmission(c *gin.Context) {
	h.runDispatch(c, h.orchSvc.RetryFailed)
}

// runDispatch shares the transport plumbing of dispatch and retry.
func (h *Handlers) runDispatch(c *gin.Context, op func(ctx context.Context, id string) ([]services.DispatchOutcome, error)) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}

	outcomes, err := op(c.Request.Context(), id)
	switch {
	case err == nil:
		ok(c, http.StatusOK, DispatchResponse{SubmissionID: id, Outcomes: outcomes})
	case errors.Is(err, services.ErrSubmissionNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
	case errors.Is(err, services.ErrPaymentRequired):
		fail(c, http.StatusPaymentRequired, ErrCodePaymentRequired, err.Error())
	case errors.Is(err, services.ErrDispatchInFlight):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
	}
}

// GetSubmission godoc
// @ID          getSubmission
// @Summary     Get a submission's aggregate status
// @Description Returns the submission, its per-directory results, and a summary of counts by state. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Federation
// @Produce     json
//
// @Param       id             path    string  true  "Submission ID (UUID)"        format(uuid)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"  example(W/\"abc123\")
//
// @Success     200  {object} services.SubmissionStatus
// @Header      200  {string} ETag "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Submission not found"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /federation/submissions/{id} [get]
func (h *Handlers) GetSubmission(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "submission id must be a UUID")
		return
	}

	// ETag pre-check (best effort).
	if h.db != nil {
		count, maxTS, err := repo.ResultsStats(ctx, h.db, id)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"submission:%s:%d:%d"`, id, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	status, err := h.statusSvc.GetStatus(ctx, id)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	if status == nil {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "submission not found")
		return
	}
	ok(c, http.StatusOK, status)
}
