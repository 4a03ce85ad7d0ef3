package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/launchdir/go-federation-backend/internal/domain"
	"github.com/launchdir/go-federation-backend/internal/http/middleware"
	"github.com/launchdir/go-federation-backend/internal/payments"
	"github.com/launchdir/go-federation-backend/internal/repo"
	"github.com/launchdir/go-federation-backend/internal/services"
)

// ---------- QuoteCost ----------

func TestQuoteCost_BadJSON_Validation_Success(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newStubHandlers(nil, nil, nil, nil, nil)
	r := gin.New()
	r.POST("/federation/cost", h.QuoteCost)

	// Bad JSON -> 400
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/federation/cost", bytes.NewBufferString("{bad"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}

	// Empty selection -> 400
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/federation/cost", bytes.NewBufferString(`{"directories":[]}`))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty selection -> %d", w.Code)
	}

	// Two directories, one currency -> 200 with summed total
	w = httptest.NewRecorder()
	body := bytes.NewBufferString(`{"directories":[
		{"instance_url":"https://a.example","directory_id":"main","fee_amount":500,"fee_currency":"USD"},
		{"instance_url":"https://b.example","directory_id":"startups","fee_amount":250,"fee_currency":"USD"}
	]}`)
	req = httptest.NewRequest(http.MethodPost, "/federation/cost", body)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("quote -> %d body=%s", w.Code, w.Body.String())
	}

	var est services.CostEstimate
	mustDecode(t, w, &est)
	if est.Total != 750 || est.Currency != "USD" || len(est.Breakdown) != 2 {
		t.Fatalf("bad estimate: %+v", est)
	}
}

// ---------- CreateSubmission ----------

func TestCreateSubmission_BadJSON_Validation(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newStubHandlers(nil, nil, nil, stubOrchSvc{
		create: func(context.Context, services.SubmissionInput, []services.SelectedDirectory) (*domain.FederatedSubmission, *payments.Session, error) {
			return nil, nil, services.ErrEmptyDirectorySet
		},
	}, nil)
	r := gin.New()
	r.POST("/federation/submissions", h.CreateSubmission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions", bytes.NewBufferString("{bad"))
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad json -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	body := bytes.NewBufferString(`{"url":"https://example.com/app","directories":[]}`)
	req = httptest.NewRequest(http.MethodPost, "/federation/submissions", body)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty selection -> %d", w.Code)
	}
}

func TestCreateSubmission_PaymentSessionFailure_502(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := newStubHandlers(nil, nil, nil, stubOrchSvc{
		create: func(context.Context, services.SubmissionInput, []services.SelectedDirectory) (*domain.FederatedSubmission, *payments.Session, error) {
			return nil, nil, services.ErrPaymentSession
		},
	}, nil)
	r := gin.New()
	r.POST("/federation/submissions", h.CreateSubmission)

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"url":"https://example.com/app","directories":[
		{"instance_url":"https://a.example","directory_id":"main","fee_amount":500,"fee_currency":"USD"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions", body)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("gateway failure -> %d", w.Code)
	}
}

func TestCreateSubmission_Paid_201_WithSession(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	gw := payments.NewMemoryGateway()
	svc := services.NewOrchestratorService(db, nil, gw)

	h := newStubHandlers(db, nil, nil, svc, nil)
	r := gin.New()
	r.POST("/federation/submissions", h.CreateSubmission)

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"url":"https://example.com/app","title":"App","directories":[
		{"instance_url":"https://a.example","directory_id":"main","fee_amount":500,"fee_currency":"USD"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions", body)
	req.Header.Set("X-User-ID", "owner-1")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}

	var resp CreateSubmissionResponse
	mustDecode(t, w, &resp)
	if resp.Submission == nil || resp.Submission.OwnerID != "owner-1" {
		t.Fatalf("bad submission: %+v", resp.Submission)
	}
	if resp.Submission.Status != domain.SubmissionPendingPayment {
		t.Fatalf("paid submission status = %s", resp.Submission.Status)
	}
	if resp.Payment == nil || resp.Payment.ID == "" {
		t.Fatalf("expected a payment session, got %+v", resp.Payment)
	}
}

// Idempotent replay: with the validator installed and a stored record, the
// handler answers 200 with the original submission and never calls Create.
func TestCreateSubmission_IdempotentReplay_200(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	owner := "owner-1"
	key := "retry-key-1"

	// Seed the original submission and its idempotency record.
	sub, err := repo.CreateFederatedSubmission(context.Background(),
		db,
		&domain.FederatedSubmission{
			OwnerID:       owner,
			SubmissionURL: "https://example.com/app",
			TotalAmount:   500,
			Currency:      "USD",
			Status:        domain.SubmissionPendingPayment,
		},
		[]repo.NewTarget{{InstanceURL: "https://a.example", DirectoryID: "main", FeeAmount: 500, FeeCurrency: "USD"}},
	)
	if err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	if _, err := repo.CreateIdempotency(context.Background(), db, owner, idempotencyScope, key, sub.ID, http.StatusCreated, time.Hour); err != nil {
		t.Fatalf("seed idempotency: %v", err)
	}

	svc := services.NewOrchestratorService(db, nil, payments.NewMemoryGateway())
	h := newStubHandlers(db, nil, nil, svc, nil)

	r := gin.New()
	// Simulate upstream auth: the validator reads the identity from context.
	r.Use(func(c *gin.Context) { c.Set("userID", owner); c.Next() })
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: idempotencyScope, TTL: time.Hour},
		func(ctx context.Context, ownerID, scope, k string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, ownerID, scope, k, now)
			return err == nil && rec != nil, nil
		},
	))
	r.POST("/federation/submissions", h.CreateSubmission)

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"url":"https://example.com/app","directories":[
		{"instance_url":"https://a.example","directory_id":"main","fee_amount":500,"fee_currency":"USD"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions", body)
	req.Header.Set(middleware.HeaderIdempotencyKey, key)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("replay -> %d body=%s", w.Code, w.Body.String())
	}

	var resp CreateSubmissionResponse
	mustDecode(t, w, &resp)
	if resp.Submission == nil || resp.Submission.ID != sub.ID {
		t.Fatalf("replay returned a different submission: %+v", resp.Submission)
	}

	// No second aggregate was created.
	var count int64
	db.Model(&domain.FederatedSubmission{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected 1 submission after replay, got %d", count)
	}
}

// A fresh key produces a 201 and records the key for later replays.
func TestCreateSubmission_NewKey_RecordsIdempotency(t *testing.T) {
	gin.SetMode(gin.TestMode)

	db := newHandlerDB(t)
	owner := "owner-1"
	key := "retry-key-2"

	svc := services.NewOrchestratorService(db, nil, payments.NewMemoryGateway())
	h := newStubHandlers(db, nil, nil, svc, nil)

	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set("userID", owner); c.Next() })
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{MaxLen: 200, Scope: idempotencyScope, TTL: time.Hour},
		func(ctx context.Context, ownerID, scope, k string, now time.Time) (bool, error) {
			rec, err := repo.GetIdempotency(ctx, db, ownerID, scope, k, now)
			return err == nil && rec != nil, nil
		},
	))
	r.POST("/federation/submissions", h.CreateSubmission)

	w := httptest.NewRecorder()
	body := bytes.NewBufferString(`{"url":"https://example.com/app","directories":[
		{"instance_url":"https://a.example","directory_id":"main","fee_amount":500,"fee_currency":"USD"}
	]}`)
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions", body)
	req.Header.Set(middleware.HeaderIdempotencyKey, key)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create -> %d body=%s", w.Code, w.Body.String())
	}

	var resp CreateSubmissionResponse
	mustDecode(t, w, &resp)

	rec, err := repo.GetIdempotency(context.Background(), db, owner, idempotencyScope, key, time.Now().UTC())
	if err != nil {
		t.Fatalf("idempotency record not stored: %v", err)
	}
	if rec.SubmissionID != resp.Submission.ID {
		t.Fatalf("record points at %s, want %s", rec.SubmissionID, resp.Submission.ID)
	}
}

// ---------- Dispatch / Retry ----------

func TestDispatch_ErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", services.ErrSubmissionNotFound, http.StatusNotFound},
		{"payment required", services.ErrPaymentRequired, http.StatusPaymentRequired},
		{"in flight", services.ErrDispatchInFlight, http.StatusConflict},
		{"internal", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newStubHandlers(nil, nil, nil, stubOrchSvc{
				dispatch: func(context.Context, string) ([]services.DispatchOutcome, error) {
					return nil, tc.err
				},
			}, nil)
			r := gin.New()
			r.POST("/federation/submissions/:id/dispatch", h.DispatchSubmission)

			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/federation/submissions/"+uuid.NewString()+"/dispatch", nil)
			r.ServeHTTP(w, req)
			if w.Code != tc.want {
				t.Fatalf("%s -> %d, want %d", tc.name, w.Code, tc.want)
			}
		})
	}

	// Non-UUID id short-circuits to 400
	h := newStubHandlers(nil, nil, nil, nil, nil)
	r := gin.New()
	r.POST("/federation/submissions/:id/dispatch", h.DispatchSubmission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions/nope/dispatch", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad id -> %d", w.Code)
	}
}

func TestDispatch_Success_OutcomesBody(t *testing.T) {
	gin.SetMode(gin.TestMode)

	id := uuid.NewString()
	h := newStubHandlers(nil, nil, nil, stubOrchSvc{
		dispatch: func(_ context.Context, gotID string) ([]services.DispatchOutcome, error) {
			return []services.DispatchOutcome{
				{InstanceURL: "https://a.example", DirectoryID: "main", State: domain.ResultSubmitted, RemoteID: "r-1"},
				{InstanceURL: "https://b.example", DirectoryID: "startups", State: domain.ResultFailed, Error: "partner unreachable"},
			}, nil
		},
	}, nil)
	r := gin.New()
	r.POST("/federation/submissions/:id/dispatch", h.DispatchSubmission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions/"+id+"/dispatch", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("dispatch -> %d", w.Code)
	}

	var resp DispatchResponse
	mustDecode(t, w, &resp)
	if resp.SubmissionID != id || len(resp.Outcomes) != 2 {
		t.Fatalf("bad dispatch body: %+v", resp)
	}
	// Partner failure is data, not an HTTP error.
	if resp.Outcomes[1].State != domain.ResultFailed || resp.Outcomes[1].Error == "" {
		t.Fatalf("failed outcome not reported: %+v", resp.Outcomes[1])
	}
}

func TestRetry_UsesRetryFailed(t *testing.T) {
	gin.SetMode(gin.TestMode)

	retried := false
	h := newStubHandlers(nil, nil, nil, stubOrchSvc{
		retry: func(context.Context, string) ([]services.DispatchOutcome, error) {
			retried = true
			return nil, nil
		},
		dispatch: func(context.Context, string) ([]services.DispatchOutcome, error) {
			t.Fatal("retry must not call Dispatch")
			return nil, nil
		},
	}, nil)
	r := gin.New()
	r.POST("/federation/submissions/:id/retry", h.RetrySubmission)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/federation/submissions/"+uuid.NewString()+"/retry", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || !retried {
		t.Fatalf("retry -> %d retried=%v", w.Code, retried)
	}
}

// ---------- GetSubmission ----------

func TestGetSubmission_BadID_Unknown_Success_ETag(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// Non-UUID id -> 400
	{
		h := newStubHandlers(nil, nil, nil, nil, nil)
		r := gin.New()
		r.GET("/federation/submissions/:id", h.GetSubmission)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/federation/submissions/nope", nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("bad id -> %d", w.Code)
		}
	}

	// Unknown id -> 404
	{
		h := newStubHandlers(nil, nil, nil, nil, stubStatusSvc{
			get: func(context.Context, string) (*services.SubmissionStatus, error) {
				return nil, nil
			},
		})
		r := gin.New()
		r.GET("/federation/submissions/:id", h.GetSubmission)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/federation/submissions/"+uuid.NewString(), nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotFound {
			t.Fatalf("unknown id -> %d", w.Code)
		}
	}

	// Real service: 200 with ETag, then 304 on If-None-Match
	{
		db := newHandlerDB(t)
		sub, err := repo.CreateFederatedSubmission(context.Background(),
			db,
			&domain.FederatedSubmission{
				OwnerID:       "owner-1",
				SubmissionURL: "https://example.com/app",
				Currency:      "USD",
				Status:        domain.SubmissionPendingSubmission,
			},
			[]repo.NewTarget{{InstanceURL: "https://a.example", DirectoryID: "main", FeeCurrency: "USD"}},
		)
		if err != nil {
			t.Fatalf("seed submission: %v", err)
		}

		h := newStubHandlers(db, nil, nil, nil, services.NewStatusService(db))
		r := gin.New()
		r.GET("/federation/submissions/:id", h.GetSubmission)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/federation/submissions/"+sub.ID, nil)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("get -> %d body=%s", w.Code, w.Body.String())
		}
		etag := w.Header().Get("ETag")
		if etag == "" {
			t.Fatalf("expected ETag header")
		}

		var status services.SubmissionStatus
		mustDecode(t, w, &status)
		if status.Submission.ID != sub.ID {
			t.Fatalf("bad status body: %+v", status)
		}

		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/federation/submissions/"+sub.ID, nil)
		req.Header.Set("If-None-Match", etag)
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNotModified {
			t.Fatalf("conditional get -> %d", w.Code)
		}
	}
}
