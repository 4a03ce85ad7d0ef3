// Package services defines the business logic of the federation subsystem:
// partner registry, directory discovery, cost calculation, submission
// orchestration, retry, and status aggregation. This file centralizes common
// service-level error values so that they can be consistently returned by
// service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer. Partner-level failures (timeouts, non-2xx responses) are deliberately
// NOT represented here: they are recorded as data on FederationResult rows and
// never surface as errors from dispatch or discovery.
package services

import "errors"

// Validation errors: bad input, never retried, surfaced verbatim.
var (
	// ErrEmptyDirectorySet is returned when a cost calculation or submission
	// is requested with no directories selected.
	ErrEmptyDirectorySet = errors.New("no directories selected")

	// ErrCurrencyMismatch is returned when selected directories carry fees in
	// more than one currency. This subsystem does not convert currencies.
	ErrCurrencyMismatch = errors.New("selected directories have mismatched currencies")

	// ErrInvalidCurrency is returned when a fee carries an unknown ISO-4217
	// currency code.
	ErrInvalidCurrency = errors.New("invalid currency code")

	// ErrNegativeFee is returned when a selected directory carries a negative fee.
	ErrNegativeFee = errors.New("fee amount must not be negative")

	// ErrInvalidBaseURL is returned when an instance base URL is not an
	// absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("base URL must be an absolute http(s) URL")

	// ErrInvalidContactEmail is returned when a registration carries a
	// malformed contact email.
	ErrInvalidContactEmail = errors.New("contact email is invalid")

	// ErrInvalidStatus is returned when an instance status transition names
	// an unknown status.
	ErrInvalidStatus = errors.New("unknown instance status")

	// ErrMissingSubmissionURL is returned when a federated submission lacks a
	// canonical URL.
	ErrMissingSubmissionURL = errors.New("submission URL is required")

	// ErrMissingOwner is returned when a federated submission lacks an owner
	// reference.
	ErrMissingOwner = errors.New("submission owner is required")
)

// Not-found errors: surfaced, not retried.
var (
	// ErrInstanceNotFound indicates that the requested federation instance
	// does not exist.
	ErrInstanceNotFound = errors.New("federation instance not found")

	// ErrSubmissionNotFound indicates that the requested federated submission
	// does not exist.
	ErrSubmissionNotFound = errors.New("federated submission not found")
)

// Orchestration errors.
var (
	// ErrPaymentRequired is returned by dispatch when the submission is still
	// awaiting settlement of its payment session.
	ErrPaymentRequired = errors.New("payment session not settled")

	// ErrPaymentSession is returned when the payment gateway refuses to open
	// a session. The submission stays in pending_payment.
	ErrPaymentSession = errors.New("payment session could not be created")

	// ErrDispatchInFlight is returned when a dispatch or retry is already
	// running for the same submission. Callers must not run both concurrently
	// for one id.
	ErrDispatchInFlight = errors.New("dispatch already in flight for this submission")
)
