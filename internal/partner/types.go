// Package partner implements the HTTP client for the federation API exposed
// by remote partner instances: directory listing, submission, and health
// pings. It owns the wire types of that API; nothing outside this package
// builds partner requests.
package partner

import "time"

// Fee is a submission fee in integer minor units of an ISO-4217 currency.
type Fee struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// RemoteDirectory is a publishing target advertised by a partner instance.
// Directories are fetched on demand and cached briefly by the catalog; they
// are not persisted. InstanceURL is filled in by the caller, not the wire.
type RemoteDirectory struct {
	InstanceURL string `json:"instance_url"`
	ID          string `json:"id"`
	Name        string `json:"name"`
	Category    string `json:"category"`
	Fee         Fee    `json:"fee"`
}

// directoriesResponse is the body of GET /federation/directories.
type directoriesResponse struct {
	Directories []RemoteDirectory `json:"directories"`
}

// SubmitRequest is the body of POST /federation/submit.
type SubmitRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	DirectoryID string `json:"directory_id"`
}

// SubmitResponse is the body returned by a partner that accepted (or
// explicitly rejected) a submission.
type SubmitResponse struct {
	Success      bool   `json:"success"`
	SubmissionID string `json:"submission_id"`
	Status       string `json:"status"`
}

// PingResult reports the outcome of a health ping. Pings never fail with an
// error: unreachable partners are reported through Healthy/Error so bulk
// sweeps can continue.
type PingResult struct {
	Healthy    bool          `json:"healthy"`
	Version    string        `json:"version,omitempty"`
	Compatible bool          `json:"compatible"`
	Latency    time.Duration `json:"latency"`
	Error      string        `json:"error,omitempty"`
}

// healthResponse is the body of GET /federation/health.
type healthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Compatible bool   `json:"compatible"`
}
