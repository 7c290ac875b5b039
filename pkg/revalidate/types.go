// Package revalidate implements the core revalidation dispatch logic:
// endpoint configuration resolution, event-to-slug mapping, the outbound
// revalidation client, and the batch dispatcher.
package revalidate

import "fmt"

// Target is a logical page slug on the rendering frontend (e.g. "/blog/my-post").
type Target string

// Outcome status values for a single revalidation attempt.
const (
	StatusSuccess        = "success"
	StatusHTTPError      = "http_error"
	StatusTransportError = "transport_error"
	StatusSkipped        = "skipped"
)

// Outcome is the result of one revalidation attempt for one target.
type Outcome struct {
	Target Target `json:"target"`
	Status string `json:"status"`
	// Code is the HTTP status code for http_error (and 200 for success).
	Code int `json:"code,omitempty"`
	// Reason holds a short diagnostic for transport_error, skipped, and
	// http_error (response body excerpt when available).
	Reason string `json:"reason,omitempty"`
}

// OK reports whether the attempt succeeded.
func (o Outcome) OK() bool {
	return o.Status == StatusSuccess
}

// String renders the outcome for logs.
func (o Outcome) String() string {
	switch o.Status {
	case StatusSuccess:
		return fmt.Sprintf("%s: success", o.Target)
	case StatusHTTPError:
		return fmt.Sprintf("%s: http %d (%s)", o.Target, o.Code, o.Reason)
	default:
		return fmt.Sprintf("%s: %s (%s)", o.Target, o.Status, o.Reason)
	}
}

// DispatchResult is the set of outcomes for one dispatched batch. Each
// deduplicated target appears exactly once; completion order is not
// input order.
type DispatchResult []Outcome

// Succeeded counts successful outcomes.
func (r DispatchResult) Succeeded() int {
	n := 0
	for _, o := range r {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts http_error and transport_error outcomes. Skipped
// outcomes are neither success nor failure.
func (r DispatchResult) Failed() int {
	n := 0
	for _, o := range r {
		if o.Status == StatusHTTPError || o.Status == StatusTransportError {
			n++
		}
	}
	return n
}

// Summary renders a one-line summary for logs and control responses.
func (r DispatchResult) Summary() string {
	return fmt.Sprintf("%d targets: %d succeeded, %d failed, %d skipped",
		len(r), r.Succeeded(), r.Failed(), len(r)-r.Succeeded()-r.Failed())
}

// EndpointConfig is the resolved frontend endpoint. Either field may be
// empty when no source provides it; Complete gates all network activity.
type EndpointConfig struct {
	BaseURL string
	Secret  string
}

// Complete reports whether both fields are present.
func (c EndpointConfig) Complete() bool {
	return c.BaseURL != "" && c.Secret != ""
}
