// Package control implements the operator control surface: an
// authenticated request/reply envelope for manual revalidation,
// delivered over COMMS.
package control

import (
	"encoding/json"

	"github.com/morezero/revalidation-dispatch/pkg/revalidate"
)

// Control actions.
const (
	ActionRevalidate    = "revalidate"
	ActionRevalidateAll = "revalidateAll"
	ActionHealth        = "health"
)

// ControlRequest is the JSON envelope for incoming control requests.
// Token authenticates the caller and is checked before any dispatch.
type ControlRequest struct {
	ID     string          `json:"id"`
	Token  string          `json:"token"`
	Action string          `json:"action"`
	Params json.RawMessage `json:"params,omitempty"`
}

// RevalidateParams carries an explicit slug or slug list for the
// revalidate action.
type RevalidateParams struct {
	Slug  string   `json:"slug,omitempty"`
	Slugs []string `json:"slugs,omitempty"`
}

// RevalidateAllParams carries optional recently-published slugs the CMS
// side computed; they are unioned with the configured common slugs.
type RevalidateAllParams struct {
	RecentSlugs []string `json:"recentSlugs,omitempty"`
}

// ControlResponse is the JSON envelope for control responses.
type ControlResponse struct {
	ID       string                    `json:"id"`
	Ok       bool                      `json:"ok"`
	Message  string                    `json:"message,omitempty"`
	Outcomes revalidate.DispatchResult `json:"outcomes,omitempty"`
	Stats    *revalidate.StatsSnapshot `json:"stats,omitempty"`
	Error    *ErrorDetail              `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func decodeParams(raw json.RawMessage, v interface{}) error {
	return json.Unmarshal(raw, v)
}
