package control

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"strings"

	"github.com/morezero/revalidation-dispatch/pkg/revalidate"
)

const logPrefix = "control:handler"

// SettingControlToken is the stored-configuration key for the control
// token.
const SettingControlToken = "control_token"

// Handler routes authenticated control requests to the dispatcher.
type Handler struct {
	dispatcher   *revalidate.Dispatcher
	routes       *revalidate.RouteTable
	tokenSources []revalidate.Source
}

// NewHandler creates a Handler. tokenSources resolves the expected
// control token (override first, then stored configuration); when no
// source yields a token the control surface refuses every request.
func NewHandler(dispatcher *revalidate.Dispatcher, routes *revalidate.RouteTable, tokenSources []revalidate.Source) *Handler {
	if routes == nil {
		routes = revalidate.DefaultRouteTable()
	}
	return &Handler{dispatcher: dispatcher, routes: routes, tokenSources: tokenSources}
}

// Handle authorizes and executes one control request. Authorization is
// checked before the dispatcher is touched.
func (h *Handler) Handle(ctx context.Context, req *ControlRequest) *ControlResponse {
	slog.Debug(fmt.Sprintf("%s - action=%s id=%s", logPrefix, req.Action, req.ID))

	if !h.authorize(ctx, req.Token) {
		return errorResponse(req.ID, "UNAUTHORIZED", "Control token missing or invalid", false)
	}

	switch req.Action {
	case ActionRevalidate:
		return h.handleRevalidate(ctx, req)
	case ActionRevalidateAll:
		return h.handleRevalidateAll(ctx, req)
	case ActionHealth:
		stats := h.dispatcher.Stats()
		return &ControlResponse{ID: req.ID, Ok: true, Message: "ok", Stats: &stats}
	default:
		return errorResponse(req.ID, "UNKNOWN_ACTION", fmt.Sprintf("Unknown action: %s", req.Action), false)
	}
}

func (h *Handler) handleRevalidate(ctx context.Context, req *ControlRequest) *ControlResponse {
	var params RevalidateParams
	if len(req.Params) > 0 {
		if err := decodeParams(req.Params, &params); err != nil {
			return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse revalidate params", false)
		}
	}

	targets := make([]revalidate.Target, 0, len(params.Slugs)+1)
	if params.Slug != "" {
		targets = append(targets, revalidate.Target(params.Slug))
	}
	for _, s := range params.Slugs {
		targets = append(targets, revalidate.Target(s))
	}
	if len(targets) == 0 {
		return errorResponse(req.ID, "INVALID_ARGUMENT", "No slug given", false)
	}

	result := h.dispatcher.DispatchBatch(ctx, targets)
	message := "batch clearing initiated, " + result.Summary()
	if len(targets) == 1 {
		message = fmt.Sprintf("single revalidation triggered for %s", targets[0])
	}
	return resultResponse(req.ID, message, result)
}

func (h *Handler) handleRevalidateAll(ctx context.Context, req *ControlRequest) *ControlResponse {
	var params RevalidateAllParams
	if len(req.Params) > 0 {
		if err := decodeParams(req.Params, &params); err != nil {
			return errorResponse(req.ID, "INVALID_ARGUMENT", "Failed to parse revalidateAll params", false)
		}
	}

	targets := append([]revalidate.Target{}, h.routes.CommonSlugs...)
	for _, s := range params.RecentSlugs {
		targets = append(targets, revalidate.Target(s))
	}

	result := h.dispatcher.DispatchBatch(ctx, targets)
	return resultResponse(req.ID, "batch clearing initiated, "+result.Summary(), result)
}

// authorize compares the presented token with the resolved one in
// constant time. An unset token disables the control surface entirely.
func (h *Handler) authorize(ctx context.Context, presented string) bool {
	expected := revalidate.FirstNonEmpty(ctx, h.tokenSources)
	if expected == "" {
		slog.Warn(fmt.Sprintf("%s - control token not configured, refusing request", logPrefix))
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
}

// --- helpers ---

func resultResponse(id, message string, result revalidate.DispatchResult) *ControlResponse {
	if configIncomplete(result) {
		return &ControlResponse{
			ID:       id,
			Ok:       false,
			Message:  message,
			Outcomes: result,
			Error: &ErrorDetail{
				Code:      "CONFIG_INCOMPLETE",
				Message:   result[0].Reason,
				Retryable: false,
			},
		}
	}
	return &ControlResponse{
		ID:       id,
		Ok:       result.Failed() == 0,
		Message:  message,
		Outcomes: result,
	}
}

// configIncomplete reports whether the whole batch was skipped for
// missing endpoint configuration.
func configIncomplete(result revalidate.DispatchResult) bool {
	if len(result) == 0 {
		return false
	}
	for _, o := range result {
		if o.Status != revalidate.StatusSkipped || !strings.HasPrefix(o.Reason, "configuration incomplete") {
			return false
		}
	}
	return true
}

func errorResponse(id, code, message string, retryable bool) *ControlResponse {
	return &ControlResponse{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}
