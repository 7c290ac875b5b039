package control

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/morezero/revalidation-dispatch/pkg/revalidate"
)

// recordingNotifier records notified targets and always succeeds.
type recordingNotifier struct {
	mu      sync.Mutex
	targets []revalidate.Target
}

func (r *recordingNotifier) Notify(_ context.Context, target revalidate.Target, _ revalidate.EndpointConfig) revalidate.Outcome {
	r.mu.Lock()
	r.targets = append(r.targets, target)
	r.mu.Unlock()
	return revalidate.Outcome{Target: target, Status: revalidate.StatusSuccess, Code: http.StatusOK}
}

func (r *recordingNotifier) seen() []revalidate.Target {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]revalidate.Target{}, r.targets...)
}

func newTestHandler(notifier revalidate.Notifier, token string) *Handler {
	resolver := revalidate.NewResolver("https://example.com", "s3cret", nil)
	d := revalidate.NewDispatcher(resolver, nil, notifier, revalidate.DispatcherOptions{MaxAttempts: 1})
	return NewHandler(d, nil, []revalidate.Source{revalidate.StaticSource(token)})
}

func rawParams(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return data
}

func TestHandle_RejectsBadToken(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newTestHandler(notifier, "right-token")

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-1",
		Token:  "wrong-token",
		Action: ActionRevalidate,
		Params: rawParams(t, RevalidateParams{Slug: "/blog"}),
	})

	if resp.Ok {
		t.Error("expected ok=false")
	}
	if resp.Error == nil || resp.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED, got %+v", resp.Error)
	}
	if len(notifier.seen()) != 0 {
		t.Errorf("dispatcher must not be touched, saw %v", notifier.seen())
	}
}

func TestHandle_RefusesWhenNoTokenConfigured(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newTestHandler(notifier, "")

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-1",
		Token:  "",
		Action: ActionHealth,
	})

	if resp.Error == nil || resp.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED when no token configured, got %+v", resp.Error)
	}
}

func TestHandle_RevalidateSingle(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newTestHandler(notifier, "tok")

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-2",
		Token:  "tok",
		Action: ActionRevalidate,
		Params: rawParams(t, RevalidateParams{Slug: "/blog/my-post"}),
	})

	if !resp.Ok {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if resp.Message != "single revalidation triggered for /blog/my-post" {
		t.Errorf("Message = %q", resp.Message)
	}
	if len(resp.Outcomes) != 1 || resp.Outcomes[0].Target != "/blog/my-post" {
		t.Errorf("Outcomes = %v", resp.Outcomes)
	}
	if resp.ID != "req-2" {
		t.Errorf("ID = %q, want req-2", resp.ID)
	}
}

func TestHandle_RevalidateList(t *testing.T) {
	notifier := &recordingNotifier{}
	h := newTestHandler(notifier, "tok")

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-3",
		Token:  "tok",
		Action: ActionRevalidate,
		Params: rawParams(t, RevalidateParams{Slugs: []string{"/", "/blog"}}),
	})

	if !resp.Ok {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if !strings.HasPrefix(resp.Message, "batch clearing initiated") {
		t.Errorf("Message = %q, want batch message", resp.Message)
	}
	if len(resp.Outcomes) != 2 {
		t.Errorf("expected 2 outcomes, got %d", len(resp.Outcomes))
	}
}

func TestHandle_RevalidateWithoutSlug(t *testing.T) {
	h := newTestHandler(&recordingNotifier{}, "tok")

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-4",
		Token:  "tok",
		Action: ActionRevalidate,
	})

	if resp.Error == nil || resp.Error.Code != "INVALID_ARGUMENT" {
		t.Fatalf("expected INVALID_ARGUMENT, got %+v", resp.Error)
	}
}

func TestHandle_RevalidateAll_UnionsCommonAndRecent(t *testing.T) {
	notifier := &recordingNotifier{}
	resolver := revalidate.NewResolver("https://example.com", "s3cret", nil)
	d := revalidate.NewDispatcher(resolver, nil, notifier, revalidate.DispatcherOptions{MaxAttempts: 1})
	routes := &revalidate.RouteTable{
		Prefixes:    map[string]string{"post": "/blog"},
		ListingSlug: "/blog",
		CommonSlugs: []revalidate.Target{"/", "/blog"},
	}
	h := NewHandler(d, routes, []revalidate.Source{revalidate.StaticSource("tok")})

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-5",
		Token:  "tok",
		Action: ActionRevalidateAll,
		Params: rawParams(t, RevalidateAllParams{RecentSlugs: []string{"/blog/latest", "/blog"}}),
	})

	if !resp.Ok {
		t.Fatalf("expected ok, got %+v", resp)
	}
	// "/blog" appears in both sets; dedup leaves 3 targets.
	if len(resp.Outcomes) != 3 {
		t.Errorf("expected 3 outcomes after dedup, got %d (%v)", len(resp.Outcomes), resp.Outcomes)
	}
	if !strings.HasPrefix(resp.Message, "batch clearing initiated") {
		t.Errorf("Message = %q, want batch message", resp.Message)
	}
}

func TestHandle_ConfigIncomplete(t *testing.T) {
	notifier := &recordingNotifier{}
	resolver := revalidate.NewResolver("", "", nil)
	d := revalidate.NewDispatcher(resolver, nil, notifier, revalidate.DispatcherOptions{MaxAttempts: 1})
	h := NewHandler(d, nil, []revalidate.Source{revalidate.StaticSource("tok")})

	resp := h.Handle(context.Background(), &ControlRequest{
		ID:     "req-6",
		Token:  "tok",
		Action: ActionRevalidate,
		Params: rawParams(t, RevalidateParams{Slug: "/blog"}),
	})

	if resp.Ok {
		t.Error("expected ok=false for incomplete configuration")
	}
	if resp.Error == nil || resp.Error.Code != "CONFIG_INCOMPLETE" {
		t.Fatalf("expected CONFIG_INCOMPLETE, got %+v", resp.Error)
	}
	if len(notifier.seen()) != 0 {
		t.Errorf("expected zero network calls, saw %v", notifier.seen())
	}
}

func TestHandle_Health(t *testing.T) {
	h := newTestHandler(&recordingNotifier{}, "tok")

	resp := h.Handle(context.Background(), &ControlRequest{ID: "req-7", Token: "tok", Action: ActionHealth})

	if !resp.Ok || resp.Message != "ok" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Stats == nil {
		t.Error("expected stats snapshot")
	}
}

func TestHandle_UnknownAction(t *testing.T) {
	h := newTestHandler(&recordingNotifier{}, "tok")

	resp := h.Handle(context.Background(), &ControlRequest{ID: "req-8", Token: "tok", Action: "purgeEverything"})

	if resp.Error == nil || resp.Error.Code != "UNKNOWN_ACTION" {
		t.Fatalf("expected UNKNOWN_ACTION, got %+v", resp.Error)
	}
}

func TestControlRequest_Unmarshal(t *testing.T) {
	raw := `{
		"id": "req-9",
		"token": "tok",
		"action": "revalidate",
		"params": {"slug": "/blog/my-post"}
	}`

	var req ControlRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("failed to unmarshal: %v", err)
	}
	if req.Action != "revalidate" {
		t.Errorf("expected action revalidate, got %s", req.Action)
	}

	var params RevalidateParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		t.Fatalf("failed to unmarshal params: %v", err)
	}
	if params.Slug != "/blog/my-post" {
		t.Errorf("expected /blog/my-post, got %s", params.Slug)
	}
}
