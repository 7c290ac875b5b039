package revalidate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const clientLogPrefix = "revalidate:client"

// Protocol contract with the frontend. The header name must not change
// without coordinating the frontend side.
const (
	revalidatePath = "/api/revalidate"
	secretHeader   = "x-vercel-revalidation-secret"
	slugParam      = "slug"
)

const defaultRequestTimeout = 8 * time.Second

// maxDiagnosticBytes bounds how much of an error response body is kept
// as the outcome reason.
const maxDiagnosticBytes = 256

// Notifier performs one revalidation call; the dispatcher fans out
// through this interface so network behavior can be stubbed in tests.
type Notifier interface {
	Notify(ctx context.Context, target Target, config EndpointConfig) Outcome
}

// Client issues revalidation requests against the configured frontend.
// Expected network and HTTP failures are represented in the returned
// Outcome, never as Go errors.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a Client. A nil httpClient gets the default
// transport with an 8s request timeout.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = NewHTTPClient(defaultRequestTimeout)
	}
	return &Client{httpClient: httpClient}
}

// Notify asks the frontend to regenerate the page behind target. It
// performs no retries; retry policy belongs to the dispatcher.
func (c *Client) Notify(ctx context.Context, target Target, config EndpointConfig) Outcome {
	requestURL, err := BuildRequestURL(config.BaseURL, target)
	if err != nil {
		return Outcome{Target: target, Status: StatusSkipped, Reason: err.Error()}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return Outcome{Target: target, Status: StatusSkipped, Reason: fmt.Sprintf("build request: %v", err)}
	}
	req.Header.Set(secretHeader, config.Secret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - %s unreachable: %v", clientLogPrefix, target, err))
		return Outcome{Target: target, Status: StatusTransportError, Reason: transportReason(ctx, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDiagnosticBytes))
		return Outcome{
			Target: target,
			Status: StatusHTTPError,
			Code:   resp.StatusCode,
			Reason: strings.TrimSpace(string(body)),
		}
	}

	slog.Debug(fmt.Sprintf("%s - revalidated %s", clientLogPrefix, target))
	return Outcome{Target: target, Status: StatusSuccess, Code: resp.StatusCode}
}

// BuildRequestURL joins the base URL with the revalidation path and the
// slug query parameter, tolerating a trailing slash on the base. The
// base must be a syntactically valid absolute URL.
func BuildRequestURL(baseURL string, target Target) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return "", fmt.Errorf("base URL %q is not absolute", baseURL)
	}
	u.Path += revalidatePath
	q := u.Query()
	q.Set(slugParam, string(target))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// transportReason distinguishes a caller deadline from other transport
// failures.
func transportReason(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "timeout"
	}
	return err.Error()
}
