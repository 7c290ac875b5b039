package revalidate

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/morezero/revalidation-dispatch/pkg/events"
)

const dispatcherLogPrefix = "revalidate:dispatcher"

const (
	defaultWorkers      = 4
	defaultMaxAttempts  = 2
	defaultRetryInitial = 500 * time.Millisecond
	defaultRetryMax     = 4 * time.Second
)

// DispatcherOptions tunes fan-out and retry behavior. Zero values use
// defaults; MaxAttempts 1 disables retries.
type DispatcherOptions struct {
	// Workers bounds concurrent outbound calls per batch.
	Workers int
	// MaxAttempts caps attempts per target (first try included).
	MaxAttempts int
	// RetryInitial and RetryMax bound the exponential backoff between
	// attempts.
	RetryInitial time.Duration
	RetryMax     time.Duration
}

// Dispatcher orchestrates revalidation: it resolves the endpoint once
// per batch, maps events to targets, deduplicates, fans calls out
// through the Notifier with bounded concurrency, and aggregates per-
// target outcomes. A failure on one target never aborts the others.
type Dispatcher struct {
	resolver *Resolver
	mapper   *Mapper
	notifier Notifier
	opts     DispatcherOptions
	stats    Stats
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resolver *Resolver, mapper *Mapper, notifier Notifier, opts DispatcherOptions) *Dispatcher {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryInitial <= 0 {
		opts.RetryInitial = defaultRetryInitial
	}
	if opts.RetryMax <= 0 {
		opts.RetryMax = defaultRetryMax
	}
	if mapper == nil {
		mapper = NewMapper(nil)
	}
	return &Dispatcher{resolver: resolver, mapper: mapper, notifier: notifier, opts: opts}
}

// DispatchEvent maps a change event to its affected targets and
// dispatches them. Events that require no action yield an empty result
// with no network calls.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event *events.ChangeEvent) DispatchResult {
	targets := d.mapper.MapEvent(event)
	if len(targets) == 0 {
		slog.Debug(fmt.Sprintf("%s - event requires no revalidation", dispatcherLogPrefix))
		return nil
	}
	return d.DispatchBatch(ctx, targets)
}

// DispatchBatch deduplicates targets and dispatches the batch. When the
// endpoint configuration is incomplete every target is reported as
// skipped and no network call is made.
func (d *Dispatcher) DispatchBatch(ctx context.Context, targets []Target) DispatchResult {
	targets = Dedupe(targets)
	if len(targets) == 0 {
		return nil
	}

	config := d.resolver.Resolve(ctx)
	if reason := incompleteReason(config); reason != "" {
		slog.Warn(fmt.Sprintf("%s - skipping %d targets: %s", dispatcherLogPrefix, len(targets), reason))
		result := make(DispatchResult, 0, len(targets))
		for _, t := range targets {
			result = append(result, Outcome{Target: t, Status: StatusSkipped, Reason: reason})
		}
		d.stats.record(result)
		return result
	}

	result := make(DispatchResult, 0, len(targets))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for _, target := range targets {
		target := target
		g.Go(func() error {
			outcome := d.notifyWithRetry(gctx, target, config)
			mu.Lock()
			result = append(result, outcome)
			mu.Unlock()
			return nil
		})
	}
	// Workers never return errors; outcomes carry all failures.
	g.Wait()

	d.stats.record(result)
	slog.Info(fmt.Sprintf("%s - batch done, %s", dispatcherLogPrefix, result.Summary()))
	return result
}

// Stats returns running outcome totals since startup.
func (d *Dispatcher) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}

// notifyWithRetry performs up to MaxAttempts calls for one target with
// exponential backoff between attempts. Only transport errors and 5xx
// responses are retried; the dedup key of the batch is unaffected.
func (d *Dispatcher) notifyWithRetry(ctx context.Context, target Target, config EndpointConfig) Outcome {
	delay := d.opts.RetryInitial
	var outcome Outcome
	for attempt := 1; ; attempt++ {
		outcome = d.notifier.Notify(ctx, target, config)
		if !retryable(outcome) || attempt >= d.opts.MaxAttempts {
			return outcome
		}
		slog.Warn(fmt.Sprintf("%s - retrying %s after attempt %d: %s", dispatcherLogPrefix, target, attempt, outcome))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Outcome{Target: target, Status: StatusTransportError, Reason: "timeout"}
		}
		if delay < d.opts.RetryMax {
			delay *= 2
			if delay > d.opts.RetryMax {
				delay = d.opts.RetryMax
			}
		}
	}
}

// retryable reports whether an outcome is worth another attempt:
// transport failures and 5xx. 4xx means the frontend rejected the
// request and will keep rejecting it.
func retryable(o Outcome) bool {
	if o.Status == StatusTransportError {
		return true
	}
	return o.Status == StatusHTTPError && o.Code >= 500
}

// Dedupe removes duplicate targets (case-sensitive exact match),
// keeping first-seen order.
func Dedupe(targets []Target) []Target {
	seen := make(map[Target]struct{}, len(targets))
	out := make([]Target, 0, len(targets))
	for _, t := range targets {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// incompleteReason names what is missing from the endpoint
// configuration, or returns "" when it is complete.
func incompleteReason(c EndpointConfig) string {
	switch {
	case c.BaseURL == "" && c.Secret == "":
		return "configuration incomplete: base URL and secret not set"
	case c.BaseURL == "":
		return "configuration incomplete: base URL not set"
	case c.Secret == "":
		return "configuration incomplete: secret not set"
	default:
		return ""
	}
}
