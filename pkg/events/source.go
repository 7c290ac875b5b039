package events

import (
	"context"
	"fmt"
	"log/slog"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/revalidation-dispatch/pkg/commsutil"
)

const sourceLogPrefix = "events:source"

// Handler consumes one change event. The core exposes this plain
// function shape so it stays independent of how the host delivers
// events (COMMS subscription, direct call, or tests).
type Handler func(ctx context.Context, event *ChangeEvent)

// CommsSource delivers CMS change events from a COMMS subject to a
// Handler.
type CommsSource struct {
	nc      *comms.Conn
	subject string
}

// NewCommsSource creates a CommsSource for the given subject.
func NewCommsSource(nc *comms.Conn, subject string) *CommsSource {
	return &CommsSource{nc: nc, subject: subject}
}

// Subscribe starts delivering events to handle. Malformed payloads are
// logged and dropped; they carry no slug to act on.
func (s *CommsSource) Subscribe(ctx context.Context, handle Handler) (*comms.Subscription, error) {
	sub, err := s.nc.Subscribe(s.subject, func(msg *comms.Msg) {
		var event ChangeEvent
		if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
			slog.Error(fmt.Sprintf("%s - failed to decode event on %s: %v", sourceLogPrefix, s.subject, err))
			return
		}
		if event.Kind == "" {
			slog.Warn(fmt.Sprintf("%s - dropping event without kind on %s", sourceLogPrefix, s.subject))
			return
		}
		handle(ctx, &event)
	})
	if err != nil {
		return nil, fmt.Errorf("%s - failed to subscribe to %s: %w", sourceLogPrefix, s.subject, err)
	}
	slog.Info(fmt.Sprintf("%s - Subscribed to %s", sourceLogPrefix, s.subject))
	return sub, nil
}
