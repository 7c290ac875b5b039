package events

import (
	"context"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/revalidation-dispatch/pkg/commsutil"
)

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("events:source_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("events:source_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("events:source_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func TestCommsSource_DeliversEvents(t *testing.T) {
	nc, cleanup := startTestServer(t, 14250)
	defer cleanup()

	received := make(chan *ChangeEvent, 1)
	source := NewCommsSource(nc, commsutil.SubjectContentChangedAll)
	sub, err := source.Subscribe(context.Background(), func(_ context.Context, event *ChangeEvent) {
		received <- event
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	event := NewPostTransition("post", "my-post", "draft", "publish", false)
	data, err := commsutil.EncodePayload(event)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := nc.Publish(commsutil.BuildContentSubject("post"), data); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.Kind != KindPostTransition {
			t.Errorf("Kind = %q, want post_transition", got.Kind)
		}
		if got.Post == nil || got.Post.Slug != "my-post" {
			t.Errorf("unexpected payload %+v", got.Post)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestCommsSource_DropsMalformedPayload(t *testing.T) {
	nc, cleanup := startTestServer(t, 14251)
	defer cleanup()

	received := make(chan *ChangeEvent, 1)
	source := NewCommsSource(nc, commsutil.SubjectContentChangedAll)
	sub, err := source.Subscribe(context.Background(), func(_ context.Context, event *ChangeEvent) {
		received <- event
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := nc.Publish(commsutil.BuildContentSubject("post"), []byte("not json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	// Event without a kind is also dropped.
	if err := nc.Publish(commsutil.BuildContentSubject("post"), []byte(`{"timestamp":"x"}`)); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	nc.Flush()

	select {
	case got := <-received:
		t.Fatalf("expected no delivery, got %+v", got)
	case <-time.After(300 * time.Millisecond):
	}
}
