package notify_test

import (
	"context"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/johnwards/hsevents/internal/notify"
)

func TestPublishSubscribe(t *testing.T) {
	n := notify.New(nil)
	t.Cleanup(func() { _ = n.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, err := n.Subscribe(ctx, notify.TopicSyncCompleted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	want := notify.Summary{Success: true, SyncType: "full", Created: 3}
	if err := n.Publish(ctx, notify.TopicSyncCompleted, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-msgs:
		var got notify.Summary
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Errorf("payload = %+v, want %+v", got, want)
		}
		if msg.UUID == "" {
			t.Error("message has no id")
		}
		msg.Ack()
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublishWithoutSubscriber(t *testing.T) {
	n := notify.New(nil)
	t.Cleanup(func() { _ = n.Close() })

	if err := n.Publish(context.Background(), notify.TopicFirstSyncCompleted, map[string]int{"created": 1}); err != nil {
		t.Errorf("publish: %v", err)
	}
}

func TestLogSubscriberStopsOnCancel(t *testing.T) {
	n := notify.New(nil)
	t.Cleanup(func() { _ = n.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- notify.NewLogSubscriber(n, nil).Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	if err := n.Publish(ctx, notify.TopicSyncCompleted, notify.Summary{Success: true}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Serve() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
