package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/user/stitchbot/internal/types"
)

func TestGatewayHandleInbound(t *testing.T) {
	gw := New()
	ctx := context.Background()

	got := make(chan *types.InboundEvent, 1)
	gw.Queue.SetProcessor(func(job *Job) error {
		got <- job.Event
		return nil
	})
	gw.Start(ctx)
	defer gw.Stop()

	inbound := &types.InboundEvent{
		Source:  "test",
		UserID:  123,
		ChatID:  123,
		Command: "end",
	}
	if err := gw.HandleInbound(ctx, inbound); err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-got:
		if ev.Command != "end" {
			t.Errorf("expected command end, got %q", ev.Command)
		}
	case <-time.After(time.Second):
		t.Fatal("event was not processed")
	}
}

func TestGatewaySubmitRunsAfterQueuedEvents(t *testing.T) {
	gw := New(1)
	ctx := context.Background()

	var mu sync.Mutex
	var order []string
	gw.Queue.SetProcessor(func(job *Job) error {
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, "event")
		mu.Unlock()
		return nil
	})
	gw.Start(ctx)
	defer gw.Stop()

	if err := gw.HandleInbound(ctx, &types.InboundEvent{UserID: 5}); err != nil {
		t.Fatal(err)
	}
	done := make(chan struct{})
	if err := gw.Submit(5, func(ctx context.Context) error {
		mu.Lock()
		order = append(order, "task")
		mu.Unlock()
		close(done)
		return nil
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "event" || order[1] != "task" {
		t.Errorf("expected [event task], got %v", order)
	}
}

func TestGatewayWithOnError(t *testing.T) {
	gw := New()
	job := NewJob(&types.InboundEvent{UserID: 1})
	called := false
	WithOnError(func(error) { called = true })(job)
	job.OnError(nil)
	if !called {
		t.Error("expected OnError to be set")
	}
	if gw.Queue == nil {
		t.Error("expected queue to be created")
	}
}
