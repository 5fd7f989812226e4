package event

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/HerbHall/netsweep/pkg/plugin"
	"go.uber.org/zap"
)

func TestBus_PublishMatching(t *testing.T) {
	bus := NewBus(zap.NewNop())

	var exact, prefix, all, other int32
	bus.Subscribe("discovery.device.discovered", func(context.Context, plugin.Event) { atomic.AddInt32(&exact, 1) })
	bus.Subscribe("discovery.*", func(context.Context, plugin.Event) { atomic.AddInt32(&prefix, 1) })
	bus.SubscribeAll(func(context.Context, plugin.Event) { atomic.AddInt32(&all, 1) })
	bus.Subscribe("snapshot.*", func(context.Context, plugin.Event) { atomic.AddInt32(&other, 1) })

	if err := bus.Publish(context.Background(), plugin.Event{Topic: "discovery.device.discovered"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	tests := []struct {
		name string
		got  int32
		want int32
	}{
		{"exact", exact, 1},
		{"prefix", prefix, 1},
		{"all", all, 1},
		{"other", other, 0},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s handler calls = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var calls int32
	unsub := bus.Subscribe("a", func(context.Context, plugin.Event) { atomic.AddInt32(&calls, 1) })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "a"})
	unsub()
	unsub()
	_ = bus.Publish(context.Background(), plugin.Event{Topic: "a"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestBus_PanicRecovered(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var after int32
	bus.Subscribe("a", func(context.Context, plugin.Event) { panic("boom") })
	bus.Subscribe("a", func(context.Context, plugin.Event) { atomic.AddInt32(&after, 1) })

	_ = bus.Publish(context.Background(), plugin.Event{Topic: "a"})
	if after != 1 {
		t.Errorf("handler after panicking one ran %d times, want 1", after)
	}
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewBus(zap.NewNop())
	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe("a", func(context.Context, plugin.Event) { wg.Done() })
	bus.SubscribeAll(func(context.Context, plugin.Event) { wg.Done() })

	bus.PublishAsync(context.Background(), plugin.Event{Topic: "a"})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("async handlers did not run")
	}
}
