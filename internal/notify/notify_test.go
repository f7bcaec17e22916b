package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"studymate/internal/alarms"
	logx "studymate/pkg/logx"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []Notification
	err  error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Send(ctx context.Context, n Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, n)
	return nil
}

func TestChannelForMapsCategories(t *testing.T) {
	t.Parallel()
	tests := []struct {
		category   alarms.Category
		id         string
		importance string
	}{
		{alarms.CategoryClass, "classes", "high"},
		{alarms.CategoryTask, "tasks", "default"},
		{alarms.CategoryPomodoro, "pomodoro", "high"},
		{alarms.Category(99), "general", "default"},
	}
	for _, tt := range tests {
		ch := ChannelFor(tt.category)
		if ch.ID != tt.id || ch.Importance != tt.importance {
			t.Fatalf("ChannelFor(%v) = %+v", tt.category, ch)
		}
	}
}

func TestDeliverFansOutAndRecordsHistory(t *testing.T) {
	t.Parallel()
	svc, err := New(Config{RatePerSec: 100}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sink := &recordingSink{}
	svc.addSink(sink)

	reg := alarms.Registration{
		Key:      alarms.NewKey(alarms.CategoryPomodoro, 1),
		Title:    "Focus time finished",
		Body:     "Time to take a break!",
		Category: alarms.CategoryPomodoro,
	}
	svc.Deliver(context.Background(), reg)

	if len(sink.sent) != 1 {
		t.Fatalf("expected 1 sink delivery, got %d", len(sink.sent))
	}
	if sink.sent[0].Channel != "pomodoro" || sink.sent[0].Importance != "high" {
		t.Fatalf("unexpected notification: %+v", sink.sent[0])
	}

	recent := svc.Recent(10)
	if len(recent) != 1 || recent[0].Title != "Focus time finished" {
		t.Fatalf("unexpected history: %+v", recent)
	}
}

func TestDeliverSurvivesSinkFailure(t *testing.T) {
	t.Parallel()
	svc, err := New(Config{RatePerSec: 100}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	broken := &recordingSink{err: errors.New("offline")}
	ok := &recordingSink{}
	svc.addSink(broken)
	svc.addSink(ok)

	svc.Deliver(context.Background(), alarms.Registration{Title: "t", Category: alarms.CategoryTask})

	if len(ok.sent) != 1 {
		t.Fatalf("healthy sink skipped after broken sink: %d", len(ok.sent))
	}
}

func TestRateLimitSkipsExternalSinksOnly(t *testing.T) {
	t.Parallel()
	svc, err := New(Config{RatePerSec: 1}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sink := &recordingSink{}
	svc.addSink(sink)

	for i := 0; i < 5; i++ {
		svc.Deliver(context.Background(), alarms.Registration{Title: "t", Category: alarms.CategoryTask})
	}

	if len(sink.sent) >= 5 {
		t.Fatalf("rate limit did not bound sink deliveries: %d", len(sink.sent))
	}
	// History keeps everything regardless of the limiter.
	if got := len(svc.Recent(0)); got != 5 {
		t.Fatalf("history should keep all deliveries, got %d", got)
	}
}
