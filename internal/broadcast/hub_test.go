package broadcast

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/uptix/hub/internal/models"
)

func testHub(buffer int) *Hub {
	return NewHub(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func recv(t *testing.T, s *Subscriber) models.Event {
	t.Helper()
	select {
	case msg, ok := <-s.C():
		if !ok {
			t.Fatal("subscriber channel closed")
		}
		var ev models.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("decode event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return models.Event{}
}

func TestPublishReachesAllSubscribersInOrder(t *testing.T) {
	h := testHub(8)
	a, b := h.Subscribe(), h.Subscribe()

	for _, name := range []string{"web-1", "web-2", "web-3"} {
		if err := h.Publish(models.EventMetricsUpdate, models.Snapshot{ServerName: name}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	for _, s := range []*Subscriber{a, b} {
		for _, want := range []string{"web-1", "web-2", "web-3"} {
			ev := recv(t, s)
			if ev.Event != models.EventMetricsUpdate {
				t.Fatalf("unexpected event %q", ev.Event)
			}
			var snap models.Snapshot
			if err := json.Unmarshal(ev.Data, &snap); err != nil {
				t.Fatalf("decode snapshot: %v", err)
			}
			if snap.ServerName != want {
				t.Fatalf("expected %s, got %s", want, snap.ServerName)
			}
		}
	}
}

func TestPublishWithoutSubscribers(t *testing.T) {
	h := testHub(1)
	if err := h.Publish(models.EventMetricsUpdate, models.Snapshot{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

func TestSlowSubscriberIsDropped(t *testing.T) {
	h := testHub(1)
	slow := h.Subscribe()
	fast := h.Subscribe()

	h.Publish(models.EventMetricsUpdate, models.Snapshot{ServerName: "a"})
	recv(t, fast)

	done := make(chan struct{})
	go func() {
		h.Publish(models.EventMetricsUpdate, models.Snapshot{ServerName: "b"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	if h.Len() != 1 {
		t.Fatalf("expected slow subscriber removed, %d left", h.Len())
	}
	<-slow.C()
	if _, ok := <-slow.C(); ok {
		t.Fatal("expected dropped subscriber channel to be closed")
	}
	if ev := recv(t, fast); ev.Event != models.EventMetricsUpdate {
		t.Fatalf("fast subscriber missed event: %+v", ev)
	}
}

func TestUnsubscribeAndClose(t *testing.T) {
	h := testHub(4)
	s := h.Subscribe()
	h.Unsubscribe(s)
	h.Unsubscribe(s)
	if _, ok := <-s.C(); ok {
		t.Fatal("expected closed channel after unsubscribe")
	}

	other := h.Subscribe()
	h.Close()
	if _, ok := <-other.C(); ok {
		t.Fatal("expected closed channel after hub close")
	}
	late := h.Subscribe()
	if _, ok := <-late.C(); ok {
		t.Fatal("expected subscribe after close to return a closed subscriber")
	}
}

func TestPublishEncodingError(t *testing.T) {
	h := testHub(1)
	if err := h.Publish("bad", make(chan int)); err == nil {
		t.Fatal("expected unencodable payload to fail")
	}
}
