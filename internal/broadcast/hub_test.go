package broadcast

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingMirror struct {
	events []Event
	err    error
}

func (m *recordingMirror) Mirror(_ context.Context, ev Event) error {
	m.events = append(m.events, ev)
	return m.err
}

func TestHubPublishReplaysAndFansOut(t *testing.T) {
	h := NewHub("node-a", 3)
	ctx := context.Background()
	h.Publish(ctx, "g1", EventGameStateUpdate, map[string]any{"n": 1})
	h.Publish(ctx, "g1", EventNumberCalled, map[string]any{"n": 2})

	replay, ch := h.Subscribe("g1", "1")
	defer h.Unsubscribe("g1", ch)
	if len(replay) != 1 || replay[0].EventID != "2" || replay[0].Event != EventNumberCalled {
		t.Fatalf("unexpected replay: %+v", replay)
	}

	h.Publish(ctx, "g1", EventGameStateUpdate, nil)
	select {
	case ev := <-ch:
		if ev.EventID != "3" || ev.GameID != "g1" || ev.Origin != "node-a" {
			t.Fatalf("unexpected live event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected live event")
	}

	h.Publish(ctx, "g2", EventGameStateUpdate, nil)
	select {
	case ev := <-ch:
		t.Fatalf("event for another game leaked: %+v", ev)
	default:
	}
}

func TestHubTrimsBuffer(t *testing.T) {
	h := NewHub("node-a", 2)
	for i := 0; i < 5; i++ {
		h.Publish(context.Background(), "g1", EventNumberCalled, i)
	}
	replay, ch := h.Subscribe("g1", "")
	h.Unsubscribe("g1", ch)
	if len(replay) != 2 || replay[0].EventID != "4" {
		t.Fatalf("expected last two events, got %+v", replay)
	}
}

func TestHubMirrorAndDeliver(t *testing.T) {
	h := NewHub("node-a", 10)
	m := &recordingMirror{err: errors.New("redis down")}
	h.SetMirror(m)
	h.Publish(context.Background(), "g1", EventGameStateUpdate, nil)
	if len(m.events) != 1 || m.events[0].EventID != "1" {
		t.Fatalf("expected mirrored event, got %+v", m.events)
	}

	h.Deliver(Event{GameID: "g1", Event: EventNumberCalled, Origin: "node-a"})
	h.Deliver(Event{GameID: "g1", Event: EventNumberCalled, Origin: "node-b"})
	replay, ch := h.Subscribe("g1", "")
	h.Unsubscribe("g1", ch)
	if len(replay) != 2 || replay[1].Origin != "node-b" {
		t.Fatalf("own echo must be dropped, got %+v", replay)
	}
	if len(m.events) != 1 {
		t.Fatalf("delivered events must not be mirrored again")
	}
}

func TestHubDropClosesSubscribers(t *testing.T) {
	h := NewHub("node-a", 10)
	_, ch := h.Subscribe("g1", "")
	if h.Subscribers("g1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	h.Drop("g1")
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel after drop")
	}
	h.Unsubscribe("g1", ch)

	h.Close()
	_, ch = h.Subscribe("g2", "")
	if _, ok := <-ch; ok {
		t.Fatalf("closed hub must hand out closed channels")
	}
}

func TestServeWSStreamsReplayAndLiveEvents(t *testing.T) {
	h := NewHub("node-a", 10)
	h.Publish(context.Background(), "g1", EventGameStateUpdate, map[string]any{"status": "active"})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeWS(w, r, "g1")
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first Event
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if first.Event != EventGameStateUpdate || first.EventID != "1" {
		t.Fatalf("unexpected replay event: %+v", first)
	}

	deadline := time.Now().Add(time.Second)
	for h.Subscribers("g1") == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	h.Publish(context.Background(), "g1", EventNumberCalled, map[string]any{"number": 7})
	var second Event
	if err := conn.ReadJSON(&second); err != nil {
		t.Fatalf("read live: %v", err)
	}
	if second.Event != EventNumberCalled || second.EventID != "2" {
		t.Fatalf("unexpected live event: %+v", second)
	}
}

func TestHubSweepDropsIdleUnwatchedBuffers(t *testing.T) {
	h := NewHub("n1", 200)
	ctx := context.Background()
	for i := 0; i < 50; i++ {
		h.Publish(ctx, fmt.Sprintf("relayed-%d", i), EventGameStateUpdate, nil)
	}
	_, ch := h.Subscribe("relayed-0", "")
	defer h.Unsubscribe("relayed-0", ch)

	if n := h.Sweep(time.Hour); n != 0 {
		t.Fatalf("fresh buffers must survive, swept %d", n)
	}
	if n := h.Sweep(0); n != 49 {
		t.Fatalf("expected 49 idle buffers swept, got %d", n)
	}
	if h.Games() != 1 || h.Subscribers("relayed-0") != 1 {
		t.Fatalf("watched buffer must survive: games=%d", h.Games())
	}
	if h.Release("relayed-0") {
		t.Fatalf("watched buffer must not be released")
	}
}
