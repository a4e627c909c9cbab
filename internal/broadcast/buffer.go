package broadcast

import (
	"strconv"
	"sync"
	"time"
)

// Event is one message delivered to subscribers of a game.
type Event struct {
	EventID  string `json:"event_id"`
	Event    string `json:"event"`
	GameID   string `json:"game_id"`
	ServerTS int64  `json:"server_ts"`
	Data     any    `json:"data"`
	// Origin is the hub that produced the event; used to drop echoes when
	// relaying between processes.
	Origin string `json:"origin,omitempty"`
}

// buffer keeps the last max events of one game and fans them out to
// watchers. Slow watchers miss events rather than block publishers.
type buffer struct {
	mu       sync.Mutex
	nextID   int64
	max      int
	events   []Event
	watchers map[chan Event]struct{}
	closed   bool
	active   time.Time
}

func newBuffer(max int) *buffer {
	if max <= 0 {
		max = 200
	}
	return &buffer{max: max, watchers: map[chan Event]struct{}{}, active: time.Now()}
}

func (b *buffer) append(ev Event) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Event{}, false
	}
	b.nextID++
	b.active = time.Now()
	ev.EventID = strconv.FormatInt(b.nextID, 10)
	b.events = append(b.events, ev)
	if len(b.events) > b.max {
		b.events = b.events[len(b.events)-b.max:]
	}
	for ch := range b.watchers {
		select {
		case ch <- ev:
		default:
			metricDropped.Add(1)
		}
	}
	return ev, true
}

func (b *buffer) replayAfter(lastEventID string) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	last, err := strconv.ParseInt(lastEventID, 10, 64)
	if lastEventID == "" || err != nil {
		last = 0
	}
	out := make([]Event, 0, len(b.events))
	for _, ev := range b.events {
		id, _ := strconv.ParseInt(ev.EventID, 10, 64)
		if id > last {
			out = append(out, ev)
		}
	}
	return out
}

func (b *buffer) subscribe() chan Event {
	ch := make(chan Event, 32)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.watchers[ch] = struct{}{}
	return ch
}

func (b *buffer) unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.watchers[ch]; ok {
		delete(b.watchers, ch)
		close(ch)
	}
}

func (b *buffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.watchers {
		close(ch)
		delete(b.watchers, ch)
	}
}

// idle reports whether nobody watches the buffer and nothing was published
// to it for longer than d.
func (b *buffer) idle(d time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers) == 0 && time.Since(b.active) >= d
}

func (b *buffer) watcherCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.watchers)
}
