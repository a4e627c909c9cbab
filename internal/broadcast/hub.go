package broadcast

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	EventGameStateUpdate = "game_state_update"
	EventNumberCalled    = "number_called"
)

// Mirror forwards locally produced events to other processes.
type Mirror interface {
	Mirror(ctx context.Context, ev Event) error
}

// Hub routes game events to per-game subscriber buffers.
type Hub struct {
	mu        sync.Mutex
	buffers   map[string]*buffer
	bufferMax int
	nodeID    string
	mirror    Mirror
	closed    bool
}

func NewHub(nodeID string, bufferMax int) *Hub {
	return &Hub{
		buffers:   map[string]*buffer{},
		bufferMax: bufferMax,
		nodeID:    nodeID,
	}
}

// SetMirror attaches a cross-process mirror. Call before serving traffic.
func (h *Hub) SetMirror(m Mirror) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.mirror = m
}

func (h *Hub) NodeID() string { return h.nodeID }

func (h *Hub) buffer(gameID string) *buffer {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	b, ok := h.buffers[gameID]
	if !ok {
		b = newBuffer(h.bufferMax)
		h.buffers[gameID] = b
	}
	return b
}

// Publish appends the event to the game's buffer and mirrors it. Mirror
// failures are logged only.
func (h *Hub) Publish(ctx context.Context, gameID, event string, data any) {
	ev, ok := h.deliver(Event{
		Event:    event,
		GameID:   gameID,
		ServerTS: time.Now().UnixMilli(),
		Data:     data,
		Origin:   h.nodeID,
	})
	if !ok {
		return
	}
	metricPublished.Add(1)
	h.mu.Lock()
	m := h.mirror
	h.mu.Unlock()
	if m == nil {
		return
	}
	if err := m.Mirror(ctx, ev); err != nil {
		metricMirrorFailures.Add(1)
		log.Warn().Err(err).Str("game_id", gameID).Str("event", event).Msg("broadcast mirror failed")
	}
}

// Deliver injects an event received from another process without
// mirroring it again.
func (h *Hub) Deliver(ev Event) {
	if ev.Origin == h.nodeID {
		return
	}
	h.deliver(ev)
}

func (h *Hub) deliver(ev Event) (Event, bool) {
	b := h.buffer(ev.GameID)
	if b == nil {
		return Event{}, false
	}
	return b.append(ev)
}

// Subscribe returns the events after lastEventID plus a channel for new
// ones. Release the channel with Unsubscribe.
func (h *Hub) Subscribe(gameID, lastEventID string) ([]Event, chan Event) {
	b := h.buffer(gameID)
	if b == nil {
		ch := make(chan Event)
		close(ch)
		return nil, ch
	}
	ch := b.subscribe()
	return b.replayAfter(lastEventID), ch
}

func (h *Hub) Unsubscribe(gameID string, ch chan Event) {
	h.mu.Lock()
	b := h.buffers[gameID]
	h.mu.Unlock()
	if b != nil {
		b.unsubscribe(ch)
	}
}

// Drop closes a game's buffer and disconnects its subscribers.
func (h *Hub) Drop(gameID string) {
	h.mu.Lock()
	b := h.buffers[gameID]
	delete(h.buffers, gameID)
	h.mu.Unlock()
	if b != nil {
		b.close()
	}
}

// Release drops a game's buffer unless someone is still watching it.
func (h *Hub) Release(gameID string) bool {
	h.mu.Lock()
	b := h.buffers[gameID]
	if b == nil || b.watcherCount() > 0 {
		h.mu.Unlock()
		return false
	}
	delete(h.buffers, gameID)
	h.mu.Unlock()
	b.close()
	return true
}

// Sweep drops unwatched buffers that saw no event for idle. It catches
// games this process never cached, such as ones relayed from other nodes.
func (h *Hub) Sweep(idle time.Duration) int {
	h.mu.Lock()
	var dropped []*buffer
	for id, b := range h.buffers {
		if b.idle(idle) {
			delete(h.buffers, id)
			dropped = append(dropped, b)
		}
	}
	h.mu.Unlock()
	for _, b := range dropped {
		b.close()
	}
	metricSwept.Add(int64(len(dropped)))
	return len(dropped)
}

// Start runs Sweep every interval until ctx is done.
func (h *Hub) Start(ctx context.Context, interval, idle time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := h.Sweep(idle); n > 0 {
					log.Debug().Int("dropped", n).Msg("idle game buffers swept")
				}
			}
		}
	}()
}

// Games reports how many game buffers the hub holds.
func (h *Hub) Games() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.buffers)
}

func (h *Hub) Subscribers(gameID string) int {
	h.mu.Lock()
	b := h.buffers[gameID]
	h.mu.Unlock()
	if b == nil {
		return 0
	}
	return b.watcherCount()
}

func (h *Hub) Close() {
	h.mu.Lock()
	buffers := h.buffers
	h.buffers = map[string]*buffer{}
	h.closed = true
	h.mu.Unlock()
	for _, b := range buffers {
		b.close()
	}
}
