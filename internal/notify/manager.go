package notify

import (
	"context"
	"sync"
	"time"
)

type breakerState struct {
	consecutiveFailures int
	openUntil           time.Time
}

// Manager fans notifications out to adapters on a worker pool. Delivery
// is best effort: a full queue drops the message, failures are retried
// with exponential backoff, and an adapter that keeps failing is skipped
// until its circuit closes again.
type Manager struct {
	cfg      Config
	adapters map[string]Adapter

	dispatchCh chan job
	retryQ     *retryQueue
	done       chan struct{}

	mu           sync.Mutex
	started      bool
	breakerByKey map[string]breakerState
}

func NewManager(cfg Config, adapters ...Adapter) *Manager {
	if cfg.DispatchBuffer <= 0 {
		cfg.DispatchBuffer = 256
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.CircuitOpenDuration <= 0 {
		cfg.CircuitOpenDuration = 30 * time.Second
	}
	m := &Manager{
		cfg:          cfg,
		adapters:     map[string]Adapter{},
		dispatchCh:   make(chan job, cfg.DispatchBuffer),
		done:         make(chan struct{}),
		breakerByKey: map[string]breakerState{},
	}
	for _, a := range adapters {
		m.adapters[a.Name()] = a
	}
	m.retryQ = newRetryQueue(m.dispatchCh, m.done)
	return m
}

func (m *Manager) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		return nil
	}
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.mu.Unlock()

	for i := 0; i < m.cfg.Workers; i++ {
		go m.worker(ctx)
	}
	go func() {
		<-ctx.Done()
		close(m.done)
	}()
	return nil
}

// WinnerDeclared queues a winner announcement on every adapter.
func (m *Manager) WinnerDeclared(ev WinnerEvent) {
	m.broadcast(FormatWinner(ev))
}

// TournamentFinalized queues a tournament summary on every adapter.
func (m *Manager) TournamentFinalized(ev TournamentEvent) {
	m.broadcast(FormatTournament(ev))
}

func (m *Manager) broadcast(msg Message) {
	if m == nil || !m.cfg.Enabled {
		return
	}
	for name := range m.adapters {
		if !m.enqueue(job{Adapter: name, Message: msg}) {
			metricDroppedTotal.Add(1)
		}
	}
}

func (m *Manager) enqueue(j job) bool {
	select {
	case <-m.done:
		return false
	case m.dispatchCh <- j:
		metricQueuedTotal.Add(1)
		metricQueueLen.Set(int64(len(m.dispatchCh)))
		return true
	default:
		return false
	}
}
