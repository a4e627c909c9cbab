package lobby

import (
	"sync"
	"time"
)

// gameTimers holds at most one pending lifecycle timer per game.
type gameTimers struct {
	mu     sync.Mutex
	byGame map[string]*time.Timer
}

func newGameTimers() *gameTimers {
	return &gameTimers{byGame: map[string]*time.Timer{}}
}

// arm schedules fn unless the game already has a pending timer.
func (t *gameTimers) arm(gameID string, d time.Duration, fn func()) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.byGame[gameID]; ok {
		return false
	}
	t.byGame[gameID] = time.AfterFunc(d, fn)
	return true
}

// replace schedules fn, dropping any pending timer for the game.
func (t *gameTimers) replace(gameID string, d time.Duration, fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byGame[gameID]; ok {
		old.Stop()
	}
	t.byGame[gameID] = time.AfterFunc(d, fn)
}

func (t *gameTimers) cancel(gameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.byGame[gameID]; ok {
		old.Stop()
		delete(t.byGame, gameID)
	}
}

func (t *gameTimers) armed(gameID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.byGame[gameID]
	return ok
}

func (t *gameTimers) stopAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, tm := range t.byGame {
		tm.Stop()
		delete(t.byGame, id)
	}
}
