// Package statecache keeps hot game state in memory in front of the
// durable store and broadcasts every change to subscribers.
//
// The store stays authoritative. The cache owns only the call history,
// latest call and countdown, which it writes back on a timer; status,
// roster, winner and money change through store primitives and are folded
// back in with ForceSync or Refresh.
package statecache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"bingo-hall/internal/bingo"
	"bingo-hall/internal/broadcast"
	"bingo-hall/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var (
	ErrPopulationCap  = errors.New("population_cap")
	ErrGameNotActive  = errors.New("game_not_active")
	ErrInvalidNumber  = errors.New("invalid_number")
	ErrAlreadyCalled  = errors.New("number_already_called")
	ErrCallsExhausted = errors.New("calls_exhausted")
	// ErrWriteBack wraps a failed synchronous flush. The change is kept in
	// the cache and retried by the next Sync.
	ErrWriteBack = errors.New("write_back_failed")
)

const (
	defaultMaxGames    = 1000
	defaultMaxPlayers  = 200
	defaultTTL         = 5 * time.Minute
	defaultFlushPeriod = 30 * time.Second
)

// Store is the durable side of the cache.
type Store interface {
	GetGame(ctx context.Context, gameID string) (*store.Game, error)
	SaveGameCalls(ctx context.Context, gameID string, called []int, latestCall string, countdown int) error
}

// Publisher receives every broadcast event.
type Publisher interface {
	Publish(ctx context.Context, gameID, event string, data any)
}

// Releaser frees a game's broadcast buffer once the cache stops tracking
// the game. Drop disconnects watchers; Release keeps a watched buffer.
type Releaser interface {
	Drop(gameID string)
	Release(gameID string) bool
}

type Config struct {
	TTL               time.Duration
	FlushInterval     time.Duration
	MaxGames          int
	MaxPlayersPerGame int
}

type Priority int

const (
	PriorityNormal Priority = iota
	PriorityHigh
)

// Options control how a write reaches the store. Immediate or PriorityHigh
// writes are flushed before Set/Update return.
type Options struct {
	Immediate bool
	Priority  Priority
}

func (o Options) flushNow() bool { return o.Immediate || o.Priority == PriorityHigh }

type entry struct {
	game      store.Game
	updatedAt time.Time
	dirty     bool
	version   uint64
}

// StatePayload is the game_state_update body.
type StatePayload struct {
	GameID        string          `json:"game_id"`
	Status        string          `json:"status"`
	CalledNumbers []int           `json:"called_numbers"`
	LatestCall    string          `json:"latest_call"`
	Countdown     int             `json:"countdown"`
	PrizePool     decimal.Decimal `json:"prize_pool"`
	WinnerID      *string         `json:"winner_id"`
	PlayerCount   int             `json:"player_count"`
}

func NewStatePayload(g *store.Game) StatePayload {
	called := slices.Clone(g.CalledNumbers)
	if called == nil {
		called = []int{}
	}
	return StatePayload{
		GameID:        g.ID,
		Status:        g.Status,
		CalledNumbers: called,
		LatestCall:    g.LatestCall,
		Countdown:     g.Countdown,
		PrizePool:     g.PrizePool,
		WinnerID:      g.WinnerID,
		PlayerCount:   g.Population(),
	}
}

// NumberCalledPayload is the number_called body.
type NumberCalledPayload struct {
	GameID    string `json:"game_id"`
	Number    int    `json:"number"`
	Label     string `json:"label"`
	CallCount int    `json:"call_count"`
}

type Service struct {
	store Store
	pub   Publisher
	cfg   Config
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

func New(st Store, pub Publisher, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushPeriod
	}
	if cfg.MaxGames <= 0 {
		cfg.MaxGames = defaultMaxGames
	}
	if cfg.MaxPlayersPerGame <= 0 {
		cfg.MaxPlayersPerGame = defaultMaxPlayers
	}
	return &Service{
		store:   st,
		pub:     pub,
		cfg:     cfg,
		now:     time.Now,
		entries: map[string]*entry{},
	}
}

func (s *Service) stale(e *entry) bool {
	return s.now().Sub(e.updatedAt) > s.cfg.TTL
}

// Get returns a copy of the cached game. Entries older than the TTL read as
// absent and must be reloaded before use.
func (s *Service) Get(gameID string) (store.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[gameID]
	if !ok || s.stale(e) {
		metricMisses.Add(1)
		return store.Game{}, false
	}
	metricHits.Add(1)
	return e.game.Clone(), true
}

// GetOrLoad serves a fresh entry or reloads it from the store.
func (s *Service) GetOrLoad(ctx context.Context, gameID string) (store.Game, error) {
	if g, ok := s.Get(gameID); ok {
		return g, nil
	}
	return s.Load(ctx, gameID)
}

// Load reads the game from the store, folding any pending write in first.
func (s *Service) Load(ctx context.Context, gameID string) (store.Game, error) {
	return s.ForceSync(ctx, gameID)
}

// ForceSync flushes this game's pending write and replaces the entry with
// the authoritative row. Call it before any money or finality decision.
func (s *Service) ForceSync(ctx context.Context, gameID string) (store.Game, error) {
	if err := s.flush(ctx, gameID); err != nil {
		return store.Game{}, fmt.Errorf("flush %s: %w", gameID, err)
	}
	g, err := s.store.GetGame(ctx, gameID)
	if err != nil {
		return store.Game{}, err
	}
	metricLoads.Add(1)
	stored, victims := s.put(g, false)
	s.flushVictims(ctx, victims)
	return stored, nil
}

// Refresh is ForceSync followed by a state broadcast.
func (s *Service) Refresh(ctx context.Context, gameID string) (store.Game, error) {
	g, err := s.ForceSync(ctx, gameID)
	if err != nil {
		return store.Game{}, err
	}
	s.publishState(ctx, &g)
	return g, nil
}

// Set replaces the cached game, marks it dirty and broadcasts the new state.
func (s *Service) Set(ctx context.Context, g store.Game, opts Options) error {
	if g.Population() > s.cfg.MaxPlayersPerGame {
		return ErrPopulationCap
	}
	stored, victims := s.put(&g, true)
	s.flushVictims(ctx, victims)
	s.publishState(ctx, &stored)
	if opts.flushNow() {
		if err := s.flush(ctx, g.ID); err != nil {
			return fmt.Errorf("%w: %w", ErrWriteBack, err)
		}
	}
	return nil
}

// Update applies fn to the current state under the cache lock. A missing
// or stale entry is reloaded first. If fn fails nothing is written.
func (s *Service) Update(ctx context.Context, gameID string, fn func(*store.Game) error, opts Options) (store.Game, error) {
	if _, ok := s.Get(gameID); !ok {
		if _, err := s.Load(ctx, gameID); err != nil {
			return store.Game{}, err
		}
	}

	s.mu.Lock()
	e, ok := s.entries[gameID]
	if !ok {
		s.mu.Unlock()
		return store.Game{}, store.ErrNotFound
	}
	next := e.game.Clone()
	if err := fn(&next); err != nil {
		s.mu.Unlock()
		return store.Game{}, err
	}
	if next.Population() > s.cfg.MaxPlayersPerGame {
		s.mu.Unlock()
		return store.Game{}, ErrPopulationCap
	}
	e.game = next
	e.updatedAt = s.now()
	e.dirty = true
	e.version++
	out := next.Clone()
	s.mu.Unlock()

	s.publishState(ctx, &out)
	if opts.flushNow() {
		if err := s.flush(ctx, gameID); err != nil {
			return out, fmt.Errorf("%w: %w", ErrWriteBack, err)
		}
	}
	return out, nil
}

// RecordCall appends one scheduler draw to an active game. Calls are
// written through at high priority: claims are judged against the stored
// history, possibly by another process.
func (s *Service) RecordCall(ctx context.Context, gameID string, number int) (store.Game, error) {
	g, err := s.Update(ctx, gameID, func(g *store.Game) error {
		switch {
		case g.Status != store.GameActive:
			return ErrGameNotActive
		case !bingo.ValidCall(number):
			return ErrInvalidNumber
		case slices.Contains(g.CalledNumbers, number):
			return ErrAlreadyCalled
		case len(g.CalledNumbers) >= bingo.MaxNumber:
			return ErrCallsExhausted
		}
		g.CalledNumbers = append(g.CalledNumbers, number)
		g.LatestCall = bingo.CallLabel(number)
		return nil
	}, Options{Priority: PriorityHigh})
	if errors.Is(err, ErrWriteBack) {
		log.Warn().Err(err).Str("game_id", gameID).Int("number", number).Msg("call write-through failed, left for sync")
		err = nil
	}
	if err != nil {
		return store.Game{}, err
	}
	metricCalls.Add(1)
	if s.pub != nil {
		s.pub.Publish(ctx, gameID, broadcast.EventNumberCalled, NumberCalledPayload{
			GameID:    gameID,
			Number:    number,
			Label:     g.LatestCall,
			CallCount: len(g.CalledNumbers),
		})
	}
	return g, nil
}

// Sync flushes every dirty entry.
func (s *Service) Sync(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if e.dirty {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	var errs []error
	for _, id := range ids {
		if err := s.flush(ctx, id); err != nil {
			errs = append(errs, fmt.Errorf("flush %s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// Prune drops terminal and expired entries, flushing them first.
func (s *Service) Prune(ctx context.Context) int {
	s.mu.Lock()
	var ids []string
	for id, e := range s.entries {
		if e.game.Terminal() || s.stale(e) {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	pruned := 0
	for _, id := range ids {
		if err := s.flush(ctx, id); err != nil {
			log.Warn().Err(err).Str("game_id", id).Msg("cache prune flush failed")
			continue
		}
		s.mu.Lock()
		var gone *store.Game
		if e, ok := s.entries[id]; ok && !e.dirty && (e.game.Terminal() || s.stale(e)) {
			gone = &e.game
			delete(s.entries, id)
			pruned++
		}
		s.mu.Unlock()
		if gone != nil {
			s.release(gone)
		}
	}
	metricEvictions.Add(int64(pruned))
	return pruned
}

// Len reports the number of tracked games.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start runs Sync and Prune every FlushInterval until ctx is done.
func (s *Service) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.Sync(ctx); err != nil {
					log.Warn().Err(err).Msg("cache sync failed")
				}
				if n := s.Prune(ctx); n > 0 {
					log.Debug().Int("pruned", n).Msg("cache pruned")
				}
			}
		}
	}()
}

// put stores g. The call history never shrinks: if the cached entry
// already holds more calls than g, those calls are kept and stay dirty.
func (s *Service) put(g *store.Game, dirty bool) (store.Game, []victim) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var victims []victim
	e, ok := s.entries[g.ID]
	if !ok {
		victims = s.evictLocked()
		e = &entry{}
		s.entries[g.ID] = e
	}
	next := g.Clone()
	if ok && len(e.game.CalledNumbers) > len(next.CalledNumbers) {
		next.CalledNumbers = slices.Clone(e.game.CalledNumbers)
		next.LatestCall = e.game.LatestCall
		dirty = true
	}
	e.game = next
	e.updatedAt = s.now()
	e.version++
	e.dirty = dirty
	return next.Clone(), victims
}

type victim struct {
	game  store.Game
	dirty bool
}

// evictLocked makes room for one more entry. Terminal games go first, then
// the least recently written ones.
func (s *Service) evictLocked() []victim {
	over := len(s.entries) - s.cfg.MaxGames + 1
	if over <= 0 {
		return nil
	}
	type candidate struct {
		id string
		e  *entry
	}
	cands := make([]candidate, 0, len(s.entries))
	for id, e := range s.entries {
		cands = append(cands, candidate{id, e})
	}
	slices.SortFunc(cands, func(a, b candidate) int {
		if a.e.game.Terminal() != b.e.game.Terminal() {
			if a.e.game.Terminal() {
				return -1
			}
			return 1
		}
		return a.e.updatedAt.Compare(b.e.updatedAt)
	})
	victims := make([]victim, 0, over)
	for _, c := range cands[:over] {
		victims = append(victims, victim{game: c.e.game.Clone(), dirty: c.e.dirty})
		delete(s.entries, c.id)
	}
	metricEvictions.Add(int64(over))
	metricPressureEvictions.Add(1)
	return victims
}

func (s *Service) flushVictims(ctx context.Context, victims []victim) {
	for _, v := range victims {
		g := &v.game
		if v.dirty {
			if err := s.store.SaveGameCalls(ctx, g.ID, g.CalledNumbers, g.LatestCall, g.Countdown); err != nil {
				metricFlushFailures.Add(1)
				log.Warn().Err(err).Str("game_id", g.ID).Msg("evicted entry flush failed")
			}
		}
		s.release(g)
	}
}

// release frees the broadcast buffer of a game the cache let go of. A
// finished game is dropped outright; a live one only when unwatched.
func (s *Service) release(g *store.Game) {
	r, ok := s.pub.(Releaser)
	if !ok {
		return
	}
	if g.Terminal() {
		r.Drop(g.ID)
		return
	}
	r.Release(g.ID)
}

// flush writes one dirty entry back. The entry stays dirty if it changed
// while the write was in flight.
func (s *Service) flush(ctx context.Context, gameID string) error {
	s.mu.Lock()
	e, ok := s.entries[gameID]
	if !ok || !e.dirty {
		s.mu.Unlock()
		return nil
	}
	snap := e.game.Clone()
	version := e.version
	s.mu.Unlock()

	if err := s.store.SaveGameCalls(ctx, gameID, snap.CalledNumbers, snap.LatestCall, snap.Countdown); err != nil {
		metricFlushFailures.Add(1)
		return err
	}
	metricFlushes.Add(1)

	s.mu.Lock()
	if e, ok := s.entries[gameID]; ok && e.version == version {
		e.dirty = false
	}
	s.mu.Unlock()
	return nil
}

func (s *Service) publishState(ctx context.Context, g *store.Game) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ctx, g.ID, broadcast.EventGameStateUpdate, NewStatePayload(g))
}
