package lobby

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"bingo-hall/internal/ledger"
	"bingo-hall/internal/notify"
	"bingo-hall/internal/store"

	"github.com/shopspring/decimal"
)

type memStore struct {
	mu       sync.Mutex
	rooms    map[string]*store.Room
	games    map[string]*store.Game
	order    []string
	balances map[string]decimal.Decimal
	stakes   map[string]map[string]string
	seq      int

	onCreate func()
}

func newMemStore() *memStore {
	return &memStore{
		rooms:    map[string]*store.Room{},
		games:    map[string]*store.Game{},
		balances: map[string]decimal.Decimal{},
		stakes:   map[string]map[string]string{},
	}
}

func (m *memStore) addRoom(r store.Room) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rooms[r.ID] = &r
}

func (m *memStore) fund(userID, amount string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[userID] = decimal.RequireFromString(amount)
}

func (m *memStore) balance(userID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[userID]
}

func (m *memStore) snapshot(gameID string) store.Game {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.games[gameID].Clone()
}

// putGame inserts g with held stakes for every player.
func (m *memStore) putGame(g store.Game) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[g.ID] = &g
	m.order = append(m.order, g.ID)
	m.stakes[g.ID] = map[string]string{}
	for _, p := range g.Players {
		m.stakes[g.ID][p] = store.StakeHeld
	}
}

func (m *memStore) GetRoom(_ context.Context, id string) (*store.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rooms[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memStore) GetGame(_ context.Context, id string) (*store.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := g.Clone()
	return &c, nil
}

func (m *memStore) latest(roomID string, match func(*store.Game) bool) (*store.Game, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.order) - 1; i >= 0; i-- {
		g := m.games[m.order[i]]
		if g.RoomID == roomID && match(g) {
			c := g.Clone()
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) FindActiveGame(_ context.Context, roomID string) (*store.Game, error) {
	return m.latest(roomID, func(g *store.Game) bool { return g.Status == store.GameActive })
}

func (m *memStore) FindOpenGame(_ context.Context, roomID string) (*store.Game, error) {
	return m.latest(roomID, func(g *store.Game) bool { return g.Open() })
}

func (m *memStore) CreateGame(ctx context.Context, room *store.Room) (*store.Game, error) {
	if m.onCreate != nil {
		hook := m.onCreate
		m.onCreate = nil
		hook()
	}
	if _, err := m.FindOpenGame(ctx, room.ID); err == nil {
		return nil, store.ErrConflict
	}
	m.mu.Lock()
	m.seq++
	id := fmt.Sprintf("game-%d", m.seq)
	m.mu.Unlock()
	m.putGame(store.Game{
		ID:             id,
		RoomID:         room.ID,
		Status:         store.GameWaiting,
		Stake:          room.Stake,
		CommissionRate: room.CommissionRate,
		PrizePool:      decimal.Zero,
	})
	return m.GetGame(ctx, id)
}

func (m *memStore) JoinGame(ctx context.Context, gameID, userID string, maxPlayers int) (*store.Game, error) {
	m.mu.Lock()
	g := m.games[gameID]
	switch {
	case !g.Open():
		m.mu.Unlock()
		return nil, store.ErrGameClosed
	case g.HasPlayer(userID):
		m.mu.Unlock()
		return nil, store.ErrAlreadyJoined
	case maxPlayers > 0 && g.Population() >= maxPlayers:
		m.mu.Unlock()
		return nil, store.ErrGameFull
	case m.balances[userID].LessThan(g.Stake):
		m.mu.Unlock()
		return nil, store.ErrInsufficientBalance
	}
	m.balances[userID] = m.balances[userID].Sub(g.Stake)
	m.stakes[gameID][userID] = store.StakeHeld
	g.Players = append(g.Players, userID)
	g.PrizePool = g.PrizePool.Add(g.Stake)
	m.mu.Unlock()
	return m.GetGame(ctx, gameID)
}

func (m *memStore) AddBots(ctx context.Context, gameID string, botIDs []string) (*store.Game, error) {
	m.mu.Lock()
	g := m.games[gameID]
	if !g.Open() {
		m.mu.Unlock()
		return nil, store.ErrGameClosed
	}
	g.Bots = append(g.Bots, botIDs...)
	m.mu.Unlock()
	return m.GetGame(ctx, gameID)
}

func (m *memStore) TransitionGame(ctx context.Context, gameID string, from []string, to string, countdown int) (*store.Game, error) {
	m.mu.Lock()
	g := m.games[gameID]
	if !slices.Contains(from, g.Status) {
		m.mu.Unlock()
		return nil, store.ErrConflict
	}
	g.Status = to
	g.Countdown = countdown
	m.mu.Unlock()
	return m.GetGame(ctx, gameID)
}

func (m *memStore) SaveGameCalls(_ context.Context, gameID string, called []int, latest string, countdown int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.games[gameID]
	if g == nil || g.Terminal() || len(called) < len(g.CalledNumbers) {
		return nil
	}
	g.CalledNumbers = slices.Clone(called)
	g.LatestCall = latest
	g.Countdown = countdown
	return nil
}

func (m *memStore) refundLocked(gameID, userID string) {
	if m.stakes[gameID][userID] != store.StakeHeld {
		return
	}
	m.stakes[gameID][userID] = store.StakeRefunded
	m.balances[userID] = m.balances[userID].Add(m.games[gameID].Stake)
}

func (m *memStore) RemovePlayer(ctx context.Context, gameID, userID string) (*store.Game, error) {
	m.mu.Lock()
	g := m.games[gameID]
	switch {
	case g.Terminal():
		m.mu.Unlock()
		return nil, store.ErrGameFinished
	case !g.HasPlayer(userID):
		m.mu.Unlock()
		return nil, store.ErrNotParticipant
	}
	if g.Open() {
		m.refundLocked(gameID, userID)
	} else {
		m.stakes[gameID][userID] = store.StakeForfeited
	}
	g.Players = slices.DeleteFunc(g.Players, func(p string) bool { return p == userID })
	g.PrizePool = g.Stake.Mul(decimal.NewFromInt(int64(len(g.Players))))
	m.mu.Unlock()
	return m.GetGame(ctx, gameID)
}

func (m *memStore) VoidGame(_ context.Context, gameID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.games[gameID]
	if g.Terminal() {
		return false, nil
	}
	g.Status = store.GameFinished
	g.EndReason = reason
	for userID := range m.stakes[gameID] {
		m.refundLocked(gameID, userID)
	}
	return true, nil
}

func (m *memStore) FinishIfUnclaimed(_ context.Context, p store.FinishParams) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g := m.games[p.GameID]
	if g.Status != store.GameActive || g.WinnerID != nil {
		return false, nil
	}
	winner := p.WinnerID
	g.WinnerID = &winner
	g.Status = store.GameFinished
	g.EndReason = p.EndReason
	g.NetPrize = p.NetPrize
	g.CommissionAmount = p.CommissionAmount
	return true, nil
}

func (m *memStore) pool(gameID string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	sum := decimal.Zero
	for _, state := range m.stakes[gameID] {
		if state == store.StakeHeld || state == store.StakeForfeited {
			sum = sum.Add(m.games[gameID].Stake)
		}
	}
	return sum
}

func (m *memStore) RealPrizePool(_ context.Context, gameID string) (decimal.Decimal, error) {
	return m.pool(gameID), nil
}

func (m *memStore) BonusPrizePool(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

type recordingSettler struct {
	mu   sync.Mutex
	runs []ledger.Settlement
}

func (s *recordingSettler) SettleGame(_ context.Context, in ledger.Settlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, in)
	return nil
}

type recordingPlays struct {
	mu    sync.Mutex
	users []string
}

func (p *recordingPlays) RecordPlay(_ context.Context, userID, _ string, _ time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.users = append(p.users, userID)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.WinnerEvent
}

func (n *recordingNotifier) WinnerDeclared(ev notify.WinnerEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
}

type recordingStopper struct {
	mu      sync.Mutex
	reasons []string
}

func (s *recordingStopper) Stop(_ context.Context, _, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reasons = append(s.reasons, reason)
}
