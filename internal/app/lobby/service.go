// Package lobby places players into rounds, runs the pre-game timers and
// handles players walking away.
package lobby

import (
	"context"
	"errors"
	"sync"
	"time"

	"bingo-hall/internal/ledger"
	"bingo-hall/internal/notify"
	"bingo-hall/internal/statecache"
	"bingo-hall/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	joinAttempts    = 3
	timerOpTimeout  = 5 * time.Second
	sideEffectLimit = 10 * time.Second
	roomActive      = "active"
)

var errCountdownOver = errors.New("countdown_over")

type Store interface {
	GetRoom(ctx context.Context, roomID string) (*store.Room, error)
	GetGame(ctx context.Context, gameID string) (*store.Game, error)
	FindActiveGame(ctx context.Context, roomID string) (*store.Game, error)
	FindOpenGame(ctx context.Context, roomID string) (*store.Game, error)
	CreateGame(ctx context.Context, room *store.Room) (*store.Game, error)
	JoinGame(ctx context.Context, gameID, userID string, maxPlayers int) (*store.Game, error)
	AddBots(ctx context.Context, gameID string, botIDs []string) (*store.Game, error)
	TransitionGame(ctx context.Context, gameID string, from []string, to string, countdown int) (*store.Game, error)
	RemovePlayer(ctx context.Context, gameID, userID string) (*store.Game, error)
	VoidGame(ctx context.Context, gameID, reason string) (bool, error)
	FinishIfUnclaimed(ctx context.Context, p store.FinishParams) (bool, error)
	RealPrizePool(ctx context.Context, gameID string) (decimal.Decimal, error)
	BonusPrizePool(ctx context.Context, gameID string) (decimal.Decimal, error)
}

type Cache interface {
	GetOrLoad(ctx context.Context, gameID string) (store.Game, error)
	ForceSync(ctx context.Context, gameID string) (store.Game, error)
	Refresh(ctx context.Context, gameID string) (store.Game, error)
	Update(ctx context.Context, gameID string, fn func(*store.Game) error, opts statecache.Options) (store.Game, error)
}

type Settler interface {
	SettleGame(ctx context.Context, s ledger.Settlement) error
}

type PlayRecorder interface {
	RecordPlay(ctx context.Context, userID, gameID string, at time.Time) error
}

type Notifier interface {
	WinnerDeclared(ev notify.WinnerEvent)
}

type Stopper interface {
	Stop(ctx context.Context, gameID, reason string)
}

type Service struct {
	store    Store
	cache    Cache
	settler  Settler
	plays    PlayRecorder
	notifier Notifier
	stopper  Stopper
	filler   Autofiller
	cfg      Config

	timers *gameTimers
	bg     sync.WaitGroup
}

func NewService(st Store, cache Cache, settler Settler, plays PlayRecorder, notifier Notifier, stopper Stopper, filler Autofiller, cfg Config) *Service {
	if cfg.WaitingPeriod <= 0 {
		cfg.WaitingPeriod = 30 * time.Second
	}
	if cfg.CountdownPeriod <= 0 {
		cfg.CountdownPeriod = 10 * time.Second
	}
	if cfg.MinPlayers <= 0 {
		cfg.MinPlayers = 2
	}
	if cfg.Tick <= 0 {
		cfg.Tick = time.Second
	}
	return &Service{
		store:    st,
		cache:    cache,
		settler:  settler,
		plays:    plays,
		notifier: notifier,
		stopper:  stopper,
		filler:   filler,
		cfg:      cfg,
		timers:   newGameTimers(),
	}
}

// Close cancels pending lifecycle timers and waits for detached work.
func (s *Service) Close() {
	s.timers.stopAll()
	s.bg.Wait()
}

// Join places userID in the room's current round. A running game is only
// watched; otherwise the newest open game is joined or, if none exists,
// created.
func (s *Service) Join(ctx context.Context, roomID, userID string) (*JoinResult, error) {
	if roomID == "" || userID == "" {
		return nil, ErrInvalidRequest
	}
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if room.Status != roomActive {
		return nil, ErrRoomNotFound
	}

	active, err := s.store.FindActiveGame(ctx, roomID)
	switch {
	case err == nil:
		g, err := s.cache.GetOrLoad(ctx, active.ID)
		if err != nil {
			return nil, err
		}
		if g.HasPlayer(userID) {
			metricRejoins.Add(1)
			return &JoinResult{Action: ActionAlreadyJoined, GameID: g.ID, Game: g}, nil
		}
		metricSpectates.Add(1)
		return &JoinResult{Action: ActionSpectate, GameID: g.ID, Game: g}, nil
	case !errors.Is(err, store.ErrNotFound):
		return nil, err
	}

	var (
		g       *store.Game
		created bool
	)
	for attempt := 1; ; attempt++ {
		open, wasCreated, err := s.openGame(ctx, room)
		if err != nil {
			return nil, err
		}
		created = created || wasCreated
		synced, err := s.cache.ForceSync(ctx, open.ID)
		if err != nil {
			return nil, err
		}
		if synced.HasPlayer(userID) {
			s.repair(ctx, room, &synced)
			metricRejoins.Add(1)
			return &JoinResult{Action: ActionAlreadyJoined, GameID: synced.ID, Game: synced}, nil
		}
		g, err = s.store.JoinGame(ctx, open.ID, userID, room.MaxPlayers)
		if err == nil {
			break
		}
		if errors.Is(err, store.ErrAlreadyJoined) {
			synced, serr := s.cache.Refresh(ctx, open.ID)
			if serr != nil {
				return nil, serr
			}
			return &JoinResult{Action: ActionAlreadyJoined, GameID: synced.ID, Game: synced}, nil
		}
		if !errors.Is(err, store.ErrGameClosed) {
			return nil, err
		}
		// The game started or was voided between the read and the join.
		if attempt == joinAttempts {
			return nil, ErrJoinContention
		}
	}
	metricJoins.Add(1)
	log.Info().Str("room_id", roomID).Str("game_id", g.ID).Str("user_id", userID).Int("players", len(g.Players)).Msg("player joined")

	g = s.autofill(ctx, room, g)
	s.maybeStart(ctx, room, g)
	final, err := s.cache.Refresh(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	action := ActionJoined
	if created {
		action = ActionCreated
	}
	return &JoinResult{Action: action, GameID: final.ID, Game: final}, nil
}

// openGame returns the room's open game, creating one when there is none.
// Losing the create race reads the winner's game instead.
func (s *Service) openGame(ctx context.Context, room *store.Room) (*store.Game, bool, error) {
	g, err := s.store.FindOpenGame(ctx, room.ID)
	if err == nil {
		return g, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}
	g, err = s.store.CreateGame(ctx, room)
	if err == nil {
		metricGamesCreated.Add(1)
		log.Info().Str("room_id", room.ID).Str("game_id", g.ID).Msg("game created")
		return g, true, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return nil, false, err
	}
	g, err = s.store.FindOpenGame(ctx, room.ID)
	if err != nil {
		return nil, false, err
	}
	return g, false, nil
}

func (s *Service) minPlayers(room *store.Room) int {
	if room.MinPlayers > 0 {
		return room.MinPlayers
	}
	return s.cfg.MinPlayers
}

func (s *Service) autofill(ctx context.Context, room *store.Room, g *store.Game) *store.Game {
	if s.filler == nil {
		return g
	}
	need := s.minPlayers(room) - g.Population()
	if room.MaxPlayers > 0 {
		need = min(need, room.MaxPlayers-g.Population())
	}
	bots := s.filler.Bots(g, need)
	if len(bots) == 0 {
		return g
	}
	updated, err := s.store.AddBots(ctx, g.ID, bots)
	if err != nil {
		log.Warn().Err(err).Str("game_id", g.ID).Msg("autofill failed")
		return g
	}
	metricBotsAdded.Add(int64(len(bots)))
	return updated
}

// maybeStart moves a full enough waiting game into the waiting period and
// arms its timer. It is safe to call repeatedly.
func (s *Service) maybeStart(ctx context.Context, room *store.Room, g *store.Game) {
	if g.Population() < s.minPlayers(room) {
		return
	}
	switch g.Status {
	case store.GameWaiting:
		_, err := s.store.TransitionGame(ctx, g.ID, []string{store.GameWaiting}, store.GameWaitingForPlayers, 0)
		if err != nil && !errors.Is(err, store.ErrConflict) {
			log.Warn().Err(err).Str("game_id", g.ID).Msg("waiting transition failed")
			return
		}
		s.armWaiting(g.ID)
	case store.GameWaitingForPlayers:
		s.armWaiting(g.ID)
	case store.GameCountdown:
		if !s.timers.armed(g.ID) {
			s.timers.replace(g.ID, s.cfg.Tick, func() { s.tick(g.ID) })
		}
	}
}

// repair restarts the lifecycle of a game that has enough players but is
// stuck because its timer was lost.
func (s *Service) repair(ctx context.Context, room *store.Room, g *store.Game) {
	if s.timers.armed(g.ID) {
		return
	}
	s.maybeStart(ctx, room, g)
}

func (s *Service) armWaiting(gameID string) {
	if s.timers.arm(gameID, s.cfg.WaitingPeriod, func() { s.startCountdown(gameID) }) {
		log.Debug().Str("game_id", gameID).Dur("period", s.cfg.WaitingPeriod).Msg("waiting period armed")
	}
}

func (s *Service) startCountdown(gameID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	secs := int(s.cfg.CountdownPeriod / time.Second)
	if secs < 1 {
		secs = 1
	}
	if _, err := s.store.TransitionGame(ctx, gameID, []string{store.GameWaitingForPlayers}, store.GameCountdown, secs); err != nil {
		s.timers.cancel(gameID)
		if !errors.Is(err, store.ErrConflict) {
			log.Warn().Err(err).Str("game_id", gameID).Msg("countdown transition failed")
		}
		return
	}
	if _, err := s.cache.Refresh(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("cache refresh failed")
	}
	s.timers.replace(gameID, s.cfg.Tick, func() { s.tick(gameID) })
}

func (s *Service) tick(gameID string) {
	ctx, cancel := context.WithTimeout(context.Background(), timerOpTimeout)
	defer cancel()
	g, err := s.cache.Update(ctx, gameID, func(g *store.Game) error {
		if g.Status != store.GameCountdown {
			return errCountdownOver
		}
		if g.Countdown > 0 {
			g.Countdown--
		}
		return nil
	}, statecache.Options{})
	if err != nil {
		s.timers.cancel(gameID)
		if !errors.Is(err, errCountdownOver) {
			log.Warn().Err(err).Str("game_id", gameID).Msg("countdown tick failed")
		}
		return
	}
	if g.Countdown > 0 {
		s.timers.replace(gameID, s.cfg.Tick, func() { s.tick(gameID) })
		return
	}
	s.timers.cancel(gameID)
	if _, err := s.store.TransitionGame(ctx, gameID, []string{store.GameCountdown}, store.GameActive, 0); err != nil {
		if !errors.Is(err, store.ErrConflict) {
			log.Warn().Err(err).Str("game_id", gameID).Msg("start transition failed")
		}
		return
	}
	metricGamesStarted.Add(1)
	log.Info().Str("game_id", gameID).Msg("game started")
	if _, err := s.cache.Refresh(ctx, gameID); err != nil {
		log.Warn().Err(err).Str("game_id", gameID).Msg("cache refresh failed")
	}
}
