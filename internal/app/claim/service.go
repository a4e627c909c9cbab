// Package claim decides bingo claims: it validates the card, checks the
// daubed line against called numbers and arbitrates races so each game has
// exactly one winner.
package claim

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"bingo-hall/internal/bingo"
	"bingo-hall/internal/ledger"
	"bingo-hall/internal/notify"
	"bingo-hall/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultWindow       = 100 * time.Millisecond
	sideEffectTimeout   = 10 * time.Second
	stopReasonBingo     = "bingo"
	securityEventTamper = "card_tamper_suspected"
)

type Store interface {
	GetGame(ctx context.Context, gameID string) (*store.Game, error)
	GetRoom(ctx context.Context, roomID string) (*store.Room, error)
	RealPrizePool(ctx context.Context, gameID string) (decimal.Decimal, error)
	BonusPrizePool(ctx context.Context, gameID string) (decimal.Decimal, error)
	ResolveClaim(ctx context.Context, p store.ClaimParams) (*store.ClaimDecision, error)
	FinishIfUnclaimed(ctx context.Context, p store.FinishParams) (bool, error)
}

type Cache interface {
	ForceSync(ctx context.Context, gameID string) (store.Game, error)
	Refresh(ctx context.Context, gameID string) (store.Game, error)
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
	cfg      Config

	bg sync.WaitGroup
}

func NewService(st Store, cache Cache, settler Settler, plays PlayRecorder, notifier Notifier, stopper Stopper, cfg Config) *Service {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.TieBreak == "" {
		cfg.TieBreak = store.TieBreakEarliest
	}
	return &Service{
		store:    st,
		cache:    cache,
		settler:  settler,
		plays:    plays,
		notifier: notifier,
		stopper:  stopper,
		cfg:      cfg,
	}
}

// Wait blocks until detached side effects of decided claims finish.
func (s *Service) Wait() { s.bg.Wait() }

// Resolve validates req and, if it holds a winning line, arbitrates it
// against concurrent claims on the same game. Rejections mutate nothing.
func (s *Service) Resolve(ctx context.Context, req Request) (*Result, error) {
	metricClaimsTotal.Add(1)
	if req.GameID == "" || req.ClaimantID == "" {
		metricClaimsRejected.Add(1)
		return nil, ErrInvalidRequest
	}
	if err := bingo.ValidateCard(req.Card); err != nil {
		metricClaimsRejected.Add(1)
		metricClaimsTampered.Add(1)
		log.Warn().Err(err).
			Str("event", securityEventTamper).
			Str("game_id", req.GameID).
			Str("user_id", req.ClaimantID).
			Msg("claim card failed validation")
		return nil, err
	}

	g, err := s.cache.ForceSync(ctx, req.GameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			metricClaimsRejected.Add(1)
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	isBot := g.HasBot(req.ClaimantID)
	if err := checkClaimable(&g, req.ClaimantID, isBot); err != nil {
		metricClaimsRejected.Add(1)
		return nil, err
	}

	marks := bingo.DeriveMarks(req.Card, g.CalledNumbers)
	if req.Marks != nil {
		marks = bingo.WithFreeCenter(*req.Marks)
	}
	if err := bingo.VerifyMarks(req.Card, marks, g.CalledNumbers); err != nil {
		metricClaimsRejected.Add(1)
		return nil, err
	}
	pattern, ok := bingo.DetectPattern(marks)
	if !ok {
		metricClaimsRejected.Add(1)
		return nil, ErrNotABingo
	}

	split, err := s.prizeSplit(ctx, &g)
	if err != nil {
		return nil, err
	}
	cardJSON, err := json.Marshal(req.Card)
	if err != nil {
		return nil, err
	}

	arb := s.arbitrate(ctx, store.ClaimParams{
		GameID:           g.ID,
		ClaimantID:       req.ClaimantID,
		IsBot:            isBot,
		Pattern:          pattern.String(),
		Cells:            bingo.CellValues(req.Card, pattern),
		Card:             cardJSON,
		Window:           s.cfg.Window,
		TieBreak:         s.cfg.TieBreak,
		CommissionAmount: split.Commission,
		NetPrize:         split.Net,
	})
	switch {
	case arb.Kind == ArbitrationFailed:
		metricClaimsUnresolve.Add(1)
		log.Error().Err(arb.Err).Str("game_id", g.ID).Str("user_id", req.ClaimantID).Msg("claim race unresolved")
		return nil, ErrUnresolvedRace
	case arb.Withdrawn:
		metricClaimsRejected.Add(1)
		log.Info().Str("game_id", g.ID).Str("user_id", req.ClaimantID).Msg("claimant left before the claim was decided")
		return nil, ErrNotParticipant
	case arb.WinnerID == "":
		metricClaimsRejected.Add(1)
		return nil, ErrGameNotActive
	}

	if arb.DecidedHere {
		s.afterDecision(ctx, &g, arb, pattern)
	}
	if arb.WinnerID != req.ClaimantID {
		metricClaimsRaceLost.Add(1)
		log.Info().Str("game_id", g.ID).Str("user_id", req.ClaimantID).Str("winner_id", arb.WinnerID).Msg("claim lost race")
		return nil, &RaceLostError{WinnerID: arb.WinnerID}
	}
	if !arb.DecidedHere {
		// Someone else wrote this claimant in as winner; settlement is
		// idempotent so it is safe to make sure it happened.
		s.settle(ctx, &g, arb)
	}

	metricClaimsAccepted.Add(1)
	res := &Result{
		Prize:            split.Net,
		GrossPrize:       split.Gross,
		CommissionRate:   split.Rate,
		CommissionAmount: split.Commission,
		WinnerID:         arb.WinnerID,
		GameStatus:       store.GameFinished,
		Pattern:          pattern.String(),
	}
	if final, err := s.store.GetGame(ctx, g.ID); err == nil {
		res.Prize = final.NetPrize
		res.CommissionAmount = final.CommissionAmount
		res.GameStatus = final.Status
		res.Pattern = final.WinningPattern
	}
	log.Info().Str("game_id", g.ID).Str("user_id", req.ClaimantID).
		Str("pattern", res.Pattern).Str("prize", res.Prize.String()).
		Str("arbitration", arb.Kind.String()).Msg("claim accepted")
	return res, nil
}

func checkClaimable(g *store.Game, claimantID string, isBot bool) error {
	switch {
	case g.WinnerID != nil:
		return ErrAlreadyWon
	case g.Status != store.GameActive:
		return ErrGameNotActive
	case !isBot && !g.HasPlayer(claimantID):
		return ErrNotParticipant
	}
	return nil
}

func (s *Service) prizeSplit(ctx context.Context, g *store.Game) (bingo.Split, error) {
	realPool, err := s.store.RealPrizePool(ctx, g.ID)
	if err != nil {
		return bingo.Split{}, err
	}
	bonus, err := s.store.BonusPrizePool(ctx, g.ID)
	if err != nil {
		return bingo.Split{}, err
	}
	return bingo.SplitPrize(realPool.Add(bonus), g.CommissionRate), nil
}

// arbitrate runs the locked decision and falls back to the conditional
// update when it errors. If both fail the persisted winner is re-read.
func (s *Service) arbitrate(ctx context.Context, p store.ClaimParams) Arbitration {
	dec, err := s.store.ResolveClaim(ctx, p)
	if err == nil && dec.Withdrawn {
		return Arbitration{Kind: ArbitrationLocked, Withdrawn: true, GameStatus: dec.GameStatus}
	}
	if err == nil {
		return Arbitration{
			Kind:        ArbitrationLocked,
			WinnerID:    dec.WinnerID,
			WinnerIsBot: dec.WinnerIsBot,
			DecidedHere: !dec.AlreadyDecided && dec.WinnerID != "",
			GameStatus:  dec.GameStatus,
		}
	}
	log.Warn().Err(err).Str("game_id", p.GameID).Str("user_id", p.ClaimantID).Msg("locked claim arbitration failed, trying conditional update")
	metricClaimsFallback.Add(1)

	applied, ferr := s.store.FinishIfUnclaimed(ctx, store.FinishParams{
		GameID:           p.GameID,
		WinnerID:         p.ClaimantID,
		Pattern:          p.Pattern,
		Card:             p.Card,
		CommissionAmount: p.CommissionAmount,
		NetPrize:         p.NetPrize,
		EndReason:        stopReasonBingo,
	})
	if ferr == nil && applied {
		return Arbitration{
			Kind:        ArbitrationFallbackApplied,
			WinnerID:    p.ClaimantID,
			WinnerIsBot: p.IsBot,
			DecidedHere: true,
			GameStatus:  store.GameFinished,
		}
	}

	g, gerr := s.store.GetGame(ctx, p.GameID)
	if gerr == nil && g.WinnerID != nil {
		return Arbitration{
			Kind:        ArbitrationLocked,
			WinnerID:    *g.WinnerID,
			WinnerIsBot: g.HasBot(*g.WinnerID),
			GameStatus:  g.Status,
		}
	}
	if gerr == nil && g.Status == store.GameActive && !g.HasPlayer(p.ClaimantID) && !g.HasBot(p.ClaimantID) {
		return Arbitration{Kind: ArbitrationLocked, Withdrawn: true, GameStatus: g.Status}
	}
	return Arbitration{Kind: ArbitrationFailed, Err: errors.Join(err, ferr, gerr)}
}

// afterDecision runs once per game, on the call that wrote the winner.
// Settlement is awaited; scheduler stop, notifications and tournament
// plays are detached from the request.
func (s *Service) afterDecision(ctx context.Context, g *store.Game, arb Arbitration, pattern bingo.Pattern) {
	s.stopper.Stop(ctx, g.ID, stopReasonBingo)
	s.settle(ctx, g, arb)
	if _, err := s.cache.Refresh(ctx, g.ID); err != nil {
		log.Warn().Err(err).Str("game_id", g.ID).Msg("cache refresh after claim failed")
	}

	players := append([]string(nil), g.Players...)
	roomID := g.RoomID
	gameID := g.ID
	detached := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(detached, sideEffectTimeout)
		defer cancel()
		prize := decimal.Zero
		if final, err := s.store.GetGame(ctx, gameID); err == nil {
			prize = final.NetPrize
		}
		if s.notifier != nil {
			s.notifier.WinnerDeclared(notify.WinnerEvent{
				GameID:   gameID,
				RoomID:   roomID,
				WinnerID: arb.WinnerID,
				IsBot:    arb.WinnerIsBot,
				Prize:    prize,
				Pattern:  pattern.String(),
				Reason:   stopReasonBingo,
				At:       time.Now(),
			})
		}
		if s.plays == nil {
			return
		}
		now := time.Now()
		for _, userID := range players {
			if err := s.plays.RecordPlay(ctx, userID, gameID, now); err != nil {
				log.Warn().Err(err).Str("game_id", gameID).Str("user_id", userID).Msg("tournament play record failed")
			}
		}
	}()
}

func (s *Service) settle(ctx context.Context, g *store.Game, arb Arbitration) {
	final, err := s.store.GetGame(ctx, g.ID)
	if err != nil {
		metricSettleFailures.Add(1)
		log.Error().Err(err).Str("game_id", g.ID).Msg("settlement reload failed")
		return
	}
	tier := ""
	if room, err := s.store.GetRoom(ctx, g.RoomID); err == nil {
		tier = room.Difficulty
	}
	err = s.settler.SettleGame(ctx, ledger.Settlement{
		GameID:       g.ID,
		WinnerID:     arb.WinnerID,
		WinnerIsBot:  arb.WinnerIsBot,
		Participants: final.Players,
		NetPrize:     final.NetPrize,
		Tier:         tier,
	})
	if err != nil {
		metricSettleFailures.Add(1)
		log.Error().Err(err).Str("game_id", g.ID).Str("winner_id", arb.WinnerID).Msg("claim settlement failed")
	}
}
