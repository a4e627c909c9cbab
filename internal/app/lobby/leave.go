package lobby

import (
	"context"
	"errors"
	"time"

	"bingo-hall/internal/bingo"
	"bingo-hall/internal/ledger"
	"bingo-hall/internal/notify"
	"bingo-hall/internal/store"

	"github.com/rs/zerolog/log"
)

const (
	reasonNoPlayers           = "no_players"
	reasonInsufficientPlayers = "insufficient_players"
	reasonOpponentLeft        = "opponent_left"

	msgLeft          = "left the game"
	msgAlreadyOver   = "game already finished"
	msgNoPlayers     = "game ended: no players left"
	msgInsufficient  = "game cancelled: not enough players"
	msgOpponentLeft  = "opponent left: remaining player wins"
	msgDecidedBefore = "game already decided"
)

// Leave removes userID from the game. Only human players count toward the
// outcome: with nobody left the round ends, with one left it is voided
// before the start or won by default once active.
func (s *Service) Leave(ctx context.Context, gameID, userID string) (*LeaveResult, error) {
	if gameID == "" || userID == "" {
		return nil, ErrInvalidRequest
	}
	before, err := s.cache.ForceSync(ctx, gameID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrGameNotFound
		}
		return nil, err
	}
	if before.Terminal() {
		return &LeaveResult{Message: msgAlreadyOver}, nil
	}
	if !before.HasPlayer(userID) {
		return nil, ErrNotParticipant
	}

	g, err := s.store.RemovePlayer(ctx, gameID, userID)
	switch {
	case errors.Is(err, store.ErrGameFinished):
		return &LeaveResult{Message: msgAlreadyOver}, nil
	case errors.Is(err, store.ErrNotParticipant):
		return nil, ErrNotParticipant
	case err != nil:
		return nil, err
	}
	metricLeaves.Add(1)
	log.Info().Str("game_id", gameID).Str("user_id", userID).Str("status", g.Status).Int("remaining", len(g.Players)).Msg("player left")

	switch remaining := len(g.Players); {
	case remaining == 0:
		return s.void(ctx, g, reasonNoPlayers, msgNoPlayers)
	case remaining == 1 && g.Open():
		return s.void(ctx, g, reasonInsufficientPlayers, msgInsufficient)
	case remaining == 1 && g.Status == store.GameActive:
		return s.autoWin(ctx, g, userID)
	}
	if _, err := s.cache.Refresh(ctx, gameID); err != nil {
		return nil, err
	}
	return &LeaveResult{Message: msgLeft}, nil
}

func (s *Service) void(ctx context.Context, g *store.Game, reason, msg string) (*LeaveResult, error) {
	s.timers.cancel(g.ID)
	voided, err := s.store.VoidGame(ctx, g.ID, reason)
	if err != nil {
		return nil, err
	}
	if voided {
		metricVoids.Add(1)
		log.Info().Str("game_id", g.ID).Str("reason", reason).Msg("game voided")
	}
	s.stopper.Stop(ctx, g.ID, reason)
	if _, err := s.cache.Refresh(ctx, g.ID); err != nil {
		log.Warn().Err(err).Str("game_id", g.ID).Msg("cache refresh failed")
	}
	return &LeaveResult{Message: msg}, nil
}

// autoWin awards the pot to the last human in an active game. The pool is
// re-derived from the stake ledger so forfeited stakes stay in it.
func (s *Service) autoWin(ctx context.Context, g *store.Game, leaverID string) (*LeaveResult, error) {
	winnerID := g.Players[0]
	realPool, err := s.store.RealPrizePool(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	bonusPool, err := s.store.BonusPrizePool(ctx, g.ID)
	if err != nil {
		return nil, err
	}
	split := bingo.SplitPrize(realPool.Add(bonusPool), g.CommissionRate)

	applied, err := s.store.FinishIfUnclaimed(ctx, store.FinishParams{
		GameID:           g.ID,
		WinnerID:         winnerID,
		CommissionAmount: split.Commission,
		NetPrize:         split.Net,
		EndReason:        reasonOpponentLeft,
	})
	if err != nil || !applied {
		if err != nil {
			log.Warn().Err(err).Str("game_id", g.ID).Msg("default win update failed, re-reading winner")
		}
		final, rerr := s.store.GetGame(ctx, g.ID)
		if rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		if _, err := s.cache.Refresh(ctx, g.ID); err != nil {
			log.Warn().Err(err).Str("game_id", g.ID).Msg("cache refresh failed")
		}
		res := &LeaveResult{Message: msgDecidedBefore}
		if final.WinnerID != nil {
			res.WinnerID = *final.WinnerID
		}
		return res, nil
	}

	metricAutoWins.Add(1)
	s.timers.cancel(g.ID)
	s.stopper.Stop(ctx, g.ID, reasonOpponentLeft)
	err = s.settler.SettleGame(ctx, ledger.Settlement{
		GameID:       g.ID,
		WinnerID:     winnerID,
		Participants: []string{winnerID, leaverID},
		NetPrize:     split.Net,
		Tier:         s.roomTier(ctx, g.RoomID),
	})
	if err != nil {
		log.Error().Err(err).Str("game_id", g.ID).Str("winner_id", winnerID).Msg("default win settlement failed")
	}
	if _, err := s.cache.Refresh(ctx, g.ID); err != nil {
		log.Warn().Err(err).Str("game_id", g.ID).Msg("cache refresh failed")
	}
	log.Info().Str("game_id", g.ID).Str("winner_id", winnerID).Str("prize", split.Net.String()).Msg("default win")

	s.detached(ctx, func(ctx context.Context) {
		if s.notifier != nil {
			s.notifier.WinnerDeclared(notify.WinnerEvent{
				GameID:   g.ID,
				RoomID:   g.RoomID,
				WinnerID: winnerID,
				Prize:    split.Net,
				Reason:   reasonOpponentLeft,
				At:       time.Now(),
			})
		}
		if s.plays == nil {
			return
		}
		now := time.Now()
		for _, userID := range []string{winnerID, leaverID} {
			if err := s.plays.RecordPlay(ctx, userID, g.ID, now); err != nil {
				log.Warn().Err(err).Str("game_id", g.ID).Str("user_id", userID).Msg("tournament play record failed")
			}
		}
	})

	prize, rate := split.Net, split.Rate
	return &LeaveResult{
		Message:        msgOpponentLeft,
		WinnerID:       winnerID,
		AutoWin:        true,
		Prize:          &prize,
		CommissionRate: &rate,
	}, nil
}

func (s *Service) roomTier(ctx context.Context, roomID string) string {
	room, err := s.store.GetRoom(ctx, roomID)
	if err != nil {
		return ""
	}
	return room.Difficulty
}

func (s *Service) detached(ctx context.Context, fn func(ctx context.Context)) {
	base := context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(base, sideEffectLimit)
		defer cancel()
		fn(ctx)
	}()
}
