package ledger

import (
	"context"
	"fmt"

	"bingo-hall/internal/bingo"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Store is the subset of the durable store that settles a finished game.
type Store interface {
	CreditWinnings(ctx context.Context, userID, gameID string, amount decimal.Decimal) (bool, error)
	CreditBotEarnings(ctx context.Context, botID, gameID string, amount decimal.Decimal) (bool, error)
	RecordGameResults(ctx context.Context, gameID, winnerID string, participants []string) error
	AwardXP(ctx context.Context, userID, gameID string, xp int) error
}

type Ledger struct {
	Store  Store
	BaseXP int
}

func New(s Store, baseXP int) *Ledger {
	return &Ledger{Store: s, BaseXP: baseXP}
}

// Settlement is everything needed to pay out a decided game.
type Settlement struct {
	GameID      string
	WinnerID    string
	WinnerIsBot bool
	// Participants are the human players; bots have no stats.
	Participants []string
	NetPrize     decimal.Decimal
	Tier         string
}

// SettleGame credits the winner, records results for every human
// participant and awards XP to a human winner. Every step is idempotent per
// game, so a retried settlement never pays twice.
func (l *Ledger) SettleGame(ctx context.Context, s Settlement) error {
	if s.WinnerIsBot {
		if _, err := l.Store.CreditBotEarnings(ctx, s.WinnerID, s.GameID, s.NetPrize); err != nil {
			return fmt.Errorf("credit bot earnings: %w", err)
		}
	} else {
		credited, err := l.Store.CreditWinnings(ctx, s.WinnerID, s.GameID, s.NetPrize)
		if err != nil {
			return fmt.Errorf("credit winnings: %w", err)
		}
		if !credited {
			log.Info().Str("game_id", s.GameID).Str("user_id", s.WinnerID).Msg("winnings already credited")
		}
	}
	if len(s.Participants) > 0 {
		if err := l.Store.RecordGameResults(ctx, s.GameID, s.WinnerID, s.Participants); err != nil {
			return fmt.Errorf("record results: %w", err)
		}
	}
	if !s.WinnerIsBot {
		xp := bingo.XPForTier(l.BaseXP, s.Tier)
		if err := l.Store.AwardXP(ctx, s.WinnerID, s.GameID, xp); err != nil {
			return fmt.Errorf("award xp: %w", err)
		}
	}
	return nil
}
