package tournament

import (
	"bingo-hall/internal/store"

	"github.com/shopspring/decimal"
)

type LeaderboardResponse struct {
	TournamentID string            `json:"tournament_id"`
	Metric       string            `json:"metric"`
	Items        []LeaderboardItem `json:"items"`
	Limit        int               `json:"limit"`
}

type LeaderboardItem struct {
	Rank   int             `json:"rank"`
	UserID string          `json:"user_id"`
	Value  decimal.Decimal `json:"value"`
}

type FinalizeOptions struct {
	// Force finalizes before the tournament window has closed.
	Force bool
	// PreviewOnly computes winners without persisting or paying them.
	PreviewOnly bool
}

type FinalizeResult struct {
	TournamentID     string                   `json:"tournament_id"`
	Winners          []store.TournamentWinner `json:"winners"`
	AlreadyFinalized bool                     `json:"already_finalized"`
	Preview          bool                     `json:"preview"`
	TotalPrize       decimal.Decimal          `json:"total_prize"`
}

type DepositResult struct {
	DepositID   string `json:"deposit_id"`
	Tournaments int    `json:"tournaments"`
	Duplicate   bool   `json:"duplicate,omitempty"`
}
