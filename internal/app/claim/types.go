package claim

import (
	"time"

	"bingo-hall/internal/bingo"

	"github.com/shopspring/decimal"
)

type Config struct {
	Window   time.Duration
	TieBreak string
}

type Request struct {
	GameID     string
	ClaimantID string
	Card       bingo.Card
	// Marks is the client's daub grid; nil derives marks from called numbers.
	Marks *bingo.Marks
}

type Result struct {
	Prize            decimal.Decimal `json:"prize"`
	GrossPrize       decimal.Decimal `json:"gross_prize"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	WinnerID         string          `json:"winner_id"`
	GameStatus       string          `json:"game_status"`
	Pattern          string          `json:"pattern"`
}

type ArbitrationKind int

const (
	// ArbitrationLocked means the winner was read or chosen under the game
	// row lock.
	ArbitrationLocked ArbitrationKind = iota
	// ArbitrationFallbackApplied means the locked path failed and the
	// conditional update made this claimant the winner.
	ArbitrationFallbackApplied
	// ArbitrationFailed means neither path produced a winner.
	ArbitrationFailed
)

func (k ArbitrationKind) String() string {
	switch k {
	case ArbitrationLocked:
		return "locked"
	case ArbitrationFallbackApplied:
		return "fallback_applied"
	default:
		return "failed"
	}
}

// Arbitration is the outcome of deciding a claim race.
type Arbitration struct {
	Kind        ArbitrationKind
	WinnerID    string
	WinnerIsBot bool
	// DecidedHere is set when this call wrote the winner and so owns the
	// post-decision side effects.
	DecidedHere bool
	// Withdrawn means the claimant left before the claim was decided.
	Withdrawn  bool
	GameStatus string
	Err        error
}
