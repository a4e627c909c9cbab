package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	TieBreakEarliest  = "earliest"
	TieBreakPreferBot = "prefer_bot"
)

type ClaimParams struct {
	GameID     string
	ClaimantID string
	IsBot      bool
	Pattern    string
	Cells      []int
	Card       []byte

	// Window is how long to wait for competing claims before deciding.
	Window   time.Duration
	TieBreak string

	CommissionAmount decimal.Decimal
	NetPrize         decimal.Decimal
}

// ClaimDecision is the outcome of ResolveClaim for one claimant.
type ClaimDecision struct {
	Accepted       bool
	WinnerID       string
	WinnerIsBot    bool
	AlreadyDecided bool
	GameStatus     string
	// Withdrawn is set when the claimant left the game before the claim
	// was decided. Nothing is written for such a claim.
	Withdrawn bool
}

// ResolveClaim records the claim, waits for the arbitration window, then
// picks a single winner under the game row lock. Every claim that lands
// within Window of the first one competes; TieBreak orders them. Claims
// from players no longer on the locked roster never win.
func (s *Store) ResolveClaim(ctx context.Context, p ClaimParams) (*ClaimDecision, error) {
	if _, err := s.Pool.Exec(ctx, `
		INSERT INTO bingo_claims (id, game_id, claimant_id, is_bot, pattern, cells, card)
		VALUES ($1, $2, $3, $4, $5, $6::int[], $7)`,
		NewID(), p.GameID, p.ClaimantID, p.IsBot, p.Pattern, int32s(p.Cells), string(p.Card)); err != nil {
		return nil, err
	}

	if p.Window > 0 {
		t := time.NewTimer(p.Window)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	g, err := s.LockGame(ctx, tx, p.GameID)
	if err != nil {
		return nil, err
	}
	if g.WinnerID != nil {
		return &ClaimDecision{
			Accepted:       *g.WinnerID == p.ClaimantID,
			WinnerID:       *g.WinnerID,
			WinnerIsBot:    g.HasBot(*g.WinnerID),
			AlreadyDecided: true,
			GameStatus:     g.Status,
		}, nil
	}
	if g.Status != GameActive {
		return &ClaimDecision{AlreadyDecided: true, GameStatus: g.Status}, nil
	}
	if !g.HasPlayer(p.ClaimantID) && !g.HasBot(p.ClaimantID) {
		return &ClaimDecision{Withdrawn: true, GameStatus: g.Status}, nil
	}

	order := `claimed_at, id`
	if p.TieBreak == TieBreakPreferBot {
		order = `is_bot DESC, claimed_at, id`
	}
	var (
		winnerID, pattern string
		winnerIsBot       bool
		card              []byte
	)
	err = tx.QueryRow(ctx, `
		SELECT claimant_id, is_bot, pattern, card FROM bingo_claims
		WHERE game_id = $1
		  AND (claimant_id = ANY($3::text[]) OR claimant_id = ANY($4::text[]))
		  AND claimed_at <= (SELECT min(claimed_at) FROM bingo_claims
		                     WHERE game_id = $1
		                       AND (claimant_id = ANY($3::text[]) OR claimant_id = ANY($4::text[])))
		                    + make_interval(secs => $2::double precision)
		ORDER BY `+order+` LIMIT 1`,
		p.GameID, p.Window.Seconds(), g.Players, g.Bots).Scan(&winnerID, &winnerIsBot, &pattern, &card)
	if err != nil {
		return nil, mapNotFound(err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE games
		SET status = 'finished', winner_id = $2, winning_pattern = $3, winning_card = $4,
		    commission_amount = $5::numeric, net_prize = $6::numeric, end_reason = 'bingo',
		    ended_at = now(), updated_at = now()
		WHERE id = $1`,
		p.GameID, winnerID, pattern, string(card), p.CommissionAmount.String(), p.NetPrize.String()); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &ClaimDecision{
		Accepted:    winnerID == p.ClaimantID,
		WinnerID:    winnerID,
		WinnerIsBot: winnerIsBot,
		GameStatus:  GameFinished,
	}, nil
}

type Claim struct {
	ID         string    `json:"id"`
	GameID     string    `json:"game_id"`
	ClaimantID string    `json:"claimant_id"`
	IsBot      bool      `json:"is_bot"`
	Pattern    string    `json:"pattern"`
	Cells      []int     `json:"cells"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

func (s *Store) ListClaims(ctx context.Context, gameID string) ([]Claim, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, game_id, claimant_id, is_bot, pattern, cells, claimed_at
		FROM bingo_claims WHERE game_id = $1 ORDER BY claimed_at, id`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Claim
	for rows.Next() {
		var c Claim
		var cells []int32
		if err := rows.Scan(&c.ID, &c.GameID, &c.ClaimantID, &c.IsBot, &c.Pattern, &cells, &c.ClaimedAt); err != nil {
			return nil, err
		}
		c.Cells = make([]int, len(cells))
		for i, n := range cells {
			c.Cells[i] = int(n)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
