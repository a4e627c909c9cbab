package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const gameColumns = `id, room_id, status, players, bots, called_numbers, latest_call, countdown,
	stake::text, prize_pool::text, winner_id, winning_card, winning_pattern,
	commission_rate::text, commission_amount::text, net_prize::text, end_reason,
	created_at, waiting_started_at, started_at, ended_at`

func scanGame(row pgx.Row) (*Game, error) {
	var (
		g                                  Game
		called                             []int32
		card                               []byte
		stake, pool, rate, commission, net string
	)
	err := row.Scan(
		&g.ID, &g.RoomID, &g.Status, &g.Players, &g.Bots, &called, &g.LatestCall, &g.Countdown,
		&stake, &pool, &g.WinnerID, &card, &g.WinningPattern,
		&rate, &commission, &net, &g.EndReason,
		&g.CreatedAt, &g.WaitingStartedAt, &g.StartedAt, &g.EndedAt,
	)
	if err != nil {
		return nil, mapNotFound(err)
	}
	g.CalledNumbers = make([]int, len(called))
	for i, n := range called {
		g.CalledNumbers[i] = int(n)
	}
	if g.Players == nil {
		g.Players = []string{}
	}
	if g.Bots == nil {
		g.Bots = []string{}
	}
	g.WinningCard = card
	g.Stake = numeric(stake)
	g.PrizePool = numeric(pool)
	g.CommissionRate = numeric(rate)
	g.CommissionAmount = numeric(commission)
	g.NetPrize = numeric(net)
	return &g, nil
}

func int32s(in []int) []int32 {
	out := make([]int32, len(in))
	for i, n := range in {
		out[i] = int32(n)
	}
	return out
}

func (s *Store) GetGame(ctx context.Context, gameID string) (*Game, error) {
	return scanGame(s.Pool.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1`, gameID))
}

// LockGame reads the game row under SELECT ... FOR UPDATE inside tx.
func (s *Store) LockGame(ctx context.Context, tx pgx.Tx, gameID string) (*Game, error) {
	return scanGame(tx.QueryRow(ctx, `SELECT `+gameColumns+` FROM games WHERE id = $1 FOR UPDATE`, gameID))
}

func (s *Store) FindActiveGame(ctx context.Context, roomID string) (*Game, error) {
	return scanGame(s.Pool.QueryRow(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE room_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT 1`, roomID))
}

// FindOpenGame returns the most recent game that has not started yet.
func (s *Store) FindOpenGame(ctx context.Context, roomID string) (*Game, error) {
	return scanGame(s.Pool.QueryRow(ctx, `
		SELECT `+gameColumns+` FROM games
		WHERE room_id = $1 AND status = ANY($2)
		ORDER BY created_at DESC LIMIT 1`, roomID, OpenStatuses))
}

// CreateGame inserts a waiting game for room. A concurrent creator that
// already holds the room's open slot surfaces as ErrConflict.
func (s *Store) CreateGame(ctx context.Context, room *Room) (*Game, error) {
	g, err := scanGame(s.Pool.QueryRow(ctx, `
		INSERT INTO games (id, room_id, status, stake, commission_rate)
		VALUES ($1, $2, 'waiting', $3::numeric, $4::numeric)
		RETURNING `+gameColumns,
		NewID(), room.ID, room.Stake.String(), room.CommissionRate.String()))
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return g, nil
}

// JoinGame debits the room stake from the user's wallet and appends the user
// to the roster in one transaction.
func (s *Store) JoinGame(ctx context.Context, gameID, userID string, maxPlayers int) (*Game, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	g, err := s.LockGame(ctx, tx, gameID)
	if err != nil {
		return nil, err
	}
	if !g.Open() {
		return nil, ErrGameClosed
	}
	if g.HasPlayer(userID) {
		return nil, ErrAlreadyJoined
	}
	if maxPlayers > 0 && g.Population() >= maxPlayers {
		return nil, ErrGameFull
	}
	funding, err := debitStake(ctx, tx, userID, g.Stake, gameID)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO game_stakes (game_id, user_id, amount, funding, state)
		VALUES ($1, $2, $3::numeric, $4, 'held')
		ON CONFLICT (game_id, user_id) DO UPDATE
		SET amount = EXCLUDED.amount, funding = EXCLUDED.funding, state = 'held', created_at = now()`,
		gameID, userID, g.Stake.String(), funding); err != nil {
		return nil, err
	}
	updated, err := scanGame(tx.QueryRow(ctx, `
		UPDATE games
		SET players = array_append(players, $2), prize_pool = prize_pool + stake, updated_at = now()
		WHERE id = $1
		RETURNING `+gameColumns, gameID, userID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// AddBots appends simulated participants while the game is still open.
func (s *Store) AddBots(ctx context.Context, gameID string, botIDs []string) (*Game, error) {
	g, err := scanGame(s.Pool.QueryRow(ctx, `
		UPDATE games SET bots = bots || $2::text[], updated_at = now()
		WHERE id = $1 AND status = ANY($3)
		RETURNING `+gameColumns, gameID, botIDs, OpenStatuses))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrGameClosed
	}
	return g, err
}

// TransitionGame moves the game to status "to" only if it is currently in
// one of "from". ErrConflict means another caller got there first.
func (s *Store) TransitionGame(ctx context.Context, gameID string, from []string, to string, countdown int) (*Game, error) {
	g, err := scanGame(s.Pool.QueryRow(ctx, `
		UPDATE games
		SET status = $3,
		    countdown = $4,
		    waiting_started_at = CASE WHEN $3 = 'waiting_for_players' THEN now() ELSE waiting_started_at END,
		    started_at = CASE WHEN $3 = 'active' THEN now() ELSE started_at END,
		    updated_at = now()
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+gameColumns, gameID, from, to, countdown))
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConflict
	}
	return g, err
}

// SaveGameCalls writes back the cache-owned fields. The update never
// shrinks the call history and never touches a finished game.
func (s *Store) SaveGameCalls(ctx context.Context, gameID string, called []int, latestCall string, countdown int) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE games
		SET called_numbers = $2::int[], latest_call = $3, countdown = $4, updated_at = now()
		WHERE id = $1 AND status <> 'finished'
		  AND cardinality(called_numbers) <= cardinality($2::int[])`,
		gameID, int32s(called), latestCall, countdown)
	return err
}

// RemovePlayer drops userID from the roster. Stakes are refunded while the
// game has not started and forfeited to the pot once it is active.
func (s *Store) RemovePlayer(ctx context.Context, gameID, userID string) (*Game, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	g, err := s.LockGame(ctx, tx, gameID)
	if err != nil {
		return nil, err
	}
	if g.Terminal() {
		return nil, ErrGameFinished
	}
	if !g.HasPlayer(userID) {
		return nil, ErrNotParticipant
	}
	if g.Open() {
		if err := refundStake(ctx, tx, gameID, userID); err != nil {
			return nil, err
		}
	} else if _, err := tx.Exec(ctx, `
		UPDATE game_stakes SET state = 'forfeited'
		WHERE game_id = $1 AND user_id = $2 AND state = 'held'`, gameID, userID); err != nil {
		return nil, err
	}
	updated, err := scanGame(tx.QueryRow(ctx, `
		UPDATE games
		SET players = array_remove(players, $2),
		    prize_pool = stake * cardinality(array_remove(players, $2)),
		    updated_at = now()
		WHERE id = $1
		RETURNING `+gameColumns, gameID, userID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

// VoidGame finishes a game without a winner and refunds every held stake.
// It reports false when the game had already finished.
func (s *Store) VoidGame(ctx context.Context, gameID, reason string) (bool, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	g, err := s.LockGame(ctx, tx, gameID)
	if err != nil {
		return false, err
	}
	if g.Terminal() {
		return false, nil
	}
	if _, err := tx.Exec(ctx, `
		UPDATE games
		SET status = 'finished', end_reason = $2, countdown = 0, ended_at = now(), updated_at = now()
		WHERE id = $1`, gameID, reason); err != nil {
		return false, err
	}
	rows, err := tx.Query(ctx, `SELECT user_id FROM game_stakes WHERE game_id = $1 AND state = 'held'`, gameID)
	if err != nil {
		return false, err
	}
	users, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return false, err
	}
	for _, userID := range users {
		if err := refundStake(ctx, tx, gameID, userID); err != nil {
			return false, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// FinishParams describes a winner written by the conditional update path.
type FinishParams struct {
	GameID           string
	WinnerID         string
	Pattern          string
	Card             []byte
	CommissionAmount decimal.Decimal
	NetPrize         decimal.Decimal
	EndReason        string
}

// FinishIfUnclaimed sets the winner only while the game is active and has
// no winner yet. It reports whether this call applied the update.
func (s *Store) FinishIfUnclaimed(ctx context.Context, p FinishParams) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE games
		SET status = 'finished', winner_id = $2, winning_pattern = $3, winning_card = $4,
		    commission_amount = $5::numeric, net_prize = $6::numeric, end_reason = $7,
		    ended_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'active' AND winner_id IS NULL
		  AND ($2 = ANY(players) OR $2 = ANY(bots))`,
		p.GameID, p.WinnerID, p.Pattern, nullableJSON(p.Card),
		p.CommissionAmount.String(), p.NetPrize.String(), p.EndReason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RealPrizePool sums real-funded stakes still in the pot.
func (s *Store) RealPrizePool(ctx context.Context, gameID string) (decimal.Decimal, error) {
	return s.prizePool(ctx, gameID, FundingReal)
}

// BonusPrizePool sums bonus-funded stakes still in the pot.
func (s *Store) BonusPrizePool(ctx context.Context, gameID string) (decimal.Decimal, error) {
	return s.prizePool(ctx, gameID, FundingBonus)
}

func (s *Store) prizePool(ctx context.Context, gameID, funding string) (decimal.Decimal, error) {
	var total string
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text FROM game_stakes
		WHERE game_id = $1 AND funding = $2 AND state IN ('held', 'forfeited')`,
		gameID, funding).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric(total), nil
}

func (s *Store) ListGameStakes(ctx context.Context, gameID string) ([]GameStake, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT game_id, user_id, amount::text, funding, state, created_at
		FROM game_stakes WHERE game_id = $1 ORDER BY created_at`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GameStake
	for rows.Next() {
		var st GameStake
		var amount string
		if err := rows.Scan(&st.GameID, &st.UserID, &amount, &st.Funding, &st.State, &st.CreatedAt); err != nil {
			return nil, err
		}
		st.Amount = numeric(amount)
		out = append(out, st)
	}
	return out, rows.Err()
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
