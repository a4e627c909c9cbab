package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const tournamentColumns = `id, name, type, status, enabled, start_at, end_at, prize_mode, prize_config, eligibility, created_at`

func scanTournament(row pgx.Row) (*Tournament, error) {
	var t Tournament
	var prizeConfig, eligibility []byte
	if err := row.Scan(&t.ID, &t.Name, &t.Type, &t.Status, &t.Enabled, &t.StartAt, &t.EndAt,
		&t.PrizeMode, &prizeConfig, &eligibility, &t.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	if len(prizeConfig) > 0 {
		if err := json.Unmarshal(prizeConfig, &t.PrizeConfig); err != nil {
			return nil, err
		}
	}
	if len(eligibility) > 0 {
		if err := json.Unmarshal(eligibility, &t.Eligibility); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *Store) CreateTournament(ctx context.Context, t Tournament) (*Tournament, error) {
	if t.ID == "" {
		t.ID = NewID()
	}
	if t.Status == "" {
		t.Status = TournamentActive
	}
	if t.PrizeMode == "" {
		t.PrizeMode = PrizeModeFixed
	}
	if t.Type == "" {
		t.Type = "weekly"
	}
	prizeConfig, err := json.Marshal(t.PrizeConfig)
	if err != nil {
		return nil, err
	}
	eligibility, err := json.Marshal(t.Eligibility)
	if err != nil {
		return nil, err
	}
	return scanTournament(s.Pool.QueryRow(ctx, `
		INSERT INTO tournaments (id, name, type, status, enabled, start_at, end_at, prize_mode, prize_config, eligibility)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+tournamentColumns,
		t.ID, t.Name, t.Type, t.Status, t.Enabled, t.StartAt, t.EndAt, t.PrizeMode, string(prizeConfig), string(eligibility)))
}

func (s *Store) GetTournament(ctx context.Context, id string) (*Tournament, error) {
	return scanTournament(s.Pool.QueryRow(ctx, `SELECT `+tournamentColumns+` FROM tournaments WHERE id = $1`, id))
}

// ListActiveTournaments returns enabled tournaments whose window contains at.
func (s *Store) ListActiveTournaments(ctx context.Context, at time.Time) ([]Tournament, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+tournamentColumns+` FROM tournaments
		WHERE enabled AND status = 'active' AND start_at <= $1 AND end_at > $1
		ORDER BY start_at`, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) EndTournament(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE tournaments SET status = 'ended', enabled = false WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MetricEvent is one deposit or play attributed to a tournament.
type MetricEvent struct {
	TournamentID string
	UserID       string
	Metric       string
	Amount       decimal.Decimal
	RefID        string
	At           time.Time
}

// RecordTournamentEvent adds the event to the participant's running totals
// and appends it to the metric log. Counters are additive; the last-at
// timestamps keep the latest value.
func (s *Store) RecordTournamentEvent(ctx context.Context, ev MetricEvent) error {
	var deposit decimal.Decimal
	var plays int
	var depositAt, playAt *time.Time
	switch ev.Metric {
	case MetricDeposits:
		deposit = ev.Amount
		depositAt = &ev.At
	case MetricPlays:
		plays = 1
		playAt = &ev.At
	default:
		return errors.New("unknown metric")
	}

	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO tournament_metrics (tournament_id, user_id, deposit_total, play_count, last_deposit_at, last_play_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6)
		ON CONFLICT (tournament_id, user_id) DO UPDATE
		SET deposit_total = tournament_metrics.deposit_total + EXCLUDED.deposit_total,
		    play_count = tournament_metrics.play_count + EXCLUDED.play_count,
		    last_deposit_at = GREATEST(tournament_metrics.last_deposit_at, EXCLUDED.last_deposit_at),
		    last_play_at = GREATEST(tournament_metrics.last_play_at, EXCLUDED.last_play_at),
		    updated_at = now()`,
		ev.TournamentID, ev.UserID, deposit.String(), plays, depositAt, playAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO tournament_metric_log (id, tournament_id, user_id, metric, amount, ref_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)`,
		NewID(), ev.TournamentID, ev.UserID, ev.Metric, ev.Amount.String(), ev.RefID, ev.At); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const metricColumns = `tournament_id, user_id, deposit_total::text, play_count, last_deposit_at, last_play_at`

func scanMetrics(rows pgx.Rows) ([]TournamentMetric, error) {
	defer rows.Close()
	var out []TournamentMetric
	for rows.Next() {
		var m TournamentMetric
		var total string
		if err := rows.Scan(&m.TournamentID, &m.UserID, &total, &m.PlayCount, &m.LastDepositAt, &m.LastPlayAt); err != nil {
			return nil, err
		}
		m.DepositTotal = numeric(total)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) ListTournamentMetrics(ctx context.Context, tournamentID string) ([]TournamentMetric, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+metricColumns+` FROM tournament_metrics
		WHERE tournament_id = $1 ORDER BY user_id`, tournamentID)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

// TournamentLeaderboard ranks participants by metric, highest first. Ties go
// to whoever reached the value first.
func (s *Store) TournamentLeaderboard(ctx context.Context, tournamentID, metric string, limit int) ([]TournamentMetric, error) {
	order := `deposit_total DESC, last_deposit_at ASC NULLS LAST, user_id`
	if metric == MetricPlays {
		order = `play_count DESC, last_play_at ASC NULLS LAST, user_id`
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+metricColumns+` FROM tournament_metrics
		WHERE tournament_id = $1
		ORDER BY `+order+` LIMIT $2`, tournamentID, limit)
	if err != nil {
		return nil, err
	}
	return scanMetrics(rows)
}

func (s *Store) TournamentDepositTotal(ctx context.Context, tournamentID string) (decimal.Decimal, error) {
	var total string
	err := s.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(deposit_total), 0)::text FROM tournament_metrics
		WHERE tournament_id = $1`, tournamentID).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return numeric(total), nil
}

// UserStatuses maps each known user id to its account status.
func (s *Store) UserStatuses(ctx context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.Pool.Query(ctx, `SELECT id, status FROM users WHERE id = ANY($1::text[])`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, err
		}
		out[id] = status
	}
	return out, rows.Err()
}

// UsersWithCompletedDeposits returns the subset of ids holding a completed
// deposit in [from, to).
func (s *Store) UsersWithCompletedDeposits(ctx context.Context, ids []string, from, to time.Time) (map[string]bool, error) {
	out := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT DISTINCT user_id FROM deposits
		WHERE user_id = ANY($1::text[]) AND status = 'completed'
		  AND created_at >= $2 AND created_at < $3`, ids, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

type DepositParams struct {
	UserID string
	// ExternalID is the payment provider's reference. A repeated reference
	// books nothing.
	ExternalID string
	Amount     decimal.Decimal
	At         time.Time
}

type DepositReceipt struct {
	ID        string
	Duplicate bool
}

// RecordDeposit stores a completed deposit and credits the real balance.
func (s *Store) RecordDeposit(ctx context.Context, p DepositParams) (*DepositReceipt, error) {
	if !p.Amount.IsPositive() {
		return nil, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)
	if _, err := lockWallet(ctx, tx, p.UserID); err != nil {
		return nil, err
	}
	var externalID *string
	if p.ExternalID != "" {
		externalID = &p.ExternalID
	}
	id := NewID()
	err = tx.QueryRow(ctx, `
		INSERT INTO deposits (id, user_id, external_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4::numeric, 'completed', $5)
		ON CONFLICT (external_id) WHERE external_id IS NOT NULL DO NOTHING
		RETURNING id`, id, p.UserID, externalID, p.Amount.String(), p.At).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		var existing string
		if err := tx.QueryRow(ctx, `SELECT id FROM deposits WHERE external_id = $1`, p.ExternalID).Scan(&existing); err != nil {
			return nil, err
		}
		return &DepositReceipt{ID: existing, Duplicate: true}, nil
	}
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE wallets SET real_balance = real_balance + $2::numeric, updated_at = now()
		WHERE user_id = $1`, p.UserID, p.Amount.String()); err != nil {
		return nil, err
	}
	if err := insertLedgerEntry(ctx, tx, p.UserID, EntryDeposit, p.Amount, FundingReal, "deposit", id); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &DepositReceipt{ID: id}, nil
}

// CreateTournamentWinners stores the ranked winners of a tournament. A
// tournament can only be finalized once.
func (s *Store) CreateTournamentWinners(ctx context.Context, tournamentID string, winners []TournamentWinner) ([]TournamentWinner, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var id string
	if err := tx.QueryRow(ctx, `SELECT id FROM tournaments WHERE id = $1 FOR UPDATE`, tournamentID).Scan(&id); err != nil {
		return nil, mapNotFound(err)
	}
	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM tournament_winners WHERE tournament_id = $1)`, tournamentID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAlreadyFinalized
	}
	out := make([]TournamentWinner, 0, len(winners))
	for _, w := range winners {
		w.ID = NewID()
		w.TournamentID = tournamentID
		if _, err := tx.Exec(ctx, `
			INSERT INTO tournament_winners (id, tournament_id, user_id, metric, rank, metric_value, prize_amount)
			VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric)`,
			w.ID, tournamentID, w.UserID, w.Metric, w.Rank, w.MetricValue.String(), w.PrizeAmount.String()); err != nil {
			if isUniqueViolation(err) {
				return nil, ErrConflict
			}
			return nil, err
		}
		out = append(out, w)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) ListTournamentWinners(ctx context.Context, tournamentID string) ([]TournamentWinner, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT id, tournament_id, user_id, metric, rank, metric_value::text, prize_amount::text, paid, paid_at
		FROM tournament_winners WHERE tournament_id = $1 ORDER BY metric, rank`, tournamentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TournamentWinner
	for rows.Next() {
		var w TournamentWinner
		var value, prize string
		if err := rows.Scan(&w.ID, &w.TournamentID, &w.UserID, &w.Metric, &w.Rank, &value, &prize, &w.Paid, &w.PaidAt); err != nil {
			return nil, err
		}
		w.MetricValue = numeric(value)
		w.PrizeAmount = numeric(prize)
		out = append(out, w)
	}
	return out, rows.Err()
}

// AwardTournamentPrize credits one winner row to the real balance. It reports
// false when the row was already paid.
func (s *Store) AwardTournamentPrize(ctx context.Context, winnerID string) (bool, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	var userID, tournamentID, prize string
	var paid bool
	err = tx.QueryRow(ctx, `
		SELECT user_id, tournament_id, prize_amount::text, paid FROM tournament_winners
		WHERE id = $1 FOR UPDATE`, winnerID).Scan(&userID, &tournamentID, &prize, &paid)
	if err != nil {
		return false, mapNotFound(err)
	}
	if paid {
		return false, nil
	}
	amount := numeric(prize)
	if amount.IsPositive() {
		if _, err := lockWallet(ctx, tx, userID); err != nil {
			return false, err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE wallets SET real_balance = real_balance + $2::numeric, updated_at = now()
			WHERE user_id = $1`, userID, amount.String()); err != nil {
			return false, err
		}
		if err := insertLedgerEntry(ctx, tx, userID, EntryTournamentPrize, amount, FundingReal, "tournament_winner", winnerID); err != nil {
			return false, err
		}
	}
	if _, err := tx.Exec(ctx, `UPDATE tournament_winners SET paid = true, paid_at = now() WHERE id = $1`, winnerID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}
