package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const roomColumns = `id, name, stake::text, commission_rate::text, difficulty, min_players, max_players, status, created_at`

func scanRoom(row pgx.Row) (*Room, error) {
	var r Room
	var stake, rate string
	if err := row.Scan(&r.ID, &r.Name, &stake, &rate, &r.Difficulty, &r.MinPlayers, &r.MaxPlayers, &r.Status, &r.CreatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	r.Stake = numeric(stake)
	r.CommissionRate = numeric(rate)
	return &r, nil
}

func (s *Store) GetRoom(ctx context.Context, roomID string) (*Room, error) {
	return scanRoom(s.Pool.QueryRow(ctx, `SELECT `+roomColumns+` FROM rooms WHERE id = $1`, roomID))
}

func (s *Store) ListRooms(ctx context.Context) ([]Room, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+roomColumns+` FROM rooms WHERE status = 'active' ORDER BY stake, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *Store) UpsertRoom(ctx context.Context, r Room) error {
	if r.MinPlayers <= 0 {
		r.MinPlayers = 2
	}
	if r.MaxPlayers <= 0 {
		r.MaxPlayers = 100
	}
	if r.Difficulty == "" {
		r.Difficulty = "easy"
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO rooms (id, name, stake, commission_rate, difficulty, min_players, max_players)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, stake = EXCLUDED.stake, commission_rate = EXCLUDED.commission_rate,
		    difficulty = EXCLUDED.difficulty, min_players = EXCLUDED.min_players, max_players = EXCLUDED.max_players`,
		r.ID, r.Name, r.Stake.String(), r.CommissionRate.String(), r.Difficulty, r.MinPlayers, r.MaxPlayers)
	return err
}

// EnsureDefaultRooms seeds the stake tiers when the rooms table is empty.
func (s *Store) EnsureDefaultRooms(ctx context.Context) error {
	var n int
	if err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM rooms`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	defaults := []Room{
		{ID: "room_5", Name: "Penny Hall", Stake: decimal.NewFromInt(5), CommissionRate: decimal.NewFromInt(10), Difficulty: "easy"},
		{ID: "room_10", Name: "Classic Hall", Stake: decimal.NewFromInt(10), CommissionRate: decimal.NewFromInt(10), Difficulty: "medium"},
		{ID: "room_50", Name: "High Roller", Stake: decimal.NewFromInt(50), CommissionRate: decimal.RequireFromString("7.5"), Difficulty: "hard"},
		{ID: "room_100", Name: "Expert Lounge", Stake: decimal.NewFromInt(100), CommissionRate: decimal.NewFromInt(5), Difficulty: "expert"},
	}
	for _, r := range defaults {
		if err := s.UpsertRoom(ctx, r); err != nil {
			return err
		}
	}
	return nil
}
