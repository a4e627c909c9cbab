package store

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// RecordGameResults updates win/loss counters once per (game, participant).
func (s *Store) RecordGameResults(ctx context.Context, gameID, winnerID string, participants []string) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, userID := range participants {
		won := userID == winnerID
		tag, err := tx.Exec(ctx, `
			INSERT INTO game_results (game_id, user_id, won) VALUES ($1, $2, $3)
			ON CONFLICT (game_id, user_id) DO NOTHING`, gameID, userID, won)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		wonInc, lostInc := 0, 1
		if won {
			wonInc, lostInc = 1, 0
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO player_stats (user_id, games_played, games_won, games_lost)
			VALUES ($1, 1, $2, $3)
			ON CONFLICT (user_id) DO UPDATE
			SET games_played = player_stats.games_played + 1,
			    games_won = player_stats.games_won + EXCLUDED.games_won,
			    games_lost = player_stats.games_lost + EXCLUDED.games_lost,
			    updated_at = now()`, userID, wonInc, lostInc); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// AwardXP adds xp for a game at most once. RecordGameResults must have run
// for the same game and user first.
func (s *Store) AwardXP(ctx context.Context, userID, gameID string, xp int) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE game_results SET xp_awarded = true
		WHERE game_id = $1 AND user_id = $2 AND NOT xp_awarded`, gameID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}
	if _, err := tx.Exec(ctx, `
		INSERT INTO player_stats (user_id, xp) VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET xp = player_stats.xp + EXCLUDED.xp, updated_at = now()`, userID, xp); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) GetPlayerStats(ctx context.Context, userID string) (*PlayerStats, error) {
	var st PlayerStats
	err := s.Pool.QueryRow(ctx, `
		SELECT user_id, games_played, games_won, games_lost, xp
		FROM player_stats WHERE user_id = $1`, userID).
		Scan(&st.UserID, &st.GamesPlayed, &st.GamesWon, &st.GamesLost, &st.XP)
	if err != nil {
		return nil, mapNotFound(err)
	}
	return &st, nil
}
