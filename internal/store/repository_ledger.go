package store

import (
	"context"
	"time"
)

type LedgerFilter struct {
	OwnerID string
	GameID  string
	Type    string
	From    *time.Time
	To      *time.Time
}

func (s *Store) ListLedgerEntries(ctx context.Context, f LedgerFilter, limit, offset int) ([]LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT id, owner_id, type, amount::text, funding, ref_type, ref_id, created_at
		FROM ledger_entries
		WHERE ($1 = '' OR owner_id = $1)
		  AND ($2 = '' OR (ref_type = 'game' AND ref_id = $2))
		  AND ($3 = '' OR type = $3)
		  AND ($4::timestamptz IS NULL OR created_at >= $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC, id DESC
		LIMIT $6 OFFSET $7`,
		f.OwnerID, f.GameID, f.Type, f.From, f.To, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]LedgerEntry, 0, limit)
	for rows.Next() {
		var e LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Type, &amount, &e.Funding, &e.RefType, &e.RefID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Amount = numeric(amount)
		out = append(out, e)
	}
	return out, rows.Err()
}
