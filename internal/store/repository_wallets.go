package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const (
	EntryStakeDebit      = "stake_debit"
	EntryStakeRefund     = "stake_refund"
	EntryWinCredit       = "win_credit"
	EntryBotWinCredit    = "bot_win_credit"
	EntryTournamentPrize = "tournament_prize"
	EntryDeposit         = "deposit"
)

// EnsureUser creates the user and an empty wallet if they do not exist.
func (s *Store) EnsureUser(ctx context.Context, userID, name string) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if _, err := tx.Exec(ctx, `INSERT INTO users (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, userID, name); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO wallets (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) SetUserStatus(ctx context.Context, userID, status string) error {
	tag, err := s.Pool.Exec(ctx, `UPDATE users SET status = $2 WHERE id = $1`, userID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// TopUp adds funds to a wallet. Bonus funds raise the wagering requirement
// by the same amount.
func (s *Store) TopUp(ctx context.Context, userID string, real, bonus decimal.Decimal) (*Wallet, error) {
	if real.IsNegative() || bonus.IsNegative() {
		return nil, errors.New("amount must be positive")
	}
	return scanWallet(s.Pool.QueryRow(ctx, `
		UPDATE wallets
		SET real_balance = real_balance + $2::numeric,
		    bonus_balance = bonus_balance + $3::numeric,
		    wagering_remaining = wagering_remaining + $3::numeric,
		    updated_at = now()
		WHERE user_id = $1
		RETURNING user_id, real_balance::text, bonus_balance::text, wagering_remaining::text, updated_at`,
		userID, real.String(), bonus.String()))
}

func (s *Store) GetWallet(ctx context.Context, userID string) (*Wallet, error) {
	return scanWallet(s.Pool.QueryRow(ctx, `
		SELECT user_id, real_balance::text, bonus_balance::text, wagering_remaining::text, updated_at
		FROM wallets WHERE user_id = $1`, userID))
}

func scanWallet(row pgx.Row) (*Wallet, error) {
	var w Wallet
	var real, bonus, wagering string
	if err := row.Scan(&w.UserID, &real, &bonus, &wagering, &w.UpdatedAt); err != nil {
		return nil, mapNotFound(err)
	}
	w.RealBalance = numeric(real)
	w.BonusBalance = numeric(bonus)
	w.WageringRemaining = numeric(wagering)
	return &w, nil
}

func lockWallet(ctx context.Context, tx pgx.Tx, userID string) (*Wallet, error) {
	return scanWallet(tx.QueryRow(ctx, `
		SELECT user_id, real_balance::text, bonus_balance::text, wagering_remaining::text, updated_at
		FROM wallets WHERE user_id = $1 FOR UPDATE`, userID))
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, ownerID, entryType string, amount decimal.Decimal, funding, refType, refID string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, owner_id, type, amount, funding, ref_type, ref_id)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`,
		NewID(), ownerID, entryType, amount.String(), funding, refType, refID)
	return err
}

// ledgerEntryExists must be called with the owner's wallet row locked.
func ledgerEntryExists(ctx context.Context, tx pgx.Tx, ownerID, entryType, refType, refID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
		  SELECT 1 FROM ledger_entries
		  WHERE owner_id = $1 AND type = $2 AND ref_type = $3 AND ref_id = $4
		)`, ownerID, entryType, refType, refID).Scan(&exists)
	return exists, err
}

// debitStake takes the stake from the real balance when it covers the full
// amount, otherwise from the bonus balance. Every stake counts toward the
// wagering requirement.
func debitStake(ctx context.Context, tx pgx.Tx, userID string, amount decimal.Decimal, gameID string) (string, error) {
	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", ErrInsufficientBalance
		}
		return "", err
	}
	var funding, column string
	switch {
	case w.RealBalance.GreaterThanOrEqual(amount):
		funding, column = FundingReal, "real_balance"
	case w.BonusBalance.GreaterThanOrEqual(amount):
		funding, column = FundingBonus, "bonus_balance"
	default:
		return "", ErrInsufficientBalance
	}
	if _, err := tx.Exec(ctx, `
		UPDATE wallets
		SET `+column+` = `+column+` - $2::numeric,
		    wagering_remaining = GREATEST(wagering_remaining - $2::numeric, 0),
		    updated_at = now()
		WHERE user_id = $1`, userID, amount.String()); err != nil {
		return "", err
	}
	if err := insertLedgerEntry(ctx, tx, userID, EntryStakeDebit, amount.Neg(), funding, "game", gameID); err != nil {
		return "", err
	}
	return funding, nil
}

// refundStake returns a held stake to the balance it was taken from.
func refundStake(ctx context.Context, tx pgx.Tx, gameID, userID string) error {
	var amount, funding string
	err := tx.QueryRow(ctx, `
		SELECT amount::text, funding FROM game_stakes
		WHERE game_id = $1 AND user_id = $2 AND state = 'held'
		FOR UPDATE`, gameID, userID).Scan(&amount, &funding)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	column := "real_balance"
	if funding == FundingBonus {
		column = "bonus_balance"
	}
	if _, err := lockWallet(ctx, tx, userID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE wallets SET `+column+` = `+column+` + $2::numeric, updated_at = now()
		WHERE user_id = $1`, userID, amount); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE game_stakes SET state = 'refunded'
		WHERE game_id = $1 AND user_id = $2`, gameID, userID); err != nil {
		return err
	}
	return insertLedgerEntry(ctx, tx, userID, EntryStakeRefund, numeric(amount), funding, "game", gameID)
}

// CreditWinnings pays a human winner once per game. While a wagering
// requirement is outstanding the prize lands in the bonus balance. It reports
// false if the game was already credited.
func (s *Store) CreditWinnings(ctx context.Context, userID, gameID string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	w, err := lockWallet(ctx, tx, userID)
	if err != nil {
		return false, err
	}
	done, err := ledgerEntryExists(ctx, tx, userID, EntryWinCredit, "game", gameID)
	if err != nil || done {
		return false, err
	}
	funding, column := FundingReal, "real_balance"
	if w.WageringRemaining.IsPositive() {
		funding, column = FundingBonus, "bonus_balance"
	}
	if _, err := tx.Exec(ctx, `
		UPDATE wallets SET `+column+` = `+column+` + $2::numeric, updated_at = now()
		WHERE user_id = $1`, userID, amount.String()); err != nil {
		return false, err
	}
	if err := insertLedgerEntry(ctx, tx, userID, EntryWinCredit, amount, funding, "game", gameID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// CreditBotEarnings pays a bot winner into the separate bot ledger.
func (s *Store) CreditBotEarnings(ctx context.Context, botID, gameID string, amount decimal.Decimal) (bool, error) {
	if amount.IsNegative() {
		return false, errors.New("amount must be positive")
	}
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `INSERT INTO bot_wallets (bot_id) VALUES ($1) ON CONFLICT (bot_id) DO NOTHING`, botID); err != nil {
		return false, err
	}
	if _, err := tx.Exec(ctx, `SELECT 1 FROM bot_wallets WHERE bot_id = $1 FOR UPDATE`, botID); err != nil {
		return false, err
	}
	done, err := ledgerEntryExists(ctx, tx, botID, EntryBotWinCredit, "game", gameID)
	if err != nil || done {
		return false, err
	}
	if _, err := tx.Exec(ctx, `
		UPDATE bot_wallets SET earnings = earnings + $2::numeric, updated_at = now()
		WHERE bot_id = $1`, botID, amount.String()); err != nil {
		return false, err
	}
	if err := insertLedgerEntry(ctx, tx, botID, EntryBotWinCredit, amount, "bot", "game", gameID); err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetBotEarnings(ctx context.Context, botID string) (decimal.Decimal, error) {
	var earnings string
	err := s.Pool.QueryRow(ctx, `SELECT earnings::text FROM bot_wallets WHERE bot_id = $1`, botID).Scan(&earnings)
	if err != nil {
		return decimal.Zero, mapNotFound(err)
	}
	return numeric(earnings), nil
}
