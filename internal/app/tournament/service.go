// Package tournament attributes deposits and plays to running tournaments
// and pays out their winners.
package tournament

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bingo-hall/internal/notify"
	"bingo-hall/internal/store"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultLeaderboardLimit = 50
	leaderboardMaxRows      = 100
)

type Store interface {
	ListActiveTournaments(ctx context.Context, at time.Time) ([]store.Tournament, error)
	GetTournament(ctx context.Context, id string) (*store.Tournament, error)
	EndTournament(ctx context.Context, id string) error
	RecordTournamentEvent(ctx context.Context, ev store.MetricEvent) error
	RecordDeposit(ctx context.Context, p store.DepositParams) (*store.DepositReceipt, error)
	ListTournamentMetrics(ctx context.Context, tournamentID string) ([]store.TournamentMetric, error)
	TournamentLeaderboard(ctx context.Context, tournamentID, metric string, limit int) ([]store.TournamentMetric, error)
	TournamentDepositTotal(ctx context.Context, tournamentID string) (decimal.Decimal, error)
	UserStatuses(ctx context.Context, ids []string) (map[string]string, error)
	UsersWithCompletedDeposits(ctx context.Context, ids []string, from, to time.Time) (map[string]bool, error)
	CreateTournamentWinners(ctx context.Context, tournamentID string, winners []store.TournamentWinner) ([]store.TournamentWinner, error)
	ListTournamentWinners(ctx context.Context, tournamentID string) ([]store.TournamentWinner, error)
	AwardTournamentPrize(ctx context.Context, winnerID string) (bool, error)
}

type Notifier interface {
	TournamentFinalized(ev notify.TournamentEvent)
}

type Service struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

func NewService(st Store, notifier Notifier) *Service {
	return &Service{store: st, notifier: notifier, now: time.Now}
}

// Deposit books a completed deposit to the wallet and attributes it to
// every running tournament. externalID makes callback retries safe: a
// repeated reference returns the booked deposit without crediting again.
// Once the wallet is credited the call succeeds; attribution failures are
// logged.
func (s *Service) Deposit(ctx context.Context, userID, externalID string, amount decimal.Decimal) (*DepositResult, error) {
	if userID == "" || !amount.IsPositive() {
		return nil, ErrInvalidRequest
	}
	at := s.now()
	receipt, err := s.store.RecordDeposit(ctx, store.DepositParams{
		UserID:     userID,
		ExternalID: externalID,
		Amount:     amount,
		At:         at,
	})
	if err != nil {
		return nil, err
	}
	if receipt.Duplicate {
		metricDuplicateDeposits.Add(1)
		log.Info().Str("user_id", userID).Str("external_id", externalID).Str("deposit_id", receipt.ID).Msg("duplicate deposit ignored")
		return &DepositResult{DepositID: receipt.ID, Duplicate: true}, nil
	}
	n, err := s.fanOut(ctx, store.MetricDeposits, userID, amount, receipt.ID, at)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Str("deposit_id", receipt.ID).Msg("deposit tournament attribution failed")
	}
	return &DepositResult{DepositID: receipt.ID, Tournaments: n}, nil
}

// RecordDeposit adds amount to the deposit total of userID in every
// tournament running at at. Callers record each real deposit once.
func (s *Service) RecordDeposit(ctx context.Context, userID string, amount decimal.Decimal, at time.Time) error {
	_, err := s.fanOut(ctx, store.MetricDeposits, userID, amount, "", at)
	return err
}

// RecordPlay counts one finished game for userID in every tournament
// running at at.
func (s *Service) RecordPlay(ctx context.Context, userID, gameID string, at time.Time) error {
	_, err := s.fanOut(ctx, store.MetricPlays, userID, decimal.NewFromInt(1), gameID, at)
	return err
}

func (s *Service) fanOut(ctx context.Context, metric, userID string, amount decimal.Decimal, refID string, at time.Time) (int, error) {
	active, err := s.store.ListActiveTournaments(ctx, at)
	if err != nil {
		return 0, err
	}
	var errs []error
	recorded := 0
	for _, t := range active {
		err := s.store.RecordTournamentEvent(ctx, store.MetricEvent{
			TournamentID: t.ID,
			UserID:       userID,
			Metric:       metric,
			Amount:       amount,
			RefID:        refID,
			At:           at,
		})
		if err != nil {
			metricEventFailures.Add(1)
			errs = append(errs, fmt.Errorf("tournament %s: %w", t.ID, err))
			continue
		}
		recorded++
		metricEventsRecorded.Add(1)
	}
	return recorded, errors.Join(errs...)
}

func (s *Service) Leaderboard(ctx context.Context, tournamentID, metric string, limit int) (*LeaderboardResponse, error) {
	if metric == "" {
		metric = store.MetricDeposits
	}
	if !validMetric(metric) {
		return nil, ErrUnknownMetric
	}
	if _, err := s.store.GetTournament(ctx, tournamentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	limit = clampLimit(limit)
	rows, err := s.store.TournamentLeaderboard(ctx, tournamentID, metric, limit)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardItem, 0, len(rows))
	for i, r := range rows {
		out = append(out, LeaderboardItem{Rank: i + 1, UserID: r.UserID, Value: r.Value(metric)})
	}
	return &LeaderboardResponse{TournamentID: tournamentID, Metric: metric, Items: out, Limit: limit}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLeaderboardLimit
	}
	if limit > leaderboardMaxRows {
		return leaderboardMaxRows
	}
	return limit
}

func validMetric(m string) bool {
	return m == store.MetricDeposits || m == store.MetricPlays
}

// Finalize computes and pays the winners of a tournament. A tournament
// with winner rows is already finalized; its unpaid winners are paid and
// the rows returned.
func (s *Service) Finalize(ctx context.Context, tournamentID string, opts FinalizeOptions) (*FinalizeResult, error) {
	t, err := s.store.GetTournament(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	existing, err := s.store.ListTournamentWinners(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		if !opts.PreviewOnly {
			s.award(ctx, tournamentID, existing)
		}
		return alreadyFinalized(tournamentID, existing), nil
	}
	if !opts.Force && s.now().Before(t.EndAt) {
		return nil, ErrTournamentNotEnded
	}

	rows, err := s.store.ListTournamentMetrics(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	rows, err = s.eligible(ctx, t, rows)
	if err != nil {
		return nil, err
	}
	var depositTotal decimal.Decimal
	if t.PrizeMode == store.PrizeModePercentage {
		if depositTotal, err = s.store.TournamentDepositTotal(ctx, tournamentID); err != nil {
			return nil, err
		}
	}
	winners, err := ComputeWinners(t, rows, depositTotal)
	if err != nil {
		return nil, err
	}
	if opts.PreviewOnly {
		return &FinalizeResult{TournamentID: tournamentID, Winners: winners, Preview: true, TotalPrize: totalPrize(winners)}, nil
	}

	persisted, err := s.store.CreateTournamentWinners(ctx, tournamentID, winners)
	if errors.Is(err, store.ErrAlreadyFinalized) || errors.Is(err, store.ErrConflict) {
		existing, lerr := s.store.ListTournamentWinners(ctx, tournamentID)
		if lerr != nil {
			return nil, lerr
		}
		return alreadyFinalized(tournamentID, existing), nil
	}
	if err != nil {
		return nil, err
	}
	s.award(ctx, tournamentID, persisted)
	if err := s.store.EndTournament(ctx, tournamentID); err != nil {
		return nil, err
	}
	metricFinalized.Add(1)
	total := totalPrize(persisted)
	log.Info().Str("tournament_id", tournamentID).Int("winners", len(persisted)).Str("total_prize", total.String()).Msg("tournament finalized")
	if s.notifier != nil {
		s.notifier.TournamentFinalized(notify.TournamentEvent{
			TournamentID: tournamentID,
			Name:         t.Name,
			Winners:      len(persisted),
			TotalPrize:   total,
		})
	}
	return &FinalizeResult{TournamentID: tournamentID, Winners: persisted, TotalPrize: total}, nil
}

// award pays every winner row not yet marked paid. A failed award stays
// unpaid and is retried by the next Finalize.
func (s *Service) award(ctx context.Context, tournamentID string, winners []store.TournamentWinner) {
	for i := range winners {
		if winners[i].Paid {
			continue
		}
		paid, err := s.store.AwardTournamentPrize(ctx, winners[i].ID)
		if err != nil {
			metricPrizeFailures.Add(1)
			log.Error().Err(err).Str("tournament_id", tournamentID).Str("user_id", winners[i].UserID).Msg("tournament prize award failed")
			continue
		}
		if paid {
			metricPrizesPaid.Add(1)
		}
		winners[i].Paid = true
	}
}

func alreadyFinalized(id string, winners []store.TournamentWinner) *FinalizeResult {
	return &FinalizeResult{TournamentID: id, Winners: winners, AlreadyFinalized: true, TotalPrize: totalPrize(winners)}
}

func totalPrize(ws []store.TournamentWinner) decimal.Decimal {
	sum := decimal.Zero
	for _, w := range ws {
		sum = sum.Add(w.PrizeAmount)
	}
	return sum
}

// eligible drops participants that fail the tournament's eligibility rules.
func (s *Service) eligible(ctx context.Context, t *store.Tournament, rows []store.TournamentMetric) ([]store.TournamentMetric, error) {
	rules := t.Eligibility
	out := make([]store.TournamentMetric, 0, len(rows))
	for _, r := range rows {
		if rules.MinDepositTotal.IsPositive() && r.DepositTotal.LessThan(rules.MinDepositTotal) {
			continue
		}
		if rules.MinPlays > 0 && r.PlayCount < rules.MinPlays {
			continue
		}
		out = append(out, r)
	}
	if len(out) == 0 || (!rules.DepositRequired && !rules.ExcludeSuspended) {
		return out, nil
	}

	ids := make([]string, 0, len(out))
	for _, r := range out {
		ids = append(ids, r.UserID)
	}
	var deposited map[string]bool
	if rules.DepositRequired {
		var err error
		if deposited, err = s.store.UsersWithCompletedDeposits(ctx, ids, t.StartAt, t.EndAt); err != nil {
			return nil, err
		}
	}
	var statuses map[string]string
	if rules.ExcludeSuspended {
		var err error
		if statuses, err = s.store.UserStatuses(ctx, ids); err != nil {
			return nil, err
		}
	}
	filtered := out[:0]
	for _, r := range out {
		if rules.DepositRequired && !deposited[r.UserID] {
			continue
		}
		if rules.ExcludeSuspended && statuses[r.UserID] != "active" {
			continue
		}
		filtered = append(filtered, r)
	}
	return filtered, nil
}
