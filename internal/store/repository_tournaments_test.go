package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustTournament(t *testing.T, st *Store, ctx context.Context, now time.Time) *Tournament {
	t.Helper()
	tr, err := st.CreateTournament(ctx, Tournament{
		Name:      "weekly",
		Enabled:   true,
		StartAt:   now.Add(-time.Hour),
		EndAt:     now.Add(time.Hour),
		PrizeMode: PrizeModeFixed,
		PrizeConfig: PrizeConfig{
			Metrics: []string{MetricDeposits},
			Ranks:   []RankPrize{{Rank: 1, Amount: decimal.NewFromInt(50)}},
		},
		Eligibility: Eligibility{MinPlays: 1},
	})
	if err != nil {
		t.Fatalf("create tournament: %v", err)
	}
	return tr
}

func TestTournamentRoundTripAndActiveWindow(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	now := time.Now().UTC()
	tr := mustTournament(t, st, ctx, now)

	got, err := st.GetTournament(ctx, tr.ID)
	if err != nil {
		t.Fatalf("get tournament: %v", err)
	}
	if len(got.PrizeConfig.Ranks) != 1 || !got.PrizeConfig.Ranks[0].Amount.Equal(decimal.NewFromInt(50)) || got.Eligibility.MinPlays != 1 {
		t.Fatalf("json config lost: %+v", got)
	}

	active, err := st.ListActiveTournaments(ctx, now)
	if err != nil || len(active) != 1 {
		t.Fatalf("expected 1 active tournament, got %d err=%v", len(active), err)
	}
	later, _ := st.ListActiveTournaments(ctx, now.Add(2*time.Hour))
	if len(later) != 0 {
		t.Fatalf("tournament should be outside its window")
	}
	if err := st.EndTournament(ctx, tr.ID); err != nil {
		t.Fatalf("end tournament: %v", err)
	}
	active, _ = st.ListActiveTournaments(ctx, now)
	if len(active) != 0 {
		t.Fatalf("ended tournament must not be active")
	}
}

func TestRecordTournamentEventAccumulates(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	now := time.Now().UTC()
	tr := mustTournament(t, st, ctx, now)

	events := []MetricEvent{
		{TournamentID: tr.ID, UserID: "alice", Metric: MetricDeposits, Amount: decimal.NewFromInt(40), At: now},
		{TournamentID: tr.ID, UserID: "alice", Metric: MetricDeposits, Amount: decimal.NewFromInt(10), At: now.Add(-time.Minute)},
		{TournamentID: tr.ID, UserID: "alice", Metric: MetricPlays, RefID: "g1", At: now},
		{TournamentID: tr.ID, UserID: "bob", Metric: MetricDeposits, Amount: decimal.NewFromInt(70), At: now},
	}
	for _, ev := range events {
		if err := st.RecordTournamentEvent(ctx, ev); err != nil {
			t.Fatalf("record event: %v", err)
		}
	}
	if err := st.RecordTournamentEvent(ctx, MetricEvent{TournamentID: tr.ID, UserID: "x", Metric: "wins", At: now}); err == nil {
		t.Fatalf("expected unknown metric error")
	}

	board, err := st.TournamentLeaderboard(ctx, tr.ID, MetricDeposits, 10)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(board) != 2 || board[0].UserID != "bob" {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}
	alice := board[1]
	if !alice.DepositTotal.Equal(decimal.NewFromInt(50)) || alice.PlayCount != 1 {
		t.Fatalf("unexpected alice metrics: %+v", alice)
	}
	if alice.LastDepositAt == nil || !alice.LastDepositAt.Equal(now.Truncate(time.Microsecond)) {
		t.Fatalf("last deposit must keep the latest timestamp, got %v", alice.LastDepositAt)
	}
	total, _ := st.TournamentDepositTotal(ctx, tr.ID)
	if !total.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected deposit total 120, got %s", total)
	}
}

func TestCreateTournamentWinnersOnlyOnceAndAwardOnce(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	now := time.Now().UTC()
	tr := mustTournament(t, st, ctx, now)
	mustUser(t, st, ctx, "alice", "0", "0")

	winners := []TournamentWinner{{UserID: "alice", Metric: MetricDeposits, Rank: 1,
		MetricValue: decimal.NewFromInt(50), PrizeAmount: decimal.NewFromInt(25)}}
	saved, err := st.CreateTournamentWinners(ctx, tr.ID, winners)
	if err != nil || len(saved) != 1 {
		t.Fatalf("create winners: %v", err)
	}
	if _, err := st.CreateTournamentWinners(ctx, tr.ID, winners); !errors.Is(err, ErrAlreadyFinalized) {
		t.Fatalf("expected ErrAlreadyFinalized, got %v", err)
	}

	for i, want := range []bool{true, false} {
		paid, err := st.AwardTournamentPrize(ctx, saved[0].ID)
		if err != nil || paid != want {
			t.Fatalf("award #%d: paid=%v err=%v", i, paid, err)
		}
	}
	w, _ := st.GetWallet(ctx, "alice")
	if !w.RealBalance.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected single payout of 25, got %s", w.RealBalance)
	}
	list, _ := st.ListTournamentWinners(ctx, tr.ID)
	if len(list) != 1 || !list[0].Paid || list[0].PaidAt == nil {
		t.Fatalf("winner not marked paid: %+v", list)
	}
}

func TestEligibilityLookups(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	now := time.Now().UTC()
	mustUser(t, st, ctx, "alice", "0", "0")
	mustUser(t, st, ctx, "bob", "0", "0")
	if err := st.SetUserStatus(ctx, "bob", "suspended"); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if _, err := st.RecordDeposit(ctx, DepositParams{UserID: "alice", Amount: decimal.NewFromInt(20), At: now}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	statuses, err := st.UserStatuses(ctx, []string{"alice", "bob", "ghost"})
	if err != nil {
		t.Fatalf("statuses: %v", err)
	}
	if statuses["alice"] != "active" || statuses["bob"] != "suspended" {
		t.Fatalf("unexpected statuses: %v", statuses)
	}
	if _, ok := statuses["ghost"]; ok {
		t.Fatalf("unknown user must be absent")
	}
	deposited, err := st.UsersWithCompletedDeposits(ctx, []string{"alice", "bob"}, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("deposits: %v", err)
	}
	if !deposited["alice"] || deposited["bob"] {
		t.Fatalf("unexpected deposit map: %v", deposited)
	}
	w, _ := st.GetWallet(ctx, "alice")
	if !w.RealBalance.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("deposit not credited: %s", w.RealBalance)
	}
}

func TestRecordDepositIsIdempotentOnExternalID(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	mustUser(t, st, ctx, "alice", "0", "0")
	p := DepositParams{UserID: "alice", ExternalID: "psp-42", Amount: decimal.NewFromInt(25), At: time.Now().UTC()}

	first, err := st.RecordDeposit(ctx, p)
	if err != nil || first.Duplicate {
		t.Fatalf("first deposit: %+v err=%v", first, err)
	}
	again, err := st.RecordDeposit(ctx, p)
	if err != nil {
		t.Fatalf("repeated deposit: %v", err)
	}
	if !again.Duplicate || again.ID != first.ID {
		t.Fatalf("repeated reference must return the booked deposit: first=%+v again=%+v", first, again)
	}
	w, err := st.GetWallet(ctx, "alice")
	if err != nil {
		t.Fatalf("wallet: %v", err)
	}
	if !w.RealBalance.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected a single credit of 25, got %s", w.RealBalance)
	}
}
