package store

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestCreditWinningsIsIdempotentAndWageringAware(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()
	mustUser(t, st, ctx, "alice", "0", "0")
	mustUser(t, st, ctx, "bob", "0", "20")

	tests := []struct {
		user      string
		wantReal  string
		wantBonus string
	}{
		{user: "alice", wantReal: "18", wantBonus: "0"},
		{user: "bob", wantReal: "0", wantBonus: "38"},
	}
	for _, tc := range tests {
		ok, err := st.CreditWinnings(ctx, tc.user, "g1", decimal.NewFromInt(18))
		if err != nil || !ok {
			t.Fatalf("%s: first credit ok=%v err=%v", tc.user, ok, err)
		}
		ok, err = st.CreditWinnings(ctx, tc.user, "g1", decimal.NewFromInt(18))
		if err != nil || ok {
			t.Fatalf("%s: second credit must be a no-op ok=%v err=%v", tc.user, ok, err)
		}
		w, _ := st.GetWallet(ctx, tc.user)
		if !w.RealBalance.Equal(decimal.RequireFromString(tc.wantReal)) || !w.BonusBalance.Equal(decimal.RequireFromString(tc.wantBonus)) {
			t.Fatalf("%s: unexpected wallet %+v", tc.user, w)
		}
	}

	entries, err := st.ListLedgerEntries(ctx, LedgerFilter{GameID: "g1", Type: EntryWinCredit}, 10, 0)
	if err != nil {
		t.Fatalf("list ledger: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 win credits, got %d", len(entries))
	}
}

func TestCreditBotEarningsUsesSeparateLedger(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if _, err := st.CreditBotEarnings(ctx, "bot_1", "g1", decimal.RequireFromString("30.83")); err != nil {
			t.Fatalf("credit bot: %v", err)
		}
	}
	earnings, err := st.GetBotEarnings(ctx, "bot_1")
	if err != nil {
		t.Fatalf("bot earnings: %v", err)
	}
	if !earnings.Equal(decimal.RequireFromString("30.83")) {
		t.Fatalf("expected 30.83, got %s", earnings)
	}
	if _, err := st.GetWallet(ctx, "bot_1"); err != ErrNotFound {
		t.Fatalf("bot must not get a player wallet, got %v", err)
	}
}

func TestRecordGameResultsAndAwardXPOnce(t *testing.T) {
	st, ctx, cleanup := openStore(t)
	defer cleanup()

	for i := 0; i < 2; i++ {
		if err := st.RecordGameResults(ctx, "g1", "alice", []string{"alice", "bob"}); err != nil {
			t.Fatalf("record results: %v", err)
		}
		if err := st.AwardXP(ctx, "alice", "g1", 150); err != nil {
			t.Fatalf("award xp: %v", err)
		}
	}
	alice, err := st.GetPlayerStats(ctx, "alice")
	if err != nil {
		t.Fatalf("alice stats: %v", err)
	}
	if alice.GamesPlayed != 1 || alice.GamesWon != 1 || alice.XP != 150 {
		t.Fatalf("unexpected alice stats: %+v", alice)
	}
	bob, _ := st.GetPlayerStats(ctx, "bob")
	if bob.GamesLost != 1 || bob.XP != 0 {
		t.Fatalf("unexpected bob stats: %+v", bob)
	}
}
