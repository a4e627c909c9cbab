package tournament

import (
	"testing"
	"time"

	"bingo-hall/internal/store"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func metricRow(user, deposits string, plays int, at time.Time) store.TournamentMetric {
	return store.TournamentMetric{UserID: user, DepositTotal: dec(deposits), PlayCount: plays, LastDepositAt: &at, LastPlayAt: &at}
}

func TestRankOrdersByValueThenEarliest(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []store.TournamentMetric{
		metricRow("late", "50", 1, base.Add(time.Hour)),
		metricRow("zero", "0", 0, base),
		metricRow("early", "50", 3, base),
		metricRow("top", "80", 2, base.Add(2*time.Hour)),
	}
	got := Rank(rows, store.MetricDeposits)
	want := []string{"top", "early", "late"}
	if len(got) != len(want) {
		t.Fatalf("expected %d ranked rows, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].UserID != id {
			t.Fatalf("rank %d = %s, want %s", i+1, got[i].UserID, id)
		}
	}
	plays := Rank(rows, store.MetricPlays)
	if plays[0].UserID != "early" || len(plays) != 3 {
		t.Fatalf("unexpected plays ranking: %+v", plays)
	}
}

func TestComputeWinners(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := []store.TournamentMetric{
		metricRow("a", "300", 5, base),
		metricRow("b", "200", 9, base),
		metricRow("c", "100", 1, base),
	}
	capAt := dec("100")

	tests := []struct {
		name    string
		t       store.Tournament
		total   decimal.Decimal
		want    map[string]string
		wantLen int
	}{
		{
			name: "fixed per metric",
			t: store.Tournament{PrizeMode: store.PrizeModeFixed, PrizeConfig: store.PrizeConfig{
				Metrics: []string{store.MetricDeposits, store.MetricPlays},
				Ranks:   []store.RankPrize{{Rank: 1, Amount: dec("50")}, {Rank: 2, Amount: dec("20")}, {Rank: 9, Amount: dec("5")}},
			}},
			want:    map[string]string{"deposits:a": "50", "deposits:b": "20", "plays:b": "50", "plays:a": "20"},
			wantLen: 4,
		},
		{
			name: "percentage of deposits",
			t: store.Tournament{PrizeMode: store.PrizeModePercentage, PrizeConfig: store.PrizeConfig{
				PoolSharePercent: dec("10"),
				Positions:        []store.PositionWeight{{Rank: 1, Weight: dec("3")}, {Rank: 2, Weight: dec("2")}, {Rank: 3, Weight: dec("1")}},
			}},
			total:   dec("600"),
			want:    map[string]string{"deposits:a": "30", "deposits:b": "20", "deposits:c": "10"},
			wantLen: 3,
		},
		{
			name: "percentage scaled to max payout",
			t: store.Tournament{PrizeMode: store.PrizeModePercentage, PrizeConfig: store.PrizeConfig{
				PoolSharePercent: dec("50"),
				Positions:        []store.PositionWeight{{Rank: 1, Weight: dec("3")}, {Rank: 2, Weight: dec("1")}},
				MaxPayout:        &capAt,
			}},
			total:   dec("600"),
			want:    map[string]string{"deposits:a": "75", "deposits:b": "25"},
			wantLen: 2,
		},
		{
			name: "fixed scaled to max payout",
			t: store.Tournament{PrizeMode: store.PrizeModeFixed, PrizeConfig: store.PrizeConfig{
				Ranks:     []store.RankPrize{{Rank: 1, Amount: dec("100")}, {Rank: 2, Amount: dec("50")}, {Rank: 3, Amount: dec("50")}},
				MaxPayout: &capAt,
			}},
			want:    map[string]string{"deposits:a": "50", "deposits:b": "25", "deposits:c": "25"},
			wantLen: 3,
		},
		{
			name:    "empty pool pays nothing",
			t:       store.Tournament{PrizeMode: store.PrizeModePercentage, PrizeConfig: store.PrizeConfig{PoolSharePercent: dec("10"), Positions: []store.PositionWeight{{Rank: 1, Weight: dec("1")}}}},
			total:   decimal.Zero,
			wantLen: 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeWinners(&tt.t, rows, tt.total)
			if err != nil {
				t.Fatalf("compute: %v", err)
			}
			if len(got) != tt.wantLen {
				t.Fatalf("expected %d winners, got %+v", tt.wantLen, got)
			}
			for _, w := range got {
				want, ok := tt.want[w.Metric+":"+w.UserID]
				if !ok {
					t.Fatalf("unexpected winner %+v", w)
				}
				if !w.PrizeAmount.Equal(dec(want)) {
					t.Fatalf("%s:%s prize = %s, want %s", w.Metric, w.UserID, w.PrizeAmount, want)
				}
			}
		})
	}
}

func TestComputeWinnersRejectsBadConfig(t *testing.T) {
	bad := []store.Tournament{
		{PrizeMode: "lottery"},
		{PrizeMode: store.PrizeModeFixed, PrizeConfig: store.PrizeConfig{Metrics: []string{"wins"}}},
	}
	for _, tr := range bad {
		if _, err := ComputeWinners(&tr, nil, decimal.Zero); err == nil {
			t.Fatalf("expected error for %+v", tr)
		}
	}
}

func TestCapPayoutTruncatesBelowLimit(t *testing.T) {
	ws := []store.TournamentWinner{{PrizeAmount: dec("10")}, {PrizeAmount: dec("10")}, {PrizeAmount: dec("10")}}
	capPayout(ws, dec("10"))
	if total := totalPrize(ws); total.GreaterThan(dec("10")) {
		t.Fatalf("capped total %s exceeds limit", total)
	}
	if !ws[0].PrizeAmount.Equal(dec("3.33")) {
		t.Fatalf("expected 3.33, got %s", ws[0].PrizeAmount)
	}
}
