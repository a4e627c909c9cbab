package tournament

import (
	"slices"
	"strings"

	"bingo-hall/internal/store"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Rank orders participants by metric value, highest first. Ties go to
// whoever reached the value first. Participants with a zero value are not
// ranked.
func Rank(rows []store.TournamentMetric, metric string) []store.TournamentMetric {
	out := make([]store.TournamentMetric, 0, len(rows))
	for _, r := range rows {
		if r.Value(metric).IsPositive() {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b store.TournamentMetric) int {
		if c := b.Value(metric).Cmp(a.Value(metric)); c != 0 {
			return c
		}
		if c := compareTimes(lastAt(a, metric), lastAt(b, metric)); c != 0 {
			return c
		}
		return strings.Compare(a.UserID, b.UserID)
	})
	return out
}

func lastAt(m store.TournamentMetric, metric string) *int64 {
	ts := m.LastDepositAt
	if metric == store.MetricPlays {
		ts = m.LastPlayAt
	}
	if ts == nil {
		return nil
	}
	v := ts.UnixNano()
	return &v
}

// compareTimes sorts earlier first and missing timestamps last.
func compareTimes(a, b *int64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

// ComputeWinners applies the tournament's prize configuration to the
// eligible participants. depositTotal feeds percentage mode only.
func ComputeWinners(t *store.Tournament, rows []store.TournamentMetric, depositTotal decimal.Decimal) ([]store.TournamentWinner, error) {
	cfg := t.PrizeConfig
	metrics := cfg.Metrics
	if len(metrics) == 0 {
		metrics = []string{store.MetricDeposits}
	}
	for _, m := range metrics {
		if !validMetric(m) {
			return nil, ErrUnknownMetric
		}
	}

	var winners []store.TournamentWinner
	switch t.PrizeMode {
	case store.PrizeModeFixed, "":
		for _, metric := range metrics {
			ranked := Rank(rows, metric)
			for _, rp := range cfg.Ranks {
				if rp.Rank < 1 || rp.Rank > len(ranked) || !rp.Amount.IsPositive() {
					continue
				}
				p := ranked[rp.Rank-1]
				winners = append(winners, store.TournamentWinner{
					UserID:      p.UserID,
					Metric:      metric,
					Rank:        rp.Rank,
					MetricValue: p.Value(metric),
					PrizeAmount: rp.Amount,
				})
			}
		}
	case store.PrizeModePercentage:
		metric := metrics[0]
		pool := depositTotal.Mul(cfg.PoolSharePercent).Div(hundred)
		weightSum := decimal.Zero
		for _, pw := range cfg.Positions {
			if pw.Weight.IsPositive() {
				weightSum = weightSum.Add(pw.Weight)
			}
		}
		if !pool.IsPositive() || !weightSum.IsPositive() {
			return nil, nil
		}
		ranked := Rank(rows, metric)
		for _, pw := range cfg.Positions {
			if pw.Rank < 1 || pw.Rank > len(ranked) || !pw.Weight.IsPositive() {
				continue
			}
			p := ranked[pw.Rank-1]
			winners = append(winners, store.TournamentWinner{
				UserID:      p.UserID,
				Metric:      metric,
				Rank:        pw.Rank,
				MetricValue: p.Value(metric),
				PrizeAmount: pool.Mul(pw.Weight).Div(weightSum).Round(2),
			})
		}
	default:
		return nil, ErrInvalidPrizeConfig
	}
	if cfg.MaxPayout != nil {
		capPayout(winners, *cfg.MaxPayout)
	}
	return winners, nil
}

// capPayout scales every prize down by the same factor when the total
// exceeds limit. Amounts are truncated to cents so the sum never overshoots.
func capPayout(winners []store.TournamentWinner, limit decimal.Decimal) {
	total := totalPrize(winners)
	if !total.GreaterThan(limit) || !total.IsPositive() {
		return
	}
	if !limit.IsPositive() {
		for i := range winners {
			winners[i].PrizeAmount = decimal.Zero
		}
		return
	}
	for i := range winners {
		winners[i].PrizeAmount = winners[i].PrizeAmount.Mul(limit).Div(total).Truncate(2)
	}
}
