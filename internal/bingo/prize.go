package bingo

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Split is the commission breakdown of a prize pool.
type Split struct {
	Gross      decimal.Decimal
	Rate       decimal.Decimal
	Commission decimal.Decimal
	Net        decimal.Decimal
}

// SplitPrize applies a percentage commission to pool. Both amounts are
// rounded half away from zero to cents.
func SplitPrize(pool, ratePercent decimal.Decimal) Split {
	commission := pool.Mul(ratePercent).Div(hundred).Round(2)
	return Split{
		Gross:      pool,
		Rate:       ratePercent,
		Commission: commission,
		Net:        pool.Sub(commission).Round(2),
	}
}

// XPForTier scales the base winner XP by the room's difficulty tier.
// Unknown tiers earn the base amount.
func XPForTier(base int, tier string) int {
	switch tier {
	case "medium":
		return base * 3 / 2
	case "hard":
		return base * 2
	case "expert":
		return base * 3
	default:
		return base
	}
}
