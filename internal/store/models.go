package store

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

const (
	GameWaiting           = "waiting"
	GameWaitingForPlayers = "waiting_for_players"
	GameCountdown         = "countdown"
	GameActive            = "active"
	GameFinished          = "finished"
)

// OpenStatuses are the pre-start states a player may still join.
var OpenStatuses = []string{GameWaiting, GameWaitingForPlayers, GameCountdown}

const (
	FundingReal  = "real"
	FundingBonus = "bonus"

	StakeHeld      = "held"
	StakeRefunded  = "refunded"
	StakeForfeited = "forfeited"
)

type Room struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Stake          decimal.Decimal `json:"stake"`
	CommissionRate decimal.Decimal `json:"commission_rate"`
	Difficulty     string          `json:"difficulty"`
	MinPlayers     int             `json:"min_players"`
	MaxPlayers     int             `json:"max_players"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

type Game struct {
	ID               string          `json:"id"`
	RoomID           string          `json:"room_id"`
	Status           string          `json:"status"`
	Players          []string        `json:"players"`
	Bots             []string        `json:"bots"`
	CalledNumbers    []int           `json:"called_numbers"`
	LatestCall       string          `json:"latest_call"`
	Countdown        int             `json:"countdown"`
	Stake            decimal.Decimal `json:"stake"`
	PrizePool        decimal.Decimal `json:"prize_pool"`
	WinnerID         *string         `json:"winner_id"`
	WinningCard      json.RawMessage `json:"winning_card,omitempty"`
	WinningPattern   string          `json:"winning_pattern,omitempty"`
	CommissionRate   decimal.Decimal `json:"commission_rate"`
	CommissionAmount decimal.Decimal `json:"commission_amount"`
	NetPrize         decimal.Decimal `json:"net_prize"`
	EndReason        string          `json:"end_reason,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	WaitingStartedAt *time.Time      `json:"waiting_started_at,omitempty"`
	StartedAt        *time.Time      `json:"started_at,omitempty"`
	EndedAt          *time.Time      `json:"ended_at,omitempty"`
}

func (g *Game) HasPlayer(userID string) bool { return slices.Contains(g.Players, userID) }

func (g *Game) HasBot(botID string) bool { return slices.Contains(g.Bots, botID) }

// Population counts humans and bots together.
func (g *Game) Population() int { return len(g.Players) + len(g.Bots) }

func (g *Game) Terminal() bool { return g.Status == GameFinished }

func (g *Game) Open() bool { return slices.Contains(OpenStatuses, g.Status) }

// Clone returns a deep copy safe to hand to another goroutine.
func (g *Game) Clone() Game {
	c := *g
	c.Players = slices.Clone(g.Players)
	c.Bots = slices.Clone(g.Bots)
	c.CalledNumbers = slices.Clone(g.CalledNumbers)
	c.WinningCard = slices.Clone(g.WinningCard)
	if g.WinnerID != nil {
		w := *g.WinnerID
		c.WinnerID = &w
	}
	return c
}

type GameStake struct {
	GameID    string          `json:"game_id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Funding   string          `json:"funding"`
	State     string          `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

type Wallet struct {
	UserID            string          `json:"user_id"`
	RealBalance       decimal.Decimal `json:"real_balance"`
	BonusBalance      decimal.Decimal `json:"bonus_balance"`
	WageringRemaining decimal.Decimal `json:"wagering_remaining"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type LedgerEntry struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Funding   string          `json:"funding"`
	RefType   string          `json:"ref_type"`
	RefID     string          `json:"ref_id"`
	CreatedAt time.Time       `json:"created_at"`
}

type PlayerStats struct {
	UserID      string `json:"user_id"`
	GamesPlayed int    `json:"games_played"`
	GamesWon    int    `json:"games_won"`
	GamesLost   int    `json:"games_lost"`
	XP          int64  `json:"xp"`
}

const (
	PrizeModeFixed      = "fixed"
	PrizeModePercentage = "percentage"

	MetricDeposits = "deposits"
	MetricPlays    = "plays"

	TournamentActive = "active"
	TournamentEnded  = "ended"
)

type RankPrize struct {
	Rank   int             `json:"rank"`
	Amount decimal.Decimal `json:"amount"`
}

type PositionWeight struct {
	Rank   int             `json:"rank"`
	Weight decimal.Decimal `json:"weight"`
}

// PrizeConfig is stored as JSONB on the tournament row. Fixed mode pays
// Ranks for every metric in Metrics; percentage mode splits
// total_deposits * PoolSharePercent / 100 across Positions.
type PrizeConfig struct {
	Metrics          []string         `json:"metrics,omitempty"`
	Ranks            []RankPrize      `json:"ranks,omitempty"`
	PoolSharePercent decimal.Decimal  `json:"pool_share_percent"`
	Positions        []PositionWeight `json:"positions,omitempty"`
	MaxPayout        *decimal.Decimal `json:"max_payout,omitempty"`
}

type Eligibility struct {
	MinDepositTotal  decimal.Decimal `json:"min_deposit_total"`
	MinPlays         int             `json:"min_plays"`
	DepositRequired  bool            `json:"deposit_required"`
	ExcludeSuspended bool            `json:"exclude_suspended"`
}

type Tournament struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Status      string      `json:"status"`
	Enabled     bool        `json:"enabled"`
	StartAt     time.Time   `json:"start_at"`
	EndAt       time.Time   `json:"end_at"`
	PrizeMode   string      `json:"prize_mode"`
	PrizeConfig PrizeConfig `json:"prize_config"`
	Eligibility Eligibility `json:"eligibility"`
	CreatedAt   time.Time   `json:"created_at"`
}

type TournamentMetric struct {
	TournamentID  string          `json:"tournament_id"`
	UserID        string          `json:"user_id"`
	DepositTotal  decimal.Decimal `json:"deposit_total"`
	PlayCount     int             `json:"play_count"`
	LastDepositAt *time.Time      `json:"last_deposit_at,omitempty"`
	LastPlayAt    *time.Time      `json:"last_play_at,omitempty"`
}

// Value returns the metric's ranking value.
func (m TournamentMetric) Value(metric string) decimal.Decimal {
	if metric == MetricPlays {
		return decimal.NewFromInt(int64(m.PlayCount))
	}
	return m.DepositTotal
}

type TournamentWinner struct {
	ID           string          `json:"id"`
	TournamentID string          `json:"tournament_id"`
	UserID       string          `json:"user_id"`
	Metric       string          `json:"metric"`
	Rank         int             `json:"rank"`
	MetricValue  decimal.Decimal `json:"metric_value"`
	PrizeAmount  decimal.Decimal `json:"prize_amount"`
	Paid         bool            `json:"paid"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
}
