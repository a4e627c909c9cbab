package lobby

import (
	"time"

	"bingo-hall/internal/store"

	"github.com/shopspring/decimal"
)

const (
	ActionSpectate      = "spectate"
	ActionCreated       = "created"
	ActionJoined        = "joined"
	ActionAlreadyJoined = "already_joined"
)

type Config struct {
	WaitingPeriod   time.Duration
	CountdownPeriod time.Duration
	MinPlayers      int
	// Tick is the countdown step; one second outside tests.
	Tick time.Duration
}

type JoinResult struct {
	Action string     `json:"action"`
	GameID string     `json:"game_id"`
	Game   store.Game `json:"game"`
}

type LeaveResult struct {
	Message        string           `json:"message"`
	WinnerID       string           `json:"winner_id,omitempty"`
	AutoWin        bool             `json:"auto_win,omitempty"`
	Prize          *decimal.Decimal `json:"prize,omitempty"`
	CommissionRate *decimal.Decimal `json:"commission_rate,omitempty"`
}
