package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Adapter delivers one message to an outside channel.
type Adapter interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	Kind   string
	GameID string
	Title  string
	Text   string
}

type Config struct {
	Enabled             bool
	Workers             int
	RetryMax            int
	RetryBase           time.Duration
	FailureThreshold    int
	CircuitOpenDuration time.Duration
	DispatchBuffer      int
}

// WinnerEvent describes a decided game.
type WinnerEvent struct {
	GameID   string
	RoomID   string
	WinnerID string
	IsBot    bool
	Prize    decimal.Decimal
	Pattern  string
	Reason   string
	At       time.Time
}

// TournamentEvent describes a finalized tournament.
type TournamentEvent struct {
	TournamentID string
	Name         string
	Winners      int
	TotalPrize   decimal.Decimal
}

type job struct {
	Adapter string
	Message Message
	Attempt int
}

func (j job) key() string {
	return j.Adapter + "|" + j.Message.Kind
}
