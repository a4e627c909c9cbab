package notify

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestFormatWinner(t *testing.T) {
	cases := []struct {
		name  string
		ev    WinnerEvent
		title string
		text  []string
	}{
		{
			name:  "bingo",
			ev:    WinnerEvent{GameID: "01HZZZZZZZZZZZZZ", RoomID: "classic", WinnerID: "user-1", Prize: decimal.RequireFromString("18.5"), Pattern: "row_2"},
			title: "BINGO · room classic · game 01HZZZZZZZ",
			text:  []string{"Winner: user-1", "Prize: 18.50", "Pattern: row_2"},
		},
		{
			name:  "default win",
			ev:    WinnerEvent{GameID: "g1", WinnerID: "bot_abcdefghijk", IsBot: true, Prize: decimal.NewFromInt(9), Reason: "opponent_left"},
			title: "Default win · room - · game g1",
			text:  []string{"Winner: bot_abcdef (bot)", "Reason: opponent left"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg := FormatWinner(tc.ev)
			if msg.Title != tc.title {
				t.Fatalf("title = %q, want %q", msg.Title, tc.title)
			}
			for _, want := range tc.text {
				if !strings.Contains(msg.Text, want) {
					t.Fatalf("text %q missing %q", msg.Text, want)
				}
			}
		})
	}
}

func TestTelegramText(t *testing.T) {
	if got := telegramText(Message{Text: "x"}); got != "x" {
		t.Fatalf("got %q", got)
	}
	if got := telegramText(Message{Title: "T", Text: "x"}); got != "T\n\nx" {
		t.Fatalf("got %q", got)
	}
}
