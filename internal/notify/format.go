package notify

import (
	"fmt"
	"strings"
)

const shortIDLimit = 10

func FormatWinner(ev WinnerEvent) Message {
	who := shortID(ev.WinnerID)
	if ev.IsBot {
		who += " (bot)"
	}
	lines := []string{
		fmt.Sprintf("Winner: %s", who),
		fmt.Sprintf("Prize: %s", ev.Prize.StringFixed(2)),
	}
	if ev.Pattern != "" {
		lines = append(lines, fmt.Sprintf("Pattern: %s", ev.Pattern))
	}
	title := fmt.Sprintf("BINGO · room %s · game %s", fallback(ev.RoomID, "-"), shortID(ev.GameID))
	if ev.Reason != "" && ev.Reason != "bingo" {
		title = fmt.Sprintf("Default win · room %s · game %s", fallback(ev.RoomID, "-"), shortID(ev.GameID))
		lines = append(lines, fmt.Sprintf("Reason: %s", strings.ReplaceAll(ev.Reason, "_", " ")))
	}
	return Message{
		Kind:   "winner",
		GameID: ev.GameID,
		Title:  title,
		Text:   strings.Join(lines, "\n"),
	}
}

func FormatTournament(ev TournamentEvent) Message {
	return Message{
		Kind:  "tournament",
		Title: fmt.Sprintf("Tournament finalized · %s", fallback(ev.Name, shortID(ev.TournamentID))),
		Text:  fmt.Sprintf("Winners: %d\nTotal paid: %s", ev.Winners, ev.TotalPrize.StringFixed(2)),
	}
}

func shortID(id string) string {
	if len(id) <= shortIDLimit {
		return id
	}
	return id[:shortIDLimit]
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
