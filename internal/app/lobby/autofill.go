package lobby

import "bingo-hall/internal/store"

// Autofiller supplies simulated participants for a game that is short of
// its minimum population.
type Autofiller interface {
	Bots(g *store.Game, need int) []string
}

// BotAutofiller mints fresh bot ids, never adding more than MaxPerGame
// bots to one game.
type BotAutofiller struct {
	Enabled    bool
	Prefix     string
	MaxPerGame int
}

func (a BotAutofiller) Bots(g *store.Game, need int) []string {
	if !a.Enabled || need <= 0 {
		return nil
	}
	if a.MaxPerGame > 0 {
		need = min(need, a.MaxPerGame-len(g.Bots))
	}
	out := make([]string, 0, max(need, 0))
	for i := 0; i < need; i++ {
		out = append(out, a.Prefix+store.NewID())
	}
	return out
}
