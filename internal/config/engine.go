package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// EngineConfig holds the game-round tuning knobs shared by the cache, the
// lobby and the claim resolver.
type EngineConfig struct {
	CacheTTL               time.Duration `env:"CACHE_TTL" envDefault:"5m"`
	CacheFlushInterval     time.Duration `env:"CACHE_FLUSH_INTERVAL" envDefault:"30s"`
	CacheMaxGames          int           `env:"CACHE_MAX_GAMES" envDefault:"1000"`
	CacheMaxPlayersPerGame int           `env:"CACHE_MAX_PLAYERS_PER_GAME" envDefault:"200"`

	ClaimWindow   time.Duration `env:"CLAIM_WINDOW" envDefault:"100ms"`
	ClaimTieBreak string        `env:"CLAIM_TIE_BREAK" envDefault:"earliest"`

	WaitingPeriod   time.Duration `env:"WAITING_PERIOD" envDefault:"30s"`
	CountdownPeriod time.Duration `env:"COUNTDOWN_PERIOD" envDefault:"10s"`
	MinPlayers      int           `env:"MIN_PLAYERS" envDefault:"2"`
	XPPerWin        int           `env:"XP_PER_WIN" envDefault:"100"`
}

func LoadEngine() (EngineConfig, error) {
	var cfg EngineConfig
	err := env.Parse(&cfg)
	return cfg, err
}
