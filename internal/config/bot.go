package config

import "github.com/caarlos0/env/v11"

// BotConfig controls how waiting rounds are topped up with simulated
// participants.
type BotConfig struct {
	AutofillEnabled bool   `env:"BOT_AUTOFILL_ENABLED" envDefault:"true"`
	IDPrefix        string `env:"BOT_ID_PREFIX" envDefault:"bot_"`
	MaxPerGame      int    `env:"BOT_MAX_PER_GAME" envDefault:"4"`
}

func LoadBot() (BotConfig, error) {
	var cfg BotConfig
	err := env.Parse(&cfg)
	return cfg, err
}
