package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	SchedulerStopChannel string `env:"SCHEDULER_STOP_CHANNEL" envDefault:"bingo:scheduler:stop"`
	BroadcastChannel     string `env:"BROADCAST_CHANNEL_PREFIX" envDefault:"bingo:game:"`
	ClaimRateLimit       int    `env:"CLAIM_RATE_LIMIT_PER_MIN" envDefault:"20"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`
	NotifyWorkers    int    `env:"NOTIFY_WORKERS" envDefault:"2"`
	NotifyRetryMax   int    `env:"NOTIFY_RETRY_MAX" envDefault:"3"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
