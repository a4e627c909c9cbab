// Package caller talks to the external number-calling scheduler.
package caller

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Stopper tells the scheduler to stop calling numbers for a game. Stop is
// best effort and never blocks the caller on delivery.
type Stopper interface {
	Stop(ctx context.Context, gameID, reason string)
}

type StopSignal struct {
	GameID string `json:"game_id"`
	Reason string `json:"reason"`
	At     int64  `json:"at"`
}

// RedisStopper publishes a StopSignal on Channel.
type RedisStopper struct {
	Client  *redis.Client
	Channel string
	Timeout time.Duration
}

func NewRedisStopper(client *redis.Client, channel string) *RedisStopper {
	return &RedisStopper{Client: client, Channel: channel, Timeout: 2 * time.Second}
}

func (s *RedisStopper) Stop(ctx context.Context, gameID, reason string) {
	payload, err := json.Marshal(StopSignal{GameID: gameID, Reason: reason, At: time.Now().UnixMilli()})
	if err != nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.Timeout)
		defer cancel()
		if err := s.Client.Publish(ctx, s.Channel, payload).Err(); err != nil {
			metricStopFailures.Add(1)
			log.Warn().Err(err).Str("game_id", gameID).Str("reason", reason).Msg("scheduler stop signal failed")
			return
		}
		metricStopsSent.Add(1)
	}()
}

// LogStopper only logs; used when no Redis is configured.
type LogStopper struct{}

func (LogStopper) Stop(_ context.Context, gameID, reason string) {
	metricStopsSent.Add(1)
	log.Info().Str("game_id", gameID).Str("reason", reason).Msg("scheduler stop requested")
}
