package broadcast

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisMirror publishes every local event on prefix+gameID so other
// processes serving the same game can relay it to their subscribers.
type RedisMirror struct {
	Client *redis.Client
	Prefix string
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{Client: client, Prefix: prefix}
}

func (m *RedisMirror) Mirror(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return m.Client.Publish(ctx, m.Prefix+ev.GameID, payload).Err()
}

// Relay subscribes to every game channel and delivers foreign events to hub
// until ctx is done.
func (m *RedisMirror) Relay(ctx context.Context, hub *Hub) error {
	sub := m.Client.PSubscribe(ctx, m.Prefix+"*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Str("channel", msg.Channel).Msg("broadcast relay decode failed")
				continue
			}
			if ev.GameID == "" {
				ev.GameID = strings.TrimPrefix(msg.Channel, m.Prefix)
			}
			if ev.Origin == hub.NodeID() {
				continue
			}
			hub.Deliver(ev)
			metricRelayed.Add(1)
		}
	}
}
