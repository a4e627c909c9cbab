package broadcast

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bingo-hall/internal/config"

	"github.com/redis/go-redis/v9"
)

func openRedis(t *testing.T) *redis.Client {
	t.Helper()
	cfg, err := config.LoadTestRedis()
	if err != nil {
		t.Skipf("skip test redis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.TestRedisAddr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("skip test redis: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisMirrorRelaysBetweenHubs(t *testing.T) {
	client := openRedis(t)
	prefix := fmt.Sprintf("test:%d:game:", time.Now().UnixNano())
	mirror := NewRedisMirror(client, prefix)

	a := NewHub("node-a", 10)
	a.SetMirror(mirror)
	b := NewHub("node-b", 10)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = mirror.Relay(ctx, b) }()
	time.Sleep(100 * time.Millisecond)

	_, ch := b.Subscribe("g1", "")
	defer b.Unsubscribe("g1", ch)
	a.Publish(ctx, "g1", EventNumberCalled, map[string]any{"number": 12})

	select {
	case ev := <-ch:
		if ev.Origin != "node-a" || ev.Event != EventNumberCalled {
			t.Fatalf("unexpected relayed event: %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("event was not relayed")
	}
}
