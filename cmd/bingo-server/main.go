package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bingo-hall/internal/app/claim"
	"bingo-hall/internal/app/lobby"
	"bingo-hall/internal/app/tournament"
	"bingo-hall/internal/broadcast"
	"bingo-hall/internal/caller"
	"bingo-hall/internal/config"
	"bingo-hall/internal/ledger"
	"bingo-hall/internal/logging"
	"bingo-hall/internal/notify"
	"bingo-hall/internal/ratelimit"
	"bingo-hall/internal/statecache"
	"bingo-hall/internal/store"
	httptransport "bingo-hall/internal/transport/http"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const replayBuffer = 200

func main() {
	// A missing .env is normal in containers.
	_ = godotenv.Load()

	cfg, err := config.LoadApp()
	if err != nil {
		panic(err)
	}
	logging.Init(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.New(cfg.Server.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("store init failed")
	}
	defer st.Close()
	if err := st.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("db ping failed")
	}
	if err := st.EnsureDefaultRooms(ctx); err != nil {
		log.Fatal().Err(err).Msg("ensure default rooms failed")
	}

	hostname, _ := os.Hostname()
	hub := broadcast.NewHub(hostname+"-"+store.NewID(), replayBuffer)
	defer hub.Close()
	hub.Start(ctx, cfg.Engine.CacheFlushInterval, cfg.Engine.CacheTTL)

	var rdb *redis.Client
	var stopper caller.Stopper = caller.LogStopper{}
	if cfg.Server.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Server.RedisAddr,
			Password: cfg.Server.RedisPassword,
			DB:       cfg.Server.RedisDB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		mirror := broadcast.NewRedisMirror(rdb, cfg.Server.BroadcastChannel)
		hub.SetMirror(mirror)
		go func() {
			if err := mirror.Relay(ctx, hub); err != nil {
				log.Error().Err(err).Msg("broadcast relay stopped")
			}
		}()
		stopper = caller.NewRedisStopper(rdb, cfg.Server.SchedulerStopChannel)
	} else {
		log.Warn().Msg("REDIS_ADDR not set; broadcasts stay local and claims are not rate limited")
	}
	limiter := ratelimit.New(rdb, cfg.Server.ClaimRateLimit, time.Minute)

	notifier := notify.NewManager(notify.Config{
		Enabled:  true,
		Workers:  cfg.Server.NotifyWorkers,
		RetryMax: cfg.Server.NotifyRetryMax,
	}, notificationAdapters(cfg.Server)...)
	if err := notifier.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("notifier start failed")
	}

	cache := statecache.New(st, hub, statecache.Config{
		TTL:               cfg.Engine.CacheTTL,
		FlushInterval:     cfg.Engine.CacheFlushInterval,
		MaxGames:          cfg.Engine.CacheMaxGames,
		MaxPlayersPerGame: cfg.Engine.CacheMaxPlayersPerGame,
	})
	cache.Start(ctx)

	settler := ledger.New(st, cfg.Engine.XPPerWin)
	tournaments := tournament.NewService(st, notifier)
	claims := claim.NewService(st, cache, settler, tournaments, notifier, stopper, claim.Config{
		Window:   cfg.Engine.ClaimWindow,
		TieBreak: cfg.Engine.ClaimTieBreak,
	})
	filler := lobby.BotAutofiller{
		Enabled:    cfg.Bot.AutofillEnabled,
		Prefix:     cfg.Bot.IDPrefix,
		MaxPerGame: cfg.Bot.MaxPerGame,
	}
	rooms := lobby.NewService(st, cache, settler, tournaments, notifier, stopper, filler, lobby.Config{
		WaitingPeriod:   cfg.Engine.WaitingPeriod,
		CountdownPeriod: cfg.Engine.CountdownPeriod,
		MinPlayers:      cfg.Engine.MinPlayers,
	})

	r := httptransport.NewRouter(httptransport.Deps{
		Lobby:       rooms,
		Claims:      claims,
		Games:       cache,
		Stream:      hub,
		Tournaments: tournaments,
		Admin:       st,
		Limiter:     limiter,
	}, cfg.Server)
	httptransport.LogRoutes(r)

	server := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Server.HTTPAddr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown failed")
	}
	rooms.Close()
	claims.Wait()
	if err := cache.Sync(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("final cache flush failed")
	}
}

func notificationAdapters(cfg config.ServerConfig) []notify.Adapter {
	adapters := []notify.Adapter{notify.LogAdapter{}}
	if cfg.TelegramBotToken == "" {
		return adapters
	}
	tg, err := notify.NewTelegramAdapter(cfg.TelegramBotToken, cfg.TelegramChatID)
	if err != nil {
		log.Warn().Err(err).Msg("telegram notifications disabled")
		return adapters
	}
	return append(adapters, tg)
}
