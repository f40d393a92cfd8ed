package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pong-arena/internal/ai"
	"pong-arena/internal/api"
	"pong-arena/internal/config"
	"pong-arena/internal/game"
	"pong-arena/internal/physics"
	"pong-arena/internal/stats"
	"pong-arena/internal/tournament"
)

func serveCmd() *cobra.Command {
	var envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the game server",
		Long: `Run the HTTP and WebSocket server.

Configuration comes from the environment. A .env file is loaded first
when present (../.env, then .env, unless --env is given).

Examples:
  pong-arena serve
  PORT=8080 REDIS_ADDR=localhost:6379 pong-arena serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loadEnv(envFile)
			return runServe(config.Load())
		},
	}

	cmd.Flags().StringVar(&envFile, "env", "", "Path to a .env file")

	return cmd
}

func loadEnv(path string) {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			log.Printf("⚠️ Could not load %s: %v", path, err)
			return
		}
		log.Printf("✅ Loaded environment from %s", path)
		return
	}

	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}
}

// managerConfig maps the flat game settings onto the session template.
func managerConfig(cfg config.AppConfig) (game.ManagerConfig, error) {
	difficulty, err := ai.ParseDifficulty(cfg.Game.AIDifficulty)
	if err != nil {
		return game.ManagerConfig{}, err
	}

	layout := physics.DefaultLayout()
	layout.Dims = physics.Dimensions{
		Width:  float64(cfg.Game.CanvasWidth),
		Height: float64(cfg.Game.CanvasHeight),
	}
	layout.BallSpeed = cfg.Game.BallSpeed
	layout.BallMaxSpeed = cfg.Game.BallMaxSpeed
	layout.PaddleSpeed = cfg.Game.PaddleSpeed

	mc := game.DefaultManagerConfig()
	mc.Defaults.Layout = layout
	mc.Defaults.TickRate = cfg.Game.TickRate
	mc.Defaults.MaxScore = cfg.Game.MaxScore
	mc.Defaults.AIDifficulty = difficulty
	mc.Defaults.Countdown = cfg.Game.Countdown
	mc.Defaults.ForfeitGrace = cfg.Game.ForfeitGrace
	mc.MaxSessions = cfg.Limits.MaxSessions
	mc.IdleTimeout = cfg.Game.IdleTimeout
	mc.SweepInterval = cfg.Game.SweepInterval
	return mc, nil
}

// statsBackends holds the optional pipeline connections so they can be
// closed after the dispatcher drains.
type statsBackends struct {
	redis *redis.Client
	nats  *nats.Conn
}

func (b statsBackends) Close() {
	if b.nats != nil {
		if err := b.nats.Drain(); err != nil {
			log.Printf("⚠️ NATS drain failed: %v", err)
		}
	}
	if b.redis != nil {
		if err := b.redis.Close(); err != nil {
			log.Printf("⚠️ Redis close failed: %v", err)
		}
	}
}

// buildStatsPipeline connects every configured backend. A backend that
// cannot be reached is skipped; the log sink is always present.
func buildStatsPipeline(ctx context.Context, cfg config.StatsConfig) (stats.Sink, stats.UserResolver, statsBackends) {
	var (
		backends statsBackends
		resolver stats.UserResolver = stats.NopResolver{}
		sinks                       = stats.MultiSink{stats.LogSink{}}
	)

	if cfg.RedisAddr != "" {
		client, err := stats.NewRedisClient(ctx, stats.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("⚠️ Redis unavailable, match history disabled: %v", err)
		} else {
			backends.redis = client
			sinks = append(sinks, stats.NewRedisSink(client))
			resolver = stats.NewRedisResolver(client)
			log.Printf("✅ Redis stats sink connected (%s)", cfg.RedisAddr)
		}
	}

	if cfg.NATSURL != "" {
		conn, err := stats.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Printf("⚠️ NATS unavailable, match events disabled: %v", err)
		} else {
			backends.nats = conn
			sinks = append(sinks, stats.NewNATSSink(conn, cfg.NATSSubject))
			log.Printf("✅ NATS stats sink connected (subject %s)", cfg.NATSSubject)
		}
	}

	return sinks, resolver, backends
}

func runServe(cfg config.AppConfig) error {
	log.Println("🎮 ================================")
	log.Println("🎮  PONG ARENA")
	log.Println("🎮 ================================")

	mc, err := managerConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid game config: %w", err)
	}
	manager := game.NewManager(mc)

	var journal *game.Journal
	if cfg.Stats.EventLogPath != "" {
		journal = game.NewJournal()
		if err := journal.Start(cfg.Stats.EventLogPath); err != nil {
			log.Printf("⚠️ Match journal disabled: %v", err)
			journal = nil
		} else {
			manager.AddEventSink(journal)
		}
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	sink, resolver, backends := buildStatsPipeline(connectCtx, cfg.Stats)
	cancel()

	dcfg := stats.DefaultDispatcherConfig()
	dcfg.QueueSize = cfg.Stats.QueueSize
	dispatcher := stats.NewDispatcher(sink, resolver, dcfg)
	dispatcher.Start()
	manager.AddReporter(dispatcher.Report)

	tournaments := tournament.NewService()
	coordinator := tournament.NewCoordinator(tournaments, tournament.ManagerLauncher{Manager: manager})
	manager.AddReporter(coordinator.Report)

	server := api.NewServer(cfg, api.ServerDeps{
		Manager:     manager,
		Tournaments: tournaments,
		Coordinator: coordinator,
	})
	debugServer := api.StartDebugServer(cfg.Observability)

	manager.Start()
	log.Printf("✅ Session manager started (tick %d Hz, max %d sessions)", mc.Defaults.TickRate, mc.MaxSessions)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-errCh:
		if serveErr != nil {
			log.Printf("❌ API server failed: %v", serveErr)
		}
	}

	log.Println("🛑 Shutting down...")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ API shutdown: %v", err)
	}
	if debugServer != nil {
		debugServer.Shutdown(shutdownCtx)
	}
	manager.Stop()
	dispatcher.Stop()
	if journal != nil {
		journal.Stop()
	}
	backends.Close()

	log.Println("👋 Goodbye!")
	return serveErr
}
