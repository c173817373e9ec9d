package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/CDeX-Labs/CDeX-Contest-Engine/config"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/auth"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/handlers"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/hub"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/kafka"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/leaderboard"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/ledger"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/metrics"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/middleware"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/presence"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/internal/redis"
	"github.com/CDeX-Labs/CDeX-Contest-Engine/pkg/events"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.Logger()
	if logger.GetLevel() > zerolog.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := b.close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()

	h := hub.NewHub(hub.Config{SendBuffer: cfg.Hub.SendBuffer, MaxDrops: cfg.Hub.MaxDrops}, m, logger)
	violations := ledger.New(b.ledger, b.directory, h, m, logger)
	engine := leaderboard.NewEngine(b.facts, b.directory, h, m, logger)
	if err := engine.WarmUp(ctx); err != nil {
		return err
	}

	ready := map[string]handlers.Pinger{"store": b.store}

	var (
		relay     *redis.Relay
		wsPresent handlers.Presence
	)
	if cfg.Redis.Enabled {
		rc, err := redis.NewClient(redis.Options{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, logger)
		if err != nil {
			return err
		}
		defer rc.Close()

		relay = redis.NewRelay(rc, h, m, logger)
		if err := relay.Start(); err != nil {
			return err
		}
		h.SetRelay(relay)

		pm := presence.NewManager(rc, relay.InstanceID(), logger)
		violations.SetPresence(pm)
		wsPresent = pm
		ready["redis"] = rc
	}

	ws := handlers.NewWebSocketHandler(h, wsPresent, cfg.Server.AllowedOrigins, logger)
	h.SetSubscribeHook(handlers.LeaderboardSnapshot(h, engine, logger))
	h.SetDisconnectHook(ws.OnDisconnect)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.PerMinute, cfg.RateLimit.Burst, cfg.RateLimit.IdleTimeout, handlers.UserKey, logger)
	defer limiter.Stop()

	router := (&handlers.Router{
		Hub:         h,
		Validator:   auth.NewJWTValidator(cfg.JWT.Secret),
		Metrics:     m,
		Limiter:     limiter,
		Violations:  handlers.NewViolationHandler(violations, logger),
		Leaderboard: handlers.NewLeaderboardHandler(engine, b.directory, logger),
		WebSocket:   ws,
		Ready:       ready,
		Logger:      logger,
	}).Engine(handlers.RouterConfig{AllowedOrigins: cfg.Server.AllowedOrigins})

	var consumer *kafka.Consumer
	if cfg.Kafka.Enabled {
		consumer = kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:         cfg.Kafka.Brokers,
			GroupID:         consumerGroup(cfg),
			Topics:          []string{events.TopicSubmissionJudged, events.TopicContestProblemsChanged},
			RetryBackoff:    cfg.Kafka.RetryBackoff,
			RetryMaxBackoff: cfg.Kafka.RetryMaxBackoff,
		}, m, logger)
		kafka.NewHandlers(h, engine, b.problems, logger).RegisterAll(consumer)
		consumer.Start()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("port", cfg.Server.Port).
			Str("storage", cfg.Storage.Driver).
			Bool("redis", cfg.Redis.Enabled).
			Bool("kafka", cfg.Kafka.Enabled).
			Msg("Contest engine listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		errs = append(errs, srv.Shutdown(shutdownCtx))
		if consumer != nil {
			errs = append(errs, consumer.Stop())
		}
		if relay != nil {
			errs = append(errs, relay.Stop())
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("Contest engine stopped with error")
		return err
	}
	logger.Info().Msg("Contest engine stopped")
	return nil
}

// consumerGroup gives every replica its own group when replicas share a relay.
// Each in-memory board then sees every judge event, and leaderboard topics are
// never relayed between instances.
func consumerGroup(cfg *config.Config) string {
	if !cfg.Redis.Enabled {
		return cfg.Kafka.GroupID
	}
	return cfg.Kafka.GroupID + "-" + cfg.Server.InstanceID
}
