package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	httpapi "github.com/arena-hub/arena-hub/internal/api/http"
	"github.com/arena-hub/arena-hub/internal/api/ws"
	"github.com/arena-hub/arena-hub/internal/application/broker"
	"github.com/arena-hub/arena-hub/internal/application/decision"
	"github.com/arena-hub/arena-hub/internal/application/engine"
	"github.com/arena-hub/arena-hub/internal/application/registry"
	"github.com/arena-hub/arena-hub/internal/application/supervisor"
	"github.com/arena-hub/arena-hub/internal/config"
	"github.com/arena-hub/arena-hub/internal/domain/channel"
	"github.com/arena-hub/arena-hub/internal/domain/event"
	"github.com/arena-hub/arena-hub/internal/infrastructure/identity"
	"github.com/arena-hub/arena-hub/internal/infrastructure/postgres"
	"github.com/arena-hub/arena-hub/internal/infrastructure/redisbus"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db error: %v", err)
	}
	defer pool.Close()
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("migration error: %v", err)
	}

	bus, err := redisbus.New(cfg.RedisURL, cfg.BusRetries, cfg.BusRetryBackoff, logger)
	if err != nil {
		log.Fatalf("redis error: %v", err)
	}
	defer bus.Close()

	// infrastructure
	combatRepo := postgres.NewCombatRepository(pool)
	var verifier identity.Verifier
	if cfg.IdentityURL != "" {
		verifier = identity.NewClient(cfg.IdentityURL, cfg.IdentityTimeout, logger)
	} else {
		logger.Warn().Msg("no identity service configured; anonymous sessions only")
		verifier = identity.NewStaticVerifier()
	}

	// services
	brokerSvc := broker.NewService(bus, logger)
	brokerSvc.CreateChannel(channel.New(registry.GlobalChannel, channel.KindGlobal))
	for _, zone := range cfg.Zones {
		brokerSvc.CreateChannel(channel.New(channel.ZoneID(zone), channel.KindZone))
	}

	formula, err := engine.NewFormulaPolicy(cfg.DamageFormula, cfg.DamageFormulaVersion)
	if err != nil {
		log.Fatalf("damage formula error: %v", err)
	}

	decisionSvc := decision.NewService(decision.DefaultWeights(), logger)
	archiver := engine.NewArchiver(combatRepo, cfg.SessionBuffer, logger)
	engineSvc := engine.NewService(brokerSvc, decisionSvc, formula, cfg.TurnDeadline, cfg.DecisionBudget, logger)
	supervisorSvc := supervisor.NewService(brokerSvc, archiver, cfg.RaidCapacity, logger)
	engineSvc.SetScheduler(supervisorSvc)
	supervisorSvc.SetResolver(engineSvc)

	registrySvc := registry.NewService(brokerSvc, verifier, cfg.ConnTimeout, cfg.RevalidateInterval, logger)

	// API server
	wsHandler := ws.NewHandler(registrySvc, engineSvc, cfg.SessionBuffer, logger)
	apiServer := httpapi.NewServer(registrySvc, engineSvc, supervisorSvc, verifier, wsHandler, combatRepo, logger)
	apiServer.SetReadiness(bus.Ping)

	httpServer := &http.Server{
		Addr:        cfg.ServerAddr,
		Handler:     apiServer.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// background loops
	go archiver.Run(ctx)
	go bus.Run(ctx, func(env *event.Envelope) {
		brokerSvc.IngestRemote(env)
	})
	go registrySvc.RunCleanup(ctx, cfg.CleanupInterval)
	go registrySvc.RunRevalidation(ctx)

	// start server
	go func() {
		logger.Info().Str("addr", cfg.ServerAddr).Msg("server started")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	cancel()
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = httpServer.Shutdown(ctxShutdown)
}
