package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/ItzSjDude/hiva-node/internal/config"
	"github.com/ItzSjDude/hiva-node/internal/db"
	"github.com/ItzSjDude/hiva-node/internal/livekit"
	clog "github.com/ItzSjDude/hiva-node/internal/log"
	"github.com/ItzSjDude/hiva-node/internal/server"
	"github.com/ItzSjDude/hiva-node/internal/service"
	"github.com/ItzSjDude/hiva-node/internal/ws"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	clog.Init(cfg.Env)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config validate")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gdb, err := db.Connect(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	if err := db.Migrate(gdb); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	var bridge livekit.Bridge = livekit.Nop{}
	if cfg.LiveKitAPIKey != "" && cfg.LiveKitAPISecret != "" {
		bridge = livekit.New(cfg.LiveKitHost, cfg.LiveKitAPIKey, cfg.LiveKitAPISecret)
		log.Info().Str("host", cfg.LiveKitHost).Msg("livekit bridge enabled")
	} else {
		log.Warn().Msg("livekit credentials missing, media bridge disabled")
	}

	hub := ws.NewHub()
	if cfg.RedisURL != "" {
		fanout, err := ws.NewFanout(cfg.RedisURL, hub)
		if err != nil {
			log.Fatal().Err(err).Msg("redis fanout")
		}
		hub.SetPublisher(fanout.Publish)
		go fanout.Run(ctx)
		log.Info().Msg("redis fanout enabled")
	}

	seatSvc := service.NewSeatService(gdb, bridge)
	partySvc := service.NewPartyService(gdb, bridge, cfg.PartySeats)
	gw := ws.NewGateway(hub, seatSvc, partySvc, cfg)
	h := server.NewHandler(cfg, partySvc, hub)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: server.SetupRouter(cfg, h, gw)}
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	log.Info().Msg("server stopped")
}
