package main

import (
	"context"
	"os"
	"time"

	"github.com/confseat/confseat/internal/api/server"
	"github.com/confseat/confseat/internal/bus"
	"github.com/confseat/confseat/internal/config"
	"github.com/confseat/confseat/internal/scheduler"
	"github.com/confseat/confseat/internal/store"
	"github.com/confseat/confseat/internal/workers"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, continuing with environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := store.Open(ctx, cfg.DatabaseURL, cfg.DBPoolMax, cfg.DBPoolMinIdle)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to create pgx pool")
	}
	defer pool.Close()

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := pool.Ping(pingCtx); err != nil {
		pingCancel()
		log.Fatal().Err(err).Msg("database unreachable")
	}
	pingCancel()

	b, err := bus.Connect(cfg.BusHost)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to RabbitMQ")
	}
	defer b.Close()

	st := store.New(pool)
	engine := scheduler.New(st, b, cfg.ConfirmationWindow)

	if cfg.EnableConsumers {
		consumers := workers.New(b.Connection(), engine, cfg.WorkerCount)
		if err := consumers.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("unable to start consumers")
		}
		defer consumers.Stop()

		// Safety net for lost conference-start messages.
		sweeper := workers.NewSweeper(pool, engine)
		go func() {
			ticker := time.NewTicker(5 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := sweeper.Sweep(ctx); err != nil {
						log.Error().Err(err).Msg("sweeper error")
					}
				}
			}
		}()
	}

	srv := server.New(cfg.Port, engine)
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("server stopped")
}
