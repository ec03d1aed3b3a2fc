package main

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/cache"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/config"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/database"
	httpHandlers "github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/http"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/service"
)

// Read-only API. Ingestion and the websocket stream live in cmd/ingestor.
func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	db, err := database.Connect()
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	repos := repository.New(db)
	deps := httpHandlers.Deps{Reader: repos, Stats: service.NewStatsService(repos)}

	if config.RedisEnabled() {
		rdb, err := cache.Connect(context.Background(), config.RedisAddr())
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer rdb.Close()
		deps.Latest = cache.NewLatestCache(rdb, config.LatestTTL())
	}

	app := httpHandlers.NewApp(deps)

	addr := config.APIAddr()
	log.Info().Str("addr", addr).Msg("api listening")
	log.Fatal().Err(app.Listen(addr)).Msg("server exit")
}
