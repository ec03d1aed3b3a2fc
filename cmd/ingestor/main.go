package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/broadcast"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/cache"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/cloud"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/config"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/database"
	httpHandlers "github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/http"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/service"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/subscriber"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw, closeStore, err := openGateway()
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer closeStore()

	hub := broadcast.NewHub(config.BroadcastBuffer())
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	svcs := service.New(gw, hub)
	deps := httpHandlers.Deps{Reader: gw, Stats: svcs.Stats, Observers: hub.Count}

	if config.RedisEnabled() {
		rdb, err := cache.Connect(ctx, config.RedisAddr())
		if err != nil {
			log.Fatal().Err(err).Msg("redis connect failed")
		}
		defer rdb.Close()
		latest := cache.NewLatestCache(rdb, config.LatestTTL())
		svcs.Telemetry.AddSink(latest)
		deps.Latest = latest
	}

	if config.UseCloudServices() {
		wireCloud(ctx, svcs, gw)
	}
	go svcs.Telemetry.Run(hubCtx)

	sub := subscriber.New(subscriber.Options{
		Broker:               config.MQTTBroker(),
		ClientID:             config.MQTTClientID(),
		Username:             config.MQTTUsername(),
		Password:             config.MQTTPassword(),
		QoS:                  config.MQTTQoS(),
		MaxReconnectInterval: config.MQTTMaxReconnectInterval(),
		Topics:               service.Topics,
	}, svcs.Telemetry.FromMQTT)
	if err := sub.Start(); err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}
	deps.Connected = sub.Connected

	mux := http.NewServeMux()
	mux.Handle("/ws", broadcast.Handler(hub, gw.ListRecentMeasurements, config.SnapshotSize()))
	mux.Handle("/", adaptor.FiberApp(httpHandlers.NewApp(deps)))
	srv := &http.Server{Addr: config.APIAddr(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server exit")
		}
	}()

	log.Info().Str("broker", config.MQTTBroker()).Msg("ingestor running; Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("shutting down")

	timeout := config.ShutdownTimeout()
	if err := sub.Stop(timeout); err != nil {
		log.Warn().Err(err).Msg("mqtt stop")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown")
	}
}

func openGateway() (repository.Gateway, func(), error) {
	if config.StorageDriver() == "memory" {
		log.Warn().Msg("using in-memory storage; data is lost on exit")
		return repository.NewMemory(), func() {}, nil
	}
	db, err := database.Connect()
	if err != nil {
		return nil, nil, err
	}
	return repository.New(db), func() { db.Close() }, nil
}

func wireCloud(ctx context.Context, svcs *service.Services, gw repository.Gateway) {
	cfg, err := cloud.LoadConfig(ctx, config.AWSRegion())
	if err != nil {
		log.Error().Err(err).Msg("cloud services disabled")
		return
	}
	if arn := config.SNSTopicArn(); arn != "" {
		svcs.Telemetry.AlertOnLowBattery(cloud.NewSNSClient(cfg, arn), config.BatteryAlertThreshold())
		log.Info().Msg("low battery alerts enabled")
	}
	if table := config.DynamoDBTable(); table != "" {
		svcs.Telemetry.AddSink(cloud.NewDynamoDBClient(cfg, table))
		log.Info().Str("table", table).Msg("dynamodb mirror enabled")
	}
	if bucket := config.S3Bucket(); bucket != "" {
		interval := config.ArchiveInterval()
		start, err := gw.MaxMeasurementID(ctx)
		if err != nil {
			log.Error().Err(err).Msg("s3 archive disabled")
			return
		}
		archive := service.NewArchiveService(gw, cloud.NewS3Client(cfg, bucket), start)
		go archive.Run(ctx, interval)
		log.Info().Str("bucket", bucket).Dur("interval", interval).Int64("after_id", start).Msg("s3 archive enabled")
	}
}
