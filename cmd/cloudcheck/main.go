package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/cloud"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/config"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

// Verifies the AWS setup the ingestor relies on by sending one probe through each
// configured integration. Exits non-zero if any probe fails.
func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := cloud.LoadConfig(ctx, config.AWSRegion())
	if err != nil {
		log.Fatal().Err(err).Msg("aws config")
	}

	probe := domain.NewSensor("00:00:00:00:00:00")
	probe.Name = "cloudcheck probe"
	now := time.Now().UTC()
	failed := 0

	check := func(name string, run func() error) {
		if err := run(); err != nil {
			failed++
			log.Error().Err(err).Str("check", name).Msg("failed")
			return
		}
		log.Info().Str("check", name).Msg("ok")
	}

	if arn := config.SNSTopicArn(); arn != "" {
		check("sns", func() error {
			return cloud.NewSNSClient(cfg, arn).SendAlert(ctx, "Sensor telemetry hub: test alert",
				"This is a test alert to verify SNS configuration.\n\nTimestamp: "+now.Format(time.RFC3339))
		})
	}
	if bucket := config.S3Bucket(); bucket != "" {
		check("s3", func() error {
			key := fmt.Sprintf("cloudcheck/%d.json", now.UnixNano())
			return cloud.NewS3Client(cfg, bucket).UploadDataFile(ctx, key, []byte(`{"probe":true}`))
		})
	}
	if table := config.DynamoDBTable(); table != "" {
		check("dynamodb", func() error {
			return cloud.NewDynamoDBClient(cfg, table).Record(ctx, probe, domain.Measurement{Pressure: 1013.25, CreatedAt: now})
		})
	}

	if failed > 0 {
		os.Exit(1)
	}
}
