package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/config"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/service"
)

const timestampLayout = "2006-01-02T15:04:05.000000"

type Status struct {
	Mac       string  `json:"mac"`
	Battery   float64 `json:"battery"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp string  `json:"timestamp"`
}

type Measurement struct {
	Mac       string  `json:"mac"`
	Pressure  float64 `json:"pressure"`
	Timestamp string  `json:"timestamp"`
}

type simSensor struct {
	mac       string
	battery   float64
	latitude  float64
	longitude float64
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	opts := mqtt.NewClientOptions().AddBroker(config.MQTTBroker()).SetClientID(config.MQTTClientID() + "-sim")
	if u := config.MQTTUsername(); u != "" {
		opts.SetUsername(u).SetPassword(config.MQTTPassword())
	}
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Fatal().Err(token.Error()).Msg("mqtt connect")
	}
	defer client.Disconnect(250)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	sensors := make([]*simSensor, config.SimSensors())
	for i := range sensors {
		sensors[i] = &simSensor{
			mac:       fmt.Sprintf("AA:BB:CC:00:11:%02X", 0x20+i),
			battery:   0.5 + rng.Float64()*0.5,
			latitude:  47.80 + rng.Float64()*0.02,
			longitude: 13.04 + rng.Float64()*0.02,
		}
	}

	statusEvery := config.SimStatusEvery()
	ticker := time.NewTicker(config.SimInterval())
	defer ticker.Stop()

	log.Info().Int("sensors", len(sensors)).Msg("simulation running; Ctrl+C to stop")
	for tick := 0; ; tick++ {
		for _, s := range sensors {
			now := time.Now().UTC().Format(timestampLayout)
			if statusEvery > 0 && tick%statusEvery == 0 {
				s.battery = max(0, s.battery-0.01)
				publish(client, service.TopicStatus, Status{Mac: s.mac, Battery: s.battery, Latitude: s.latitude, Longitude: s.longitude, Timestamp: now})
			}
			publish(client, service.TopicMeasurement, Measurement{Mac: s.mac, Pressure: 980 + rng.Float64()*70, Timestamp: now})
		}

		select {
		case <-ctx.Done():
			log.Info().Int("ticks", tick+1).Msg("simulation done")
			return
		case <-ticker.C:
		}
	}
}

func publish(client mqtt.Client, topic string, v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("encode payload")
		return
	}
	token := client.Publish(topic, config.MQTTQoS(), false, payload)
	if token.Wait() && token.Error() != nil {
		log.Error().Err(token.Error()).Str("topic", topic).Msg("publish failed")
	}
}
