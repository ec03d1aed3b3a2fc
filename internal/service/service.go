package service

import (
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/registry"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
)

type Services struct {
	Repos     repository.Gateway
	Telemetry *TelemetryService
	Stats     *StatsService
}

func New(gw repository.Gateway, pub Publisher) *Services {
	return &Services{
		Repos:     gw,
		Telemetry: NewTelemetryService(gw, registry.New(), pub),
		Stats:     NewStatsService(gw),
	}
}
