package service

import (
	"context"
	"time"

	"github.com/ANIKETSHETTY47/energy-grid-analytics-go/aggregator"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
)

const (
	statsWindow        = 500
	movingAverageWidth = 10
)

type SensorStats struct {
	SensorID      int64     `json:"sensor_id"`
	Count         int       `json:"count"`
	Average       float64   `json:"average"`
	Min           float64   `json:"min"`
	Max           float64   `json:"max"`
	MovingAverage []float64 `json:"moving_average"`
	From          time.Time `json:"from,omitempty"`
	To            time.Time `json:"to,omitempty"`
}

// StatsService summarises a sensor's most recent pressure readings.
type StatsService struct {
	reader repository.Reader
}

func NewStatsService(r repository.Reader) *StatsService { return &StatsService{reader: r} }

func (s *StatsService) ForSensor(ctx context.Context, sensorID int64) (*SensorStats, error) {
	if _, err := s.reader.GetSensor(ctx, sensorID); err != nil {
		return nil, err
	}
	views, err := s.reader.ListSensorMeasurements(ctx, sensorID, statsWindow)
	if err != nil {
		return nil, err
	}
	return summarise(sensorID, views), nil
}

// summarise expects views newest first, as the reader returns them.
func summarise(sensorID int64, views []domain.MeasurementView) *SensorStats {
	st := &SensorStats{SensorID: sensorID, Count: len(views), MovingAverage: []float64{}}
	if len(views) == 0 {
		return st
	}

	points := make([]aggregator.Point, len(views))
	st.Min, st.Max = views[0].Pressure, views[0].Pressure
	for i, v := range views {
		points[len(views)-1-i] = aggregator.Point{Value: v.Pressure, Timestamp: v.CreatedAt}
		if v.Pressure < st.Min {
			st.Min = v.Pressure
		}
		if v.Pressure > st.Max {
			st.Max = v.Pressure
		}
	}
	st.Average = aggregator.Average(points)
	if len(points) >= movingAverageWidth {
		st.MovingAverage = aggregator.MovingAverage(points, movingAverageWidth)
	}
	st.From = points[0].Timestamp.UTC()
	st.To = points[len(points)-1].Timestamp.UTC()
	return st
}
