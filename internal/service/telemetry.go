package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/codec"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/registry"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
)

const (
	TopicStatus      = "sensors/status"
	TopicMeasurement = "measurement/data"
)

// Topics are the MQTT subscriptions the ingestor needs.
var Topics = []string{TopicStatus, TopicMeasurement}

var ErrUnknownTopic = errors.New("unknown topic")

const (
	sideEffectQueue   = 256
	sideEffectTimeout = 5 * time.Second
)

// Publisher accepts events for live fan-out without blocking.
type Publisher interface {
	Publish(ev domain.Event) bool
}

// MeasurementSink receives every committed measurement. Failures never affect ingestion.
type MeasurementSink interface {
	Record(ctx context.Context, s domain.Sensor, m domain.Measurement) error
}

type LowBatteryNotifier interface {
	SendLowBatteryAlert(ctx context.Context, s domain.Sensor, threshold float64) error
}

// TelemetryService handles one MQTT message at a time: decode, persist in a single
// transaction, and only after commit hand the result to observers and sinks.
// Sinks and alerts run in order on the Run goroutine, so a slow cache or AWS call
// never holds up the next message. When that queue is full the work is dropped.
type TelemetryService struct {
	gw       repository.Gateway
	registry *registry.Registry
	pub      Publisher

	sinks     []MeasurementSink
	alerts    LowBatteryNotifier
	threshold float64

	sideEffects chan func(context.Context)
	dropped     atomic.Uint64

	now func() time.Time
}

func NewTelemetryService(gw repository.Gateway, reg *registry.Registry, pub Publisher) *TelemetryService {
	return &TelemetryService{
		gw:          gw,
		registry:    reg,
		pub:         pub,
		sideEffects: make(chan func(context.Context), sideEffectQueue),
		now:         time.Now,
	}
}

// AddSink registers a sink that is fed after each committed measurement.
func (s *TelemetryService) AddSink(sink MeasurementSink) *TelemetryService {
	s.sinks = append(s.sinks, sink)
	return s
}

// AlertOnLowBattery notifies n when a status update takes a sensor's battery below threshold.
func (s *TelemetryService) AlertOnLowBattery(n LowBatteryNotifier, threshold float64) *TelemetryService {
	s.alerts = n
	s.threshold = threshold
	return s
}

// Run executes sink and alert work until ctx is cancelled.
func (s *TelemetryService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.sideEffects:
			jobCtx, cancel := context.WithTimeout(ctx, sideEffectTimeout)
			job(jobCtx)
			cancel()
		}
	}
}

// DroppedSideEffects reports how many sink or alert jobs were discarded on a full queue.
func (s *TelemetryService) DroppedSideEffects() uint64 { return s.dropped.Load() }

func (s *TelemetryService) FromMQTT(topic string, payload []byte) error {
	return s.Handle(context.Background(), topic, payload)
}

func (s *TelemetryService) Handle(ctx context.Context, topic string, payload []byte) error {
	switch topic {
	case TopicStatus:
		return s.handleStatus(ctx, payload)
	case TopicMeasurement:
		return s.handleMeasurement(ctx, payload)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}

func (s *TelemetryService) handleStatus(ctx context.Context, payload []byte) error {
	upd, err := codec.DecodeStatus(payload)
	if err != nil {
		return fmt.Errorf("decode status: %w", err)
	}

	var res registry.Result
	err = s.gw.InTx(ctx, func(q repository.Queries) error {
		var err error
		res, err = s.registry.ResolveAndApplyStatus(ctx, q, upd)
		return err
	})
	if err != nil {
		return fmt.Errorf("apply status for %s: %w", upd.Mac, err)
	}

	log.Debug().Str("mac", upd.Mac).Int64("sensor_id", res.Sensor.ID).Bool("created", res.Created).Msg("status applied")
	s.maybeAlert(res)
	return nil
}

func (s *TelemetryService) handleMeasurement(ctx context.Context, payload []byte) error {
	sample, err := codec.DecodeMeasurement(payload)
	if err != nil {
		return fmt.Errorf("decode measurement: %w", err)
	}

	var (
		sensor domain.Sensor
		m      domain.Measurement
	)
	err = s.gw.InTx(ctx, func(q repository.Queries) error {
		res, err := s.registry.ResolveOrCreate(ctx, q, sample.Mac)
		if err != nil {
			return err
		}
		sensor = res.Sensor
		m = domain.Measurement{SensorID: sensor.ID, Pressure: sample.Pressure, CreatedAt: s.now().UTC()}
		if sample.Timestamp != nil {
			m.CreatedAt = *sample.Timestamp
		}
		return q.InsertMeasurement(ctx, &m)
	})
	if err != nil {
		return fmt.Errorf("store measurement for %s: %w", sample.Mac, err)
	}

	if s.pub != nil {
		s.pub.Publish(domain.MeasurementEvent(sensor, m))
	}
	if len(s.sinks) > 0 {
		s.enqueue("measurement sinks", func(ctx context.Context) {
			for _, sink := range s.sinks {
				if err := sink.Record(ctx, sensor, m); err != nil {
					log.Warn().Err(err).Int64("sensor_id", sensor.ID).Msg("measurement sink failed")
				}
			}
		})
	}
	return nil
}

func (s *TelemetryService) enqueue(what string, job func(context.Context)) {
	select {
	case s.sideEffects <- job:
	default:
		n := s.dropped.Add(1)
		log.Warn().Str("job", what).Uint64("dropped_total", n).Msg("side effect queue full, work dropped")
	}
}

func (s *TelemetryService) maybeAlert(res registry.Result) {
	if s.alerts == nil {
		return
	}
	now := res.Sensor.BatteryLevel
	if now >= s.threshold {
		return
	}
	if res.Previous != nil && res.Previous.BatteryLevel < s.threshold {
		return
	}
	sensor, threshold := res.Sensor, s.threshold
	s.enqueue("low battery alert", func(ctx context.Context) {
		if err := s.alerts.SendLowBatteryAlert(ctx, sensor, threshold); err != nil {
			log.Warn().Err(err).Str("mac", sensor.MacAddress).Msg("low battery alert failed")
		}
	})
}
