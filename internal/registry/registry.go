// Package registry resolves telemetry to a sensor identity by mac address,
// creating the sensor on first sight and merging status updates into it.
//
// Uniqueness of the mac is enforced by the store. When two messages race to
// create the same sensor the loser sees repository.ErrDuplicateSensor and
// looks the winner up instead of failing.
package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
)

const defaultMaxAttempts = 3

// ErrUnresolved is returned when the sensor kept conflicting on insert yet never showed up on lookup.
var ErrUnresolved = errors.New("sensor could not be resolved")

// Store is the slice of the storage gateway the registry needs.
type Store interface {
	FindSensorByMac(ctx context.Context, mac string) (*domain.Sensor, error)
	InsertSensor(ctx context.Context, s *domain.Sensor) error
	UpdateSensor(ctx context.Context, s *domain.Sensor) error
}

type Result struct {
	Sensor  domain.Sensor
	Created bool
	// Previous is the stored state before a status update was applied; nil when created.
	Previous *domain.Sensor
}

type Registry struct {
	maxAttempts int
}

func New() *Registry { return &Registry{maxAttempts: defaultMaxAttempts} }

// ResolveOrCreate returns the sensor for mac, creating it with defaults if unknown.
func (r *Registry) ResolveOrCreate(ctx context.Context, q Store, mac string) (Result, error) {
	return r.resolve(ctx, q, mac, func() domain.Sensor { return domain.NewSensor(mac) })
}

// ResolveAndApplyStatus creates the sensor from upd, or overwrites only the fields upd supplies.
func (r *Registry) ResolveAndApplyStatus(ctx context.Context, q Store, upd domain.StatusUpdate) (Result, error) {
	res, err := r.resolve(ctx, q, upd.Mac, func() domain.Sensor {
		s := domain.NewSensor(upd.Mac)
		apply(&s, upd)
		return s
	})
	if err != nil || res.Created {
		return res, err
	}

	prev := res.Sensor
	res.Previous = &prev
	if !apply(&res.Sensor, upd) {
		return res, nil
	}
	if err := q.UpdateSensor(ctx, &res.Sensor); err != nil {
		return Result{}, fmt.Errorf("update sensor %s: %w", upd.Mac, err)
	}
	return res, nil
}

func (r *Registry) resolve(ctx context.Context, q Store, mac string, seed func() domain.Sensor) (Result, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		existing, err := q.FindSensorByMac(ctx, mac)
		if err == nil {
			return Result{Sensor: *existing}, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return Result{}, fmt.Errorf("find sensor %s: %w", mac, err)
		}

		s := seed()
		err = q.InsertSensor(ctx, &s)
		if err == nil {
			log.Info().Str("mac", mac).Int64("sensor_id", s.ID).Msg("sensor created")
			return Result{Sensor: s, Created: true}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateSensor) {
			return Result{}, fmt.Errorf("insert sensor %s: %w", mac, err)
		}
		log.Debug().Str("mac", mac).Int("attempt", attempt).Msg("sensor created concurrently, looking it up again")
	}
	return Result{}, fmt.Errorf("%w: %s after %d attempts", ErrUnresolved, mac, r.maxAttempts)
}

// apply copies the supplied fields of upd onto s and reports whether anything changed.
func apply(s *domain.Sensor, upd domain.StatusUpdate) bool {
	changed := false
	set := func(dst *float64, v *float64) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = true
		}
	}
	set(&s.BatteryLevel, upd.Battery)
	set(&s.Latitude, upd.Latitude)
	set(&s.Longitude, upd.Longitude)
	return changed
}
