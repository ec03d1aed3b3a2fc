package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

// Memory is an in-process Gateway for local runs (STORAGE_DRIVER=memory) and tests.
// Every call is atomic on its own; InTx does not roll back earlier writes when fn fails.
type Memory struct {
	mu           sync.RWMutex
	sensors      map[int64]domain.Sensor
	byMac        map[string]int64
	measurements []domain.Measurement
	nextSensor   int64
	nextMeasure  int64
}

func NewMemory() *Memory {
	return &Memory{
		sensors: make(map[int64]domain.Sensor),
		byMac:   make(map[string]int64),
	}
}

func (m *Memory) InTx(_ context.Context, fn func(Queries) error) error { return fn(m) }

func (m *Memory) FindSensorByMac(_ context.Context, mac string) (*domain.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byMac[mac]
	if !ok {
		return nil, ErrNotFound
	}
	s := m.sensors[id]
	return &s, nil
}

func (m *Memory) InsertSensor(_ context.Context, s *domain.Sensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byMac[s.MacAddress]; ok {
		return ErrDuplicateSensor
	}
	m.nextSensor++
	s.ID = m.nextSensor
	m.sensors[s.ID] = *s
	m.byMac[s.MacAddress] = s.ID
	return nil
}

func (m *Memory) UpdateSensor(_ context.Context, s *domain.Sensor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.sensors[s.ID]
	if !ok {
		return ErrNotFound
	}
	upd := *s
	upd.MacAddress = prev.MacAddress
	m.sensors[s.ID] = upd
	return nil
}

func (m *Memory) InsertMeasurement(_ context.Context, ms *domain.Measurement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sensors[ms.SensorID]; !ok {
		return ErrNotFound
	}
	if ms.CreatedAt.IsZero() {
		ms.CreatedAt = time.Now().UTC()
	}
	m.nextMeasure++
	ms.ID = m.nextMeasure
	m.measurements = append(m.measurements, *ms)
	return nil
}

func (m *Memory) ListRecentMeasurements(_ context.Context, limit int) ([]domain.MeasurementView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.views(func(domain.Measurement) bool { return true }, true, limit), nil
}

func (m *Memory) ListSensors(_ context.Context) ([]domain.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Sensor, 0, len(m.sensors))
	for _, s := range m.sensors {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetSensor(_ context.Context, id int64) (*domain.Sensor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sensors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &s, nil
}

func (m *Memory) ListSensorMeasurements(_ context.Context, sensorID int64, limit int) ([]domain.MeasurementView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.views(func(ms domain.Measurement) bool { return ms.SensorID == sensorID }, true, limit), nil
}

func (m *Memory) ListMeasurementsAfterID(_ context.Context, afterID int64, limit int) ([]domain.MeasurementView, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []domain.MeasurementView{}
	for _, ms := range m.measurements {
		if ms.ID <= afterID {
			continue
		}
		if limit >= 0 && len(out) == limit {
			break
		}
		s := m.sensors[ms.SensorID]
		out = append(out, domain.MeasurementView{Measurement: ms, SensorName: s.Name, MacAddress: s.MacAddress})
	}
	return out, nil
}

func (m *Memory) MaxMeasurementID(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextMeasure, nil
}

// Counts reports the number of stored sensors and measurements.
func (m *Memory) Counts() (sensors, measurements int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sensors), len(m.measurements)
}

// views must be called with mu held.
func (m *Memory) views(keep func(domain.Measurement) bool, newestFirst bool, limit int) []domain.MeasurementView {
	out := []domain.MeasurementView{}
	for _, ms := range m.measurements {
		if !keep(ms) {
			continue
		}
		s := m.sensors[ms.SensorID]
		out = append(out, domain.MeasurementView{Measurement: ms, SensorName: s.Name, MacAddress: s.MacAddress})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if newestFirst {
				return a.CreatedAt.After(b.CreatedAt)
			}
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if newestFirst {
			return a.ID > b.ID
		}
		return a.ID < b.ID
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
