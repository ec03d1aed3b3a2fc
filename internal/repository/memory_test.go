package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

func TestMemory_MacIsUnique(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	a := domain.NewSensor("AA")
	require.NoError(t, m.InsertSensor(ctx, &a))
	b := domain.NewSensor("AA")

	assert.ErrorIs(t, m.InsertSensor(ctx, &b), ErrDuplicateSensor)
	sensors, _ := m.Counts()
	assert.Equal(t, 1, sensors)
}

func TestMemory_UpdateKeepsMac(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s := domain.NewSensor("AA")
	require.NoError(t, m.InsertSensor(ctx, &s))

	s.MacAddress = "BB"
	s.BatteryLevel = 0.4
	require.NoError(t, m.UpdateSensor(ctx, &s))

	got, err := m.GetSensor(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "AA", got.MacAddress)
	assert.Equal(t, 0.4, got.BatteryLevel)
}

func TestMemory_MeasurementNeedsSensor(t *testing.T) {
	m := NewMemory()
	err := m.InsertMeasurement(context.Background(), &domain.Measurement{SensorID: 42, Pressure: 1})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_RecentAndAfterIDOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	s := domain.NewSensor("AA")
	require.NoError(t, m.InsertSensor(ctx, &s))

	base := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, m.InsertMeasurement(ctx, &domain.Measurement{
			SensorID: s.ID, Pressure: float64(1000 + i), CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := m.ListRecentMeasurements(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 1004.0, recent[0].Pressure)
	assert.Equal(t, 1003.0, recent[1].Pressure)
	assert.Equal(t, "Sensor AA", recent[0].SensorName)

	after, err := m.ListMeasurementsAfterID(ctx, recent[1].ID, 10)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, 1004.0, after[0].Pressure)

	maxID, err := m.MaxMeasurementID(ctx)
	require.NoError(t, err)
	assert.Equal(t, recent[0].ID, maxID)

	after, err = m.ListMeasurementsAfterID(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, 1000.0, after[0].Pressure)
	assert.Equal(t, 1001.0, after[1].Pressure)
}
