package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
)

func f(v float64) *float64 { return &v }

// racingStore lets another writer create the sensor between our lookup and our insert.
type racingStore struct {
	*repository.Memory
	raced bool
}

func (s *racingStore) InsertSensor(ctx context.Context, sensor *domain.Sensor) error {
	if !s.raced {
		s.raced = true
		winner := domain.NewSensor(sensor.MacAddress)
		winner.Name = "winner"
		if err := s.Memory.InsertSensor(ctx, &winner); err != nil {
			return err
		}
	}
	return s.Memory.InsertSensor(ctx, sensor)
}

// ghostStore always reports a duplicate but never shows the row.
type ghostStore struct{ lookups int }

func (g *ghostStore) FindSensorByMac(context.Context, string) (*domain.Sensor, error) {
	g.lookups++
	return nil, repository.ErrNotFound
}
func (g *ghostStore) InsertSensor(context.Context, *domain.Sensor) error {
	return repository.ErrDuplicateSensor
}
func (g *ghostStore) UpdateSensor(context.Context, *domain.Sensor) error { return nil }

type brokenStore struct{ ghostStore }

func (brokenStore) FindSensorByMac(context.Context, string) (*domain.Sensor, error) {
	return nil, repository.ErrStorageUnavailable
}

func TestResolveAndApplyStatus_CreatesWithSuppliedFields(t *testing.T) {
	store := repository.NewMemory()
	res, err := New().ResolveAndApplyStatus(context.Background(), store, domain.StatusUpdate{
		Mac: "AA:BB:CC:00:11:22", Battery: f(0.85), Latitude: f(47.8095), Longitude: f(13.0550),
	})

	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Nil(t, res.Previous)
	assert.Equal(t, domain.Sensor{
		ID:           res.Sensor.ID,
		MacAddress:   "AA:BB:CC:00:11:22",
		Name:         "Sensor AA:BB:CC:00:11:22",
		Latitude:     47.8095,
		Longitude:    13.0550,
		BatteryLevel: 0.85,
	}, res.Sensor)
}

func TestResolveAndApplyStatus_DefaultsForAbsentFields(t *testing.T) {
	res, err := New().ResolveAndApplyStatus(context.Background(), repository.NewMemory(), domain.StatusUpdate{Mac: "AA"})

	require.NoError(t, err)
	assert.Equal(t, 1.0, res.Sensor.BatteryLevel)
	assert.Equal(t, 0.0, res.Sensor.Latitude)
	assert.Equal(t, 0.0, res.Sensor.Longitude)
}

func TestResolveAndApplyStatus_ConvergesToLatestPerField(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	reg := New()

	updates := []domain.StatusUpdate{
		{Mac: "AA", Battery: f(0.9), Latitude: f(10)},
		{Mac: "AA", Longitude: f(20)},
		{Mac: "AA", Battery: f(0.7)},
		{Mac: "AA", Latitude: f(11)},
		{Mac: "AA"},
	}
	for _, u := range updates {
		_, err := reg.ResolveAndApplyStatus(ctx, store, u)
		require.NoError(t, err)
	}

	sensors, _ := store.Counts()
	assert.Equal(t, 1, sensors)
	got, err := store.FindSensorByMac(ctx, "AA")
	require.NoError(t, err)
	assert.Equal(t, 0.7, got.BatteryLevel)
	assert.Equal(t, 11.0, got.Latitude)
	assert.Equal(t, 20.0, got.Longitude)
	assert.Equal(t, "Sensor AA", got.Name)
}

func TestResolveAndApplyStatus_ReportsPrevious(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	reg := New()
	_, err := reg.ResolveAndApplyStatus(ctx, store, domain.StatusUpdate{Mac: "AA", Battery: f(0.5)})
	require.NoError(t, err)

	res, err := reg.ResolveAndApplyStatus(ctx, store, domain.StatusUpdate{Mac: "AA", Battery: f(0.1)})

	require.NoError(t, err)
	assert.False(t, res.Created)
	require.NotNil(t, res.Previous)
	assert.Equal(t, 0.5, res.Previous.BatteryLevel)
	assert.Equal(t, 0.1, res.Sensor.BatteryLevel)
}

func TestResolveOrCreate_RetriesAfterLostRace(t *testing.T) {
	store := &racingStore{Memory: repository.NewMemory()}

	res, err := New().ResolveOrCreate(context.Background(), store, "AA")

	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.Equal(t, "winner", res.Sensor.Name)
	sensors, _ := store.Counts()
	assert.Equal(t, 1, sensors)
}

func TestResolveOrCreate_GivesUpAfterMaxAttempts(t *testing.T) {
	store := &ghostStore{}

	_, err := New().ResolveOrCreate(context.Background(), store, "AA")

	assert.ErrorIs(t, err, ErrUnresolved)
	assert.Equal(t, defaultMaxAttempts, store.lookups)
}

func TestResolveOrCreate_PropagatesStorageErrors(t *testing.T) {
	_, err := New().ResolveOrCreate(context.Background(), &brokenStore{}, "AA")

	assert.True(t, errors.Is(err, repository.ErrStorageUnavailable))
}

func TestResolveOrCreate_ConcurrentFirstContact(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemory()
	reg := New()

	const n = 32
	ids := make([]int64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := reg.ResolveOrCreate(ctx, store, "AA:BB:CC:00:11:99")
			assert.NoError(t, err)
			ids[i] = res.Sensor.ID
		}(i)
	}
	wg.Wait()

	sensors, _ := store.Counts()
	assert.Equal(t, 1, sensors)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
}
