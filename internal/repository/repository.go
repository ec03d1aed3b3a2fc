package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrDuplicateSensor    = errors.New("sensor with this mac address already exists")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

const uniqueViolation = "23505"

// Queries is the write surface used while processing one inbound message.
type Queries interface {
	FindSensorByMac(ctx context.Context, mac string) (*domain.Sensor, error)
	InsertSensor(ctx context.Context, s *domain.Sensor) error
	UpdateSensor(ctx context.Context, s *domain.Sensor) error
	InsertMeasurement(ctx context.Context, m *domain.Measurement) error
}

// Reader serves the read API and the observer snapshot.
type Reader interface {
	ListRecentMeasurements(ctx context.Context, limit int) ([]domain.MeasurementView, error)
	ListSensors(ctx context.Context) ([]domain.Sensor, error)
	GetSensor(ctx context.Context, id int64) (*domain.Sensor, error)
	ListSensorMeasurements(ctx context.Context, sensorID int64, limit int) ([]domain.MeasurementView, error)
	ListMeasurementsAfterID(ctx context.Context, afterID int64, limit int) ([]domain.MeasurementView, error)
	MaxMeasurementID(ctx context.Context) (int64, error)
}

type Gateway interface {
	Queries
	Reader
	// InTx runs fn inside one transaction, committing only when fn returns nil.
	InTx(ctx context.Context, fn func(Queries) error) error
}

type Repos struct {
	queries
	db *sqlx.DB
}

func New(db *sqlx.DB) *Repos { return &Repos{queries: queries{ext: db}, db: db} }

func (r *Repos) InTx(ctx context.Context, fn func(Queries) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return unavailable(err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(&queries{ext: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return unavailable(err)
	}
	return nil
}

// queries runs against either the pool or an open transaction.
type queries struct {
	ext sqlx.ExtContext
}

const sensorColumns = `id, mac_address, name, latitude, longitude, battery_level`

const viewSelect = `SELECT m.id, m.sensor_id, m.pressure, m.created_at, s.name AS sensor_name, s.mac_address
	FROM measurements m JOIN sensors s ON s.id = m.sensor_id`

func (q *queries) FindSensorByMac(ctx context.Context, mac string) (*domain.Sensor, error) {
	var s domain.Sensor
	err := sqlx.GetContext(ctx, q.ext, &s, `SELECT `+sensorColumns+` FROM sensors WHERE mac_address = $1`, mac)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &s, nil
}

// InsertSensor assigns s.ID. A conflicting mac yields ErrDuplicateSensor without
// aborting the surrounding transaction, so the caller can look the winner up.
func (q *queries) InsertSensor(ctx context.Context, s *domain.Sensor) error {
	err := sqlx.GetContext(ctx, q.ext, &s.ID,
		`INSERT INTO sensors (mac_address, name, latitude, longitude, battery_level)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (mac_address) DO NOTHING
		RETURNING id`,
		s.MacAddress, s.Name, s.Latitude, s.Longitude, s.BatteryLevel)
	switch {
	case errors.Is(err, sql.ErrNoRows), isUniqueViolation(err):
		return ErrDuplicateSensor
	case err != nil:
		return unavailable(err)
	}
	return nil
}

func (q *queries) UpdateSensor(ctx context.Context, s *domain.Sensor) error {
	res, err := q.ext.ExecContext(ctx,
		`UPDATE sensors SET name = $2, latitude = $3, longitude = $4, battery_level = $5 WHERE id = $1`,
		s.ID, s.Name, s.Latitude, s.Longitude, s.BatteryLevel)
	if err != nil {
		return unavailable(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable(err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (q *queries) InsertMeasurement(ctx context.Context, m *domain.Measurement) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	err := sqlx.GetContext(ctx, q.ext, &m.ID,
		`INSERT INTO measurements (sensor_id, pressure, created_at) VALUES ($1, $2, $3) RETURNING id`,
		m.SensorID, m.Pressure, m.CreatedAt)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (q *queries) ListRecentMeasurements(ctx context.Context, limit int) ([]domain.MeasurementView, error) {
	out := []domain.MeasurementView{}
	err := sqlx.SelectContext(ctx, q.ext, &out,
		viewSelect+` ORDER BY m.created_at DESC, m.id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (q *queries) ListSensors(ctx context.Context) ([]domain.Sensor, error) {
	out := []domain.Sensor{}
	if err := sqlx.SelectContext(ctx, q.ext, &out, `SELECT `+sensorColumns+` FROM sensors ORDER BY id`); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func (q *queries) GetSensor(ctx context.Context, id int64) (*domain.Sensor, error) {
	var s domain.Sensor
	err := sqlx.GetContext(ctx, q.ext, &s, `SELECT `+sensorColumns+` FROM sensors WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &s, nil
}

func (q *queries) ListSensorMeasurements(ctx context.Context, sensorID int64, limit int) ([]domain.MeasurementView, error) {
	out := []domain.MeasurementView{}
	err := sqlx.SelectContext(ctx, q.ext, &out,
		viewSelect+` WHERE m.sensor_id = $1 ORDER BY m.created_at DESC, m.id DESC LIMIT $2`, sensorID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// ListMeasurementsAfterID returns measurements stored after the one with afterID, in storage order.
func (q *queries) ListMeasurementsAfterID(ctx context.Context, afterID int64, limit int) ([]domain.MeasurementView, error) {
	out := []domain.MeasurementView{}
	err := sqlx.SelectContext(ctx, q.ext, &out,
		viewSelect+` WHERE m.id > $1 ORDER BY m.id ASC LIMIT $2`, afterID, limit)
	if err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

// MaxMeasurementID returns the id of the newest stored measurement, or 0 when there is none.
func (q *queries) MaxMeasurementID(ctx context.Context) (int64, error) {
	var id int64
	if err := sqlx.GetContext(ctx, q.ext, &id, `SELECT COALESCE(MAX(id), 0) FROM measurements`); err != nil {
		return 0, unavailable(err)
	}
	return id, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func unavailable(err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}

var (
	_ Gateway = (*Repos)(nil)
	_ Gateway = (*Memory)(nil)
)
