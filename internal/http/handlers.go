package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/cache"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/repository"
	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/service"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type LatestLookup interface {
	GetMany(ctx context.Context, sensorIDs []int64) (map[int64]cache.Latest, error)
}

// Deps is what the read API needs. Latest, Connected and Observers are optional.
type Deps struct {
	Reader    repository.Reader
	Stats     *service.StatsService
	Latest    LatestLookup
	Connected func() bool
	Observers func() int
}

type sensorView struct {
	domain.Sensor
	Latest *cache.Latest `json:"latest,omitempty"`
}

// measurementView is the wire shape of a stored measurement on the read API.
type measurementView struct {
	ID         int64     `json:"id"`
	SensorID   int64     `json:"sensor_id"`
	SensorName string    `json:"sensor_name"`
	MacAddress string    `json:"mac_address"`
	Pressure   float64   `json:"pressure"`
	Timestamp  time.Time `json:"timestamp"`
}

func toMeasurementViews(items []domain.MeasurementView) []measurementView {
	out := make([]measurementView, len(items))
	for i, m := range items {
		out[i] = measurementView{
			ID:         m.ID,
			SensorID:   m.SensorID,
			SensorName: m.SensorName,
			MacAddress: m.MacAddress,
			Pressure:   m.Pressure,
			Timestamp:  m.CreatedAt.UTC(),
		}
	}
	return out
}

func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(cors.New())
	Register(app, d)
	return app
}

func Register(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		body := fiber.Map{"status": "ok"}
		status := fiber.StatusOK
		if d.Connected != nil {
			connected := d.Connected()
			body["mqtt_connected"] = connected
			if !connected {
				body["status"] = "degraded"
				status = fiber.StatusServiceUnavailable
			}
		}
		if d.Observers != nil {
			body["observers"] = d.Observers()
		}
		return c.Status(status).JSON(body)
	})

	g := app.Group("/api")
	g.Get("/measurements", func(c *fiber.Ctx) error {
		limit, err := parseLimit(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		items, err := d.Reader.ListRecentMeasurements(c.UserContext(), limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toMeasurementViews(items))
	})

	g.Get("/sensors", func(c *fiber.Ctx) error {
		sensors, err := d.Reader.ListSensors(c.UserContext())
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(withLatest(c.UserContext(), d.Latest, sensors))
	})

	g.Get("/sensors/:id", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sensor id"})
		}
		s, err := d.Reader.GetSensor(c.UserContext(), int64(id))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(withLatest(c.UserContext(), d.Latest, []domain.Sensor{*s})[0])
	})

	g.Get("/sensors/:id/measurements", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sensor id"})
		}
		limit, err := parseLimit(c)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		if _, err := d.Reader.GetSensor(c.UserContext(), int64(id)); err != nil {
			return fail(c, err)
		}
		items, err := d.Reader.ListSensorMeasurements(c.UserContext(), int64(id), limit)
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(toMeasurementViews(items))
	})

	g.Get("/sensors/:id/stats", func(c *fiber.Ctx) error {
		id, err := c.ParamsInt("id")
		if err != nil || id < 1 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid sensor id"})
		}
		st, err := d.Stats.ForSensor(c.UserContext(), int64(id))
		if err != nil {
			return fail(c, err)
		}
		return c.JSON(st)
	})
}

func parseLimit(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n, nil
}

func fail(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.Is(err, repository.ErrStorageUnavailable):
		log.Error().Err(err).Str("path", c.Path()).Msg("storage unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "storage unavailable"})
	default:
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// withLatest attaches cached current values; a cache failure only loses the enrichment.
func withLatest(ctx context.Context, latest LatestLookup, sensors []domain.Sensor) []sensorView {
	out := make([]sensorView, len(sensors))
	for i, s := range sensors {
		out[i] = sensorView{Sensor: s}
	}
	if latest == nil || len(sensors) == 0 {
		return out
	}
	ids := make([]int64, len(sensors))
	for i, s := range sensors {
		ids[i] = s.ID
	}
	values, err := latest.GetMany(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("latest values unavailable")
		return out
	}
	for i := range out {
		if v, ok := values[out[i].ID]; ok {
			out[i].Latest = &v
		}
	}
	return out
}
