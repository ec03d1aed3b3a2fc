package domain

import "time"

const (
	DefaultBatteryLevel = 1.0
	DefaultLatitude     = 0.0
	DefaultLongitude    = 0.0
)

type Sensor struct {
	ID           int64   `db:"id" json:"id"`
	MacAddress   string  `db:"mac_address" json:"mac_address"`
	Name         string  `db:"name" json:"name"`
	Latitude     float64 `db:"latitude" json:"latitude"`
	Longitude    float64 `db:"longitude" json:"longitude"`
	BatteryLevel float64 `db:"battery_level" json:"battery_level"`
}

// NewSensor returns a sensor seeded with the defaults used on first sight of a mac.
func NewSensor(mac string) Sensor {
	return Sensor{
		MacAddress:   mac,
		Name:         DefaultSensorName(mac),
		Latitude:     DefaultLatitude,
		Longitude:    DefaultLongitude,
		BatteryLevel: DefaultBatteryLevel,
	}
}

func DefaultSensorName(mac string) string { return "Sensor " + mac }

type Measurement struct {
	ID        int64     `db:"id" json:"id"`
	SensorID  int64     `db:"sensor_id" json:"sensor_id"`
	Pressure  float64   `db:"pressure" json:"pressure"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// MeasurementView is a measurement joined with its owning sensor.
type MeasurementView struct {
	Measurement
	SensorName string `db:"sensor_name" json:"sensor_name"`
	MacAddress string `db:"mac_address" json:"mac_address"`
}

// StatusUpdate is a decoded sensors/status payload. Nil fields mean "no change".
type StatusUpdate struct {
	Mac       string
	Battery   *float64
	Latitude  *float64
	Longitude *float64
	Timestamp *time.Time
}

// MeasurementSample is a decoded measurement/data payload.
type MeasurementSample struct {
	Mac       string
	Pressure  float64
	Timestamp *time.Time
}
