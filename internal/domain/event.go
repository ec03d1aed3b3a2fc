package domain

import "time"

const (
	EventMeasurement = "measurement"
	EventHistorical  = "historical"
)

// Event is what observers receive over the websocket.
type Event struct {
	Type       string    `json:"type"`
	SensorID   int64     `json:"sensor_id"`
	SensorName string    `json:"sensor_name"`
	Pressure   float64   `json:"pressure"`
	Timestamp  time.Time `json:"timestamp"`
	MacAddress string    `json:"mac_address,omitempty"`
}

func MeasurementEvent(s Sensor, m Measurement) Event {
	return Event{
		Type:       EventMeasurement,
		SensorID:   s.ID,
		SensorName: s.Name,
		Pressure:   m.Pressure,
		Timestamp:  m.CreatedAt.UTC(),
		MacAddress: s.MacAddress,
	}
}

// HistoricalEvent mirrors the snapshot rows sent to a newly joined observer.
// The mac is left out, as the live stream is the only source of it.
func HistoricalEvent(v MeasurementView) Event {
	return Event{
		Type:       EventHistorical,
		SensorID:   v.SensorID,
		SensorName: v.SensorName,
		Pressure:   v.Pressure,
		Timestamp:  v.CreatedAt.UTC(),
	}
}
