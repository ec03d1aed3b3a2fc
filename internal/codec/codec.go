// Package codec turns raw MQTT payloads into typed telemetry records.
// It has no side effects; callers decide what to do with a rejected payload.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrMissingField     = errors.New("missing required field")
	ErrInvalidField     = errors.New("invalid field")
)

// MaxMacLength matches the width of sensors.mac_address.
const MaxMacLength = 17

// Sensors publish either RFC 3339 or zone-less ISO-8601 timestamps; the latter are taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

type statusPayload struct {
	Mac       string          `json:"mac"`
	Battery   json.RawMessage `json:"battery"`
	Latitude  json.RawMessage `json:"latitude"`
	Longitude json.RawMessage `json:"longitude"`
	Timestamp json.RawMessage `json:"timestamp"`
}

type measurementPayload struct {
	Mac       string          `json:"mac"`
	Pressure  json.RawMessage `json:"pressure"`
	Timestamp json.RawMessage `json:"timestamp"`
}

func DecodeStatus(payload []byte) (domain.StatusUpdate, error) {
	var p statusPayload
	if err := unmarshalObject(payload, &p); err != nil {
		return domain.StatusUpdate{}, err
	}
	mac, err := requireMac(p.Mac)
	if err != nil {
		return domain.StatusUpdate{}, err
	}

	upd := domain.StatusUpdate{Mac: mac}
	if upd.Battery, err = optionalNumber("battery", p.Battery); err != nil {
		return domain.StatusUpdate{}, err
	}
	if upd.Battery != nil && (*upd.Battery < 0 || *upd.Battery > 1) {
		return domain.StatusUpdate{}, fmt.Errorf("%w: battery %v outside [0,1]", ErrInvalidField, *upd.Battery)
	}
	if upd.Latitude, err = optionalNumber("latitude", p.Latitude); err != nil {
		return domain.StatusUpdate{}, err
	}
	if upd.Longitude, err = optionalNumber("longitude", p.Longitude); err != nil {
		return domain.StatusUpdate{}, err
	}
	if upd.Timestamp, err = optionalTimestamp(p.Timestamp); err != nil {
		return domain.StatusUpdate{}, err
	}
	return upd, nil
}

func DecodeMeasurement(payload []byte) (domain.MeasurementSample, error) {
	var p measurementPayload
	if err := unmarshalObject(payload, &p); err != nil {
		return domain.MeasurementSample{}, err
	}
	mac, err := requireMac(p.Mac)
	if err != nil {
		return domain.MeasurementSample{}, err
	}

	pressure, err := optionalNumber("pressure", p.Pressure)
	if err != nil {
		return domain.MeasurementSample{}, err
	}
	if pressure == nil {
		return domain.MeasurementSample{}, fmt.Errorf("%w: pressure", ErrMissingField)
	}
	ts, err := optionalTimestamp(p.Timestamp)
	if err != nil {
		return domain.MeasurementSample{}, err
	}
	return domain.MeasurementSample{Mac: mac, Pressure: *pressure, Timestamp: ts}, nil
}

// ParseTimestamp accepts the timestamp formats sensors are known to send.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: timestamp %q", ErrInvalidField, s)
}

func unmarshalObject(payload []byte, v any) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: expected a JSON object", ErrMalformedPayload)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: %s must be a %s", ErrInvalidField, typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func requireMac(mac string) (string, error) {
	mac = strings.TrimSpace(mac)
	if mac == "" {
		return "", fmt.Errorf("%w: mac", ErrMissingField)
	}
	if utf8.RuneCountInString(mac) > MaxMacLength {
		return "", fmt.Errorf("%w: mac longer than %d characters", ErrInvalidField, MaxMacLength)
	}
	return mac, nil
}

// optionalNumber treats an absent field and an explicit null the same way.
func optionalNumber(field string, raw json.RawMessage) (*float64, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%w: %s must be a number", ErrInvalidField, field)
	}
	return &f, nil
}

func optionalTimestamp(raw json.RawMessage) (*time.Time, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: timestamp must be a string", ErrInvalidField)
	}
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func isAbsent(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}
