// Package cache keeps the most recent measurement of every sensor in Redis so the
// read API can show current values without scanning the measurements table.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ANIKETSHETTY47/sensor-telemetry-hub/internal/domain"
)

type Latest struct {
	SensorID  int64     `json:"sensor_id"`
	Pressure  float64   `json:"pressure"`
	Timestamp time.Time `json:"timestamp"`
}

type LatestCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLatestCache(rdb *redis.Client, ttl time.Duration) *LatestCache {
	return &LatestCache{rdb: rdb, ttl: ttl}
}

// Connect opens a client and checks it answers.
func Connect(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

func key(sensorID int64) string { return fmt.Sprintf("sensor:last:%d", sensorID) }

// Record stores m as the latest value of s, in arrival order.
func (c *LatestCache) Record(ctx context.Context, s domain.Sensor, m domain.Measurement) error {
	data, err := json.Marshal(Latest{SensorID: s.ID, Pressure: m.Pressure, Timestamp: m.CreatedAt.UTC()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(s.ID), data, c.ttl).Err()
}

// Get returns the latest value, or nil when none is cached.
func (c *LatestCache) Get(ctx context.Context, sensorID int64) (*Latest, error) {
	raw, err := c.rdb.Get(ctx, key(sensorID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var l Latest
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, fmt.Errorf("decode cached value for sensor %d: %w", sensorID, err)
	}
	return &l, nil
}

// GetMany looks up several sensors in one round trip. Sensors without a cached value are absent.
func (c *LatestCache) GetMany(ctx context.Context, sensorIDs []int64) (map[int64]Latest, error) {
	out := make(map[int64]Latest, len(sensorIDs))
	if len(sensorIDs) == 0 {
		return out, nil
	}
	keys := make([]string, len(sensorIDs))
	for i, id := range sensorIDs {
		keys[i] = key(id)
	}
	vals, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var l Latest
		if err := json.Unmarshal([]byte(s), &l); err != nil {
			continue
		}
		out[sensorIDs[i]] = l
	}
	return out, nil
}
