package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T) error {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	require.NoError(t, load(t))

	assert.Equal(t, ":8080", APIAddr())
	assert.Equal(t, "postgres", StorageDriver())
	assert.Equal(t, "tcp://localhost:1883", MQTTBroker())
	assert.Equal(t, byte(0), MQTTQoS())
	assert.Equal(t, 30*time.Second, MQTTMaxReconnectInterval())
	assert.Equal(t, 50, SnapshotSize())
	assert.Equal(t, 256, BroadcastBuffer())
	assert.Equal(t, 5*time.Second, ShutdownTimeout())
	assert.Equal(t, 24*time.Hour, LatestTTL())
	assert.False(t, RedisEnabled())
	assert.False(t, UseCloudServices())
	assert.Equal(t, 0.2, BatteryAlertThreshold())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "1")
	t.Setenv("STORAGE_DRIVER", "Memory")
	t.Setenv("SNAPSHOT_SIZE", "10")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("LATEST_TTL", "90m")

	require.NoError(t, load(t))

	assert.Equal(t, "tcp://broker:1883", MQTTBroker())
	assert.Equal(t, byte(1), MQTTQoS())
	assert.Equal(t, "memory", StorageDriver())
	assert.Equal(t, 10, SnapshotSize())
	assert.True(t, RedisEnabled())
	assert.Equal(t, 90*time.Minute, LatestTTL())
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"STORAGE_DRIVER":          "sqlite",
		"MQTT_QOS":                "3",
		"ARCHIVE_INTERVAL":        "0s",
		"SIM_INTERVAL":            "-1s",
		"SHUTDOWN_TIMEOUT":        "0",
		"LATEST_TTL":              "-1h",
		"SNAPSHOT_SIZE":           "-1",
		"BROADCAST_BUFFER":        "0",
		"BATTERY_ALERT_THRESHOLD": "1.5",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			assert.Error(t, load(t))
		})
	}
}

func TestLoad_QoSOutOfByteRangeIsRejected(t *testing.T) {
	for _, v := range []string{"256", "-1"} {
		t.Run(v, func(t *testing.T) {
			t.Setenv("MQTT_QOS", v)
			assert.ErrorContains(t, load(t), "MQTT_QOS")
		})
	}
}

func TestLoad_ZeroArchiveIntervalIsRejected(t *testing.T) {
	t.Setenv("ARCHIVE_INTERVAL", "0s")

	assert.ErrorContains(t, load(t), "ARCHIVE_INTERVAL must be a positive duration")
}
