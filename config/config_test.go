package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()

	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.EventStore.Driver)
	assert.Equal(t, 20, cfg.Snapshot.Interval)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "budget-events", cfg.Kafka.Topic)
	assert.Equal(t, time.Second, cfg.Relay.PollInterval)
}

func TestNew_FromEnvironment(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("SNAPSHOT_INTERVAL", "5")
	t.Setenv("EVENT_STORE_DRIVER", "sqlite")

	cfg, err := New()

	require.NoError(t, err)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 5, cfg.Snapshot.Interval)
	assert.Equal(t, "sqlite", cfg.EventStore.Driver)
}

func TestNew_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero snapshot interval", "SNAPSHOT_INTERVAL", "0"},
		{"unknown driver", "EVENT_STORE_DRIVER", "mongo"},
		{"malformed duration", "RELAY_POLL_INTERVAL", "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			_, err := New()

			assert.Error(t, err)
		})
	}
}
