package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 15*time.Minute, cfg.ReservationTTLGuest)
	assert.Equal(t, 2*time.Hour, cfg.ReservationTTLAuth)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("RESERVATION_TTL_GUEST_SECONDS", "60")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, time.Minute, cfg.ReservationTTLGuest)
}

func TestLoadIgnoresInvalidDurations(t *testing.T) {
	t.Setenv("SWEEP_INTERVAL_SECONDS", "not-a-number")
	t.Setenv("RESERVATION_TTL_AUTH_SECONDS", "-5")

	cfg := Load()
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 2*time.Hour, cfg.ReservationTTLAuth)
}
