package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("ORDER_EXPIRY", "")
	t.Setenv("STORE_TIMEOUT", "")
	t.Setenv("KAFKA_ENABLED", "")
	t.Setenv("SERVICE_NAME", "")

	cfg := Load()

	assert.Equal(t, "checkout-service", cfg.Server.Name)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 24*time.Hour, cfg.Business.OrderExpiry)
	assert.Equal(t, 10*time.Second, cfg.Business.StoreTimeout)
	assert.Zero(t, cfg.Business.ExpirySweepInterval)
	assert.True(t, cfg.Kafka.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("ORDER_EXPIRY", "2h")
	t.Setenv("STORE_TIMEOUT", "3")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("PUBLIC_URL", "https://shop.example.com/")
	t.Setenv("KAFKA_ENABLED", "false")
	t.Setenv("SERVICE_NAME", "checkout-eu")

	cfg := Load()

	assert.Equal(t, "checkout-eu", cfg.Server.Name)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 2*time.Hour, cfg.Business.OrderExpiry)
	assert.Equal(t, 3*time.Second, cfg.Business.StoreTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "https://shop.example.com", cfg.Payment.PublicURL)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestGetDurationFallsBackOnGarbage(t *testing.T) {
	t.Setenv("PAYMENT_TIMEOUT", "soon")
	assert.Equal(t, 7*time.Second, getDuration("PAYMENT_TIMEOUT", 7*time.Second))
}
