package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/ordersaga/framework/core"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")

	cfg, err := Load("order", "")
	require.NoError(t, err)

	assert.Equal(t, "order", cfg.Service)
	assert.Equal(t, 8000, cfg.HTTP.Port)
	assert.Equal(t, "http://billing-app:8000", cfg.Billing.URL)
	assert.Equal(t, 10*time.Second, cfg.Billing.Timeout)
	assert.Equal(t, 10*time.Second, cfg.Notification.Timeout)
	assert.Equal(t, NotifierHTTP, cfg.Notifier)
	assert.False(t, cfg.MessageBus.Enabled())
	assert.Equal(t, []string{"localhost:9092"}, cfg.MessageBus.KafkaBrokers)
	assert.True(t, cfg.Recovery.Enabled)
	assert.Equal(t, time.Minute, cfg.Recovery.Interval)
	assert.Contains(t, cfg.Database.URL, "/order?")
}

func TestLoad_EnvAliases(t *testing.T) {
	t.Setenv(ConfigFileEnv, "")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/orders")
	t.Setenv("BILLING_APP_URL", "http://billing:8000")
	t.Setenv("NOTIFICATION_SERVICE_URL", "http://notify:8000")
	t.Setenv("REMOTE_TIMEOUT", "3s")
	t.Setenv("HTTP_PORT", "8081")
	t.Setenv("MESSAGEBUS_TYPE", "kafka")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load("order", "")
	require.NoError(t, err)

	assert.Equal(t, "postgres://u:p@db:5432/orders", cfg.Database.URL)
	assert.Equal(t, "http://billing:8000", cfg.Billing.URL)
	assert.Equal(t, "http://notify:8000", cfg.Notification.URL)
	assert.Equal(t, 3*time.Second, cfg.Billing.Timeout)
	assert.Equal(t, 8081, cfg.HTTP.Port)
	assert.True(t, cfg.MessageBus.Enabled())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.MessageBus.KafkaBrokers)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "order.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9000
notifier: bus
messagebus:
  type: nats
  nats_url: nats://nats:4222
recovery:
  interval: 30s
`), 0o644))
	t.Setenv(ConfigFileEnv, path)

	cfg, err := Load("order", "")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTP.Port)
	assert.Equal(t, NotifierBus, cfg.Notifier)
	assert.Equal(t, "nats://nats:4222", cfg.MessageBus.NATSURL)
	assert.Equal(t, 30*time.Second, cfg.Recovery.Interval)

	t.Setenv("HTTP_PORT", "9100")
	cfg, err = Load("order", path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.HTTP.Port)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("order", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, core.ErrInvalidConfig, core.CodeOf(err))
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Service:  "order",
			HTTP:     HTTPConfig{Port: 8000},
			Database: DatabaseConfig{URL: "postgres://localhost/order"},
			Notifier: NotifierHTTP,
			Recovery: RecoveryConfig{Enabled: true, Interval: time.Minute, StaleAfter: time.Minute},
			Lock:     LockConfig{TTL: time.Second},
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"no service", func(c *Config) { c.Service = "" }},
		{"bad port", func(c *Config) { c.HTTP.Port = 70000 }},
		{"no database", func(c *Config) { c.Database.URL = "" }},
		{"unknown notifier", func(c *Config) { c.Notifier = "smtp" }},
		{"bus notifier without bus", func(c *Config) { c.Notifier = NotifierBus }},
		{"zero recovery interval", func(c *Config) { c.Recovery.Interval = 0 }},
		{"lock without ttl", func(c *Config) { c.Lock = LockConfig{Enabled: true} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Equal(t, core.ErrInvalidConfig, core.CodeOf(err))
		})
	}
}
