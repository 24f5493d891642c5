package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.HTTPPort)
	assert.Equal(t, "default", cfg.Profile)
	assert.Equal(t, DriverFile, cfg.StorageDriver)
	assert.Equal(t, "http://localhost:5000/api", cfg.RemoteBaseURL)
	assert.Equal(t, 30*time.Second, cfg.RemoteTimeout)
	assert.Equal(t, 0, cfg.RemoteMaxRetries)
	assert.Equal(t, 0, cfg.CartFailureThreshold)
	assert.Equal(t, 3, cfg.WishlistFailureThreshold)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, time.Duration(0), cfg.SnapshotTTLDuration())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "redis.local:6380")
	t.Setenv("SNAPSHOT_TTL_HOURS", "24")
	t.Setenv("KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("WISHLIST_FAILURE_THRESHOLD", "5")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, DriverRedis, cfg.StorageDriver)
	assert.Equal(t, "redis.local:6380", cfg.RedisAddr)
	assert.Equal(t, 24*time.Hour, cfg.SnapshotTTLDuration())
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5, cfg.WishlistFailureThreshold)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.toml")
	content := `
log_level = "debug"

[storefront]
profile = "alice"
http_port = 9100

[remote]
base_url = "https://shop.example.com/api"
timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("STOREFRONT_HTTP_PORT", "9200")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "alice", cfg.Profile)
	assert.Equal(t, 9200, cfg.HTTPPort, "environment wins over the file")
	assert.Equal(t, "https://shop.example.com/api", cfg.RemoteBaseURL)
	assert.Equal(t, 5*time.Second, cfg.RemoteTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))

	assert.Nil(t, cfg)
	assert.Error(t, err)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		msg  string
	}{
		{"port", "STOREFRONT_HTTP_PORT", "0", "invalid HTTP port"},
		{"driver", "STORAGE_DRIVER", "sqlite", "unknown STORAGE_DRIVER"},
		{"profile", "STOREFRONT_PROFILE", "../etc", "path separators"},
		{"ttl", "SNAPSHOT_TTL_HOURS", "-1", "SNAPSHOT_TTL_HOURS"},
		{"threshold", "WISHLIST_FAILURE_THRESHOLD", "-2", "thresholds"},
		{"sample rate", "OTEL_SAMPLE_RATE", "2.0", "OTEL_SAMPLE_RATE must be between 0.0 and 1.0"},
		{"timeout", "REMOTE_TIMEOUT", "0s", "REMOTE_TIMEOUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			cfg, err := Load("")

			assert.Nil(t, cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
