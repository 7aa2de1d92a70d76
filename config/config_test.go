package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "development", cfg.Environment)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, 256, cfg.QRCodeSize)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 30, cfg.ScanRateLimit)
	assert.Equal(t, time.Minute, cfg.ScanRateWindow)
	assert.True(t, cfg.EnableMetrics)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("QR_CODE_SIZE", "128")
	t.Setenv("SCAN_RATE_WINDOW", "30s")
	t.Setenv("ENABLE_METRICS", "false")

	cfg := LoadConfig()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 128, cfg.QRCodeSize)
	assert.Equal(t, 30*time.Second, cfg.ScanRateWindow)
	assert.False(t, cfg.EnableMetrics)
}

func TestLoadConfig_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("QR_CODE_SIZE", "huge")
	t.Setenv("STORE_TIMEOUT", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 256, cfg.QRCodeSize)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
}
