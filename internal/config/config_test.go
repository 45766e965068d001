package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 4000, cfg.MaxMessageBytes)
	assert.Equal(t, "forbid", cfg.OwnerLeavePolicy)
	assert.False(t, cfg.TombstoneRetainText)
}

func TestLoadReadsOverridesFromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("MAX_MESSAGE_BYTES", "2000")
	t.Setenv("TOMBSTONE_RETAIN_TEXT", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 2000, cfg.MaxMessageBytes)
	assert.True(t, cfg.TombstoneRetainText)
}

func TestOriginAllowlistSplitsAndTrims(t *testing.T) {
	cfg := &Config{WSOriginAllow: "https://a.example, https://b.example"}
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.OriginAllowlist())

	empty := &Config{}
	assert.Nil(t, empty.OriginAllowlist())
}

func TestTicketTTLAndHeartbeatPeriodConvertMillisecondsToDuration(t *testing.T) {
	cfg := &Config{TicketTTLMS: 60000, HeartbeatMS: 30000}
	assert.Equal(t, 60*time.Second, cfg.TicketTTL())
	assert.Equal(t, 30*time.Second, cfg.HeartbeatPeriod())
}
