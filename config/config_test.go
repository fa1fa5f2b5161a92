package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/wagers")
	t.Setenv("AUTH_SECRET", strings.Repeat("s", 32))
	t.Setenv("SETTLEMENT_SERVICE_TOKEN", "operator-token")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5200", cfg.ListenAddr)
	assert.Equal(t, int64(10), cfg.Settlement.FeePercent)
	assert.Equal(t, "platform-treasury", cfg.Settlement.PlatformIdentity)
	assert.Equal(t, 15*time.Second, cfg.Escrow.PollInterval)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.False(t, cfg.R2.Enabled())
	assert.False(t, cfg.IsProduction())
}

func TestLoadOrigins(t *testing.T) {
	setRequired(t)
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]func(t *testing.T){
		"short secret": func(t *testing.T) { t.Setenv("AUTH_SECRET", "short") },
		"no token":     func(t *testing.T) { t.Setenv("SETTLEMENT_SERVICE_TOKEN", "") },
		"fee too big":  func(t *testing.T) { t.Setenv("PLATFORM_FEE_PERCENT", "101") },
		"fee garbage":  func(t *testing.T) { t.Setenv("PLATFORM_FEE_PERCENT", "ten") },
		"bad interval": func(t *testing.T) { t.Setenv("ESCROW_POLL_INTERVAL", "-1s") },
		"no database":  func(t *testing.T) { t.Setenv("DATABASE_URL", "") },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			mutate(t)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
