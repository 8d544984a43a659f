package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "segredo")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORE_DRIVER", "")

	var cfg Config
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 120*time.Second, cfg.FreshnessWindow)
	assert.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, 150*time.Millisecond, cfg.LoginFailureDelay)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, "memory", cfg.Driver())
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	var cfg Config
	assert.Error(t, Load(&cfg))
}

func TestDriver(t *testing.T) {
	cfg := Config{DatabaseURL: "postgres://localhost/pq"}
	assert.Equal(t, "postgres", cfg.Driver())

	cfg.StoreDriver = "memory"
	assert.Equal(t, "memory", cfg.Driver())
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			JWTSecret:         "segredo",
			FreshnessWindow:   time.Minute,
			ChallengeTTL:      time.Minute,
			LoginFailureDelay: time.Millisecond,
			SessionTTL:        time.Hour,
		}
	}

	cfg := valid()
	assert.NoError(t, cfg.Validate())

	cfg = valid()
	cfg.ChallengeTTL = 0
	assert.ErrorContains(t, cfg.Validate(), "CHALLENGE_TTL")

	cfg = valid()
	cfg.StoreDriver = "postgres"
	assert.ErrorContains(t, cfg.Validate(), "DATABASE_URL")

	cfg = valid()
	cfg.StoreDriver = "redis"
	assert.Error(t, cfg.Validate())
}
