package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "firestore", cfg.StoreDriver)
	assert.Equal(t, "memory", cfg.Watermark.Driver)
	assert.Equal(t, "firebase", cfg.AuthDriver)
	assert.Equal(t, "@s.kyushu-u.ac.jp", cfg.Market.AllowedEmailDomain)
	assert.True(t, cfg.Market.AllowSelfPurchase)
	assert.False(t, cfg.Market.StrictListingValidation)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("WATERMARK_DRIVER", "badger")
	t.Setenv("ALLOW_SELF_PURCHASE", "false")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("ALLOWED_ORIGINS", "https://a.test,https://b.test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, "badger", cfg.Watermark.Driver)
	assert.False(t, cfg.Market.AllowSelfPurchase)
	assert.Equal(t, 3, cfg.Watermark.RedisDB)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.AllowedOrigins)
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mongo")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("WATERMARK_DRIVER", "etcd")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("WATERMARK_DRIVER", "memory")
	t.Setenv("AUTH_DRIVER", "ldap")
	_, err = Load()
	assert.Error(t, err)
}
