package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mysql", cfg.DBDriver)
	assert.Equal(t, "rabbitmq", cfg.EventBroker)
	assert.Equal(t, "100.00", cfg.FreeShippingOver)
	assert.Equal(t, "10.00", cfg.FlatShippingFee)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "root:@tcp(localhost:3306)/storefront?parseTime=true&loc=UTC", cfg.DSN())
}

func TestLoadConfig_SecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jwt")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoadConfig_MissingSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfig_UnknownBroker(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("EVENT_BROKER", "carrier-pigeon")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "EVENT_BROKER")
}

func TestConfig_DSNAndBrokers(t *testing.T) {
	cfg := &Config{DBDriver: "sqlite3", SQLitePath: "/tmp/shop.db", KafkaBrokers: "a:9092, b:9092,", Env: "production"}

	assert.Equal(t, "/tmp/shop.db", cfg.DSN())
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokerList())
	assert.True(t, cfg.IsProduction())
}
