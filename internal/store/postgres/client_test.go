package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pumpbot/internal/config"
)

func TestDSN(t *testing.T) {
	assert.Equal(t, "postgres://u:p@db:5432/pump?sslmode=disable",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Database: "pump"}))
	assert.Equal(t, "postgres://u:p@db:6543/pump?sslmode=require",
		DSN(ClientConfig{User: "u", Password: "p", Host: "db", Port: 6543, Database: "pump", SSLMode: "require"}))
	assert.Equal(t, "postgres://explicit", DSN(ClientConfig{DSN: "postgres://explicit", Host: "ignored"}))
}

func TestConfigFrom(t *testing.T) {
	cfg := config.Defaults().Postgres
	cc := ConfigFrom(cfg)
	assert.Equal(t, cfg.Host, cc.Host)
	assert.Equal(t, cfg.PoolMaxConns, cc.MaxConns)
	assert.Equal(t, cfg.PoolMinConns, cc.MinConns)
}

func TestMigrationFilesOrdered(t *testing.T) {
	names, err := migrationFiles()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_positions.sql", "002_trades.sql", "003_position_reserves.sql"}, names)
}
