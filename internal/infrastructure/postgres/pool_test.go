package postgres_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/stock-engine/internal/infrastructure/postgres"
	"github.com/jhoicas/stock-engine/pkg/config"
)

func TestPoolConfig_LimitesDesdeConfiguracion(t *testing.T) {
	pc, err := postgres.PoolConfig(config.DBConfig{
		Host: "db", Port: 5432, User: "stock", Password: "p@ss:word", DBName: "stock_engine", SSLMode: "disable",
		MaxConns: 12, MinConns: 3, MaxConnLifetime: 20 * time.Minute, MaxConnIdleTime: 5 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, int32(12), pc.MaxConns)
	assert.Equal(t, int32(3), pc.MinConns)
	assert.Equal(t, 20*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, 5*time.Minute, pc.MaxConnIdleTime)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "p@ss:word", pc.ConnConfig.Password)
	assert.NotNil(t, pc.AfterConnect)
}

func TestPoolConfig_CerosConservanLosDelDSN(t *testing.T) {
	pc, err := postgres.PoolConfig(config.DBConfig{
		DatabaseURL: "postgres://stock@localhost:5432/stock_engine?sslmode=disable&pool_max_conns=7",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Zero(t, pc.MinConns)
}

func TestPoolConfig_MinimoMayorQueMaximo(t *testing.T) {
	_, err := postgres.PoolConfig(config.DBConfig{
		DatabaseURL: "postgres://stock@localhost:5432/stock_engine",
		MaxConns:    2,
		MinConns:    5,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_MIN_CONNS")

	_, err = postgres.PoolConfig(config.DBConfig{DatabaseURL: "postgres://%zz"})
	require.Error(t, err)
}
