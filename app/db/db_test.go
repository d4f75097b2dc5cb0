package database

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/go-trip-planner/config"
)

func TestNewDatabaseConfig(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("builds postgresql url", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Repositories.Postgres.Host = "db"
		cfg.Repositories.Postgres.Port = "5432"
		cfg.Repositories.Postgres.Username = "trip"
		cfg.Repositories.Postgres.Password = "secret"
		cfg.Repositories.Postgres.DB = "trip_planner"
		cfg.Repositories.Postgres.MaxConns = 12

		dbCfg, err := NewDatabaseConfig(cfg, logger)
		require.NoError(t, err)
		assert.Equal(t, "postgresql://trip:secret@db:5432/trip_planner?sslmode=disable&timezone=utc", dbCfg.ConnectionURL)
		assert.Equal(t, int32(12), dbCfg.MaxConns)
	})

	t.Run("honours configured sslmode", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Repositories.Postgres.Host = "db"
		cfg.Repositories.Postgres.Port = "5432"
		cfg.Repositories.Postgres.SSLMODE = "require"

		dbCfg, err := NewDatabaseConfig(cfg, logger)
		require.NoError(t, err)
		assert.Contains(t, dbCfg.ConnectionURL, "sslmode=require")
	})

	t.Run("missing host", func(t *testing.T) {
		_, err := NewDatabaseConfig(&config.Config{}, logger)
		require.Error(t, err)
	})
}

func TestRunMigrationsRejectsBadScheme(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := RunMigrations("mysql://localhost/db", logger)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgresql://")
}

func TestWaitForDB(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("retries until ping succeeds", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectPing().WillReturnError(errors.New("connection refused"))
		mock.ExpectPing()

		assert.True(t, WaitForDB(context.Background(), mock, logger))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up when context is cancelled", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		assert.False(t, WaitForDB(ctx, mock, logger))
	})
}
