package database

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockDBTX verifies the interface shape at compile time.
type mockDBTX struct{}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}

func (m *mockDBTX) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return nil, nil
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return nil
}

var _ DBTX = (*mockDBTX)(nil)

func TestHealthCheckTimeout(t *testing.T) {
	assert.Equal(t, 5*time.Second, HealthCheckTimeout)
}

func TestHealthStatusJSON(t *testing.T) {
	hs := HealthStatus{
		Status:        "unhealthy",
		Error:         "connection refused",
		TotalConns:    10,
		AcquiredConns: 3,
		IdleConns:     7,
		MaxConns:      50,
	}

	data, err := json.Marshal(hs)
	require.NoError(t, err)

	var round HealthStatus
	require.NoError(t, json.Unmarshal(data, &round))
	assert.Equal(t, hs, round)

	healthy := HealthStatus{Status: "healthy"}
	data, err = json.Marshal(healthy)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "error", "empty error field is omitted")
}

func TestNewMigratorValidation(t *testing.T) {
	logger := zerolog.Nop()

	t.Run("nil database", func(t *testing.T) {
		migrator, err := NewMigrator(nil, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
	})

	t.Run("nil pool", func(t *testing.T) {
		migrator, err := NewMigrator(&DB{}, "/some/path", logger)
		assert.Error(t, err)
		assert.Nil(t, migrator)
		assert.Contains(t, err.Error(), "pool not initialized")
	})
}
