package postgres_test

import (
	"os"
	"testing"

	"pricefeed/config"
	"pricefeed/pkg/storage/postgres"

	"github.com/stretchr/testify/require"
)

// go test -v --run TestCreateDatabase
func TestCreateDatabase(t *testing.T) {
	if os.Getenv("PRICEFEED_TEST_DSN") == "" {
		t.Skip("PRICEFEED_TEST_DSN not set")
	}

	cfg := config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: os.Getenv("PGPASSWORD"),
		DBName:   "pricefeed_test",
		SSLMode:  "disable",
	}

	require.NoError(t, postgres.CreateDatabase(cfg))
	// second call finds the database and is a no-op
	require.NoError(t, postgres.CreateDatabase(cfg))
}
