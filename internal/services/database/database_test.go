package database

import (
	"testing"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSNPrefersExplicitDSN(t *testing.T) {
	dsn := postgresDSN(models.DatabaseConfig{
		DSN:  "host=pg.internal port=6432 user=svc dbname=gateway",
		Host: "ignored",
	})
	assert.Equal(t, "host=pg.internal port=6432 user=svc dbname=gateway", dsn)
}

func TestPostgresDSNFillsDefaults(t *testing.T) {
	dsn := postgresDSN(models.DatabaseConfig{
		Host:     "localhost",
		Username: "postgres",
		Database: "opengatellm",
	})
	assert.Equal(t, "host=localhost port=5432 user=postgres dbname=opengatellm sslmode=disable", dsn)
}

func TestPostgresDSNIncludesPasswordOnlyWhenSet(t *testing.T) {
	cfg := models.DatabaseConfig{
		Host:     "db",
		Port:     5433,
		Username: "gw",
		Database: "gateway",
		SSLMode:  "require",
	}
	assert.NotContains(t, postgresDSN(cfg), "password=")

	cfg.Password = "hunter2"
	assert.Equal(t, "host=db port=5433 user=gw dbname=gateway sslmode=require password=hunter2", postgresDSN(cfg))
}

func TestSQLiteMigratesGatewaySchema(t *testing.T) {
	db, err := NewSQLite("")
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, db.AutoMigrate())
	assert.Equal(t, "sqlite", db.DriverName())
	assert.True(t, db.Migrator().HasTable(&models.Router{}))
	assert.True(t, db.Migrator().HasTable(&models.APIKey{}))
}
