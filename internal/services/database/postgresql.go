package database

import (
	"fmt"
	"strings"

	"github.com/pepe57/OpenGateLLM/internal/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// postgresDSN assembles a key=value connection string from the dependency
// config. An explicit dsn wins over the individual fields. Port and
// sslmode fall back to 5432 and disable when unset, and an empty password
// is omitted so peer-authenticated local setups keep working.
func postgresDSN(cfg models.DatabaseConfig) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}

	port := cfg.Port
	if port == 0 {
		port = 5432
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	parts := []string{
		"host=" + cfg.Host,
		fmt.Sprintf("port=%d", port),
		"user=" + cfg.Username,
		"dbname=" + cfg.Database,
		"sslmode=" + sslMode,
	}
	if cfg.Password != "" {
		parts = append(parts, "password="+cfg.Password)
	}
	return strings.Join(parts, " ")
}

func newPostgreSQL(cfg models.DatabaseConfig) (*DB, error) {
	gormDB, err := gorm.Open(postgres.Open(postgresDSN(cfg)), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	db := &DB{
		DB:         gormDB,
		config:     cfg,
		driverName: "postgres",
	}
	db.setConnectionPool()

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
