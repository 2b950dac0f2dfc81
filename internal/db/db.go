// Package db owns the Postgres connection pool, migrations, and the
// repositories for the three durable tables of spec.md §6 plus the
// job_queue staging table. Grounded on internal/db/db.go (pgxpool for
// runtime queries, database/sql+goose for migrations).
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/suncoastpay/orchestrator/internal/config"
)

// ConnStr builds the Postgres DSN from required environment variables.
func ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		config.GetRequired("DB_USER"),
		config.GetRequired("DB_PASSWORD"),
		config.GetRequired("DB_HOST"),
		config.GetRequired("DB_PORT"),
		config.GetRequired("DB_NAME"),
		config.GetEnv("SSL_MODE", "disable"),
	)
}

// RunMigrations applies pending goose migrations using database/sql,
// matching the teacher's split between the migration driver (lib/pq) and
// the runtime driver (pgx).
func RunMigrations(connStr, migrationsDir string) {
	sqlDB, err := sql.Open("postgres", connStr)
	if err != nil {
		log.Fatal(err)
	}
	defer sqlDB.Close()

	if err := goose.Up(sqlDB, migrationsDir); err != nil {
		log.Fatal(err)
	}
}

// GetPool opens the pgxpool used by every repository at runtime.
func GetPool(connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(context.Background(), connStr)
	if err != nil {
		return nil, err
	}
	return dbpool, nil
}
