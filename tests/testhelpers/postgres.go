// Package testhelpers provides the Postgres testcontainers fixture shared
// by the integration suites under tests/integration. Grounded on the
// teacher's tests/integration/*_test.go, which import this package
// without shipping it; authored here following the standard
// testcontainers-go/modules/postgres bootstrap idiom.
package testhelpers

import (
	"context"
	"fmt"

	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// PostgresContainer wraps a running Postgres test container along with
// the DSN callers need to open a pool against it.
type PostgresContainer struct {
	*postgres.PostgresContainer
	ConnectionString string
}

// CreatePostgresContainer starts a disposable Postgres 16 instance and
// waits for it to accept connections before returning.
func CreatePostgresContainer(ctx context.Context) (*PostgresContainer, error) {
	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("orchestrator"),
		postgres.WithUsername("orchestrator"),
		postgres.WithPassword("orchestrator"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("starting postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("resolving connection string: %w", err)
	}

	return &PostgresContainer{PostgresContainer: container, ConnectionString: connStr}, nil
}
