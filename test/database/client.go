package database

import (
	"testing"

	"github.com/atelierhq/atelier/pkg/database"
	"github.com/atelierhq/atelier/test/util"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The container/connection is automatically cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	// Use shared test database setup; cleanup (schema drop and pool close)
	// is handled by SetupTestDatabase.
	pool := util.SetupTestDatabase(t)
	return database.NewClientFromPool(pool)
}
