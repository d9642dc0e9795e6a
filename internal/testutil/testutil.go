package testutil

import (
	"fmt"
	"strings"
	"testing"

	"github.com/kurobane/hondana/internal/db"
)

// SetupTestDB creates an in-memory SQLite store migrated to the current
// schema. Each test gets its own named shared-cache database so the
// connection pool sees one store and tests stay isolated.
func SetupTestDB(t *testing.T) *db.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	database, err := db.New(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("Failed to init in-memory db: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}
