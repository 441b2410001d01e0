package persistence

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMigrations_InputValidation(t *testing.T) {
	t.Run("EmptyMigrationsPath", func(t *testing.T) {
		err := RunMigrations("postgres://test", "")
		assert.EqualError(t, err, "migrations path cannot be empty")
	})

	t.Run("EmptyDatabaseURL", func(t *testing.T) {
		err := RunMigrations("", "file://./migrations")
		assert.EqualError(t, err, "database URL cannot be empty")
	})
}

// Every up migration needs a matching down so rollbacks stay possible
func TestMigrationFiles_ArePaired(t *testing.T) {
	dir := filepath.Join("..", "..", "..", "migrations", "postgres")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}

	require.NotEmpty(t, ups)
	var names []string
	for name := range ups {
		names = append(names, name)
		assert.True(t, downs[name], "missing down migration for %s", name)
	}
	sort.Strings(names)
	assert.True(t, strings.HasPrefix(names[0], "000001_"))
}
