package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Every up migration must have a matching down migration, and the embedded
// source must load without error.
func TestMigrationsAreWellFormed(t *testing.T) {
	t.Parallel()

	_, err := migrationsFromSource()
	require.NoError(t, err)

	ups, err := fs.Glob(migrationsFS, "migrations/*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.Replace(up, ".up.sql", ".down.sql", 1)
		_, err := fs.Stat(migrationsFS, down)
		assert.NoError(t, err, "missing down migration for %s", up)

		data, err := fs.ReadFile(migrationsFS, up)
		require.NoError(t, err)
		assert.NotEmpty(t, strings.TrimSpace(string(data)))
	}
}
