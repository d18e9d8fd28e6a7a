package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obelisk-core/obelisk/internal/config"
)

func TestNewSQLite_AppliesMigrations(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "obelisk.db")

	db, err := NewSQLite(ctx, config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"interactions", "memories", "evolution_cycles"} {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestNewSQLite_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "obelisk.db")

	db, err := NewSQLite(ctx, config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Second open sees no pending migrations.
	db, err = NewSQLite(ctx, config.SQLiteConfig{Path: path})
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
