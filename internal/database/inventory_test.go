package database

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureInventorySeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.db")

	require.NoError(t, EnsureInventory(path))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var products, shipments int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM shipments").Scan(&shipments))
	require.Equal(t, 5, products)
	require.Equal(t, 9, shipments)

	var qty int
	require.NoError(t, db.QueryRow("SELECT qty FROM inventory WHERE sku = ?", "THI-004").Scan(&qty))
	require.Zero(t, qty)

	// Re-running must not duplicate fixture rows.
	require.NoError(t, EnsureInventory(path))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM products").Scan(&products))
	require.Equal(t, 5, products)
}
