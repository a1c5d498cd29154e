package sqlcheck

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateAcceptsSimpleSelect(t *testing.T) {
	canonical, rej := Validate("SELECT sku, qty FROM inventory WHERE qty < 10;", InventorySchema())
	require.Nil(t, rej)
	require.Equal(t, "SELECT sku, qty FROM inventory WHERE qty < 10", canonical.Text)
	require.Equal(t, []string{"inventory"}, canonical.Tables)
	require.Contains(t, canonical.Columns, "sku")
	require.Contains(t, canonical.Columns, "qty")
	require.NotEmpty(t, canonical.Fingerprint)
}

func TestValidateRejectsMutations(t *testing.T) {
	cases := []string{
		"DROP TABLE inventory;",
		"DELETE FROM inventory",
		"INSERT INTO products VALUES (1, 'x', 'y', 2.0)",
		"UPDATE products SET name = 'x'",
		"ALTER TABLE products ADD COLUMN foo TEXT",
		"CREATE TABLE evil (id INT)",
		"PRAGMA table_info(users)",
	}
	for _, sql := range cases {
		_, rej := Validate(sql, InventorySchema())
		require.NotNil(t, rej, sql)
		require.Equal(t, RejectForbidden, rej.Kind, sql)
	}
}

func TestValidateRejectsStatementChaining(t *testing.T) {
	_, rej := Validate("SELECT * FROM products; DROP TABLE products", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectForbidden, rej.Kind)
}

func TestValidateRejectsForbiddenKeywordInsideSelect(t *testing.T) {
	_, rej := Validate("SELECT name FROM products WHERE name IN (DELETE FROM products)", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectForbidden, rej.Kind)
	require.Equal(t, "DELETE", rej.Token)
}

func TestValidateCommentsCannotHideKeywords(t *testing.T) {
	_, rej := Validate("SELECT * FROM products /* sneaky */; DROP TABLE products", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectForbidden, rej.Kind)
}

func TestValidateRejectsUnknownTable(t *testing.T) {
	_, rej := Validate("SELECT * FROM users", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectSchema, rej.Kind)
	require.Equal(t, "users", rej.Token)
}

func TestValidateRejectsUnknownColumn(t *testing.T) {
	_, rej := Validate("SELECT password FROM products", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectSchema, rej.Kind)
	require.Equal(t, "password", rej.Token)
	require.Greater(t, rej.End, rej.Start)
}

func TestValidateRejectsUnknownQualifiedColumn(t *testing.T) {
	_, rej := Validate("SELECT p.secret FROM products p", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectSchema, rej.Kind)
	require.Equal(t, "secret", rej.Token)
}

func TestValidateAllowsJoinsAndAliases(t *testing.T) {
	sql := `SELECT p.name, s.country, sh.quantity
	        FROM shipments sh
	        JOIN products p ON p.product_id = sh.product_id
	        JOIN suppliers AS s ON s.supplier_id = sh.supplier_id
	        WHERE sh.status = 'delayed'
	        ORDER BY sh.quantity DESC`
	canonical, rej := Validate(sql, InventorySchema())
	require.Nil(t, rej)
	require.Equal(t, []string{"products", "shipments", "suppliers"}, canonical.Tables)
}

func TestValidateAllowsAggregatesAndAliases(t *testing.T) {
	sql := "SELECT category, COUNT(*) AS total FROM products GROUP BY category HAVING total > 1 ORDER BY total"
	_, rej := Validate(sql, InventorySchema())
	require.Nil(t, rej)
}

func TestValidateAllowsBareColumnAliases(t *testing.T) {
	cases := []string{
		"SELECT name n FROM products",
		"SELECT name n FROM products ORDER BY n",
		"SELECT COUNT(*) total FROM products",
		"SELECT p.name product FROM products p",
	}
	for _, sql := range cases {
		_, rej := Validate(sql, InventorySchema())
		require.Nil(t, rej, sql)
	}

	// an alias does not stop the expression itself from being checked
	_, rej := Validate("SELECT secret s FROM products", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectSchema, rej.Kind)
	require.Equal(t, "secret", rej.Token)
}

func TestValidateEmptyQuery(t *testing.T) {
	for _, sql := range []string{"", "   ", "-- just a comment"} {
		_, rej := Validate(sql, InventorySchema())
		require.NotNil(t, rej, "%q", sql)
		require.Equal(t, RejectSyntax, rej.Kind)
	}
}

func TestValidateUnterminatedString(t *testing.T) {
	_, rej := Validate("SELECT name FROM products WHERE name = 'Widget", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectSyntax, rej.Kind)
}

func TestValidateZeroWidthCharactersStripped(t *testing.T) {
	// zero-width space inside DROP must not split the keyword into legal idents
	_, rej := Validate("DR​OP TABLE inventory", InventorySchema())
	require.NotNil(t, rej)
	require.Equal(t, RejectForbidden, rej.Kind)
}

func TestValidateNormalizesWhitespace(t *testing.T) {
	a, rej := Validate("SELECT   name\nFROM\tproducts", InventorySchema())
	require.Nil(t, rej)
	b, rej := Validate("select name from products", InventorySchema())
	require.Nil(t, rej)
	require.Equal(t, "SELECT name FROM products", a.Text)
	require.Equal(t, a.Fingerprint, b.Fingerprint)
}

func TestValidateKeywordInStringLiteralAllowed(t *testing.T) {
	_, rej := Validate("SELECT name FROM products WHERE name = 'drop table'", InventorySchema())
	require.Nil(t, rej)
}
