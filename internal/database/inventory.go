package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// EnsureInventory creates the sandboxed inventory database at path and seeds
// it with the fixture warehouse dataset when empty. The pipeline only ever
// opens this file read-only; this is the single write path, run at startup.
func EnsureInventory(path string) error {
	if path == "" {
		return fmt.Errorf("inventory path must not be empty")
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=5000", path))
	if err != nil {
		return fmt.Errorf("open inventory database: %w", err)
	}
	defer db.Close()

	if err := createInventorySchema(db); err != nil {
		return err
	}

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return fmt.Errorf("inspect inventory database: %w", err)
	}
	if count > 0 {
		return nil
	}

	return seedInventory(db)
}

func createInventorySchema(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS products (
			product_id INTEGER PRIMARY KEY,
			name TEXT,
			category TEXT,
			unit_price DECIMAL(10,2)
		)`,
		`CREATE TABLE IF NOT EXISTS suppliers (
			supplier_id INTEGER PRIMARY KEY,
			name TEXT,
			country TEXT,
			reliability_score INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS warehouses (
			warehouse_id INTEGER PRIMARY KEY,
			location TEXT,
			capacity INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS shipments (
			shipment_id INTEGER PRIMARY KEY,
			product_id INTEGER REFERENCES products(product_id),
			supplier_id INTEGER REFERENCES suppliers(supplier_id),
			warehouse_id INTEGER REFERENCES warehouses(warehouse_id),
			quantity INTEGER,
			shipment_date TEXT,
			received_date TEXT,
			status TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS inventory (
			inventory_id INTEGER PRIMARY KEY,
			product_id INTEGER REFERENCES products(product_id),
			warehouse_id INTEGER REFERENCES warehouses(warehouse_id),
			sku TEXT,
			qty INTEGER,
			last_updated TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("create inventory schema: %w", err)
		}
	}

	return nil
}

func seedInventory(db *sql.DB) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("seed inventory: %w", err)
	}
	defer tx.Rollback()

	day := func(offset int) string {
		return time.Now().AddDate(0, 0, offset).Format("2006-01-02")
	}
	baseDate := day(-5)

	products := [][]any{
		{1, "Widget", "Tools", 49.99},
		{2, "Gadget", "Electronics", 149.99},
		{3, "Doodad", "Accessories", 29.99},
		{4, "Thingamajig", "Tools", 79.99},
		{5, "Whatsit", "Electronics", 199.99},
	}
	for _, p := range products {
		if _, err := tx.Exec("INSERT INTO products VALUES (?, ?, ?, ?)", p...); err != nil {
			return fmt.Errorf("seed products: %w", err)
		}
	}

	suppliers := [][]any{
		{1, "Acme Corp", "USA", 95},
		{2, "Globex", "Germany", 88},
		{3, "Initech", "Japan", 92},
	}
	for _, s := range suppliers {
		if _, err := tx.Exec("INSERT INTO suppliers VALUES (?, ?, ?, ?)", s...); err != nil {
			return fmt.Errorf("seed suppliers: %w", err)
		}
	}

	warehouses := [][]any{
		{1, "New York", 1000},
		{2, "Berlin", 750},
		{3, "Tokyo", 500},
	}
	for _, w := range warehouses {
		if _, err := tx.Exec("INSERT INTO warehouses VALUES (?, ?, ?)", w...); err != nil {
			return fmt.Errorf("seed warehouses: %w", err)
		}
	}

	inventory := [][]any{
		{1, 1, 1, "WID-001", 200, baseDate},
		{2, 2, 2, "GAD-002", 150, baseDate},
		{3, 3, 3, "DOO-003", 100, baseDate},
		{4, 4, 2, "THI-004", 0, baseDate},
		{5, 5, 1, "WHA-005", 500, baseDate},
	}
	for _, i := range inventory {
		if _, err := tx.Exec("INSERT INTO inventory VALUES (?, ?, ?, ?, ?, ?)", i...); err != nil {
			return fmt.Errorf("seed inventory rows: %w", err)
		}
	}

	shipments := [][]any{
		{1, 1, 1, 1, 150, baseDate, baseDate, "delivered"},
		{2, 2, 2, 2, 200, baseDate, baseDate, "delivered"},
		{3, 2, 2, 2, 100, baseDate, baseDate, "delivered"},
		{4, 2, 2, 2, 150, baseDate, nil, "in_transit"},
		{5, 3, 3, 3, 100, baseDate, baseDate, "delivered"},
		{6, 4, 2, 2, 50, baseDate, day(-7), "delivered"},
		{7, 5, 2, 1, 200, day(-15), day(-13), "delivered"},
		{8, 5, 2, 1, 200, day(-10), day(-9), "delivered"},
		{9, 5, 1, 1, 100, day(-8), day(-7), "delivered"},
	}
	for _, s := range shipments {
		if _, err := tx.Exec("INSERT INTO shipments VALUES (?, ?, ?, ?, ?, ?, ?, ?)", s...); err != nil {
			return fmt.Errorf("seed shipments: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed inventory: %w", err)
	}

	return nil
}
