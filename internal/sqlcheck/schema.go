package sqlcheck

import (
	"sort"
	"strings"
)

// Schema is the published set of tables and columns a student query may touch.
// Anything outside it is rejected before execution so internal tables (users,
// logs) stay invisible.
type Schema struct {
	tables map[string]map[string]struct{}
}

// NewSchema builds a schema from a table -> columns mapping. Names are matched
// case-insensitively.
func NewSchema(tables map[string][]string) Schema {
	s := Schema{tables: make(map[string]map[string]struct{}, len(tables))}
	for table, columns := range tables {
		cols := make(map[string]struct{}, len(columns))
		for _, c := range columns {
			cols[strings.ToLower(c)] = struct{}{}
		}
		s.tables[strings.ToLower(table)] = cols
	}
	return s
}

// InventorySchema returns the schema of the sandboxed inventory database.
func InventorySchema() Schema {
	return NewSchema(map[string][]string{
		"products":   {"product_id", "name", "category", "unit_price"},
		"suppliers":  {"supplier_id", "name", "country", "reliability_score"},
		"warehouses": {"warehouse_id", "location", "capacity"},
		"shipments":  {"shipment_id", "product_id", "supplier_id", "warehouse_id", "quantity", "shipment_date", "received_date", "status"},
		"inventory":  {"inventory_id", "product_id", "warehouse_id", "sku", "qty", "last_updated"},
	})
}

// HasTable reports whether the schema publishes the given table.
func (s Schema) HasTable(name string) bool {
	_, ok := s.tables[strings.ToLower(name)]
	return ok
}

// TableHasColumn reports whether the given table publishes the column.
func (s Schema) TableHasColumn(table, column string) bool {
	cols, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return false
	}
	_, ok = cols[strings.ToLower(column)]
	return ok
}

// AnyTableHasColumn reports whether the column exists in any of the named
// tables. With an empty table list it searches the whole schema.
func (s Schema) AnyTableHasColumn(tables []string, column string) bool {
	column = strings.ToLower(column)
	if len(tables) == 0 {
		for _, cols := range s.tables {
			if _, ok := cols[column]; ok {
				return true
			}
		}
		return false
	}
	for _, table := range tables {
		if cols, ok := s.tables[strings.ToLower(table)]; ok {
			if _, ok := cols[column]; ok {
				return true
			}
		}
	}
	return false
}

// Tables lists the published table names.
func (s Schema) Tables() []string {
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	return names
}

// TablesSorted lists the published table names in stable order.
func (s Schema) TablesSorted() []string {
	names := s.Tables()
	sort.Strings(names)
	return names
}

// Columns lists a table's published columns in stable order. Unknown tables
// yield nil.
func (s Schema) Columns(table string) []string {
	cols, ok := s.tables[strings.ToLower(table)]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(cols))
	for name := range cols {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
