// Package schema introspects a relational database's catalog and formats
// table/column metadata as a text block for model context. Only catalog
// metadata is read, never table rows; output ordering is stable (schema,
// table, column position) so repeated reads are identical for caching and
// testing.
package schema

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Supported dialects. The dialect selects the catalog query; it matches
// the database/sql driver name used to open the connection.
const (
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
	DialectPostgres = "postgres"
)

// DefaultMaxTables bounds the catalog to keep prompts small.
const DefaultMaxTables = 20

// Column describes one column of a table.
type Column struct {
	Name     string
	Type     string
	Nullable bool
}

// Table describes one base table.
type Table struct {
	Schema  string
	Name    string
	Columns []Column
}

// Catalog is the introspected schema, capped at the reader's table limit.
type Catalog struct {
	Tables []Table
	// Omitted counts tables beyond the cap that exist but are not listed.
	Omitted int
}

// Reader introspects the catalog visible to the configured credentials.
type Reader struct {
	DB *sql.DB
	// Dialect selects the catalog query. Required.
	Dialect string
	// MaxTables caps the number of tables returned. Zero means
	// DefaultMaxTables.
	MaxTables int
}

// Read enumerates tables and columns in stable order.
func (r *Reader) Read(ctx context.Context) (*Catalog, error) {
	maxTables := r.MaxTables
	if maxTables <= 0 {
		maxTables = DefaultMaxTables
	}

	var tables []Table
	var err error
	switch r.Dialect {
	case DialectSQLite:
		tables, err = r.readSQLite(ctx)
	case DialectMySQL:
		tables, err = r.readInformationSchema(ctx, mysqlCatalogQuery)
	case DialectPostgres:
		tables, err = r.readInformationSchema(ctx, postgresCatalogQuery)
	default:
		return nil, fmt.Errorf("unsupported dialect %q", r.Dialect)
	}
	if err != nil {
		return nil, err
	}

	catalog := &Catalog{Tables: tables}
	if len(tables) > maxTables {
		catalog.Omitted = len(tables) - maxTables
		catalog.Tables = tables[:maxTables]
	}
	return catalog, nil
}

const mysqlCatalogQuery = `
SELECT c.TABLE_SCHEMA, c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE
FROM information_schema.TABLES t
INNER JOIN information_schema.COLUMNS c
    ON t.TABLE_SCHEMA = c.TABLE_SCHEMA
    AND t.TABLE_NAME = c.TABLE_NAME
WHERE t.TABLE_TYPE = 'BASE TABLE'
  AND c.TABLE_SCHEMA = DATABASE()
ORDER BY c.TABLE_SCHEMA, c.TABLE_NAME, c.ORDINAL_POSITION`

const postgresCatalogQuery = `
SELECT c.table_schema, c.table_name, c.column_name, c.data_type, c.is_nullable
FROM information_schema.tables t
INNER JOIN information_schema.columns c
    ON t.table_schema = c.table_schema
    AND t.table_name = c.table_name
WHERE t.table_type = 'BASE TABLE'
  AND c.table_schema NOT IN ('pg_catalog', 'information_schema')
ORDER BY c.table_schema, c.table_name, c.ordinal_position`

// readInformationSchema handles the dialects exposing a standard
// information_schema catalog.
func (r *Reader) readInformationSchema(ctx context.Context, query string) ([]Table, error) {
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying catalog: %w", err)
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		var schemaName, tableName, columnName, dataType, isNullable string
		if err := rows.Scan(&schemaName, &tableName, &columnName, &dataType, &isNullable); err != nil {
			return nil, fmt.Errorf("scanning catalog row: %w", err)
		}

		col := Column{
			Name:     columnName,
			Type:     dataType,
			Nullable: strings.EqualFold(isNullable, "YES"),
		}
		if n := len(tables); n > 0 && tables[n-1].Schema == schemaName && tables[n-1].Name == tableName {
			tables[n-1].Columns = append(tables[n-1].Columns, col)
		} else {
			tables = append(tables, Table{Schema: schemaName, Name: tableName, Columns: []Column{col}})
		}
	}
	return tables, rows.Err()
}

// readSQLite uses sqlite_master plus PRAGMA table_info, which is the
// closest sqlite has to an information_schema.
func (r *Reader) readSQLite(ctx context.Context) ([]Table, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite_master: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		cols, err := r.sqliteColumns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables = append(tables, Table{Name: name, Columns: cols})
	}
	return tables, nil
}

func (r *Reader) sqliteColumns(ctx context.Context, table string) ([]Column, error) {
	rows, err := r.DB.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("table_info for %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid, notNull, pk int
		var name, colType string
		var dflt any
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("scanning table_info row: %w", err)
		}
		cols = append(cols, Column{Name: name, Type: colType, Nullable: notNull == 0})
	}
	return cols, rows.Err()
}

// Format renders the catalog as the text block consumed by model prompts.
func (c *Catalog) Format() string {
	var b strings.Builder
	b.WriteString("Database Schema:\n\n")

	for _, t := range c.Tables {
		if t.Schema != "" {
			fmt.Fprintf(&b, "Table: %s.%s\n", t.Schema, t.Name)
		} else {
			fmt.Fprintf(&b, "Table: %s\n", t.Name)
		}
		b.WriteString("Columns:\n")
		for _, col := range t.Columns {
			nullable := "NOT NULL"
			if col.Nullable {
				nullable = "NULL"
			}
			fmt.Fprintf(&b, "  - %s (%s, %s)\n", col.Name, col.Type, nullable)
		}
		b.WriteString("\n")
	}

	if c.Omitted > 0 {
		fmt.Fprintf(&b, "... and %d more tables\n", c.Omitted)
	}
	return b.String()
}
