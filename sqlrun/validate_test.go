package sqlrun

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateAccepts(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"plain select", "SELECT * FROM products"},
		{"lowercase", "select id, name from products"},
		{"trailing semicolon", "SELECT 1;"},
		{"several trailing semicolons", "SELECT 1;; ;"},
		{"leading whitespace", "   \n\tSELECT 1"},
		{"leading line comment", "-- count them\nSELECT COUNT(*) FROM products"},
		{"leading block comment", "/* audit: read only */ SELECT 1"},
		{"cte", "WITH top AS (SELECT * FROM products LIMIT 5) SELECT * FROM top"},
		{"keyword inside string literal", "SELECT * FROM logs WHERE message = 'DROP TABLE users'"},
		{"keyword inside comment", "SELECT 1 -- not an INSERT\n"},
		{"escaped quote in literal", "SELECT * FROM t WHERE name = 'O''Brien'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NoError(t, Validate(tt.sql))
		})
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"empty", ""},
		{"only whitespace", "   \n"},
		{"only comment", "-- nothing here"},
		{"insert", "INSERT INTO products VALUES (1)"},
		{"update", "UPDATE products SET price = 0"},
		{"delete", "DELETE FROM products"},
		{"drop", "DROP TABLE products"},
		{"create", "CREATE TABLE x (id INT)"},
		{"truncate", "TRUNCATE TABLE products"},
		{"lowercase write", "delete from products"},
		{"multiple statements", "SELECT 1; SELECT 2"},
		{"piggybacked write", "SELECT 1; DROP TABLE products"},
		{"select into", "SELECT * INTO backup FROM products"},
		{"pragma", "PRAGMA table_info(products)"},
		{"exec", "EXEC sp_who"},
		{"with without select", "WITH x AS (DELETE FROM t) x"},
		{"nested write in cte", "WITH x AS (SELECT 1) UPDATE products SET price = 0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, Validate(tt.sql))
		})
	}
}
