package sqlrun

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// One connection so every statement sees the same in-memory database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL,
		price REAL
	)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO products (name, category, price) VALUES
		('Laptop', 'Electronics', 1200),
		('Phone', 'Electronics', 800),
		('Desk', 'Furniture', 300),
		('Mouse', 'Accessories', 25),
		('Keyboard', 'Accessories', 45)`)
	require.NoError(t, err)
	return db
}

func TestExecuteReturnsRows(t *testing.T) {
	exec := &Executor{DB: newTestDB(t)}

	env := exec.Execute(context.Background(), "SELECT name, price FROM products ORDER BY price DESC")
	require.True(t, env.Success, "error: %s", env.ErrorString())
	assert.Equal(t, []string{"name", "price"}, env.Columns)
	assert.Equal(t, 5, env.RowCount)
	assert.Len(t, env.Data, 5)
	assert.Equal(t, "Laptop", env.Data[0]["name"])
	assert.Nil(t, env.Error)
}

func TestExecuteEmptyResultIsSuccess(t *testing.T) {
	exec := &Executor{DB: newTestDB(t)}

	env := exec.Execute(context.Background(), "SELECT name FROM products WHERE price > 9999")
	require.True(t, env.Success)
	assert.Equal(t, 0, env.RowCount)
	assert.NotNil(t, env.Data)
	assert.Empty(t, env.Data)
	assert.Equal(t, []string{"name"}, env.Columns)
}

func TestExecuteCapsRows(t *testing.T) {
	exec := &Executor{DB: newTestDB(t), MaxRows: 2}

	env := exec.Execute(context.Background(), "SELECT id FROM products ORDER BY id")
	require.True(t, env.Success)
	assert.Equal(t, 2, env.RowCount)
	assert.Len(t, env.Data, 2)
}

func TestExecuteRejectsWritesWithoutTouchingDB(t *testing.T) {
	db := newTestDB(t)
	exec := &Executor{DB: db}

	for _, stmt := range []string{
		"DELETE FROM products",
		"DROP TABLE products",
		"INSERT INTO products (name, category) VALUES ('x', 'y')",
		"SELECT 1; DELETE FROM products",
	} {
		env := exec.Execute(context.Background(), stmt)
		assert.False(t, env.Success, "statement should be rejected: %s", stmt)
		assert.Equal(t, KindValidation, env.ErrorKind())
		assert.Empty(t, env.Data)
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM products").Scan(&count))
	assert.Equal(t, 5, count, "rejected statements must not change the data")
}

func TestExecuteClassifiesSyntaxError(t *testing.T) {
	exec := &Executor{DB: newTestDB(t)}

	env := exec.Execute(context.Background(), "SELECT name FROMM products")
	require.False(t, env.Success)
	assert.Equal(t, KindSyntax, env.ErrorKind())
	assert.True(t, strings.HasPrefix(env.ErrorString(), KindSyntax+": "))
}

func TestExecuteTimeout(t *testing.T) {
	exec := &Executor{DB: newTestDB(t), Timeout: time.Nanosecond}

	env := exec.Execute(context.Background(), "SELECT * FROM products")
	require.False(t, env.Success)
	assert.Equal(t, KindTimeout, env.ErrorKind())
}
