package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/melkeydev/mcp-tables/databases/sqlstore"
)

type SQLiteConnector struct {
	*sqlstore.Store
}

func NewSQLiteConnector(connectionString string) (*SQLiteConnector, error) {
	db, err := sqlx.Open("sqlite3", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway, and a single connection keeps
	// ":memory:" databases from splitting per connection.
	db.SetMaxOpenConns(1)

	connector := &SQLiteConnector{
		Store: sqlstore.New(db, sqlstore.SQLite),
	}

	// Test the connection
	if err := connector.Ping(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return connector, nil
}
