package mysql

import (
	"context"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/melkeydev/mcp-tables/databases/sqlstore"
)

type MySQLConnector struct {
	*sqlstore.Store
}

// NewMySQLConnector opens connectionString. primaryKey names the
// auto-increment column echoed back after inserts, since MySQL has no
// RETURNING clause.
func NewMySQLConnector(connectionString, primaryKey string) (*MySQLConnector, error) {
	cfg, err := mysql.ParseDSN(connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	// DATETIME columns come back as time.Time instead of raw bytes.
	cfg.ParseTime = true

	// Open the database connection
	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	var opts []sqlstore.Option
	if primaryKey != "" {
		opts = append(opts, sqlstore.WithPrimaryKey(primaryKey))
	}

	connector := &MySQLConnector{
		Store: sqlstore.New(db, sqlstore.MySQL, opts...),
	}

	if err := connector.Ping(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return connector, nil
}
