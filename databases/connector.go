package databases

import (
	"context"
	"fmt"

	"github.com/melkeydev/mcp-tables/config"
	"github.com/melkeydev/mcp-tables/databases/mysql"
	"github.com/melkeydev/mcp-tables/databases/postgres"
	"github.com/melkeydev/mcp-tables/databases/postgrest"
	"github.com/melkeydev/mcp-tables/databases/sqlite"
	"github.com/melkeydev/mcp-tables/types"
)

// Store is the data-store capability the dispatcher relies on. Every call
// addresses a single named table; callers are expected to have checked the
// name against the catalog already.
type Store interface {
	Select(ctx context.Context, table, columns string, limit int) ([]types.Record, error)
	Insert(ctx context.Context, table string, rec types.Record) ([]types.Record, error)
	Count(ctx context.Context, table string) (int64, error)
}

// Connector is a Store with a connection lifecycle.
type Connector interface {
	Store
	Ping(ctx context.Context) error
	Close() error
}

// NewConnector opens the database described by cfg and verifies it answers.
func NewConnector(cfg config.DatabaseConfig) (Connector, error) {
	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, err
	}

	var (
		connector Connector
		connErr   error
	)
	switch cfg.DBType {
	case "postgres":
		c, err := postgres.NewPostgresConnector(connStr)
		connector, connErr = c, err
	case "mysql":
		c, err := mysql.NewMySQLConnector(connStr, cfg.PrimaryKey)
		connector, connErr = c, err
	case "sqlite":
		c, err := sqlite.NewSQLiteConnector(connStr)
		connector, connErr = c, err
	case "postgrest":
		c, err := postgrest.NewPostgRESTConnector(connStr, cfg.APIKey, nil)
		connector, connErr = c, err
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.DBType)
	}
	if connErr != nil {
		return nil, connErr
	}

	return connector, nil
}
