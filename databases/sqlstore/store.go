// Package sqlstore implements the table store on top of any database/sql
// driver through sqlx. The per-database connectors only open the handle and
// pick a Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/melkeydev/mcp-tables/types"
)

type Store struct {
	db      *sqlx.DB
	dialect Dialect
	// primaryKey receives LastInsertId when the dialect has no RETURNING.
	primaryKey string
}

type Option func(*Store)

// WithPrimaryKey names the auto-increment column reported after an insert on
// databases without RETURNING support.
func WithPrimaryKey(column string) Option {
	return func(s *Store) {
		s.primaryKey = column
	}
}

func New(db *sqlx.DB, dialect Dialect, opts ...Option) *Store {
	s := &Store{db: db, dialect: dialect, primaryKey: "id"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Select
func (s *Store) Select(ctx context.Context, table, columns string, limit int) ([]types.Record, error) {
	query, err := s.dialect.SelectQuery(table, columns, limit)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, query)
}

// Count returns the exact number of rows in table.
func (s *Store) Count(ctx context.Context, table string) (int64, error) {
	query, err := s.dialect.CountQuery(table)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{
		ReadOnly: true,
	})
	if err != nil {
		return 0, fmt.Errorf("BeginTx failed with error: %w", err)
	}
	defer tx.Rollback()

	var count int64
	if err := tx.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("failed to count rows: %w", err)
	}

	return count, tx.Commit()
}

// Insert writes rec as one new row and returns the stored row(s).
func (s *Store) Insert(ctx context.Context, table string, rec types.Record) ([]types.Record, error) {
	query, args, err := s.dialect.InsertQuery(table, rec)
	if err != nil {
		return nil, err
	}

	if s.dialect.Returning {
		rows, err := s.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("unable to insert row: %w", err)
		}
		defer rows.Close()
		return ScanRecords(rows)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to insert row: %w", err)
	}

	echo := make(types.Record, len(rec)+1)
	for k, v := range rec {
		echo[k] = v
	}
	if _, ok := echo[s.primaryKey]; !ok && s.primaryKey != "" {
		if id, err := res.LastInsertId(); err == nil && id > 0 {
			echo[s.primaryKey] = id
		}
	}
	return []types.Record{echo}, nil
}

func (s *Store) query(ctx context.Context, sqlQuery string, args ...any) ([]types.Record, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{
		ReadOnly: true,
	})
	if err != nil {
		return nil, fmt.Errorf("BeginTx failed with error: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryxContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to query db: %w", err)
	}
	defer rows.Close()

	results, err := ScanRecords(rows)
	if err != nil {
		return nil, err
	}

	return results, tx.Commit()
}

// ScanRecords reads every remaining row. Byte slices are turned into strings
// so rows marshal as readable JSON. The result is never nil.
func ScanRecords(rows *sqlx.Rows) ([]types.Record, error) {
	results := []types.Record{}
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, fmt.Errorf("unable to scan row: %w", err)
		}
		for k, v := range row {
			if b, ok := v.([]byte); ok {
				row[k] = string(b)
			}
		}
		results = append(results, types.Record(row))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("unable to read rows: %w", err)
	}

	return results, nil
}
