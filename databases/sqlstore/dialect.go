package sqlstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/melkeydev/mcp-tables/types"
)

// Dialect captures the handful of syntax differences between the SQL
// databases we talk to.
type Dialect struct {
	Name        string
	QuoteChar   string
	Placeholder func(n int) string
	// Returning is true when INSERT ... RETURNING * is supported.
	Returning bool
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

var (
	Postgres = Dialect{Name: "postgres", QuoteChar: `"`, Placeholder: dollar, Returning: true}
	MySQL    = Dialect{Name: "mysql", QuoteChar: "`", Placeholder: questionMark}

	// SQLite treats a double-quoted name that matches no column as a string
	// literal, so it gets backticks, which are always identifiers.
	SQLite = Dialect{Name: "sqlite", QuoteChar: "`", Placeholder: questionMark, Returning: true}
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether s is a plain SQL identifier.
func ValidIdentifier(s string) bool {
	return identPattern.MatchString(s)
}

// ParseColumns splits a comma separated projection such as "id, email".
// "*" and the empty string both mean every column and yield nil.
func ParseColumns(columns string) ([]string, error) {
	columns = strings.TrimSpace(columns)
	if columns == "" || columns == "*" {
		return nil, nil
	}

	parts := strings.Split(columns, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if !ValidIdentifier(p) {
			return nil, fmt.Errorf("invalid column name %q", p)
		}
		out = append(out, p)
	}
	return out, nil
}

func (d Dialect) quote(ident string) string {
	return d.QuoteChar + ident + d.QuoteChar
}

// ValidateTable accepts "table" or "schema.table" made of plain identifiers.
func ValidateTable(name string) error {
	parts := strings.Split(name, ".")
	if len(parts) > 2 {
		return fmt.Errorf("invalid table name %q", name)
	}
	for _, p := range parts {
		if !ValidIdentifier(p) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// QuoteTable quotes a table name, optionally qualified by a schema.
func (d Dialect) QuoteTable(name string) (string, error) {
	if err := ValidateTable(name); err != nil {
		return "", err
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = d.quote(p)
	}
	return strings.Join(parts, "."), nil
}

func (d Dialect) SelectQuery(table, columns string, limit int) (string, error) {
	quotedTable, err := d.QuoteTable(table)
	if err != nil {
		return "", err
	}
	cols, err := ParseColumns(columns)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		return "", fmt.Errorf("limit must be positive, got %d", limit)
	}

	projection := "*"
	if len(cols) > 0 {
		quoted := make([]string, len(cols))
		for i, c := range cols {
			quoted[i] = d.quote(c)
		}
		projection = strings.Join(quoted, ", ")
	}

	return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", projection, quotedTable, limit), nil
}

func (d Dialect) CountQuery(table string) (string, error) {
	quotedTable, err := d.QuoteTable(table)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s", quotedTable), nil
}

// InsertQuery builds a single-row INSERT for rec. Columns are emitted in
// sorted order so the statement is deterministic.
func (d Dialect) InsertQuery(table string, rec types.Record) (string, []any, error) {
	quotedTable, err := d.QuoteTable(table)
	if err != nil {
		return "", nil, err
	}
	if len(rec) == 0 {
		return "", nil, fmt.Errorf("no columns to insert")
	}

	keys := make([]string, 0, len(rec))
	for k := range rec {
		if !ValidIdentifier(k) {
			return "", nil, fmt.Errorf("invalid column name %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cols := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		cols[i] = d.quote(k)
		placeholders[i] = d.Placeholder(i + 1)
		v, err := bindValue(rec[k])
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", k, err)
		}
		args[i] = v
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quotedTable, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if d.Returning {
		query += " RETURNING *"
	}
	return query, args, nil
}

// bindValue converts decoded JSON values into something a database/sql
// driver accepts. Objects and arrays are stored as their JSON text.
func bindValue(v any) (any, error) {
	switch v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}
