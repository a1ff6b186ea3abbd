package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cast"

	"github.com/melkeydev/mcp-tables/metrics"
	"github.com/melkeydev/mcp-tables/types"
)

// ToolName identifies one of the three tools the server offers.
type ToolName string

const (
	QueryTable ToolName = "query_table"
	InsertData ToolName = "insert_data"
	CountRows  ToolName = "count_rows"
)

// ToolNames lists every tool in the order ListTools returns them.
var ToolNames = []ToolName{QueryTable, InsertData, CountRows}

// ListTools returns the descriptors of the three tools. Table descriptions
// name the current catalog so the client can pick a valid table up front.
func (d *Dispatcher) ListTools() []mcp.Tool {
	available := d.knownTables()

	queryTool := mcp.NewTool(string(QueryTable),
		mcp.WithDescription("Query an allow-listed table, optionally choosing columns and a row limit"),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("Table to query. Available: "+available),
		),
		mcp.WithString("columns",
			mcp.Description("Comma separated columns to select (default: '*')"),
			mcp.DefaultString("*"),
		),
		mcp.WithNumber("limit",
			mcp.Description(fmt.Sprintf("Maximum rows to return (default: %d, max: %d)", d.limits.DefaultLimit, d.limits.MaxLimit)),
			mcp.DefaultNumber(float64(d.limits.DefaultLimit)),
			mcp.Min(1),
		),
	)

	insertTool := mcp.NewTool(string(InsertData),
		mcp.WithDescription("Insert one new record into a table"),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("Target table. Available: "+available),
		),
		mcp.WithObject("data",
			mcp.Required(),
			mcp.Description("Record to insert as column/value pairs"),
		),
	)

	countTool := mcp.NewTool(string(CountRows),
		mcp.WithDescription("Count the total rows in a table (exact)"),
		mcp.WithString("table_name",
			mcp.Required(),
			mcp.Description("Table to count. Available: "+available),
		),
	)

	return []mcp.Tool{queryTool, insertTool, countTool}
}

// toolCall is a validated invocation of one of the three tools. The set of
// implementations is closed: parseToolCall is the only constructor.
type toolCall interface {
	tool() ToolName
	table() string
	execute(ctx context.Context, d *Dispatcher) (string, error)
}

type queryTableCall struct {
	tableName string
	columns   string
	limit     int
}

type insertDataCall struct {
	tableName string
	data      types.Record
}

type countRowsCall struct {
	tableName string
}

type unknownToolError struct {
	name string
}

func (e unknownToolError) Error() string {
	return "Unknown tool: " + e.name
}

func parseToolCall(name string, args map[string]any, limits Limits) (toolCall, error) {
	switch ToolName(name) {
	case QueryTable:
		table, err := requireString(args, "table_name")
		if err != nil {
			return nil, err
		}
		columns, err := optionalString(args, "columns", "*")
		if err != nil {
			return nil, err
		}
		limit, err := optionalInt(args, "limit", limits.DefaultLimit)
		if err != nil {
			return nil, err
		}
		if limit < 1 {
			return nil, fmt.Errorf("argument \"limit\" must be at least 1, got %d", limit)
		}
		if limits.MaxLimit > 0 && limit > limits.MaxLimit {
			limit = limits.MaxLimit
		}
		return queryTableCall{tableName: table, columns: columns, limit: limit}, nil

	case InsertData:
		table, err := requireString(args, "table_name")
		if err != nil {
			return nil, err
		}
		data, err := requireObject(args, "data")
		if err != nil {
			return nil, err
		}
		return insertDataCall{tableName: table, data: data}, nil

	case CountRows:
		table, err := requireString(args, "table_name")
		if err != nil {
			return nil, err
		}
		return countRowsCall{tableName: table}, nil

	default:
		return nil, unknownToolError{name: name}
	}
}

func (c queryTableCall) tool() ToolName { return QueryTable }
func (c queryTableCall) table() string  { return c.tableName }

func (c queryTableCall) execute(ctx context.Context, d *Dispatcher) (string, error) {
	var rows []types.Record
	err := d.storeCall(ctx, "select", func(ctx context.Context) error {
		var err error
		rows, err = d.store.Select(ctx, c.tableName, c.columns, c.limit)
		return err
	})
	if err != nil {
		return "", err
	}
	if rows == nil {
		rows = []types.Record{}
	}

	return marshalIndent(types.QueryResult{
		Table:       c.tableName,
		QueryParams: types.QueryParams{Columns: c.columns, Limit: c.limit},
		RowCount:    len(rows),
		Data:        rows,
	})
}

func (c insertDataCall) tool() ToolName { return InsertData }
func (c insertDataCall) table() string  { return c.tableName }

func (c insertDataCall) execute(ctx context.Context, d *Dispatcher) (string, error) {
	var rows []types.Record
	err := d.storeCall(ctx, "insert", func(ctx context.Context) error {
		var err error
		rows, err = d.store.Insert(ctx, c.tableName, c.data)
		return err
	})
	if err != nil {
		return "", err
	}
	if rows == nil {
		rows = []types.Record{}
	}

	body, err := marshalIndent(rows)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Successfully inserted into %s:\n%s", c.tableName, body), nil
}

func (c countRowsCall) tool() ToolName { return CountRows }
func (c countRowsCall) table() string  { return c.tableName }

func (c countRowsCall) execute(ctx context.Context, d *Dispatcher) (string, error) {
	var count int64
	err := d.storeCall(ctx, "count", func(ctx context.Context) error {
		var err error
		count, err = d.store.Count(ctx, c.tableName)
		return err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Table '%s' contains %d total rows", c.tableName, count), nil
}

// CallTool runs the named tool. The result always carries text for the
// client; rejections and failures are flagged with IsError.
func (d *Dispatcher) CallTool(ctx context.Context, name string, args map[string]any) *mcp.CallToolResult {
	logger := d.logger.With("call_id", uuid.NewString(), "tool", name)

	call, err := parseToolCall(name, args, d.limits)
	if err != nil {
		var unknown unknownToolError
		if errors.As(err, &unknown) {
			logger.Warn("unknown tool")
			d.metrics.ToolCall("unknown", metrics.OutcomeRejected)
			return mcp.NewToolResultError(err.Error())
		}
		logger.Warn("invalid arguments", "error", err)
		d.metrics.ToolCall(name, metrics.OutcomeRejected)
		return mcp.NewToolResultError(fmt.Sprintf("Invalid arguments for %s: %v", name, err))
	}

	table := call.table()
	if !d.catalog.IsKnown(table) {
		logger.Warn("table rejected", "table", table)
		d.metrics.ToolCall(name, metrics.OutcomeRejected)
		return mcp.NewToolResultError(fmt.Sprintf("Table '%s' not available. Known tables: %s", table, d.knownTables()))
	}

	start := time.Now()
	text, err := call.execute(ctx, d)
	if err != nil {
		logger.Error("tool failed", "table", table, "error", err)
		d.metrics.ToolCall(name, metrics.OutcomeFailed)
		return mcp.NewToolResultError(fmt.Sprintf("operation %s failed: %v", call.tool(), err))
	}

	logger.Info("tool executed", "table", table, "duration", time.Since(start))
	d.metrics.ToolCall(name, metrics.OutcomeOK)
	return mcp.NewToolResultText(text)
}

func requireString(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	return s, nil
}

func optionalString(args map[string]any, key, def string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" {
		return def, nil
	}
	return s, nil
}

// optionalInt accepts JSON numbers and numeric strings but rejects
// fractions and booleans.
func optionalInt(args map[string]any, key string, def int) (int, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case bool:
		return 0, fmt.Errorf("argument %q must be an integer", key)
	case float64:
		if n != math.Trunc(n) {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
	}
	i, err := cast.ToIntE(v)
	if err != nil {
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
	return i, nil
}

// requireObject accepts a JSON object, or a string holding one.
func requireObject(args map[string]any, key string) (types.Record, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("missing required argument %q", key)
	}
	m, err := cast.ToStringMapE(v)
	if err != nil {
		return nil, fmt.Errorf("argument %q must be an object", key)
	}
	if len(m) == 0 {
		return nil, fmt.Errorf("argument %q must not be empty", key)
	}
	return types.Record(m), nil
}
