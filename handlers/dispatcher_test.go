package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melkeydev/mcp-tables/types"
)

type fakeCatalog struct {
	names []string
	meta  map[string]types.TableMetadata
}

func (c *fakeCatalog) IsKnown(name string) bool {
	for _, n := range c.names {
		if n == name {
			return true
		}
	}
	return false
}

func (c *fakeCatalog) ListNames() []string {
	return append([]string(nil), c.names...)
}

func (c *fakeCatalog) Describe(name string) (types.TableMetadata, bool) {
	m, ok := c.meta[name]
	return m, ok
}

// fakeStore keeps tables in memory and can be told to fail, panic or hang.
type fakeStore struct {
	mu       sync.Mutex
	tables   map[string][]types.Record
	err      error
	panicMsg string
	block    chan struct{}
	calls    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: map[string][]types.Record{}}
}

func (s *fakeStore) enter() error {
	s.mu.Lock()
	s.calls++
	err, msg, block := s.err, s.panicMsg, s.block
	s.mu.Unlock()

	if block != nil {
		<-block
	}
	if msg != "" {
		panic(msg)
	}
	return err
}

func (s *fakeStore) Select(_ context.Context, table, columns string, limit int) ([]types.Record, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := s.tables[table]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]types.Record, 0, len(rows))
	for _, r := range rows {
		if columns == "*" {
			out = append(out, r)
			continue
		}
		projected := types.Record{}
		for _, c := range strings.Split(columns, ",") {
			projected[strings.TrimSpace(c)] = r[strings.TrimSpace(c)]
		}
		out = append(out, projected)
	}
	return out, nil
}

func (s *fakeStore) Insert(_ context.Context, table string, rec types.Record) ([]types.Record, error) {
	if err := s.enter(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := types.Record{"id": len(s.tables[table]) + 1}
	for k, v := range rec {
		stored[k] = v
	}
	s.tables[table] = append(s.tables[table], stored)
	return []types.Record{stored}, nil
}

func (s *fakeStore) Count(_ context.Context, table string) (int64, error) {
	if err := s.enter(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.tables[table])), nil
}

func (s *fakeStore) seed(table string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < n; i++ {
		s.tables[table] = append(s.tables[table], types.Record{
			"id":    i + 1,
			"email": fmt.Sprintf("user%d@example.com", i+1),
		})
	}
}

var testTables = []string{"users", "vendors", "chat_sessions"}

func newTestDispatcher(t *testing.T, store *fakeStore, opts ...Option) *Dispatcher {
	t.Helper()
	cat := &fakeCatalog{
		names: testTables,
		meta: map[string]types.TableMetadata{
			"users": {Description: "User account information", PrimaryKey: "id"},
		},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDispatcher(cat, store, append([]Option{WithLogger(logger)}, opts...)...)
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestCallTool_UnknownTableRejected(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(t, store)
	ctx := context.Background()

	calls := []struct {
		tool string
		args map[string]any
	}{
		{"query_table", map[string]any{"table_name": "secrets"}},
		{"insert_data", map[string]any{"table_name": "secrets", "data": map[string]any{"a": 1}}},
		{"count_rows", map[string]any{"table_name": "secrets"}},
	}

	for _, c := range calls {
		t.Run(c.tool, func(t *testing.T) {
			res := d.CallTool(ctx, c.tool, c.args)
			assert.True(t, res.IsError)
			text := resultText(t, res)
			assert.Contains(t, text, "secrets")
			for _, name := range testTables {
				assert.Contains(t, text, name)
			}
		})
	}

	assert.Zero(t, store.calls, "rejected calls must not reach the store")
}

func TestListResources(t *testing.T) {
	d := newTestDispatcher(t, newFakeStore())

	resources := d.ListResources()
	require.Len(t, resources, len(testTables))
	for i, name := range testTables {
		assert.Equal(t, "store://tables/"+name, resources[i].URI)
		assert.Equal(t, "application/json", resources[i].MIMEType)
	}

	assert.Equal(t, "Users Table", resources[0].Name)
	assert.Equal(t, "User account information", resources[0].Description)
	assert.Equal(t, "Access data from the vendors table", resources[1].Description)
	assert.Equal(t, "Chat Sessions Table", resources[2].Name)

	assert.Equal(t, resources, d.ListResources())
}

func TestListTools(t *testing.T) {
	d := newTestDispatcher(t, newFakeStore())

	tools := d.ListTools()
	require.Len(t, tools, 3)

	byName := map[string]mcp.Tool{}
	for _, tool := range tools {
		byName[tool.Name] = tool
	}

	query := byName["query_table"]
	assert.Equal(t, []string{"table_name"}, query.InputSchema.Required)
	assert.Contains(t, query.InputSchema.Properties, "columns")
	assert.Contains(t, query.InputSchema.Properties, "limit")
	limitProp, ok := query.InputSchema.Properties["limit"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 20, limitProp["default"])
	columnsProp, ok := query.InputSchema.Properties["columns"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "*", columnsProp["default"])

	insert := byName["insert_data"]
	assert.ElementsMatch(t, []string{"table_name", "data"}, insert.InputSchema.Required)

	count := byName["count_rows"]
	assert.Equal(t, []string{"table_name"}, count.InputSchema.Required)

	assert.Equal(t, []string{"query_table", "insert_data", "count_rows"},
		[]string{tools[0].Name, tools[1].Name, tools[2].Name})
	assert.Contains(t, count.InputSchema.Properties["table_name"].(map[string]any)["description"], "users, vendors, chat_sessions")
}

func TestQueryTable_Limit(t *testing.T) {
	store := newFakeStore()
	store.seed("users", 5)
	d := newTestDispatcher(t, store)

	res := d.CallTool(context.Background(), "query_table", map[string]any{
		"table_name": "users",
		"limit":      float64(3),
	})
	require.False(t, res.IsError, resultText(t, res))

	var got types.QueryResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "users", got.Table)
	assert.Len(t, got.Data, 3)
	assert.Equal(t, 3, got.RowCount)
	assert.Equal(t, types.QueryParams{Columns: "*", Limit: 3}, got.QueryParams)
}

func TestQueryTable_DefaultsAndProjection(t *testing.T) {
	store := newFakeStore()
	store.seed("users", 30)
	d := newTestDispatcher(t, store)

	res := d.CallTool(context.Background(), "query_table", map[string]any{
		"table_name": "users",
		"columns":    "email",
	})
	require.False(t, res.IsError, resultText(t, res))

	var got types.QueryResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, 20, got.QueryParams.Limit)
	assert.Len(t, got.Data, 20)
	assert.Equal(t, types.Record{"email": "user1@example.com"}, got.Data[0])
}

func TestQueryTable_LimitClampedToMax(t *testing.T) {
	store := newFakeStore()
	store.seed("users", 10)
	limits := DefaultLimits()
	limits.MaxLimit = 4
	limits.DefaultLimit = 2
	d := newTestDispatcher(t, store, WithLimits(limits))

	res := d.CallTool(context.Background(), "query_table", map[string]any{
		"table_name": "users",
		"limit":      "500",
	})
	require.False(t, res.IsError, resultText(t, res))

	var got types.QueryResult
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, 4, got.QueryParams.Limit)
	assert.Len(t, got.Data, 4)
}

func TestCountRows(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(t, store)
	ctx := context.Background()

	res := d.CallTool(ctx, "count_rows", map[string]any{"table_name": "vendors"})
	require.False(t, res.IsError)
	assert.Equal(t, "Table 'vendors' contains 0 total rows", resultText(t, res))

	store.seed("vendors", 7)
	res = d.CallTool(ctx, "count_rows", map[string]any{"table_name": "vendors"})
	require.False(t, res.IsError)
	assert.Equal(t, "Table 'vendors' contains 7 total rows", resultText(t, res))
}

func TestCallTool_StoreFault(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("dial tcp 127.0.0.1:5432: connection refused")
	d := newTestDispatcher(t, store)
	ctx := context.Background()

	for _, c := range []struct {
		tool string
		args map[string]any
	}{
		{"query_table", map[string]any{"table_name": "users"}},
		{"insert_data", map[string]any{"table_name": "users", "data": map[string]any{"email": "a@b.com"}}},
		{"count_rows", map[string]any{"table_name": "users"}},
	} {
		res := d.CallTool(ctx, c.tool, c.args)
		assert.True(t, res.IsError)
		text := resultText(t, res)
		assert.Contains(t, text, "operation "+c.tool+" failed")
		assert.Contains(t, text, "connection refused")
	}

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()

	res := d.CallTool(ctx, "count_rows", map[string]any{"table_name": "users"})
	assert.False(t, res.IsError)
	assert.Equal(t, "Table 'users' contains 0 total rows", resultText(t, res))
}

func TestCallTool_StorePanic(t *testing.T) {
	store := newFakeStore()
	store.panicMsg = "nil pointer in driver"
	d := newTestDispatcher(t, store)

	res := d.CallTool(context.Background(), "count_rows", map[string]any{"table_name": "users"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "operation count_rows failed")
	assert.Contains(t, resultText(t, res), "nil pointer in driver")
}

func TestCallTool_Timeout(t *testing.T) {
	store := newFakeStore()
	store.block = make(chan struct{})
	t.Cleanup(func() { close(store.block) })

	limits := DefaultLimits()
	limits.Timeout = 20 * time.Millisecond
	d := newTestDispatcher(t, store, WithLimits(limits))

	res := d.CallTool(context.Background(), "count_rows", map[string]any{"table_name": "users"})
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "operation count_rows failed")
	assert.Contains(t, resultText(t, res), "timed out")
}

func TestInsertData(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(t, store)
	ctx := context.Background()
	args := map[string]any{"table_name": "users", "data": map[string]any{"email": "a@b.com"}}

	res := d.CallTool(ctx, "insert_data", args)
	require.False(t, res.IsError, resultText(t, res))
	text := resultText(t, res)
	assert.True(t, strings.HasPrefix(text, "Successfully inserted into users:\n"), text)

	var echoed []types.Record
	require.NoError(t, json.Unmarshal([]byte(strings.SplitN(text, "\n", 2)[1]), &echoed))
	require.Len(t, echoed, 1)
	assert.Equal(t, "a@b.com", echoed[0]["email"])

	res = d.CallTool(ctx, "insert_data", args)
	require.False(t, res.IsError)

	assert.Len(t, store.tables["users"], 2)
}

func TestInsertData_DataAsJSONString(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(t, store)

	res := d.CallTool(context.Background(), "insert_data", map[string]any{
		"table_name": "users",
		"data":       `{"email": "a@b.com"}`,
	})
	require.False(t, res.IsError, resultText(t, res))
	assert.Equal(t, "a@b.com", store.tables["users"][0]["email"])
}

func TestCallTool_UnknownTool(t *testing.T) {
	d := newTestDispatcher(t, newFakeStore())

	res := d.CallTool(context.Background(), "drop_table", map[string]any{"table_name": "users"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Unknown tool: drop_table", resultText(t, res))
}

func TestCallTool_InvalidArguments(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(t, store)
	ctx := context.Background()

	tests := []struct {
		name string
		tool string
		args map[string]any
		want string
	}{
		{"missing table", "count_rows", map[string]any{}, `missing required argument "table_name"`},
		{"nil args", "query_table", nil, `missing required argument "table_name"`},
		{"table not a string", "count_rows", map[string]any{"table_name": 5.0}, `"table_name" must be a string`},
		{"columns not a string", "query_table", map[string]any{"table_name": "users", "columns": 5.0}, `"columns" must be a string`},
		{"columns as a list", "query_table", map[string]any{"table_name": "users", "columns": []any{"id"}}, `"columns" must be a string`},
		{"limit not a number", "query_table", map[string]any{"table_name": "users", "limit": "lots"}, `"limit" must be an integer`},
		{"fractional limit", "query_table", map[string]any{"table_name": "users", "limit": 2.5}, `"limit" must be an integer`},
		{"zero limit", "query_table", map[string]any{"table_name": "users", "limit": 0.0}, `"limit" must be at least 1`},
		{"missing data", "insert_data", map[string]any{"table_name": "users"}, `missing required argument "data"`},
		{"data not an object", "insert_data", map[string]any{"table_name": "users", "data": []any{1}}, `"data" must be an object`},
		{"empty data", "insert_data", map[string]any{"table_name": "users", "data": map[string]any{}}, `"data" must not be empty`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := d.CallTool(ctx, tt.tool, tt.args)
			assert.True(t, res.IsError)
			text := resultText(t, res)
			assert.Contains(t, text, "Invalid arguments for "+tt.tool)
			assert.Contains(t, text, tt.want)
		})
	}

	assert.Zero(t, store.calls)
}

func TestReadResource(t *testing.T) {
	store := newFakeStore()
	store.seed("users", 60)
	d := newTestDispatcher(t, store)

	var got types.ResourceData
	require.NoError(t, json.Unmarshal([]byte(d.ReadResource(context.Background(), "store://tables/users")), &got))

	assert.Equal(t, "users", got.Table)
	assert.Equal(t, 50, got.RowCount, "rowCount is the fetched count, capped at the resource limit")
	assert.Len(t, got.AllRows, 50)
	assert.Len(t, got.Sample, 10)
	assert.Equal(t, got.AllRows[:10], got.Sample)
}

func TestReadResource_SmallTable(t *testing.T) {
	store := newFakeStore()
	store.seed("vendors", 3)
	d := newTestDispatcher(t, store)

	var got types.ResourceData
	require.NoError(t, json.Unmarshal([]byte(d.ReadResource(context.Background(), "store://tables/vendors")), &got))
	assert.Equal(t, 3, got.RowCount)
	assert.Equal(t, len(got.AllRows), got.RowCount)
	assert.Len(t, got.Sample, 3)
}

func TestReadResource_UnknownTable(t *testing.T) {
	store := newFakeStore()
	d := newTestDispatcher(t, store)

	var got types.ResourceError
	require.NoError(t, json.Unmarshal([]byte(d.ReadResource(context.Background(), "store://tables/unknown_table")), &got))
	assert.Contains(t, got.Error, "unknown_table")
	assert.Equal(t, testTables, got.AvailableTables)
	assert.Zero(t, store.calls)
}

func TestReadResource_BadURI(t *testing.T) {
	d := newTestDispatcher(t, newFakeStore())

	for _, uri := range []string{"file:///etc/passwd", "store://views/users", "store://tables/", "::"} {
		var got types.ResourceError
		require.NoError(t, json.Unmarshal([]byte(d.ReadResource(context.Background(), uri)), &got), uri)
		assert.Contains(t, got.Error, "Unknown resource URI", uri)
	}
}

func TestReadResource_StoreFault(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("permission denied for table users")
	d := newTestDispatcher(t, store)

	var got types.ResourceError
	require.NoError(t, json.Unmarshal([]byte(d.ReadResource(context.Background(), "store://tables/users")), &got))
	assert.Equal(t, "permission denied for table users", got.Error)
	assert.Empty(t, got.AvailableTables)
}

func TestTableFromURI(t *testing.T) {
	name, ok := tableFromURI("store://tables/public/users")
	assert.True(t, ok)
	assert.Equal(t, "users", name)

	_, ok = tableFromURI("store://tables")
	assert.False(t, ok)
}
