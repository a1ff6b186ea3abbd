// Package postgrest talks to a PostgREST endpoint, such as the REST API of a
// Supabase project, instead of opening a database connection.
package postgrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/melkeydev/mcp-tables/databases/sqlstore"
	"github.com/melkeydev/mcp-tables/types"
)

const maxErrorBody = 4 << 10

type PostgRESTConnector struct {
	root   *url.URL
	apiKey string
	client *http.Client
}

// NewPostgRESTConnector connects to baseURL. A bare project URL such as
// https://xyz.supabase.co is completed with the /rest/v1 prefix.
func NewPostgRESTConnector(baseURL, apiKey string, client *http.Client) (*PostgRESTConnector, error) {
	root, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("unsupported url scheme %q", root.Scheme)
	}
	if root.Path == "" || root.Path == "/" {
		root.Path = "/rest/v1"
	}
	root.Path = strings.TrimSuffix(root.Path, "/")

	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}

	connector := &PostgRESTConnector{
		root:   root,
		apiKey: apiKey,
		client: client,
	}

	if err := connector.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to reach postgrest: %w", err)
	}

	return connector, nil
}

func (c *PostgRESTConnector) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, c.root.String()+"/", nil, nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *PostgRESTConnector) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *PostgRESTConnector) Select(ctx context.Context, table, columns string, limit int) ([]types.Record, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}
	cols, err := sqlstore.ParseColumns(columns)
	if err != nil {
		return nil, err
	}
	projection := "*"
	if len(cols) > 0 {
		projection = strings.Join(cols, ",")
	}

	endpoint, schema, err := c.tableURL(table, url.Values{
		"select": {projection},
		"limit":  {strconv.Itoa(limit)},
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodGet, endpoint, nil, withProfile(nil, "Accept-Profile", schema))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeRecords(resp.Body)
}

func (c *PostgRESTConnector) Insert(ctx context.Context, table string, rec types.Record) ([]types.Record, error) {
	if len(rec) == 0 {
		return nil, fmt.Errorf("no columns to insert")
	}
	endpoint, schema, err := c.tableURL(table, nil)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withProfile(http.Header{
		"Content-Type": {"application/json"},
		"Prefer":       {"return=representation"},
	}, "Content-Profile", schema))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return decodeRecords(resp.Body)
}

// Count asks PostgREST for an exact count and reads it from Content-Range.
func (c *PostgRESTConnector) Count(ctx context.Context, table string) (int64, error) {
	endpoint, schema, err := c.tableURL(table, url.Values{"select": {"*"}})
	if err != nil {
		return 0, err
	}

	resp, err := c.do(ctx, http.MethodHead, endpoint, nil, withProfile(http.Header{
		"Prefer": {"count=exact"},
	}, "Accept-Profile", schema))
	if err != nil {
		return 0, err
	}
	resp.Body.Close()

	return parseContentRangeTotal(resp.Header.Get("Content-Range"))
}

// tableURL returns the endpoint for table and, for a "schema.table" name,
// the schema. PostgREST addresses tables by bare name and picks the schema
// from the Accept-Profile or Content-Profile header.
func (c *PostgRESTConnector) tableURL(table string, query url.Values) (string, string, error) {
	if err := sqlstore.ValidateTable(table); err != nil {
		return "", "", err
	}
	schema, name, qualified := strings.Cut(table, ".")
	if !qualified {
		schema, name = "", table
	}

	u := *c.root
	u.Path = c.root.Path + "/" + name
	u.RawQuery = query.Encode()
	return u.String(), schema, nil
}

func withProfile(header http.Header, key, schema string) http.Header {
	if schema == "" {
		return header
	}
	if header == nil {
		header = http.Header{}
	}
	header.Set(key, schema)
	return header
}

func (c *PostgRESTConnector) do(ctx context.Context, method, endpoint string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, responseError(resp)
	}
	return resp, nil
}

// responseError turns a PostgREST error body ({"message": ..., "code": ...})
// into an error, falling back to the raw status.
func responseError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var apiErr struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details string `json:"details"`
	}
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Message != "" {
		msg := apiErr.Message
		if apiErr.Code != "" {
			msg = apiErr.Code + ": " + msg
		}
		if apiErr.Details != "" {
			msg += " (" + apiErr.Details + ")"
		}
		return fmt.Errorf("postgrest returned %s: %s", resp.Status, msg)
	}

	if text := strings.TrimSpace(string(raw)); text != "" {
		return fmt.Errorf("postgrest returned %s: %s", resp.Status, text)
	}
	return fmt.Errorf("postgrest returned %s", resp.Status)
}

func decodeRecords(r io.Reader) ([]types.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	records := []types.Record{}
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode rows: %w", err)
	}
	return records, nil
}

// parseContentRangeTotal extracts the total from "0-24/3573" or "*/0".
func parseContentRangeTotal(header string) (int64, error) {
	i := strings.LastIndexByte(header, '/')
	if i < 0 || i == len(header)-1 {
		return 0, fmt.Errorf("missing total in Content-Range %q", header)
	}
	total := header[i+1:]
	if total == "*" {
		return 0, fmt.Errorf("server did not report an exact count")
	}
	n, err := strconv.ParseInt(total, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid Content-Range %q: %w", header, err)
	}
	return n, nil
}
