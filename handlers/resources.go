package handlers

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/melkeydev/mcp-tables/metrics"
	"github.com/melkeydev/mcp-tables/types"
)

const (
	ResourceScheme      = "store"
	ResourceURIPrefix   = ResourceScheme + "://tables/"
	ResourceURITemplate = ResourceURIPrefix + "{table}"
	ResourceMIMEType    = "application/json"

	// ResourceCatchAllTemplate matches every store:// URI, including shapes
	// ReadResource rejects.
	ResourceCatchAllTemplate = ResourceScheme + "://{+path}"
)

func ResourceURI(table string) string {
	return ResourceURIPrefix + table
}

// tableFromURI returns the final path segment of a store://tables/... URI.
func tableFromURI(uri string) (string, bool) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != ResourceScheme || u.Host != "tables" {
		return "", false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	name := segments[len(segments)-1]
	if name == "" {
		return "", false
	}
	return name, true
}

func displayName(table string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(table, "_", " ")) + " Table"
}

// ListResources describes one resource per catalog table, in catalog order.
func (d *Dispatcher) ListResources() []mcp.Resource {
	names := d.catalog.ListNames()
	resources := make([]mcp.Resource, 0, len(names))
	for _, name := range names {
		description := fmt.Sprintf("Access data from the %s table", name)
		if meta, ok := d.catalog.Describe(name); ok && meta.Description != "" {
			description = meta.Description
		}
		resources = append(resources, mcp.NewResource(
			ResourceURI(name),
			displayName(name),
			mcp.WithResourceDescription(description),
			mcp.WithMIMEType(ResourceMIMEType),
		))
	}
	return resources
}

// ReadResource returns the JSON body for uri. Unknown tables and store
// failures produce an error body, never a Go error.
//
// The rowCount in a successful body counts the rows fetched, which is at
// most Limits.ResourceLimit. It is not the size of the table; count_rows
// reports that.
func (d *Dispatcher) ReadResource(ctx context.Context, uri string) string {
	logger := d.logger.With("uri", uri)

	table, ok := tableFromURI(uri)
	if !ok {
		d.metrics.ResourceRead(metrics.OutcomeRejected)
		return d.resourceError(types.ResourceError{Error: "Unknown resource URI: " + uri})
	}

	if !d.catalog.IsKnown(table) {
		logger.Warn("resource read rejected", "table", table)
		d.metrics.ResourceRead(metrics.OutcomeRejected)
		return d.resourceError(types.ResourceError{
			Error:           fmt.Sprintf("Table '%s' not found in known tables", table),
			AvailableTables: d.catalog.ListNames(),
		})
	}

	var rows []types.Record
	err := d.storeCall(ctx, "select", func(ctx context.Context) error {
		var err error
		rows, err = d.store.Select(ctx, table, "*", d.limits.ResourceLimit)
		return err
	})
	if err != nil {
		logger.Error("resource read failed", "table", table, "error", err)
		d.metrics.ResourceRead(metrics.OutcomeFailed)
		return d.resourceError(types.ResourceError{Error: err.Error()})
	}
	if rows == nil {
		rows = []types.Record{}
	}

	sample := rows
	if len(sample) > d.limits.SampleSize {
		sample = sample[:d.limits.SampleSize]
	}

	body, err := marshalIndent(types.ResourceData{
		Table:    table,
		RowCount: len(rows),
		Sample:   sample,
		AllRows:  rows,
	})
	if err != nil {
		d.metrics.ResourceRead(metrics.OutcomeFailed)
		return d.resourceError(types.ResourceError{Error: err.Error()})
	}

	logger.Info("resource read", "table", table, "rows", len(rows))
	d.metrics.ResourceRead(metrics.OutcomeOK)
	return body
}

func (d *Dispatcher) resourceError(e types.ResourceError) string {
	body, err := marshalIndent(e)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, e.Error)
	}
	return body
}
