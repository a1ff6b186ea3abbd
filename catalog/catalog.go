// Package catalog holds the allow-list of tables the server may touch.
// A Catalog is built once at startup and is read-only afterwards, so it is
// safe to share between goroutines without locking.
package catalog

import (
	"fmt"
	"strings"

	"github.com/melkeydev/mcp-tables/config"
	"github.com/melkeydev/mcp-tables/types"
)

type Entry struct {
	Name     string
	Metadata types.TableMetadata
}

type Catalog struct {
	names []string
	meta  map[string]types.TableMetadata
}

// New builds a Catalog from entries, preserving their order.
func New(entries ...Entry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalog must contain at least one table")
	}

	c := &Catalog{
		names: make([]string, 0, len(entries)),
		meta:  make(map[string]types.TableMetadata, len(entries)),
	}
	for _, e := range entries {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return nil, fmt.Errorf("catalog entry with empty table name")
		}
		if _, dup := c.meta[name]; dup {
			return nil, fmt.Errorf("table %s listed twice", name)
		}
		c.names = append(c.names, name)
		c.meta[name] = e.Metadata
	}

	return c, nil
}

// FromConfig builds a Catalog from the catalog section of the config file.
func FromConfig(cfg config.CatalogConfig) (*Catalog, error) {
	entries := make([]Entry, 0, len(cfg.Tables))
	for _, t := range cfg.Tables {
		entries = append(entries, Entry{Name: t.Name, Metadata: t.Metadata()})
	}
	return New(entries...)
}

// IsKnown reports whether name is on the allow-list. Matching is exact.
func (c *Catalog) IsKnown(name string) bool {
	_, ok := c.meta[name]
	return ok
}

// ListNames returns a copy of the allow-list in configured order.
func (c *Catalog) ListNames() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Describe returns the metadata configured for name. The second result is
// false when name is unknown or carries no metadata.
func (c *Catalog) Describe(name string) (types.TableMetadata, bool) {
	m, ok := c.meta[name]
	if !ok {
		return types.TableMetadata{}, false
	}
	if m.Description == "" && m.PrimaryKey == "" && len(m.CommonColumns) == 0 {
		return m, false
	}
	return m, true
}

func (c *Catalog) Len() int {
	return len(c.names)
}
