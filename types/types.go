package types

// Record is one row as returned by or sent to a data store, keyed by column name.
type Record map[string]any

// TableMetadata is optional, informational metadata about an allow-listed
// table. It never gates access.
type TableMetadata struct {
	Description   string   `json:"description,omitempty"`
	PrimaryKey    string   `json:"primary_key,omitempty"`
	CommonColumns []string `json:"common_columns,omitempty"`
}

// ResourceData is the body of a successful resource read.
//
// RowCount is the number of rows fetched for the read (bounded by the
// resource limit), not the exact size of the table. Use count_rows for that.
type ResourceData struct {
	Table    string   `json:"table"`
	RowCount int      `json:"rowCount"`
	Sample   []Record `json:"sample"`
	AllRows  []Record `json:"allRows"`
}

// ResourceError is the body of a resource read that could not be served.
type ResourceError struct {
	Error           string   `json:"error"`
	AvailableTables []string `json:"availableTables,omitempty"`
}

type QueryParams struct {
	Columns string `json:"columns"`
	Limit   int    `json:"limit"`
}

// QueryResult is the payload returned by the query_table tool.
type QueryResult struct {
	Table       string      `json:"table"`
	QueryParams QueryParams `json:"queryParams"`
	RowCount    int         `json:"rowCount"`
	Data        []Record    `json:"data"`
}
