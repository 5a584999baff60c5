// Package store defines the Store Adapter contract: the thin interface the
// command executors consume over the backing relational store (spec.md §6
// "Store contract"). The store itself — schema, query planning, persistence
// engine — is an external collaborator; this package only specifies what the
// domain needs from it, following the same Dependency Inversion pattern the
// teacher repo uses for internal/ingestion.Store (interface defined by the
// consuming domain, implemented by internal/storage).
package store

import "context"

// Row is a single result row: attribute name to value.
type Row map[string]any

// Store is the contract every command executor relies on. A concrete
// implementation backs entity_table names with real views over a relational
// engine (see internal/store/postgres).
type Store interface {
	// Types returns the set of STIX entity types currently known to the
	// store (i.e. that have at least one row somewhere).
	Types(ctx context.Context) (map[string]struct{}, error)

	// Columns returns the ordered column list for a view/table.
	Columns(ctx context.Context, table string) ([]string, error)

	// Extract creates view from the rows of typ matching pattern, scoped to
	// queryID when non-empty (ties the view to a specific remote fetch).
	Extract(ctx context.Context, view, typ, queryID, pattern string) error

	// Merge creates view as the union of the named views (which must share
	// a common entity type).
	Merge(ctx context.Context, view string, sources []string) error

	// Filter creates view from srcView's rows matching pattern, typed typ.
	Filter(ctx context.Context, view, typ, srcView, pattern string) error

	// Lookup returns up to limit rows of view, projected to attrs (nil/empty
	// means all columns). limit <= 0 means unbounded.
	Lookup(ctx context.Context, view string, attrs []string, limit int) ([]Row, error)

	// RenameView renames a view in place.
	RenameView(ctx context.Context, oldName, newName string) error

	// RemoveView drops a view. Must be idempotent: removing a view that
	// does not exist is not an error (spec.md §5 "temporary view removal is
	// idempotent").
	RemoveView(ctx context.Context, view string) error

	// Assign creates view from src using a simple operator (currently only
	// "sort", see internal/exec/sort.go), with op-specific args.
	Assign(ctx context.Context, view, src, op string, args ...string) error

	// AssignQuery creates view by executing a composed Query plan (used by
	// GROUP, see internal/exec/group.go).
	AssignQuery(ctx context.Context, view string, q Query) error

	// Join creates view as the inner join of left/right views on the given
	// dotted-path columns.
	Join(ctx context.Context, view, left, leftPath, right, rightPath string) error

	// Insert bulk-inserts rows of typ into the store under view (used by
	// NEW/LOAD).
	Insert(ctx context.Context, view, typ string, rows []Row) (recordsCount, length int, err error)

	// Export writes view's rows to path in a store-defined on-disk format
	// (used by SAVE).
	Export(ctx context.Context, view, path string) error

	// Counts returns (length, recordsCount) for view: the distinct entity
	// count and the underlying row count.
	Counts(ctx context.Context, view string) (length, recordsCount int, err error)
}

// Query is a composable relational query plan: Table -> Filter -> Group ->
// Aggregation, mirroring the store contract's assign_query operation.
// Grounded on spec.md §4.3.8's GROUP composition; the plan is intentionally
// small since this module does not define a new storage engine (spec.md §1
// non-goal), it only shapes the one request AssignQuery needs to carry.
type Query struct {
	// From is the source view/table.
	From string

	// GroupBy is the list of dotted-attribute paths to group on. Empty
	// means no grouping (a plain projection/filter query).
	GroupBy []string

	// Aggregations is the list of aggregate computations to project
	// alongside GroupBy columns.
	Aggregations []QueryAggregation
}

// QueryAggregation is one GROUP ... WITH aggregation, alias already resolved
// to its default (func_attr) if the statement omitted one.
type QueryAggregation struct {
	Func  string
	Attr  string
	Alias string
}
