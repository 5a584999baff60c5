package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/raymundl/kestrel-lang/internal/store"
)

// ErrUnsupportedOperator is returned by Assign for any operator other than
// "sort" — the only one spec.md §4.3.9 (SORT) requires.
var ErrUnsupportedOperator = errors.New("postgres: unsupported assign operator")

// Store implements store.Store against the `entities`/`kestrel_views`
// schema created by this module's migrations.
type Store struct {
	conn   *Connection
	logger *slog.Logger
}

// New wraps conn as a store.Store.
func New(conn *Connection, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{conn: conn, logger: logger}
}

var _ store.Store = (*Store)(nil)

// Types returns every distinct STIX type present in the entities table.
func (s *Store) Types(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT DISTINCT type FROM entities`)
	if err != nil {
		return nil, fmt.Errorf("postgres: types: %w", err)
	}
	defer func() { _ = rows.Close() }()

	types := make(map[string]struct{})

	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}

		types[t] = struct{}{}
	}

	return types, rows.Err()
}

// Columns returns the ordered, deduplicated set of JSONB keys observed
// across table's rows.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	query := fmt.Sprintf(`SELECT DISTINCT jsonb_object_keys(data) FROM %s ORDER BY 1`, quoteIdent(viewTableName(table)))

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: columns %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string

	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}

		cols = append(cols, c)
	}

	return cols, rows.Err()
}

// Extract creates view from entities of typ matching pattern, scoped to
// queryID when non-empty.
func (s *Store) Extract(ctx context.Context, view, typ, queryID, pattern string) error {
	whereParts := []string{fmt.Sprintf("type = %s", pq.QuoteLiteral(typ))}

	if queryID != "" {
		whereParts = append(whereParts, fmt.Sprintf("query_id = %s", pq.QuoteLiteral(queryID)))
	}

	if pattern != "" {
		where, err := translatePattern(pattern)
		if err != nil {
			return err
		}

		whereParts = append(whereParts, "("+where+")")
	}

	selectSQL := fmt.Sprintf(
		`SELECT row_id, stix_id, type, data, query_id, inserted_at FROM entities WHERE %s`,
		strings.Join(whereParts, " AND "),
	)

	return s.createView(ctx, view, typ, selectSQL)
}

// Merge creates view as the union of sources.
func (s *Store) Merge(ctx context.Context, view string, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("postgres: merge %s: no source views", view)
	}

	parts := make([]string, len(sources))
	for i, src := range sources {
		parts[i] = fmt.Sprintf(
			`SELECT row_id, stix_id, type, data, query_id, inserted_at FROM %s`,
			quoteIdent(viewTableName(src)),
		)
	}

	typ, err := s.viewType(ctx, sources[0])
	if err != nil {
		return err
	}

	return s.createView(ctx, view, typ, strings.Join(parts, " UNION "))
}

// Filter creates view from srcView's rows matching pattern, typed typ.
func (s *Store) Filter(ctx context.Context, view, typ, srcView, pattern string) error {
	whereParts := []string{fmt.Sprintf("type = %s", pq.QuoteLiteral(typ))}

	if pattern != "" {
		where, err := translatePattern(pattern)
		if err != nil {
			return err
		}

		whereParts = append(whereParts, "("+where+")")
	}

	selectSQL := fmt.Sprintf(
		`SELECT row_id, stix_id, type, data, query_id, inserted_at FROM %s WHERE %s`,
		quoteIdent(viewTableName(srcView)), strings.Join(whereParts, " AND "),
	)

	return s.createView(ctx, view, typ, selectSQL)
}

// Lookup returns up to limit rows of view projected to attrs.
func (s *Store) Lookup(ctx context.Context, view string, attrs []string, limit int) ([]store.Row, error) {
	query := fmt.Sprintf(`SELECT data FROM %s`, quoteIdent(viewTableName(view)))
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: lookup %s: %w", view, err)
	}
	defer func() { _ = rows.Close() }()

	var out []store.Row

	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}

		var obj map[string]any
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}

		out = append(out, projectRow(obj, attrs))
	}

	return out, rows.Err()
}

func projectRow(obj map[string]any, attrs []string) store.Row {
	if len(attrs) == 0 {
		return store.Row(obj)
	}

	row := make(store.Row, len(attrs))
	for _, a := range attrs {
		if v, ok := obj[a]; ok {
			row[a] = v
		}
	}

	return row
}

// RenameView renames a view in place.
func (s *Store) RenameView(ctx context.Context, oldName, newName string) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(
		`ALTER VIEW %s RENAME TO %s`, quoteIdent(viewTableName(oldName)), quoteIdent(viewTableName(newName)),
	))
	if err != nil {
		return fmt.Errorf("postgres: rename view %s -> %s: %w", oldName, newName, err)
	}

	_, err = s.conn.ExecContext(ctx,
		`UPDATE kestrel_views SET view_name = $1 WHERE view_name = $2`, newName, oldName)

	return err
}

// RemoveView drops a view; idempotent.
func (s *Store) RemoveView(ctx context.Context, view string) error {
	_, err := s.conn.ExecContext(ctx, fmt.Sprintf(`DROP VIEW IF EXISTS %s`, quoteIdent(viewTableName(view))))
	if err != nil {
		return fmt.Errorf("postgres: remove view %s: %w", view, err)
	}

	_, err = s.conn.ExecContext(ctx, `DELETE FROM kestrel_views WHERE view_name = $1`, view)

	return err
}

// Assign creates view from src using the "sort" operator: args are
// (path, direction) where direction is "ascending" or "descending".
func (s *Store) Assign(ctx context.Context, view, src, op string, args ...string) error {
	if op != "sort" {
		return fmt.Errorf("%w: %s", ErrUnsupportedOperator, op)
	}

	if len(args) != 2 {
		return fmt.Errorf("postgres: sort requires (path, direction), got %v", args)
	}

	path, direction := args[0], args[1]

	order := "ASC"
	if direction == "descending" {
		order = "DESC"
	}

	typ, err := s.viewType(ctx, src)
	if err != nil {
		return err
	}

	column := attrColumn(strings.Split(path, "."))

	selectSQL := fmt.Sprintf(
		`SELECT row_id, stix_id, type, data, query_id, inserted_at FROM %s ORDER BY %s %s`,
		quoteIdent(viewTableName(src)), column, order,
	)

	return s.createView(ctx, view, typ, selectSQL)
}

// AssignQuery creates view by executing q's Table -> Group -> Aggregation
// plan (GROUP's only backing, spec.md §4.3.8): one output column per
// GroupBy path and one per aggregation, named by the path or the
// aggregation's alias, flattened into the standard `data JSONB` column so
// the result remains readable through Lookup/Counts like any other view.
func (s *Store) AssignQuery(ctx context.Context, view string, q store.Query) error {
	typ, err := s.viewType(ctx, q.From)
	if err != nil {
		return err
	}

	if len(q.GroupBy) == 0 && len(q.Aggregations) == 0 {
		selectSQL := fmt.Sprintf(
			`SELECT row_id, stix_id, type, data, query_id, inserted_at FROM %s`,
			quoteIdent(viewTableName(q.From)),
		)

		return s.createView(ctx, view, typ, selectSQL)
	}

	groupExprs := make([]string, 0, len(q.GroupBy))
	pairs := make([]string, 0, len(q.GroupBy)+len(q.Aggregations))

	for _, path := range q.GroupBy {
		expr := attrColumn(strings.Split(path, "."))
		groupExprs = append(groupExprs, expr)
		pairs = append(pairs, fmt.Sprintf("%s, %s", pq.QuoteLiteral(path), expr))
	}

	for _, agg := range q.Aggregations {
		aggExpr, err := aggregateExpr(agg.Func, attrColumn(strings.Split(agg.Attr, ".")))
		if err != nil {
			return err
		}

		pairs = append(pairs, fmt.Sprintf("%s, %s", pq.QuoteLiteral(agg.Alias), aggExpr))
	}

	groupByClause := ""
	if len(groupExprs) > 0 {
		groupByClause = " GROUP BY " + strings.Join(groupExprs, ", ")
	}

	selectSQL := fmt.Sprintf(
		`SELECT row_number() OVER () AS row_id, NULL::text AS stix_id, %s AS type, jsonb_build_object(%s) AS data, NULL::text AS query_id, now() AS inserted_at FROM %s%s`,
		pq.QuoteLiteral(typ), strings.Join(pairs, ", "), quoteIdent(viewTableName(q.From)), groupByClause,
	)

	return s.createView(ctx, view, typ, selectSQL)
}

// ErrUnsupportedAggregation is returned by AssignQuery for any aggregation
// function outside spec.md §4.3.8's closed set.
var ErrUnsupportedAggregation = errors.New("postgres: unsupported aggregation function")

// aggregateExpr renders func(expr) for one of the aggregation functions
// GROUP supports; sum/avg/min/max operate on the numeric interpretation of
// the JSONB text extraction, count/nunique stay text-typed since they only
// need to distinguish values, not order them.
func aggregateExpr(fn, expr string) (string, error) {
	switch fn {
	case "sum":
		return fmt.Sprintf("SUM((%s)::numeric)", expr), nil
	case "avg":
		return fmt.Sprintf("AVG((%s)::numeric)", expr), nil
	case "min":
		return fmt.Sprintf("MIN((%s)::numeric)", expr), nil
	case "max":
		return fmt.Sprintf("MAX((%s)::numeric)", expr), nil
	case "count":
		return fmt.Sprintf("COUNT(%s)", expr), nil
	case "nunique":
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr), nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedAggregation, fn)
	}
}

// Join creates view as the inner join of left and right on dotted-path
// columns, merging each matched pair's JSONB objects (right overwrites
// overlapping keys).
func (s *Store) Join(ctx context.Context, view, left, leftPath, right, rightPath string) error {
	leftCol := aliasedAttrColumn("l", strings.Split(leftPath, "."))
	rightCol := aliasedAttrColumn("r", strings.Split(rightPath, "."))

	typ, err := s.viewType(ctx, left)
	if err != nil {
		return err
	}

	selectSQL := fmt.Sprintf(
		`SELECT l.row_id AS row_id, l.stix_id AS stix_id, l.type AS type, (l.data || r.data) AS data, l.query_id AS query_id, l.inserted_at AS inserted_at
		 FROM %s l JOIN %s r ON %s = %s`,
		quoteIdent(viewTableName(left)), quoteIdent(viewTableName(right)), leftCol, rightCol,
	)

	return s.createView(ctx, view, typ, selectSQL)
}

func aliasedAttrColumn(alias string, path []string) string {
	col := attrColumn(path)

	return strings.Replace(col, "data", alias+".data", 1)
}

// Insert bulk-inserts rows of typ into a fresh batch tagged by a generated
// query id, then materializes view over exactly that batch.
func (s *Store) Insert(ctx context.Context, view, typ string, rows []store.Row) (recordsCount, length int, err error) {
	batchID := uuid.NewString()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}

	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entities (stix_id, type, data, query_id) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = stmt.Close() }()

	for _, row := range rows {
		data, marshalErr := json.Marshal(map[string]any(row))
		if marshalErr != nil {
			return 0, 0, marshalErr
		}

		stixID, _ := row["id"].(string)

		if _, execErr := stmt.ExecContext(ctx, nullIfEmpty(stixID), typ, data, batchID); execErr != nil {
			return 0, 0, execErr
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}

	if err := s.createView(ctx, view, typ, fmt.Sprintf(
		`SELECT row_id, stix_id, type, data, query_id, inserted_at FROM entities WHERE query_id = %s`,
		pq.QuoteLiteral(batchID),
	)); err != nil {
		return 0, 0, err
	}

	length, recordsCount, err = s.Counts(ctx, view)

	return recordsCount, length, err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}

	return s
}

// Export writes view's rows to path as a JSON array, the same shape LOAD
// reads back.
func (s *Store) Export(ctx context.Context, view, path string) error {
	rows, err := s.Lookup(ctx, view, nil, 0)
	if err != nil {
		return fmt.Errorf("postgres: export %s: %w", view, err)
	}

	objects := make([]map[string]any, len(rows))
	for i, r := range rows {
		objects[i] = map[string]any(r)
	}

	data, err := json.MarshalIndent(objects, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600) //nolint:gosec // path is from a trusted DSL statement
}

// Counts returns (length, recordsCount) for view: distinct entities (by
// stix_id, falling back to the row's JSON body when stix_id is absent) and
// total row count.
func (s *Store) Counts(ctx context.Context, view string) (length, recordsCount int, err error) {
	query := fmt.Sprintf(
		`SELECT COUNT(*), COUNT(DISTINCT COALESCE(stix_id, data::text)) FROM %s`,
		quoteIdent(viewTableName(view)),
	)

	row := s.conn.QueryRowContext(ctx, query)
	if err := row.Scan(&recordsCount, &length); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, nil
		}

		return 0, 0, fmt.Errorf("postgres: counts %s: %w", view, err)
	}

	return length, recordsCount, nil
}

// createView materializes a logical view name as a real Postgres view over
// selectSQL, recording it in kestrel_views for later introspection.
//
// selectSQL must be fully literal SQL: CREATE OR REPLACE VIEW does not accept
// bind parameters, so every value a caller needs in the view definition
// (type filters, query ids, pattern literals, …) must already be inlined via
// pq.QuoteLiteral/quoteIdent before reaching this method.
func (s *Store) createView(ctx context.Context, view, typ, selectSQL string) error {
	physical := quoteIdent(viewTableName(view))

	createSQL := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS %s`, physical, selectSQL)

	if _, err := s.conn.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("postgres: create view %s: %w", view, err)
	}

	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO kestrel_views (view_name, entity_type) VALUES ($1, $2)
		 ON CONFLICT (view_name) DO UPDATE SET entity_type = EXCLUDED.entity_type`,
		view, typ,
	)
	if err != nil {
		return fmt.Errorf("postgres: record view %s: %w", view, err)
	}

	return nil
}

// viewType looks up the entity type a previously-created view was recorded
// under.
func (s *Store) viewType(ctx context.Context, view string) (string, error) {
	var typ string

	err := s.conn.QueryRowContext(ctx, `SELECT entity_type FROM kestrel_views WHERE view_name = $1`, view).Scan(&typ)
	if err != nil {
		return "", fmt.Errorf("postgres: view %s not found: %w", view, err)
	}

	return typ, nil
}
