package exec

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/raymundl/kestrel-lang/internal/store"
)

// memStore is an in-memory store.Store test double. It keeps a global pool
// of every row ever inserted (typed, optionally tagged with a query id) plus
// a set of named views, each a materialized row slice with a type. It
// understands enough of the STIX pattern shapes this repo's pattern/relation
// compilers actually produce (equality, IN-lists, AND/OR, optional bracket
// wrapping) to exercise GET/FIND/prefetch orchestration end to end without a
// real database.
type memStore struct {
	entities []taggedRow
	views    map[string]*memView
}

type taggedRow struct {
	typ     string
	queryID string
	row     store.Row
}

type memView struct {
	typ  string
	rows []store.Row
}

func newMemStore() *memStore {
	return &memStore{views: make(map[string]*memView)}
}

var _ store.Store = (*memStore)(nil)

func (m *memStore) Types(context.Context) (map[string]struct{}, error) {
	types := make(map[string]struct{})

	for _, e := range m.entities {
		types[e.typ] = struct{}{}
	}

	for _, v := range m.views {
		if len(v.rows) > 0 {
			types[v.typ] = struct{}{}
		}
	}

	return types, nil
}

func (m *memStore) Columns(_ context.Context, table string) ([]string, error) {
	v, ok := m.views[table]
	if !ok {
		return nil, nil
	}

	seen := make(map[string]struct{})

	var cols []string

	for _, row := range v.rows {
		for k := range row {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}

				cols = append(cols, k)
			}
		}
	}

	sort.Strings(cols)

	return cols, nil
}

func (m *memStore) Extract(_ context.Context, view, typ, queryID, pattern string) error {
	var rows []store.Row

	for _, e := range m.entities {
		if e.typ != typ {
			continue
		}

		if queryID != "" && e.queryID != queryID {
			continue
		}

		if matchPattern(pattern, typ, e.row) {
			rows = append(rows, e.row)
		}
	}

	m.views[view] = &memView{typ: typ, rows: rows}

	return nil
}

func (m *memStore) Merge(_ context.Context, view string, sources []string) error {
	var typ string

	var rows []store.Row

	for _, src := range sources {
		v, ok := m.views[src]
		if !ok {
			continue
		}

		if typ == "" {
			typ = v.typ
		}

		rows = append(rows, v.rows...)
	}

	m.views[view] = &memView{typ: typ, rows: dedupRows(rows)}

	return nil
}

func (m *memStore) Filter(_ context.Context, view, typ, srcView, pattern string) error {
	src, ok := m.views[srcView]
	if !ok {
		m.views[view] = &memView{typ: typ}

		return nil
	}

	var rows []store.Row

	for _, row := range src.rows {
		if matchPattern(pattern, typ, row) {
			rows = append(rows, row)
		}
	}

	m.views[view] = &memView{typ: typ, rows: rows}

	return nil
}

func (m *memStore) Lookup(_ context.Context, view string, attrs []string, limit int) ([]store.Row, error) {
	v, ok := m.views[view]
	if !ok {
		return nil, nil
	}

	rows := v.rows
	if limit > 0 && limit < len(rows) {
		rows = rows[:limit]
	}

	if len(attrs) == 0 {
		return rows, nil
	}

	out := make([]store.Row, len(rows))

	for i, row := range rows {
		projected := store.Row{}

		for _, attr := range attrs {
			if val, ok := dottedGet(row, attr); ok {
				projected[attr] = val
			}
		}

		out[i] = projected
	}

	return out, nil
}

func (m *memStore) RenameView(_ context.Context, oldName, newName string) error {
	v, ok := m.views[oldName]
	if !ok {
		return fmt.Errorf("memstore: rename: unknown view %s", oldName)
	}

	m.views[newName] = v
	delete(m.views, oldName)

	return nil
}

func (m *memStore) RemoveView(_ context.Context, view string) error {
	delete(m.views, view)

	return nil
}

func (m *memStore) Assign(_ context.Context, view, src, op string, args ...string) error {
	v, ok := m.views[src]
	if !ok {
		return fmt.Errorf("memstore: assign: unknown view %s", src)
	}

	switch op {
	case "sort":
		path, direction := args[0], args[1]

		sorted := make([]store.Row, len(v.rows))
		copy(sorted, v.rows)

		sort.SliceStable(sorted, func(i, j int) bool {
			vi, _ := dottedGet(sorted[i], path)
			vj, _ := dottedGet(sorted[j], path)

			less := fmt.Sprintf("%v", vi) < fmt.Sprintf("%v", vj)
			if direction == "descending" {
				return !less
			}

			return less
		})

		m.views[view] = &memView{typ: v.typ, rows: sorted}

		return nil
	default:
		return fmt.Errorf("memstore: unsupported assign operator %q", op)
	}
}

func (m *memStore) AssignQuery(_ context.Context, view string, q store.Query) error {
	src, ok := m.views[q.From]
	if !ok {
		m.views[view] = &memView{}

		return nil
	}

	if len(q.GroupBy) == 0 && len(q.Aggregations) == 0 {
		m.views[view] = &memView{typ: src.typ, rows: src.rows}

		return nil
	}

	groups := make(map[string][]store.Row)

	var order []string

	for _, row := range src.rows {
		key := groupKey(row, q.GroupBy)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}

		groups[key] = append(groups[key], row)
	}

	var out []store.Row

	for _, key := range order {
		rows := groups[key]
		result := store.Row{}

		parts := strings.Split(key, "\x1f")
		for i, path := range q.GroupBy {
			v, _ := dottedGet(rows[0], path)
			result[path] = v
			_ = parts
		}

		for _, agg := range q.Aggregations {
			result[agg.Alias] = aggregate(agg.Func, agg.Attr, rows)
		}

		out = append(out, result)
	}

	m.views[view] = &memView{typ: src.typ, rows: out}

	return nil
}

func (m *memStore) Join(_ context.Context, view, left, leftPath, right, rightPath string) error {
	l, lok := m.views[left]
	r, rok := m.views[right]

	if !lok || !rok {
		m.views[view] = &memView{}

		return nil
	}

	var out []store.Row

	for _, lrow := range l.rows {
		lv, ok := dottedGet(lrow, leftPath)
		if !ok {
			continue
		}

		for _, rrow := range r.rows {
			rv, ok := dottedGet(rrow, rightPath)
			if !ok {
				continue
			}

			if fmt.Sprintf("%v", lv) == fmt.Sprintf("%v", rv) {
				merged := store.Row{}

				for k, v := range lrow {
					merged[k] = v
				}

				for k, v := range rrow {
					merged[k] = v
				}

				out = append(out, merged)
			}
		}
	}

	typ := l.typ
	if typ == "" {
		typ = r.typ
	}

	m.views[view] = &memView{typ: typ, rows: out}

	return nil
}

func (m *memStore) Insert(_ context.Context, view, typ string, rows []store.Row) (int, int, error) {
	for _, row := range rows {
		m.entities = append(m.entities, taggedRow{typ: typ, row: row})
	}

	m.views[view] = &memView{typ: typ, rows: rows}

	length, records := countRows(rows)

	return records, length, nil
}

func (m *memStore) Export(context.Context, string, string) error {
	return nil
}

func (m *memStore) Counts(_ context.Context, view string) (int, int, error) {
	v, ok := m.views[view]
	if !ok {
		return 0, 0, nil
	}

	length, records := countRows(v.rows)

	return length, records, nil
}

// loadRemote seeds the global entity pool as if a datasource response had
// been loaded into the store, tagging every row with queryID.
func (m *memStore) loadRemote(queryID, typ string, rows []store.Row) {
	for _, row := range rows {
		m.entities = append(m.entities, taggedRow{typ: typ, queryID: queryID, row: row})
	}
}

func countRows(rows []store.Row) (length, records int) {
	seen := make(map[string]struct{})

	for _, row := range rows {
		key := entityKey(row)
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
		}
	}

	return len(seen), len(rows)
}

// entityKey identifies distinct entities within a row set: "id" when present,
// else the row's full content.
func entityKey(row store.Row) string {
	if id, ok := row["id"]; ok {
		return fmt.Sprintf("%v", id)
	}

	return fmt.Sprintf("%v", map[string]any(row))
}

func dedupRows(rows []store.Row) []store.Row {
	seen := make(map[string]struct{}, len(rows))

	var out []store.Row

	for _, row := range rows {
		key := entityKey(row)
		if _, ok := seen[key]; ok {
			continue
		}

		seen[key] = struct{}{}

		out = append(out, row)
	}

	return out
}

func groupKey(row store.Row, paths []string) string {
	parts := make([]string, len(paths))

	for i, p := range paths {
		v, _ := dottedGet(row, p)
		parts[i] = fmt.Sprintf("%v", v)
	}

	return strings.Join(parts, "\x1f")
}

func aggregate(fn, attr string, rows []store.Row) any {
	switch fn {
	case "count":
		return len(rows)
	case "nunique":
		seen := make(map[string]struct{})

		for _, row := range rows {
			v, _ := dottedGet(row, attr)
			seen[fmt.Sprintf("%v", v)] = struct{}{}
		}

		return len(seen)
	case "sum", "avg", "min", "max":
		var values []float64

		for _, row := range rows {
			if v, ok := dottedGet(row, attr); ok {
				if f, ok := toFloat(v); ok {
					values = append(values, f)
				}
			}
		}

		return reduceFloats(fn, values)
	default:
		return nil
	}
}

func reduceFloats(fn string, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	switch fn {
	case "sum":
		var total float64
		for _, v := range values {
			total += v
		}

		return total
	case "avg":
		var total float64
		for _, v := range values {
			total += v
		}

		return total / float64(len(values))
	case "min":
		m := values[0]
		for _, v := range values[1:] {
			if v < m {
				m = v
			}
		}

		return m
	case "max":
		m := values[0]
		for _, v := range values[1:] {
			if v > m {
				m = v
			}
		}

		return m
	default:
		return 0
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)

		return f, err == nil
	default:
		return 0, false
	}
}

// dottedGet resolves a "a.b.c" path against row, descending into nested
// map[string]any values.
func dottedGet(row store.Row, path string) (any, bool) {
	parts := strings.Split(path, ".")

	var cur any = map[string]any(row)

	for _, part := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}

		v, ok := m[part]
		if !ok {
			return nil, false
		}

		cur = v
	}

	return cur, true
}
