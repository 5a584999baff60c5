package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// New implements NEW (spec.md §4.3.1): bulk-insert stmt.Data into the store
// under stmt.Output, inferring the entity type from the objects' "type"
// field when stmt.Type is unset.
func New(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	typ := inferType(stmt.Type, stmt.Data)

	rows := make([]store.Row, len(stmt.Data))
	for i, obj := range stmt.Data {
		rows[i] = store.Row(obj)
	}

	records, length, err := sess.Store.Insert(ctx, stmt.Output, typ, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("NEW %s: %w", stmt.Output, err)
	}

	v := symtable.VarStruct{
		Type:               typ,
		EntityTable:        stmt.Output,
		Length:             length,
		RecordsCount:       records,
		BirthStatement:     stmt,
		DependentVariables: symtable.DependentVariablesOf(stmt, sess.Symbols),
	}

	sess.Bind(node, stmt.Output, v)

	return &v, nil, nil
}

// Load implements LOAD (spec.md §4.3.1): reads stmt.Datasource as a local
// file path carrying a JSON array of STIX objects and bulk-inserts it the
// same way NEW does.
func Load(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	data, err := os.ReadFile(stmt.Datasource) //nolint:gosec // path comes from the DSL statement, a trusted local invocation
	if err != nil {
		return nil, nil, fmt.Errorf("LOAD %s: %w", stmt.Datasource, err)
	}

	var objects []map[string]any
	if err := json.Unmarshal(data, &objects); err != nil {
		return nil, nil, fmt.Errorf("LOAD %s: %w", stmt.Datasource, err)
	}

	typ := inferType(stmt.Type, objects)

	rows := make([]store.Row, len(objects))
	for i, obj := range objects {
		rows[i] = store.Row(obj)
	}

	records, length, err := sess.Store.Insert(ctx, stmt.Output, typ, rows)
	if err != nil {
		return nil, nil, fmt.Errorf("LOAD %s: %w", stmt.Output, err)
	}

	v := symtable.VarStruct{
		Type:               typ,
		EntityTable:        stmt.Output,
		Length:             length,
		RecordsCount:       records,
		BirthStatement:     stmt,
		DependentVariables: symtable.DependentVariablesOf(stmt, sess.Symbols),
	}

	sess.Bind(node, stmt.Output, v)

	return &v, nil, nil
}

// inferType returns explicit if non-empty, else the "type" field of the
// first object that carries one.
func inferType(explicit string, objects []map[string]any) string {
	if explicit != "" {
		return explicit
	}

	for _, obj := range objects {
		if t, ok := obj["type"].(string); ok && t != "" {
			return t
		}
	}

	return ""
}
