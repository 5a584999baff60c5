package exec

import (
	"context"
	"fmt"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// Group implements GROUP (spec.md §4.3.8): composes a Table -> Group ->
// Aggregation store query from the input variable, stmt.Paths, and
// stmt.Aggregations, defaulting an aggregation's alias to "func_attr" when
// absent.
func Group(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	inputName := stmt.InputVariable()

	input, ok := sess.Symbols.Get(inputName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, inputName)
	}

	aggs := make([]store.QueryAggregation, len(stmt.Aggregations))
	for i, a := range stmt.Aggregations {
		alias := a.Alias
		if alias == "" {
			alias = fmt.Sprintf("%s_%s", a.Func, a.Attr)
		}

		aggs[i] = store.QueryAggregation{Func: a.Func, Attr: a.Attr, Alias: alias}
	}

	q := store.Query{
		From:         input.EntityTable,
		GroupBy:      stmt.Paths,
		Aggregations: aggs,
	}

	if err := sess.Store.AssignQuery(ctx, stmt.Output, q); err != nil {
		return nil, nil, fmt.Errorf("GROUP %s: %w", stmt.Output, err)
	}

	v, err := bindFromView(ctx, sess, node, stmt, input.Type, stmt.Output, symtable.None)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}
