package exec

import (
	"context"
	"fmt"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// sortAscending/sortDescending name SORT's direction argument to
// store.Assign's "sort" operator.
const (
	sortAscending  = "ascending"
	sortDescending = "descending"
)

// Sort implements SORT (spec.md §4.3.9): assigns from the input view using
// the store's "sort" operator, keyed on stmt.Path.
func Sort(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	inputName := stmt.InputVariable()

	input, ok := sess.Symbols.Get(inputName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, inputName)
	}

	direction := sortAscending
	if stmt.Reversed {
		direction = sortDescending
	}

	if err := sess.Store.Assign(ctx, stmt.Output, input.EntityTable, "sort", stmt.Path, direction); err != nil {
		return nil, nil, fmt.Errorf("SORT %s: %w", stmt.Output, err)
	}

	v, err := bindFromView(ctx, sess, node, stmt, input.Type, stmt.Output, input.DataSource)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}
