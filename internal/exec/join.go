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

// Join implements JOIN (spec.md §4.3.7): an inner join on dotted-path
// columns between the two input variables' views.
func Join(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	if len(stmt.Inputs) != 2 {
		return nil, nil, fmt.Errorf("%w: JOIN requires exactly two inputs", kerrors.ErrKestrelInternal)
	}

	left, ok := sess.Symbols.Get(stmt.Inputs[0])
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, stmt.Inputs[0])
	}

	right, ok := sess.Symbols.Get(stmt.Inputs[1])
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, stmt.Inputs[1])
	}

	leftPath, rightPath := stmt.Path, stmt.Path
	if len(stmt.Paths) == 2 {
		leftPath, rightPath = stmt.Paths[0], stmt.Paths[1]
	}

	if err := sess.Store.Join(ctx, stmt.Output, left.EntityTable, leftPath, right.EntityTable, rightPath); err != nil {
		return nil, nil, fmt.Errorf("JOIN %s: %w", stmt.Output, err)
	}

	typ := left.Type
	if typ == "" {
		typ = right.Type
	}

	v, err := bindFromView(ctx, sess, node, stmt, typ, stmt.Output, symtable.None)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}
