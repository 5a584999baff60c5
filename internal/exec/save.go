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

// Save implements SAVE (spec.md §4.3.2): export the input variable's entity
// table to an on-disk artifact. No symbol-table change.
func Save(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	sess.EnterStatement(stmt)

	inputName := stmt.InputVariable()

	v, ok := sess.Symbols.Get(inputName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, inputName)
	}

	if err := sess.Store.Export(ctx, v.EntityTable, stmt.Path); err != nil {
		return nil, nil, fmt.Errorf("SAVE %s: %w", inputName, err)
	}

	return nil, nil, nil
}
