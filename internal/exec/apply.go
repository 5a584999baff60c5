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

// Apply implements APPLY (spec.md §4.3.10): hands the input VarStructs plus
// stmt.Parameter to the analytics-manager for stmt.Workflow, returning only
// its display. No new variable is bound.
func Apply(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	sess.EnterStatement(stmt)

	if sess.Analytics == nil {
		return nil, nil, fmt.Errorf("%w: APPLY requires an analytics manager", kerrors.ErrKestrelInternal)
	}

	inputs := make([]symtable.VarStruct, 0, len(stmt.Inputs))

	for _, name := range stmt.Inputs {
		v, ok := sess.Symbols.Get(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, name)
		}

		inputs = append(inputs, v)
	}

	d, err := sess.Analytics.Execute(ctx, stmt.Workflow, inputs, sess.ID, stmt.Parameter)
	if err != nil {
		return nil, nil, fmt.Errorf("APPLY %s: %w", stmt.Workflow, err)
	}

	return nil, &d, nil
}
