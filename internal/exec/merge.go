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

// Merge implements MERGE (spec.md §4.3.11): rejects inputs with
// heterogeneous entity types, else unions their views via store.Merge.
func Merge(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	views := make([]string, 0, len(stmt.Inputs))

	var typ string

	for _, name := range stmt.Inputs {
		v, ok := sess.Symbols.Get(name)
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, name)
		}

		if typ == "" {
			typ = v.Type
		} else if v.Type != typ {
			return nil, nil, fmt.Errorf("%w: %s is %s, expected %s", kerrors.ErrNonUniformEntityType, name, v.Type, typ)
		}

		views = append(views, v.EntityTable)
	}

	if err := sess.Store.Merge(ctx, stmt.Output, views); err != nil {
		return nil, nil, fmt.Errorf("MERGE %s: %w", stmt.Output, err)
	}

	v, err := bindFromView(ctx, sess, node, stmt, typ, stmt.Output, symtable.None)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}
