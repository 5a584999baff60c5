// Package exec implements the twelve command executors (spec.md §4.3) plus
// the common-wrapper composition (default-output, guard-empty-input) every
// executor runs through. Grounded on the teacher's internal/api/middleware
// chain shape: small, composable func(...) func(...) wrappers around a
// uniform handler signature, rather than an inheritance hierarchy.
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

// Executor runs one statement against a session, returning the variable it
// bound (nil for terminal commands that produce no binding) and/or a
// display artifact (nil when the command produces none).
type Executor func(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error)

// Middleware wraps an Executor with cross-cutting behavior.
type Middleware func(Executor) Executor

// Chain composes middlewares around base in the order given, so the first
// middleware listed runs outermost.
func Chain(base Executor, mw ...Middleware) Executor {
	for i := len(mw) - 1; i >= 0; i-- {
		base = mw[i](base)
	}

	return base
}

// WithDefaultOutput constructs a VarStruct from stmt.Output by opening a
// view on the store when the wrapped executor itself returns a nil
// VarStruct but named an Output (spec.md §4.3 "default-output"). Executors
// that manage their own store view naming (GET, FIND, NEW/LOAD, JOIN, GROUP,
// SORT, MERGE) already return a populated VarStruct and are unaffected.
func WithDefaultOutput(next Executor) Executor {
	return func(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
		v, d, err := next(ctx, stmt, sess)
		if err != nil || v != nil || stmt.Output == "" {
			return v, d, err
		}

		opened, openErr := openExistingView(ctx, stmt, sess)
		if openErr != nil {
			return nil, d, openErr
		}

		return opened, d, nil
	}
}

func openExistingView(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, error) {
	length, records, err := sess.Store.Counts(ctx, stmt.Output)
	if err != nil {
		return nil, err
	}

	types, err := sess.Store.Types(ctx)
	if err != nil {
		return nil, err
	}

	typ := stmt.Type
	if typ == "" {
		for t := range types {
			typ = t

			break
		}
	}

	v := symtable.VarStruct{
		Name:               stmt.Output,
		Type:               typ,
		EntityTable:        stmt.Output,
		Length:             length,
		RecordsCount:       records,
		BirthStatement:     stmt,
		DependentVariables: symtable.DependentVariablesOf(stmt, sess.Symbols),
	}

	return &v, nil
}

// WithGuardEmptyInput fails with ErrEmptyInputVariable before running next if
// any of stmt's input variables is bound and empty (length+records_count ==
// 0), per spec.md §4.3 "guard-empty-input". Unbound input names are left to
// the executor itself to reject (ErrVariableNotExist), since "not yet bound"
// and "bound but empty" are different failures.
func WithGuardEmptyInput(next Executor) Executor {
	return func(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
		for _, name := range stmt.Inputs {
			v, ok := sess.Symbols.Get(name)
			if !ok {
				continue
			}

			if v.Length+v.RecordsCount == 0 {
				return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrEmptyInputVariable, name)
			}
		}

		return next(ctx, stmt, sess)
	}
}

// Dispatch maps a Command to its fully-wrapped executor.
func Dispatch(cmd statement.Command) (Executor, bool) {
	e, ok := executors[cmd]

	return e, ok
}

var executors = map[statement.Command]Executor{
	statement.CommandNew:   Chain(New, WithDefaultOutput),
	statement.CommandLoad:  Chain(Load, WithDefaultOutput),
	statement.CommandSave:  Chain(Save, WithGuardEmptyInput),
	statement.CommandInfo:  Chain(Info, WithGuardEmptyInput),
	statement.CommandDisp:  Chain(Disp),
	statement.CommandGet:   Chain(Get, WithDefaultOutput),
	statement.CommandFind:  Chain(Find, WithGuardEmptyInput, WithDefaultOutput),
	statement.CommandJoin:  Chain(Join, WithGuardEmptyInput, WithDefaultOutput),
	statement.CommandGroup: Chain(Group, WithGuardEmptyInput, WithDefaultOutput),
	statement.CommandSort:  Chain(Sort, WithGuardEmptyInput, WithDefaultOutput),
	statement.CommandApply: Chain(Apply, WithGuardEmptyInput),
	statement.CommandMerge: Chain(Merge, WithGuardEmptyInput, WithDefaultOutput),
}
