package exec

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/pattern"
	"github.com/raymundl/kestrel-lang/internal/prefetch"
	"github.com/raymundl/kestrel-lang/internal/relation"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// Find implements FIND (spec.md §4.3.6), the most intricate command: it
// compiles a relation into a pattern (generic, specific, or event-mediated),
// extracts the matching local rows, optionally prefetches remotely, and
// binds the merged result.
func Find(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	inputName := stmt.InputVariable()

	inputVar, ok := sess.Symbols.Get(inputName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, inputName)
	}

	// Step 1: never-seen return type -> empty variable.
	types, err := sess.Store.Types(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	if _, seen := types[stmt.Type]; !seen {
		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	rawBody, err := compileRelationBody(stmt, inputVar)
	if err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	// Step 3: event-mediated supplement, OR-combined with the raw pattern.
	eventBody, eventsView, err := compileEventFlow(ctx, sess, stmt, inputVar, node)
	if err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	combinedBody, hasBody := pattern.OrPatterns(rawBody, eventBody)
	if eventsView != "" {
		sess.CleanupViews(ctx, eventsView)
	}

	if !hasBody {
		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	// Step 4: compile the final local pattern under the timerange window.
	finalPattern, ok, err := pattern.BuildPattern(
		ctx, combinedBody, stmt.TimeRange.Start, stmt.TimeRange.Set, stmt.TimeRange.Stop,
		stmt.StartOffset, stmt.StopOffset, sess.Symbols, sess.Store, sess.Config.StixQuery.SupportID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	if !ok {
		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	// Step 5: extract the local view.
	localView := session.ViewName(stmt.Output, "local")
	if err := sess.Store.Extract(ctx, localView, stmt.Type, "", finalPattern); err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	length, records, err := sess.Store.Counts(ctx, localView)
	if err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	if length == 0 && records == 0 {
		sess.CleanupViews(ctx, localView)

		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	// Step 6: prefetch against the input's datasource, if enabled.
	finalView, err := findMergeWithPrefetch(ctx, sess, stmt, localView, inputName)
	if err != nil {
		return nil, nil, fmt.Errorf("FIND %s: %w", stmt.Output, err)
	}

	v, err := bindFromView(ctx, sess, node, stmt, stmt.Type, finalView, inputVar.DataSource)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}

// compileRelationBody dispatches to generic or specific relation
// compilation per spec.md §4.3.6 step 2.
func compileRelationBody(stmt statement.Statement, inputVar symtable.VarStruct) (string, error) {
	if relation.IsGeneric(stmt.Relation) {
		body, _, err := relation.CompileGeneric(stmt.Relation, stmt.Type, inputVar.Type, stmt.InputVariable())

		return body, err
	}

	body, _, err := relation.CompileSpecific(stmt.Relation, stmt.Type, inputVar.Type, stmt.Reversed, stmt.InputVariable())

	return body, err
}

// compileEventFlow implements spec.md §4.3.6 step 3: when the relation is
// generic, the types differ, and both associate with x-oca-event, route
// through a temporary event variable. InvalidAttribute from this optional
// branch is logged and suppressed rather than surfaced, matching the
// resolved Open Question on FIND's event-flow degradation.
func compileEventFlow(ctx context.Context, sess *session.Session, stmt statement.Statement, inputVar symtable.VarStruct, node string) (body string, eventsView string, err error) {
	if !relation.IsGeneric(stmt.Relation) || stmt.Type == inputVar.Type {
		return "", "", nil
	}

	if !relation.AssociatesWithEvent(inputVar.Type) || !relation.AssociatesWithEvent(stmt.Type) {
		return "", "", nil
	}

	types, typesErr := sess.Store.Types(ctx)
	if typesErr != nil {
		return "", "", typesErr
	}

	if _, ok := types["x-oca-event"]; !ok {
		return "", "", nil
	}

	inBody, _, inErr := relation.CompileEventIn(inputVar.Type, stmt.InputVariable())
	if inErr != nil {
		sess.Logger.Warn("FIND event-in compilation failed, skipping event-mediated branch",
			slog.String("error", inErr.Error()))

		return "", "", nil
	}

	if inBody == "" {
		return "", "", nil
	}

	eventsVarName := session.ViewName(stmt.Output, "asso_event")

	if err := sess.Store.Extract(ctx, eventsVarName, "x-oca-event", "", inBody); err != nil {
		return "", "", err
	}

	length, records, countErr := sess.Store.Counts(ctx, eventsVarName)
	if countErr != nil {
		return "", "", countErr
	}

	if length == 0 && records == 0 {
		sess.CleanupViews(ctx, eventsVarName)

		return "", "", nil
	}

	eventsBound := symtable.VarStruct{
		Type:         "x-oca-event",
		EntityTable:  eventsVarName,
		Length:       length,
		RecordsCount: records,
	}
	sess.Symbols.NewVar(eventsVarName, eventsBound)

	outBody, _, outErr := relation.CompileEventOut(stmt.Type, eventsVarName)
	if outErr != nil {
		sess.Logger.Warn("FIND event-out compilation failed, skipping event-mediated branch",
			slog.String("error", outErr.Error()))

		return "", eventsVarName, nil
	}

	return outBody, eventsVarName, nil
}

// findMergeWithPrefetch mirrors GET's merge-or-rename logic, scoped to
// FIND's prefetch.find toggle and the input variable's own datasource.
func findMergeWithPrefetch(ctx context.Context, sess *session.Session, stmt statement.Statement, localView, inputName string) (string, error) {
	inputVar, _ := sess.Symbols.Get(inputName)

	if !sess.Config.Prefetch.Find || inputVar.DataSource == symtable.None || sess.DS == nil {
		if err := sess.Store.RenameView(ctx, localView, stmt.Output); err != nil {
			return "", err
		}

		return stmt.Output, nil
	}

	prefetchView, ok, err := sess.Prefetch.Run(ctx, prefetch.Request{
		ReturnType:    stmt.Type,
		ReturnVarName: stmt.Output,
		InputVarName:  inputName,
		SessionID:     sess.ID,
		SupportsID:    sess.Config.StixQuery.SupportID,
	})
	if err != nil {
		return "", fmt.Errorf("prefetch: %w", err)
	}

	if !ok {
		if err := sess.Store.RenameView(ctx, localView, stmt.Output); err != nil {
			return "", err
		}

		return stmt.Output, nil
	}

	finalPrefetchView := prefetchView

	if stmt.Type == "process" && !sess.Config.StixQuery.SupportID {
		filtered, filteredOK, filterErr := sess.Prefetch.FilterProcessIdentity(
			ctx, stmt.Output, localView, prefetchView, prefetch.ScoreConfigFromSession(sess.Config.Prefetch),
		)
		if filterErr != nil {
			return "", fmt.Errorf("process identity filter: %w", filterErr)
		}

		sess.CleanupViews(ctx, prefetchView)

		if !filteredOK {
			if err := sess.Store.RenameView(ctx, localView, stmt.Output); err != nil {
				return "", err
			}

			return stmt.Output, nil
		}

		finalPrefetchView = filtered
	}

	if err := sess.Store.Merge(ctx, stmt.Output, []string{localView, finalPrefetchView}); err != nil {
		return "", fmt.Errorf("merge: %w", err)
	}

	sess.CleanupViews(ctx, localView, finalPrefetchView)

	return stmt.Output, nil
}
