package exec

import (
	"context"
	"fmt"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/pattern"
	"github.com/raymundl/kestrel-lang/internal/prefetch"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// Get implements GET (spec.md §4.3.5) in both its variable-source and
// datasource modes.
func Get(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	node := sess.EnterStatement(stmt)

	if stmt.VariableSource != "" {
		return getFromVariableSource(ctx, stmt, sess, node)
	}

	if stmt.Datasource == "" {
		return nil, nil, fmt.Errorf("%w: GET requires a datasource or variablesource", kerrors.ErrKestrelInternal)
	}

	return getFromDatasource(ctx, stmt, sess, node)
}

func getFromVariableSource(ctx context.Context, stmt statement.Statement, sess *session.Session, node string) (*symtable.VarStruct, *display.Display, error) {
	src, ok := sess.Symbols.Get(stmt.VariableSource)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, stmt.VariableSource)
	}

	typ := stmt.Type
	if typ == "" {
		typ = src.Type
	}

	body, ok, err := pattern.BuildPattern(
		ctx, stmt.PatternBody, stmt.TimeRange.Start, stmt.TimeRange.Set, stmt.TimeRange.Stop,
		stmt.StartOffset, stmt.StopOffset, sess.Symbols, sess.Store, sess.Config.StixQuery.SupportID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", stmt.Output, err)
	}

	if !ok {
		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	if err := sess.Store.Filter(ctx, stmt.Output, typ, src.EntityTable, body); err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", stmt.Output, err)
	}

	v, err := bindFromView(ctx, sess, node, stmt, typ, stmt.Output, src.DataSource)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}

func getFromDatasource(ctx context.Context, stmt statement.Statement, sess *session.Session, node string) (*symtable.VarStruct, *display.Display, error) {
	body, ok, err := pattern.BuildPattern(
		ctx, stmt.PatternBody, stmt.TimeRange.Start, stmt.TimeRange.Set, stmt.TimeRange.Stop,
		stmt.StartOffset, stmt.StopOffset, sess.Symbols, sess.Store, sess.Config.StixQuery.SupportID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", stmt.Output, err)
	}

	if !ok {
		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	if sess.DS == nil {
		return nil, nil, fmt.Errorf("%w: GET %s requires a datasource manager", kerrors.ErrKestrelInternal, stmt.Output)
	}

	resp, err := sess.DS.Query(ctx, stmt.Datasource, body, sess.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", stmt.Output, err)
	}

	queryID, err := resp.LoadToStore(ctx, sess.Store)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", stmt.Output, err)
	}

	localView := session.ViewName(stmt.Output, "local")
	if err := sess.Store.Extract(ctx, localView, stmt.Type, queryID, body); err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", stmt.Output, err)
	}

	length, records, err := sess.Store.Counts(ctx, localView)
	if err != nil {
		return nil, nil, err
	}

	if length == 0 && records == 0 {
		sess.CleanupViews(ctx, localView)

		v := symtable.Empty(stmt.Output, stmt, symtable.DependentVariablesOf(stmt, sess.Symbols))
		sess.Bind(node, stmt.Output, v)

		return &v, nil, nil
	}

	finalView, err := mergeWithPrefetch(ctx, sess, stmt, localView, sess.Config.Prefetch.Get)
	if err != nil {
		return nil, nil, err
	}

	v, err := bindFromView(ctx, sess, node, stmt, stmt.Type, finalView, stmt.Datasource)
	if err != nil {
		return nil, nil, err
	}

	return v, nil, nil
}

// mergeWithPrefetch runs the Prefetch Orchestrator (and, for process
// entities without stable ids, the fine-grained identity filter) against
// localView, merging its result into stmt.Output, or renaming localView into
// place if prefetching is disabled or produced nothing.
func mergeWithPrefetch(ctx context.Context, sess *session.Session, stmt statement.Statement, localView string, prefetchEnabled bool) (string, error) {
	if !prefetchEnabled || sess.DS == nil {
		if err := sess.Store.RenameView(ctx, localView, stmt.Output); err != nil {
			return "", fmt.Errorf("GET %s: %w", stmt.Output, err)
		}

		return stmt.Output, nil
	}

	// Bind localView under its own name so the orchestrator can resolve it
	// as the prefetch input.
	sess.Symbols.NewVar(localView, symtable.VarStruct{
		Type:           stmt.Type,
		EntityTable:    localView,
		DataSource:     stmt.Datasource,
		BirthStatement: stmt,
	})

	prefetchView, ok, err := sess.Prefetch.Run(ctx, prefetch.Request{
		ReturnType:    stmt.Type,
		ReturnVarName: stmt.Output,
		InputVarName:  localView,
		SessionID:     sess.ID,
		SupportsID:    sess.Config.StixQuery.SupportID,
	})
	if err != nil {
		return "", fmt.Errorf("GET %s: prefetch: %w", stmt.Output, err)
	}

	if !ok {
		if err := sess.Store.RenameView(ctx, localView, stmt.Output); err != nil {
			return "", fmt.Errorf("GET %s: %w", stmt.Output, err)
		}

		return stmt.Output, nil
	}

	finalPrefetchView := prefetchView

	if stmt.Type == "process" && !sess.Config.StixQuery.SupportID {
		filtered, filteredOK, err := sess.Prefetch.FilterProcessIdentity(
			ctx, stmt.Output, localView, prefetchView, prefetch.ScoreConfigFromSession(sess.Config.Prefetch),
		)
		if err != nil {
			return "", fmt.Errorf("GET %s: process identity filter: %w", stmt.Output, err)
		}

		sess.CleanupViews(ctx, prefetchView)

		if !filteredOK {
			if err := sess.Store.RenameView(ctx, localView, stmt.Output); err != nil {
				return "", fmt.Errorf("GET %s: %w", stmt.Output, err)
			}

			return stmt.Output, nil
		}

		finalPrefetchView = filtered
	}

	if err := sess.Store.Merge(ctx, stmt.Output, []string{localView, finalPrefetchView}); err != nil {
		return "", fmt.Errorf("GET %s: merge: %w", stmt.Output, err)
	}

	sess.CleanupViews(ctx, localView, finalPrefetchView)

	return stmt.Output, nil
}

func bindFromView(ctx context.Context, sess *session.Session, node string, stmt statement.Statement, typ, view, dataSource string) (*symtable.VarStruct, error) {
	length, records, err := sess.Store.Counts(ctx, view)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", stmt.Command, stmt.Output, err)
	}

	v := symtable.VarStruct{
		Type:               typ,
		EntityTable:        view,
		Length:             length,
		RecordsCount:       records,
		DataSource:         dataSource,
		BirthStatement:     stmt,
		DependentVariables: symtable.DependentVariablesOf(stmt, sess.Symbols),
	}

	sess.Bind(node, stmt.Output, v)

	return &v, nil
}
