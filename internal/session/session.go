// Package session composes the per-invocation collaborators a command
// executor needs — symbol table, store handle, datasource/analytics
// managers, execution tracker, and session configuration — into a single
// object passed to every executor, grounded on the teacher's internal/api
// Server: dependencies are injected explicitly rather than folded into
// configuration, and construction panics on a missing required
// collaborator rather than deferring the failure to first use.
package session

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/raymundl/kestrel-lang/internal/analytics"
	"github.com/raymundl/kestrel-lang/internal/config"
	"github.com/raymundl/kestrel-lang/internal/datasource"
	"github.com/raymundl/kestrel-lang/internal/prefetch"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
	"github.com/raymundl/kestrel-lang/internal/tracker"
)

// Session is the global per-invocation state a DSL program runs against.
type Session struct {
	ID string

	Store   store.Store
	Symbols *symtable.SymbolTable
	Tracker *tracker.Tracker
	Logger  *slog.Logger

	DS        datasource.Manager
	Prefetch  *prefetch.Orchestrator
	Analytics analytics.Manager

	Config config.Session

	lastStatementNode string
}

// New wires a Session from its required collaborators and panics if st is
// nil. ds and an may be nil when a session never issues GET/FIND or APPLY
// respectively (those managers are optional per spec.md §6); a GET from a
// datasource or an APPLY then returns an error wrapping
// kerrors.ErrKestrelInternal rather than panicking.
func New(id string, st store.Store, ds datasource.Manager, an analytics.Manager, cfg config.Session) *Session {
	if st == nil {
		panic("kestrel: session requires a non-nil store")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With(slog.String("session_id", id))

	symbols := symtable.New()

	ratePerSecond := 0.0
	if cfg.Prefetch.Get || cfg.Prefetch.Find {
		ratePerSecond = 5.0
	}

	return &Session{
		ID:        id,
		Store:     st,
		Symbols:   symbols,
		Tracker:   tracker.New(),
		Logger:    logger,
		DS:        ds,
		Prefetch:  prefetch.New(st, symbols, ds, ratePerSecond, 10),
		Analytics: an,
		Config:    cfg,
	}
}

// EnterStatement records a statement node in the tracker at entry time and
// logs it at debug level, returning the node id RecordVariable should
// receive once the statement produces its output binding.
func (s *Session) EnterStatement(stmt statement.Statement) string {
	id := s.Tracker.RecordStatement(stmt.Command, stmt.Inputs, time.Now())
	s.lastStatementNode = id

	s.Logger.Debug("entering statement",
		slog.String("command", string(stmt.Command)),
		slog.String("output", stmt.Output),
		slog.Any("inputs", stmt.Inputs))

	return id
}

// Bind registers v under name in the symbol table and records the binding
// in the tracker, linked from statementNode (the id EnterStatement
// returned).
func (s *Session) Bind(statementNode, name string, v symtable.VarStruct) {
	s.Symbols.NewVar(name, v)
	s.Tracker.RecordVariable(statementNode, name, v.Summary(), time.Now())

	s.Logger.Debug("bound variable",
		slog.String("name", name),
		slog.String("type", v.Type),
		slog.Int("length", v.Length),
		slog.Int("records_count", v.RecordsCount))
}

// ViewName returns the deterministic temporary view name for output's
// lifecycle stage (spec.md §3 "Store view lifecycle"): "local", "prefetch",
// "prefetch_filtered", or "asso_event".
func ViewName(output, stage string) string {
	return output + "_" + stage
}

// CleanupViews removes each of the named views unless debug mode is set, per
// spec.md §5's "Debug mode" retention policy. Errors are logged,
// not returned: cleanup failures must not abort an otherwise-successful
// command.
func (s *Session) CleanupViews(ctx context.Context, stages ...string) {
	if s.Config.Debug {
		return
	}

	for _, view := range stages {
		if err := s.Store.RemoveView(ctx, view); err != nil {
			s.Logger.Warn("failed to remove temporary view",
				slog.String("view", view),
				slog.String("error", err.Error()))
		}
	}
}
