// Package prefetch implements the Prefetch Orchestrator (spec.md §4.4): it
// expands a locally-known entity set to all remote records of the same
// entities (and, via the relation compiler upstream, their immediate
// associates), then narrows process-typed results with a fine-grained
// identity filter.
//
// Grounded on internal/api/middleware/ratelimit.go's token-bucket shape from
// the teacher repo for the x/time/rate wiring, and on
// internal/aliasing/resolver.go for the general "config-driven, immutable
// after construction" scorer shape used by the process filter.
package prefetch

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/raymundl/kestrel-lang/internal/datasource"
	"github.com/raymundl/kestrel-lang/internal/pattern"
	"github.com/raymundl/kestrel-lang/internal/relation"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// Request bundles the inputs the orchestrator needs, mirroring spec.md
// §4.4's parameter list.
type Request struct {
	ReturnType    string
	ReturnVarName string
	InputVarName  string
	SessionID     string
	SupportsID    bool
}

// Orchestrator runs the prefetch flow against a store, a symbol table, and a
// datasource manager, rate-limiting outbound remote queries.
type Orchestrator struct {
	store     store.Store
	symtab    *symtable.SymbolTable
	dsManager datasource.Manager
	limiter   *rate.Limiter
}

// New returns an Orchestrator. ratePerSecond/burst configure the outbound
// remote-query rate limit shared across every prefetch call the session
// makes; 0 disables limiting (unlimited).
func New(st store.Store, symtab *symtable.SymbolTable, ds datasource.Manager, ratePerSecond float64, burst int) *Orchestrator {
	var limiter *rate.Limiter
	if ratePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(ratePerSecond), burst)
	}

	return &Orchestrator{store: st, symtab: symtab, dsManager: ds, limiter: limiter}
}

// Run executes the five-step prefetch flow from spec.md §4.4 against the
// input variable's datasource. Returns the prefetch view name, or ("",
// false, nil) if any step produced an empty result (not an error).
func (o *Orchestrator) Run(ctx context.Context, req Request) (string, bool, error) {
	inputVar, ok := o.symtab.Get(req.InputVarName)
	if !ok || inputVar.IsEmpty() || !inputVar.CanPrefetch() {
		return "", false, nil
	}

	// Step 1: compile an identical-entity search pattern for the input.
	identityBody := relation.CompileIdenticalEntity(req.InputVarName)

	remotePattern, ok, err := pattern.BuildPattern(
		ctx, identityBody, inputVar.BirthStatement.TimeRange.Start, inputVar.BirthStatement.TimeRange.Set,
		inputVar.BirthStatement.TimeRange.Stop,
		inputVar.BirthStatement.StartOffset, inputVar.BirthStatement.StopOffset,
		o.symtab, o.store, req.SupportsID,
	)
	if err != nil {
		return "", false, err
	}

	if !ok {
		// Step 2: no remote pattern compiles -> no prefetch.
		return "", false, nil
	}

	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", false, err
		}
	}

	// Step 3: query the datasource-manager against the input's data_source.
	resp, err := o.dsManager.Query(ctx, inputVar.DataSource, remotePattern, req.SessionID)
	if err != nil {
		return "", false, err
	}

	queryID, err := resp.LoadToStore(ctx, o.store)
	if err != nil {
		return "", false, err
	}

	// Step 4: extract return_var_name as a view over the loaded rows
	// matched by the remote pattern.
	prefetchView := req.ReturnVarName + "_prefetch"

	if err := o.store.Extract(ctx, prefetchView, req.ReturnType, queryID, remotePattern); err != nil {
		return "", false, err
	}

	length, records, err := o.store.Counts(ctx, prefetchView)
	if err != nil {
		return "", false, err
	}

	if length == 0 && records == 0 {
		_ = o.store.RemoveView(ctx, prefetchView)

		return "", false, nil
	}

	return prefetchView, true, nil
}

// FilterProcessIdentity narrows a prefetched process view down to rows that
// plausibly identify the same process as at least one row of localView,
// using the configured scorer, per spec.md §4.3.5/§4.4's "fine-grained
// relational process filtering".
func (o *Orchestrator) FilterProcessIdentity(
	ctx context.Context,
	outputPrefix string,
	localView, prefetchView string,
	cfg ScoreConfig,
) (string, bool, error) {
	localRows, err := o.store.Lookup(ctx, localView, nil, 0)
	if err != nil {
		return "", false, err
	}

	candidateRows, err := o.store.Lookup(ctx, prefetchView, nil, 0)
	if err != nil {
		return "", false, err
	}

	survivors := make([]string, 0, len(candidateRows))

	for _, candidate := range candidateRows {
		id, hasID := candidate["id"]
		if !hasID {
			continue
		}

		for _, local := range localRows {
			if Score(local, candidate, cfg) >= cfg.Threshold {
				survivors = append(survivors, fmt.Sprintf("%v", id))

				break
			}
		}
	}

	filteredPattern, ok := pattern.BuildPatternFromIDs("process", survivors)
	if !ok {
		return "", false, nil
	}

	filteredView := outputPrefix + "_prefetch_filtered"
	if err := o.store.Filter(ctx, filteredView, "process", prefetchView, filteredPattern); err != nil {
		return "", false, err
	}

	return filteredView, true, nil
}
