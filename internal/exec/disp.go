package exec

import (
	"context"
	"fmt"
	"sort"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// trackerSentinel is DISP's special input naming the execution tracker
// itself rather than a bound variable.
const trackerSentinel = "_"

// Disp implements DISP (spec.md §4.3.4). Input "_" renders the execution
// tracking graph; any other input is looked up and returned as a tabular
// display after dropping empty/duplicate rows.
func Disp(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	sess.EnterStatement(stmt)

	inputName := stmt.InputVariable()

	if inputName == trackerSentinel {
		d := display.Tracker(toDisplayGraph(sess))

		return nil, &d, nil
	}

	v, ok := sess.Symbols.Get(inputName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, inputName)
	}

	rows, err := sess.Store.Lookup(ctx, v.EntityTable, stmt.Paths, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("DISP %s: %w", inputName, err)
	}

	deduped := dedupNonEmpty(rows)
	d := display.Table(deduped, columnOrder(deduped))

	return nil, &d, nil
}

func dedupNonEmpty(rows []store.Row) []map[string]any {
	seen := make(map[string]struct{}, len(rows))

	out := make([]map[string]any, 0, len(rows))

	for _, row := range rows {
		if len(row) == 0 {
			continue
		}

		key := rowKey(row)
		if _, dup := seen[key]; dup {
			continue
		}

		seen[key] = struct{}{}
		out = append(out, map[string]any(row))
	}

	return out
}

// columnOrder implements SUPPLEMENTED FEATURE 1's "_display_ordering": the
// first-seen order of every column across rows, so heterogeneous rows still
// render under a stable header. A single row's own key order is undefined
// (Go maps carry none), so a row's newly-introduced columns are sorted
// before being appended, keeping the result deterministic across runs.
func columnOrder(rows []map[string]any) []string {
	seen := make(map[string]struct{})

	var order []string

	for _, row := range rows {
		newCols := make([]string, 0, len(row))

		for col := range row {
			if _, ok := seen[col]; !ok {
				newCols = append(newCols, col)
			}
		}

		sort.Strings(newCols)

		for _, col := range newCols {
			seen[col] = struct{}{}
			order = append(order, col)
		}
	}

	return order
}

func rowKey(row store.Row) string {
	return fmt.Sprintf("%v", map[string]any(row))
}

func toDisplayGraph(sess *session.Session) display.TrackerGraph {
	g := sess.Tracker.Graph()

	return display.TrackerGraph{
		Paths:              g.Paths,
		StepTimestamps:     g.StepTimestamps,
		VariableTimestamps: g.VariableTimestamps,
		VariableSummaries:  g.VariableSummaries,
	}
}
