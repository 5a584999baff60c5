// Package display defines the Display value types command executors return
// (spec.md §6 "Displays"): free-form strings, key-ordered label mappings,
// tabular row sets, and the structured tracker-graph data DISP _ produces.
// Rendering to HTML or any other presentation format is delegated outside
// this module (spec.md §1 excludes display rendering; see SPEC_FULL.md
// supplemented feature 6 and DESIGN.md's Open Question decision).
package display

// Kind discriminates which shape a Display carries.
type Kind string

const (
	KindText    Kind = "text"
	KindMapping Kind = "mapping"
	KindTable   Kind = "table"
	KindTracker Kind = "tracker"
)

// Display is the tagged union every command executor may return.
type Display struct {
	Kind Kind

	// Text holds KindText's free-form string.
	Text string

	// Mapping holds KindMapping's key-ordered labels; Keys preserves
	// insertion order since Go maps don't.
	Mapping     map[string][]string
	MappingKeys []string

	// Table holds KindTable's row-mapping list, in order.
	Table []map[string]any

	// Columns holds KindTable's column order: every column name that
	// appears across Table's rows, in first-seen order, so a renderer can
	// produce a stable header row even when rows carry heterogeneous
	// attribute sets.
	Columns []string

	// Tracker holds KindTracker's structured path-enumeration data for
	// DISP _, see TrackerGraph below.
	Tracker TrackerGraph
}

// Text returns a free-form text Display.
func Text(s string) Display {
	return Display{Kind: KindText, Text: s}
}

// Table returns a tabular Display from rows, preserving row order and
// dropping no rows (callers are responsible for the dedup/empty-row
// post-processing spec.md §4.3.4 describes before calling this). columns is
// the first-seen column order across rows (SUPPLEMENTED FEATURE 1, see
// SPEC_FULL.md).
func Table(rows []map[string]any, columns []string) Display {
	return Display{Kind: KindTable, Table: rows, Columns: columns}
}

// Mapping returns a key-ordered mapping Display; keys is the display order.
func Mapping(keys []string, values map[string][]string) Display {
	return Display{Kind: KindMapping, MappingKeys: keys, Mapping: values}
}

// Tracker returns a tracker-graph Display for DISP _.
func Tracker(g TrackerGraph) Display {
	return Display{Kind: KindTracker, Tracker: g}
}

// TrackerGraph is the structured data backing DISP _: every simple path
// between a root (no in-edges) and a leaf (no out-edges) in the execution
// tracker, plus the per-step and per-variable timestamps used to annotate
// them.
type TrackerGraph struct {
	// Paths is every root-to-leaf simple path, as an ordered list of node
	// names (alternating statement/variable node ids).
	Paths [][]string

	// StepTimestamps maps a statement node id to its entry time (Unix
	// millis), for JSON interpolation into a rendering template.
	StepTimestamps map[string]int64

	// VariableTimestamps maps a variable name to its binding time (Unix
	// millis).
	VariableTimestamps map[string]int64

	// VariableSummaries maps a variable name to its one-line summary
	// string (symtable.VarStruct.Summary()).
	VariableSummaries map[string]string
}
