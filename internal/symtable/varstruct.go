// Package symtable implements the session's variable descriptor table:
// VarStruct, the first-class variable descriptor, and SymbolTable, the
// single owning map from variable name to VarStruct.
//
// Grounded on internal/storage/types.go's struct-plus-methods shape from the
// teacher repo: a plain domain type with validation and derived-value
// methods, no external dependency required.
package symtable

import (
	"fmt"
	"sync"

	"github.com/raymundl/kestrel-lang/internal/statement"
)

// None is the sentinel type/entity_table value for an empty VarStruct.
const None = ""

// VarStruct is the first-class variable descriptor tracked by the session.
// See spec.md §3 for the invariants it must uphold.
type VarStruct struct {
	// Name is the DSL identifier this descriptor is bound to.
	Name string

	// Type is the STIX entity type (e.g. "process", "network-traffic") or
	// None for an empty variable.
	Type string

	// EntityTable names the view in the store, or None when the variable
	// is empty.
	EntityTable string

	// Length is the distinct entity count.
	Length int

	// RecordsCount is the underlying observation/record count; Length <=
	// RecordsCount always holds.
	RecordsCount int

	// DataSource is the origin URI string if this variable was fetched
	// remotely, or None for a synthetic/local variable.
	DataSource string

	// BirthStatement is the statement that produced this variable.
	BirthStatement statement.Statement

	// DependentVariables is the set of upstream variable names referenced
	// by BirthStatement, at birth time a subset of the symbol table's keys.
	DependentVariables map[string]struct{}
}

// IsEmpty reports whether this VarStruct has no store-backed entity table.
func (v VarStruct) IsEmpty() bool {
	return v.EntityTable == None
}

// CanPrefetch reports whether this variable may participate in prefetch: it
// must have been fetched from a named remote datasource.
func (v VarStruct) CanPrefetch() bool {
	return v.DataSource != None
}

// Empty returns a VarStruct carrying no data, e.g. the result of a FIND with
// no matching relation or a never-seen return type.
func Empty(name string, birth statement.Statement, deps map[string]struct{}) VarStruct {
	return VarStruct{
		Name:               name,
		Type:               None,
		EntityTable:        None,
		DependentVariables: deps,
		BirthStatement:     birth,
	}
}

// Summary renders a one-line human string for introspection displays, e.g.
// DISP _'s variable summaries (see SPEC_FULL.md supplemented feature 4).
func (v VarStruct) Summary() string {
	if v.IsEmpty() {
		return fmt.Sprintf("%s (empty)", v.Name)
	}

	return fmt.Sprintf("%s: %s (%d entities, %d records)", v.Name, v.Type, v.Length, v.RecordsCount)
}

// SymbolTable is the session's single owning map from variable name to
// VarStruct. All mutation goes through NewVar; readers use Get/Names.
// Safe for concurrent use, though spec.md §5 describes a single-threaded
// cooperative session model — the mutex guards against accidental misuse
// rather than enabling genuine parallelism.
type SymbolTable struct {
	mu   sync.RWMutex
	vars map[string]VarStruct
}

// New returns an empty SymbolTable.
func New() *SymbolTable {
	return &SymbolTable{vars: make(map[string]VarStruct)}
}

// NewVar binds name to v in the table, replacing any prior binding (rebind
// shadows, per spec.md §3's "rebinding replaces" invariant).
func (t *SymbolTable) NewVar(name string, v VarStruct) {
	t.mu.Lock()
	defer t.mu.Unlock()

	v.Name = name
	t.vars[name] = v
}

// Get returns the VarStruct bound to name and whether it exists.
func (t *SymbolTable) Get(name string) (VarStruct, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	v, ok := t.vars[name]

	return v, ok
}

// Names returns all currently bound variable names, in no particular order.
func (t *SymbolTable) Names() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.vars))
	for name := range t.vars {
		names = append(names, name)
	}

	return names
}

// Has reports whether name is currently bound.
func (t *SymbolTable) Has(name string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	_, ok := t.vars[name]

	return ok
}

// DependentVariablesOf computes the set of currently-bound variable names
// referenced by stmt's input fields, for use as a new VarStruct's
// DependentVariables at birth time.
func DependentVariablesOf(stmt statement.Statement, table *SymbolTable) map[string]struct{} {
	deps := make(map[string]struct{})

	add := func(name string) {
		if name == "" {
			return
		}

		if table.Has(name) {
			deps[name] = struct{}{}
		}
	}

	add(stmt.VariableSource)

	for _, in := range stmt.Inputs {
		add(in)
	}

	return deps
}
