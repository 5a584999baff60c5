// Package relation implements the Relation Compiler (spec.md §4.2): it
// translates a (return-type, input-type, relation, reversed?) tuple into a
// STIX pattern body, across three families — identical-entity search,
// generic relations, and specific (directional) relations — plus the
// event-mediated two-hop flow used when both endpoints associate with
// x-oca-event.
//
// Grounded on internal/correlation/store.go's read-interface segregation
// (a small closed contract the rest of the system consumes) and
// internal/aliasing/resolver.go's table-driven compiled-rule shape from the
// teacher repo.
package relation

import (
	"fmt"

	"github.com/raymundl/kestrel-lang/internal/kerrors"
)

// eventEntityType is the STIX entity type used for event-mediated flow.
const eventEntityType = "x-oca-event"

// genericEdge describes one generic-relation mapping between two entity
// types via a reference attribute on one side.
type genericEdge struct {
	From, To string
	// RefOnFrom is the attribute on From-typed entities that references To
	// entities (possibly array-valued, e.g. opened_connection_refs).
	RefOnFrom string
}

// genericEdges is the small closed set of generic (undirected, type-pair
// driven) relations spec.md §4.2 calls out: "linked", "contained".
var genericEdges = map[string][]genericEdge{
	"linked": {
		{From: "process", To: "network-traffic", RefOnFrom: "opened_connection_refs"},
		{From: "process", To: "file", RefOnFrom: "binary_ref"},
		{From: "network-traffic", To: "process", RefOnFrom: ""},
		{From: "file", To: "process", RefOnFrom: ""},
	},
	"contained": {
		{From: "directory", To: "file", RefOnFrom: "contains_refs"},
		{From: "archive-ext", To: "file", RefOnFrom: "contains_refs"},
	},
}

// specificEdge is a directional, named relation: spec.md's "parent",
// "child", "loaded", "created". ForwardRef is the attribute to use when
// Reversed is false; ReverseRef is used when Reversed is true (they usually
// point the opposite direction across the same pair of types).
type specificEdge struct {
	InputType, ReturnType string
	ForwardRef            string
	ReverseRef            string
}

var specificEdges = map[string]specificEdge{
	"process.parent":  {InputType: "process", ReturnType: "process", ForwardRef: "parent_ref", ReverseRef: ""},
	"process.child":   {InputType: "process", ReturnType: "process", ForwardRef: "", ReverseRef: "parent_ref"},
	"process.loaded":  {InputType: "process", ReturnType: "file", ForwardRef: "binary_ref", ReverseRef: ""},
	"process.created": {InputType: "process", ReturnType: "file", ForwardRef: "", ReverseRef: "creator_ref"},
}

// eventAssociated is the set of entity types known to associate with
// x-oca-event records, enabling event-mediated flow (spec.md §4.2, §4.3.6
// step 3).
var eventAssociated = map[string]struct{}{
	"process":         {},
	"network-traffic": {},
	"file":             {},
	"user-account":     {},
	"ipv4-addr":        {},
}

// AssociatesWithEvent reports whether typ is known to flow through
// x-oca-event records.
func AssociatesWithEvent(typ string) bool {
	_, ok := eventAssociated[typ]

	return ok
}

// IsGeneric reports whether relation names a generic (type-pair-driven,
// non-directional) relation.
func IsGeneric(relationName string) bool {
	_, ok := genericEdges[relationName]

	return ok
}

// CompileIdenticalEntity builds the pattern body for an identical-entity
// search: "<inputVar>", which internal/pattern.BuildPattern expands to a
// disjunction over the input variable's identity attribute values. Whether
// id is among those attributes is decided by pattern.IdentityAttributes from
// BuildPattern's supportsID argument, not here.
func CompileIdenticalEntity(inputVar string) string {
	return "<" + inputVar + ">"
}

// CompileGeneric translates a generic relation into a pattern body
// referencing inputVar. Returns ("", false, nil) if no edge matches
// (relationName, returnType, inputType) — not an error, per spec.md §4.2's
// "callers fall back to None for that branch".
func CompileGeneric(relationName, returnType, inputType, inputVar string) (string, bool, error) {
	edges, ok := genericEdges[relationName]
	if !ok {
		return "", false, nil
	}

	for _, edge := range edges {
		if edge.From == inputType && edge.To == returnType {
			return compileEdge(returnType, inputVar, edge.RefOnFrom, false)
		}

		if edge.From == returnType && edge.To == inputType {
			// The input is on the "To" side; reverse the hop by matching
			// return-typed entities whose RefOnFrom (defined on the return
			// type here) lists the input's identity.
			return compileEdge(returnType, inputVar, edge.RefOnFrom, true)
		}
	}

	return "", false, nil
}

// CompileSpecific translates a specific, directional relation (e.g.
// "parent", "child") into a pattern body. reversed selects which reference
// direction to use.
func CompileSpecific(relationName, returnType, inputType string, reversed bool, inputVar string) (string, bool, error) {
	edge, ok := specificEdges[inputType+"."+relationName]
	if !ok || edge.ReturnType != returnType {
		return "", false, nil
	}

	ref := edge.ForwardRef
	if reversed {
		ref = edge.ReverseRef
	}

	if ref == "" {
		return "", false, nil
	}

	return compileEdge(returnType, inputVar, ref, reversed)
}

// compileEdge builds "[returnType:id IN (<inputVar.ref>)]" (or the
// reverse-hop form "[returnType:ref IN (<inputVar.id>)]" when the reference
// lives on the return type rather than the input type).
func compileEdge(returnType, inputVar, ref string, refOnReturnType bool) (string, bool, error) {
	if ref == "" {
		return "", false, fmt.Errorf("%w: empty reference attribute for %s", kerrors.ErrInvalidAttribute, returnType)
	}

	if refOnReturnType {
		return fmt.Sprintf("[%s:%s IN (<%s.id>)]", returnType, ref, inputVar), true, nil
	}

	return fmt.Sprintf("[%s:id IN (<%s.%s>)]", returnType, inputVar, ref), true, nil
}

// CompileEventIn builds the in-bound leg of an event-mediated flow: events
// associated with inputVar's entities.
func CompileEventIn(inputType, inputVar string) (string, bool, error) {
	if !AssociatesWithEvent(inputType) {
		return "", false, nil
	}

	return fmt.Sprintf("[%s:%s_ref.id IN (<%s.id>)]", eventEntityType, inputType, inputVar), true, nil
}

// CompileEventOut builds the out-bound leg of an event-mediated flow:
// returnType entities associated with the events bound to eventsVar.
func CompileEventOut(returnType, eventsVar string) (string, bool, error) {
	if !AssociatesWithEvent(returnType) {
		return "", false, nil
	}

	return fmt.Sprintf("[%s:id IN (<%s.%s_ref.id>)]", returnType, eventsVar, returnType), true, nil
}
