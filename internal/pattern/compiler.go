// Package pattern implements the Pattern Compiler (spec.md §4.1): it
// resolves <varname> references embedded in a DSL pattern fragment to
// disjunctions over the identity attributes of that variable's current
// rows, and wraps the whole expression in a timerange window.
//
// Grounded on internal/aliasing/resolver.go's compile-once/apply-many shape
// from the teacher repo, adapted from regex-capture pattern matching to
// STIX boolean-expression assembly; no third-party STIX pattern library
// appeared anywhere in the example pack, so the assembly logic here is
// deliberately plain string/fmt/strings work (see DESIGN.md's grounding
// ledger entry for the stdlib justification).
package pattern

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// VarResolver is what the pattern compiler needs from the session to
// resolve a <varname> reference: the variable's current descriptor plus
// enough of the store to pull its rows.
type VarResolver interface {
	Get(name string) (symtable.VarStruct, bool)
}

// refPrefix/refSuffix delimit a variable reference inside a pattern body,
// e.g. "[process:parent_ref.name = '<proc1>']".
const (
	refPrefix = "<"
	refSuffix = ">"
)

// BuildPattern resolves every <varname> reference in body against symtable
// and st, expands the timerange by [startOffset, endOffset] seconds, and
// returns the composed STIX pattern. Returns ("", false, nil) when every
// sub-reference resolved empty — callers should treat that as "no pattern",
// not an error.
func BuildPattern(
	ctx context.Context,
	body string,
	tr time.Time, trSet bool,
	stop time.Time,
	startOffset, endOffset int,
	symtab VarResolver,
	st store.Store,
	supportsID bool,
) (string, bool, error) {
	resolvedBody, ok, err := resolveReferences(ctx, body, symtab, st, supportsID)
	if err != nil {
		return "", false, err
	}

	if !ok {
		return "", false, nil
	}

	if !trSet {
		return resolvedBody, true, nil
	}

	windowStart := tr.Add(time.Duration(startOffset) * time.Second)
	windowStop := stop.Add(time.Duration(endOffset) * time.Second)

	return fmt.Sprintf(
		"%s START t'%s' STOP t'%s'",
		resolvedBody,
		windowStart.UTC().Format(time.RFC3339),
		windowStop.UTC().Format(time.RFC3339),
	), true, nil
}

// resolveReferences replaces every <varname> token in body. It returns
// ok=false iff at least one reference exists and every one of them resolved
// to no identity-qualifying rows (spec.md §4.1: "Returns None when every
// sub-reference resolves empty").
func resolveReferences(
	ctx context.Context,
	body string,
	symtab VarResolver,
	st store.Store,
	supportsID bool,
) (string, bool, error) {
	refs := findReferences(body)
	if len(refs) == 0 {
		return body, true, nil
	}

	resolved := body
	anyResolved := false

	for _, ref := range refs {
		sub, err := resolveOneReference(ctx, ref, symtab, st, supportsID)
		if err != nil {
			return "", false, err
		}

		token := refPrefix + ref + refSuffix

		if sub == "" {
			// Replace with a condition that can never match, so the
			// surrounding boolean structure stays syntactically valid
			// while contributing nothing.
			resolved = strings.ReplaceAll(resolved, token, "false")

			continue
		}

		anyResolved = true
		resolved = strings.ReplaceAll(resolved, token, sub)
	}

	if !anyResolved {
		return "", false, nil
	}

	return resolved, true, nil
}

// resolveOneReference turns a single <varname> or <varname.attr> reference
// into a STIX sub-expression.
//
// <varname> resolves to a full disjunction over the variable's identity
// attribute values inside one pair of parentheses, relying on AND binding
// tighter than OR, e.g. "(process:pid = 123 AND process:name = 'x' OR
// process:pid = 456 AND process:name = 'y')" — used for identical-entity
// search bodies (see internal/relation).
//
// <varname.attr> resolves to a comma-joined literal list of attr's values
// across the variable's rows, flattening array-valued reference attributes
// (e.g. opened_connection_refs) — used for relation-compiler ref-hop bodies
// embedded in an "IN (...)" clause.
func resolveOneReference(
	ctx context.Context,
	ref string,
	symtab VarResolver,
	st store.Store,
	supportsID bool,
) (string, error) {
	varname, attr, isRefHop := strings.Cut(ref, ".")

	v, ok := symtab.Get(varname)
	if !ok {
		return "", fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, varname)
	}

	if v.IsEmpty() {
		return "", nil
	}

	if isRefHop {
		return resolveRefHop(ctx, v, attr, st)
	}

	idAttrs := IdentityAttributes(v.Type, supportsID)

	rows, err := st.Lookup(ctx, v.EntityTable, idAttrs, 0)
	if err != nil {
		return "", err
	}

	clauses := make([]string, 0, len(rows))

	for _, row := range rows {
		clause, ok := rowIdentityClause(v.Type, idAttrs, row)
		if ok {
			clauses = append(clauses, clause)
		}
	}

	if len(clauses) == 0 {
		return "", nil
	}

	return "(" + strings.Join(clauses, " OR ") + ")", nil
}

// resolveRefHop collects attr's values across v's rows, flattening
// array-valued reference attributes, and joins them as literals suitable for
// an "IN (...)" clause.
func resolveRefHop(ctx context.Context, v symtable.VarStruct, attr string, st store.Store) (string, error) {
	rows, err := st.Lookup(ctx, v.EntityTable, []string{attr}, 0)
	if err != nil {
		return "", err
	}

	literals := make([]string, 0, len(rows))
	seen := make(map[string]struct{})

	for _, row := range rows {
		val, ok := row[attr]
		if !ok || val == nil {
			continue
		}

		for _, item := range flatten(val) {
			lit := literal(item)
			if _, dup := seen[lit]; dup {
				continue
			}

			seen[lit] = struct{}{}
			literals = append(literals, lit)
		}
	}

	if len(literals) == 0 {
		return "", nil
	}

	return strings.Join(literals, ", "), nil
}

// flatten normalizes a single value or a slice of values into a flat slice,
// since STIX reference attributes (e.g. opened_connection_refs) are arrays.
func flatten(v any) []any {
	switch val := v.(type) {
	case []any:
		return val
	case []string:
		out := make([]any, len(val))
		for i, s := range val {
			out[i] = s
		}

		return out
	default:
		return []any{val}
	}
}

// rowIdentityClause builds "type:attr1 = v1 AND type:attr2 = v2 ..." for a
// single row's identity attribute values; skips rows missing any attribute.
func rowIdentityClause(typ string, idAttrs []string, row store.Row) (string, bool) {
	parts := make([]string, 0, len(idAttrs))

	for _, attr := range idAttrs {
		val, ok := row[attr]
		if !ok || val == nil {
			return "", false
		}

		parts = append(parts, fmt.Sprintf("%s:%s = %s", typ, attr, literal(val)))
	}

	return strings.Join(parts, " AND "), true
}

// literal renders a Go value as a STIX pattern literal.
func literal(v any) string {
	switch val := v.(type) {
	case string:
		return "'" + strings.ReplaceAll(val, "'", "\\'") + "'"
	case fmt.Stringer:
		return "'" + strings.ReplaceAll(val.String(), "'", "\\'") + "'"
	default:
		return fmt.Sprintf("%v", val)
	}
}

// OrPatterns yields the disjunction of non-empty patterns, dropping nil/empty
// entries. Returns ("", false) iff every entry was empty.
func OrPatterns(patterns ...string) (string, bool) {
	nonEmpty := make([]string, 0, len(patterns))

	for _, p := range patterns {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	if len(nonEmpty) == 0 {
		return "", false
	}

	if len(nonEmpty) == 1 {
		return nonEmpty[0], true
	}

	return "(" + strings.Join(nonEmpty, " OR ") + ")", true
}

// BuildPatternFromIDs produces "[entity_type:id IN (...)]" or ("", false) if
// ids is empty.
func BuildPatternFromIDs(entityType string, ids []string) (string, bool) {
	if len(ids) == 0 {
		return "", false
	}

	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = literal(id)
	}

	return fmt.Sprintf("[%s:id IN (%s)]", entityType, strings.Join(quoted, ", ")), true
}

// findReferences scans body for <varname> tokens and returns the distinct
// variable names referenced, in first-seen order.
func findReferences(body string) []string {
	var refs []string

	seen := make(map[string]struct{})

	for {
		start := strings.Index(body, refPrefix)
		if start < 0 {
			break
		}

		end := strings.Index(body[start:], refSuffix)
		if end < 0 {
			break
		}

		name := body[start+len(refPrefix) : start+end]
		body = body[start+end+len(refSuffix):]

		if name == "" || strings.ContainsAny(name, " \t\n<>") {
			continue
		}

		if _, dup := seen[name]; dup {
			continue
		}

		seen[name] = struct{}{}
		refs = append(refs, name)
	}

	return refs
}
