package exec

import (
	"strconv"
	"strings"

	"github.com/raymundl/kestrel-lang/internal/store"
)

// matchPattern is a small evaluator for the STIX pattern shapes this repo's
// pattern/relation compilers produce: equality and IN-list clauses joined by
// AND/OR, optionally wrapped in brackets, optionally suffixed with a
// "START t'...' STOP t'...'" window (ignored here - memStore has no notion
// of event time). It exists only to let exec's tests exercise GET/FIND
// end-to-end against a fake store; it is not a general STIX evaluator.
func matchPattern(pattern, typ string, row store.Row) bool {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return true
	}

	if idx := strings.Index(pattern, " START "); idx >= 0 {
		pattern = pattern[:idx]
	}

	return evalExpr(pattern, typ, row)
}

// evalExpr evaluates a boolean expression of ORs of ANDs of clauses, each
// optionally bracket- or paren-wrapped.
func evalExpr(expr, typ string, row store.Row) bool {
	expr = strings.TrimSpace(expr)
	expr = stripWrap(expr)

	for _, disjunct := range splitTop(expr, " OR ") {
		if evalConjunction(disjunct, typ, row) {
			return true
		}
	}

	return false
}

func evalConjunction(expr, typ string, row store.Row) bool {
	expr = strings.TrimSpace(expr)
	expr = stripWrap(expr)

	for _, clause := range splitTop(expr, " AND ") {
		if !evalClause(strings.TrimSpace(stripWrap(clause)), typ, row) {
			return false
		}
	}

	return true
}

// evalClause evaluates "type:attr = value" or "type:attr IN (v1, v2, ...)".
func evalClause(clause, typ string, row store.Row) bool {
	colon := strings.Index(clause, ":")
	if colon < 0 {
		return false
	}

	clauseType := clause[:colon]
	rest := clause[colon+1:]

	if clauseType != typ {
		return false
	}

	switch {
	case strings.Contains(rest, " IN "):
		parts := strings.SplitN(rest, " IN ", 2)
		attr := strings.TrimSpace(parts[0])
		list := strings.TrimSpace(parts[1])
		list = strings.TrimPrefix(list, "(")
		list = strings.TrimSuffix(list, ")")

		val, ok := row[attr]
		if !ok {
			return false
		}

		for _, item := range strings.Split(list, ",") {
			if valuesEqual(val, strings.TrimSpace(item)) {
				return true
			}
		}

		return false
	case strings.Contains(rest, " = "):
		parts := strings.SplitN(rest, " = ", 2)
		attr := strings.TrimSpace(parts[0])
		want := strings.TrimSpace(parts[1])

		val, ok := row[attr]
		if !ok {
			return false
		}

		return valuesEqual(val, want)
	default:
		return false
	}
}

func valuesEqual(val any, literalStr string) bool {
	if strings.HasPrefix(literalStr, "'") && strings.HasSuffix(literalStr, "'") {
		unquoted := strings.ReplaceAll(literalStr[1:len(literalStr)-1], "\\'", "'")

		s, ok := val.(string)

		return ok && s == unquoted
	}

	if n, err := strconv.ParseFloat(literalStr, 64); err == nil {
		f, ok := toFloat(val)

		return ok && f == n
	}

	return false
}

// stripWrap removes one layer of enclosing "[...]" or "(...)" if the prefix
// and suffix are a matched, depth-balanced pair spanning the whole string.
func stripWrap(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return s
	}

	open, close := s[0], s[len(s)-1]
	if (open != '[' || close != ']') && (open != '(' || close != ')') {
		return s
	}

	depth := 0

	for i, r := range s {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return s
			}
		}
	}

	return strings.TrimSpace(s[1 : len(s)-1])
}

// splitTop splits expr on sep at paren/bracket depth 0.
func splitTop(expr, sep string) []string {
	var parts []string

	depth := 0
	last := 0

	for i := 0; i <= len(expr)-len(sep); {
		c := expr[i]

		switch c {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		}

		if depth == 0 && expr[i:i+len(sep)] == sep {
			parts = append(parts, expr[last:i])
			i += len(sep)
			last = i

			continue
		}

		i++
	}

	parts = append(parts, expr[last:])

	return parts
}
