package exec

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/raymundl/kestrel-lang/internal/display"
	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/session"
	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// referenceSuffixes names attributes that are themselves references rather
// than direct/indirect/custom data, currently excluded from the emitted
// display per spec.md §4.3.3.
var referenceSuffixes = []string{"_ref", "_refs", "_reference", "_references"}

// Info implements INFO (spec.md §4.3.3): classifies the input variable's
// columns and emits a key-ordered introspection display.
func Info(ctx context.Context, stmt statement.Statement, sess *session.Session) (*symtable.VarStruct, *display.Display, error) {
	sess.EnterStatement(stmt)

	inputName := stmt.InputVariable()

	v, ok := sess.Symbols.Get(inputName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", kerrors.ErrVariableNotExist, inputName)
	}

	columns, err := sess.Store.Columns(ctx, v.EntityTable)
	if err != nil {
		return nil, nil, fmt.Errorf("INFO %s: %w", inputName, err)
	}

	direct, indirect, custom := classifyColumns(columns)

	keys := []string{
		"Entity Type", "Number of Entities", "Number of Records",
		"Entity Attributes", "Indirect Attributes", "Customized Attributes",
		"Birth Command", "Associated Datasource", "Dependent Variables",
	}

	values := map[string][]string{
		"Entity Type":           {v.Type},
		"Number of Entities":    {strconv.Itoa(v.Length)},
		"Number of Records":     {strconv.Itoa(v.RecordsCount)},
		"Entity Attributes":     direct,
		"Indirect Attributes":   groupIndirect(indirect),
		"Customized Attributes": custom,
		"Birth Command":         {string(v.BirthStatement.Command)},
		"Associated Datasource": {orNone(v.DataSource)},
		"Dependent Variables":   dependentNames(v.DependentVariables),
	}

	d := display.Mapping(keys, values)

	return &v, &d, nil
}

// classifyColumns splits columns into direct, indirect (_ref. / _ref_
// infix), and custom (x_ prefix) attributes, dropping pure reference
// attributes (see referenceSuffixes).
func classifyColumns(columns []string) (direct, indirect, custom []string) {
	for _, col := range columns {
		switch {
		case isReference(col):
			continue
		case strings.HasPrefix(col, "x_"):
			custom = append(custom, col)
		case strings.Contains(col, "_ref.") || strings.Contains(col, "_ref_"):
			indirect = append(indirect, col)
		default:
			direct = append(direct, col)
		}
	}

	return direct, indirect, custom
}

func isReference(col string) bool {
	for _, suffix := range referenceSuffixes {
		if strings.HasSuffix(col, suffix) {
			return true
		}
	}

	return false
}

// groupIndirect groups indirect attributes by the prefix left of their last
// dot, e.g. "parent_ref.pid" groups under "parent_ref", rendered as
// "prefix: attr1, attr2".
func groupIndirect(indirect []string) []string {
	groups := make(map[string][]string)

	var prefixes []string

	for _, col := range indirect {
		idx := strings.LastIndex(col, ".")
		if idx < 0 {
			continue
		}

		prefix := col[:idx]
		if _, seen := groups[prefix]; !seen {
			prefixes = append(prefixes, prefix)
		}

		groups[prefix] = append(groups[prefix], col)
	}

	sort.Strings(prefixes)

	out := make([]string, 0, len(prefixes))
	for _, prefix := range prefixes {
		out = append(out, fmt.Sprintf("%s: %s", prefix, strings.Join(groups[prefix], ", ")))
	}

	return out
}

func orNone(s string) string {
	if s == symtable.None {
		return "None"
	}

	return s
}

func dependentNames(deps map[string]struct{}) []string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
