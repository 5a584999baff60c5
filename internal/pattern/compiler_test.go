package pattern

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymundl/kestrel-lang/internal/statement"
	"github.com/raymundl/kestrel-lang/internal/store"
	"github.com/raymundl/kestrel-lang/internal/symtable"
)

// fakeResolver is a minimal symtable.SymbolTable stand-in for pattern tests.
type fakeResolver map[string]symtable.VarStruct

func (f fakeResolver) Get(name string) (symtable.VarStruct, bool) {
	v, ok := f[name]

	return v, ok
}

// fakeStore implements just enough of store.Store for the pattern compiler:
// Lookup against a fixed table of rows keyed by view name.
type fakeStore struct {
	store.Store

	rows map[string][]store.Row
}

func (f *fakeStore) Lookup(_ context.Context, view string, attrs []string, _ int) ([]store.Row, error) {
	rows := f.rows[view]

	if len(attrs) == 0 {
		return rows, nil
	}

	out := make([]store.Row, len(rows))

	for i, row := range rows {
		projected := store.Row{}
		for _, attr := range attrs {
			if v, ok := row[attr]; ok {
				projected[attr] = v
			}
		}

		out[i] = projected
	}

	return out, nil
}

func TestBuildPattern_NoReferences(t *testing.T) {
	ctx := context.Background()

	body, ok, err := BuildPattern(ctx, "[process:name = 'cmd.exe']", time.Time{}, false, time.Time{}, 0, 0, fakeResolver{}, &fakeStore{}, false)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[process:name = 'cmd.exe']", body)
}

func TestBuildPattern_ResolvesVarReference(t *testing.T) {
	ctx := context.Background()

	symtab := fakeResolver{
		"proc1": {Type: "process", EntityTable: "proc1"},
	}
	st := &fakeStore{rows: map[string][]store.Row{
		"proc1": {{"pid": 123, "name": "cmd.exe", "command_line": "cmd.exe /c dir"}},
	}}

	body, ok, err := BuildPattern(ctx, "[network-traffic:parent_ref ~ <proc1>]", time.Time{}, false, time.Time{}, 0, 0, symtab, st, false)

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, body, "process:pid = 123")
	assert.Contains(t, body, "process:name = 'cmd.exe'")
}

func TestBuildPattern_EmptyVarReferenceYieldsNone(t *testing.T) {
	ctx := context.Background()

	symtab := fakeResolver{"empty": symtable.Empty("empty", statement.Statement{}, nil)}

	_, ok, err := BuildPattern(ctx, "[process:parent_ref ~ <empty>]", time.Time{}, false, time.Time{}, 0, 0, symtab, &fakeStore{}, false)

	require.NoError(t, err)
	assert.False(t, ok, "pattern compilation over an empty variable reference should yield None")
}

func TestBuildPattern_UnknownVariableIsError(t *testing.T) {
	ctx := context.Background()

	_, _, err := BuildPattern(ctx, "[process:parent_ref ~ <missing>]", time.Time{}, false, time.Time{}, 0, 0, fakeResolver{}, &fakeStore{}, false)

	require.Error(t, err)
}

func TestBuildPattern_TimeRangeWindow(t *testing.T) {
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	stop := time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC)

	body, ok, err := BuildPattern(ctx, "[process:name = 'x']", start, true, stop, -300, 300, fakeResolver{}, &fakeStore{}, false)

	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, body, "START t'2023-12-31T23:55:00Z'")
	assert.Contains(t, body, "STOP t'2024-01-01T01:05:00Z'")
}

func TestOrPatterns(t *testing.T) {
	_, ok := OrPatterns("", "")
	assert.False(t, ok)

	single, ok := OrPatterns("", "[a:b = 1]")
	require.True(t, ok)
	assert.Equal(t, "[a:b = 1]", single)

	combined, ok := OrPatterns("[a:b = 1]", "[c:d = 2]")
	require.True(t, ok)
	assert.Equal(t, "([a:b = 1] OR [c:d = 2])", combined)
}

func TestBuildPatternFromIDs(t *testing.T) {
	_, ok := BuildPatternFromIDs("process", nil)
	assert.False(t, ok)

	p, ok := BuildPatternFromIDs("process", []string{"id1", "id2"})
	require.True(t, ok)
	assert.Equal(t, "[process:id IN ('id1', 'id2')]", p)
}
