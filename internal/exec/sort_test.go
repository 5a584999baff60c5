package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymundl/kestrel-lang/internal/statement"
)

func TestSort_AscendingAndDescending(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew,
		Output:  "procs",
		Data: []map[string]any{
			{"type": "process", "id": "process--3", "pid": 333.0},
			{"type": "process", "id": "process--1", "pid": 111.0},
			{"type": "process", "id": "process--2", "pid": 222.0},
		},
	}, sess)
	require.NoError(t, err)

	v, _, err := Sort(context.Background(), statement.Statement{
		Command: statement.CommandSort, Output: "sorted", Inputs: []string{"procs"}, Path: "pid",
	}, sess)
	require.NoError(t, err)
	require.NotNil(t, v)

	rows, err := sess.Store.Lookup(context.Background(), "sorted", nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.InDelta(t, 111.0, rows[0]["pid"], 0.0001)
	assert.InDelta(t, 222.0, rows[1]["pid"], 0.0001)
	assert.InDelta(t, 333.0, rows[2]["pid"], 0.0001)

	v, _, err = Sort(context.Background(), statement.Statement{
		Command: statement.CommandSort, Output: "sorted_desc", Inputs: []string{"procs"}, Path: "pid", Reversed: true,
	}, sess)
	require.NoError(t, err)
	require.NotNil(t, v)

	rows, err = sess.Store.Lookup(context.Background(), "sorted_desc", nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.InDelta(t, 333.0, rows[0]["pid"], 0.0001)
	assert.InDelta(t, 111.0, rows[2]["pid"], 0.0001)
}

func TestSort_UnknownVariableFails(t *testing.T) {
	sess := newTestSession()

	_, _, err := Sort(context.Background(), statement.Statement{
		Command: statement.CommandSort, Output: "sorted", Inputs: []string{"missing"}, Path: "pid",
	}, sess)
	assert.Error(t, err)
}
