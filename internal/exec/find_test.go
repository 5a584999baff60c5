package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymundl/kestrel-lang/internal/statement"
)

func TestFind_NeverSeenReturnTypeBindsEmpty(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "procs",
		Data: []map[string]any{{"type": "process", "id": "process--1"}},
	}, sess)
	require.NoError(t, err)

	stmt := statement.Statement{
		Command: statement.CommandFind, Output: "found",
		Inputs: []string{"procs"}, Type: "network-traffic", Relation: "linked",
	}

	v, d, err := Find(context.Background(), stmt, sess)
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NotNil(t, v)
	assert.True(t, v.IsEmpty())
}

func TestFind_SpecificRelationResolvesParentByID(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "parents",
		Data: []map[string]any{{"type": "process", "id": "process--parent", "pid": 1.0}},
	}, sess)
	require.NoError(t, err)

	_, _, err = New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "child",
		Data: []map[string]any{{
			"type": "process", "id": "process--child", "pid": 2.0, "parent_ref": "process--parent",
		}},
	}, sess)
	require.NoError(t, err)

	stmt := statement.Statement{
		Command: statement.CommandFind, Output: "found",
		Inputs: []string{"child"}, Type: "process", Relation: "parent",
	}

	v, d, err := Find(context.Background(), stmt, sess)
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NotNil(t, v)
	assert.False(t, v.IsEmpty())
	assert.Equal(t, 1, v.RecordsCount)

	rows, err := sess.Store.Lookup(context.Background(), v.EntityTable, nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "process--parent", rows[0]["id"])
}

func TestFind_UnrelatedRelationYieldsEmpty(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "child",
		Data: []map[string]any{{"type": "process", "id": "process--child", "pid": 2.0}},
	}, sess)
	require.NoError(t, err)

	stmt := statement.Statement{
		Command: statement.CommandFind, Output: "found",
		Inputs: []string{"child"}, Type: "process", Relation: "parent",
	}

	v, _, err := Find(context.Background(), stmt, sess)
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.True(t, v.IsEmpty())
}

func TestFind_UnknownInputFails(t *testing.T) {
	sess := newTestSession()

	_, _, err := Find(context.Background(), statement.Statement{
		Command: statement.CommandFind, Output: "found", Inputs: []string{"missing"}, Type: "process", Relation: "parent",
	}, sess)
	assert.Error(t, err)
}
