package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymundl/kestrel-lang/internal/statement"
)

func TestGroup_GroupsAndAggregatesWithDefaultAlias(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "nts",
		Data: []map[string]any{
			{"type": "network-traffic", "id": "nt--1", "dst_port": 443.0},
			{"type": "network-traffic", "id": "nt--2", "dst_port": 443.0},
			{"type": "network-traffic", "id": "nt--3", "dst_port": 80.0},
		},
	}, sess)
	require.NoError(t, err)

	v, d, err := Group(context.Background(), statement.Statement{
		Command: statement.CommandGroup, Output: "grouped", Inputs: []string{"nts"},
		Paths:        []string{"dst_port"},
		Aggregations: []statement.Aggregation{{Func: "count", Attr: "id"}},
	}, sess)
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NotNil(t, v)

	rows, err := sess.Store.Lookup(context.Background(), "grouped", nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	byPort := make(map[float64]int)
	for _, row := range rows {
		port, _ := row["dst_port"].(float64)
		count, _ := row["count_id"].(int)
		byPort[port] = count
	}

	assert.Equal(t, 2, byPort[443.0])
	assert.Equal(t, 1, byPort[80.0])
}

func TestGroup_HonorsExplicitAlias(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "nts",
		Data: []map[string]any{
			{"type": "network-traffic", "id": "nt--1", "dst_port": 443.0},
		},
	}, sess)
	require.NoError(t, err)

	_, _, err = Group(context.Background(), statement.Statement{
		Command: statement.CommandGroup, Output: "grouped", Inputs: []string{"nts"},
		Paths:        []string{"dst_port"},
		Aggregations: []statement.Aggregation{{Func: "count", Attr: "id", Alias: "total"}},
	}, sess)
	require.NoError(t, err)

	rows, err := sess.Store.Lookup(context.Background(), "grouped", nil, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0]["total"])
}
