package exec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raymundl/kestrel-lang/internal/kerrors"
	"github.com/raymundl/kestrel-lang/internal/statement"
)

func TestJoin_InnerJoinsOnDottedPaths(t *testing.T) {
	sess := newTestSession()

	_, _, err := New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "procs",
		Data: []map[string]any{
			{"type": "process", "id": "process--1", "pid": 111.0},
			{"type": "process", "id": "process--2", "pid": 222.0},
		},
	}, sess)
	require.NoError(t, err)

	_, _, err = New(context.Background(), statement.Statement{
		Command: statement.CommandNew, Output: "nts",
		Data: []map[string]any{
			{"type": "network-traffic", "id": "nt--1", "process_pid": 111.0},
			{"type": "network-traffic", "id": "nt--2", "process_pid": 999.0},
		},
	}, sess)
	require.NoError(t, err)

	v, d, err := Join(context.Background(), statement.Statement{
		Command: statement.CommandJoin, Output: "joined",
		Inputs: []string{"procs", "nts"},
		Paths:  []string{"pid", "process_pid"},
	}, sess)
	require.NoError(t, err)
	assert.Nil(t, d)
	require.NotNil(t, v)
	assert.Equal(t, 1, v.RecordsCount)
}

func TestJoin_WrongInputCountFails(t *testing.T) {
	sess := newTestSession()

	_, _, err := Join(context.Background(), statement.Statement{
		Command: statement.CommandJoin, Output: "joined", Inputs: []string{"onlyone"},
	}, sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrKestrelInternal)
}

func TestJoin_UnknownInputFails(t *testing.T) {
	sess := newTestSession()

	_, _, err := Join(context.Background(), statement.Statement{
		Command: statement.CommandJoin, Output: "joined", Inputs: []string{"missing1", "missing2"},
	}, sess)
	require.Error(t, err)
	assert.ErrorIs(t, err, kerrors.ErrVariableNotExist)
}
