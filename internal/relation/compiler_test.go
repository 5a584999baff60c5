package relation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsGeneric(t *testing.T) {
	assert.True(t, IsGeneric("linked"))
	assert.True(t, IsGeneric("contained"))
	assert.False(t, IsGeneric("parent"))
}

func TestAssociatesWithEvent(t *testing.T) {
	assert.True(t, AssociatesWithEvent("process"))
	assert.True(t, AssociatesWithEvent("network-traffic"))
	assert.False(t, AssociatesWithEvent("x-oca-event"))
}

func TestCompileIdenticalEntity(t *testing.T) {
	assert.Equal(t, "<proc1>", CompileIdenticalEntity("proc1"))
}

func TestCompileGeneric_ForwardEdge(t *testing.T) {
	body, ok, err := CompileGeneric("linked", "network-traffic", "process", "proc1")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[network-traffic:id IN (<proc1.opened_connection_refs>)]", body)
}

func TestCompileGeneric_ReverseEdge(t *testing.T) {
	body, ok, err := CompileGeneric("linked", "process", "network-traffic", "nt1")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[process:opened_connection_refs IN (<nt1.id>)]", body)
}

func TestCompileGeneric_UnknownRelation(t *testing.T) {
	body, ok, err := CompileGeneric("bogus", "process", "file", "f1")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestCompileGeneric_NoMatchingEdge(t *testing.T) {
	body, ok, err := CompileGeneric("linked", "windows-registry-key", "process", "proc1")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestCompileSpecific_ParentForward(t *testing.T) {
	body, ok, err := CompileSpecific("parent", "process", "process", false, "proc1")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[process:id IN (<proc1.parent_ref>)]", body)
}

func TestCompileSpecific_ChildUsesReverseRef(t *testing.T) {
	body, ok, err := CompileSpecific("child", "process", "process", true, "proc1")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[process:parent_ref IN (<proc1.id>)]", body)
}

func TestCompileSpecific_ReturnTypeMismatchReturnsNoMatch(t *testing.T) {
	body, ok, err := CompileSpecific("loaded", "process", "process", false, "proc1")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestCompileSpecific_EmptyReferenceNoMatch(t *testing.T) {
	// "process.parent" has no ReverseRef, so requesting it reversed must
	// fall back to "no edge" rather than an InvalidAttribute error.
	body, ok, err := CompileSpecific("parent", "process", "process", true, "proc1")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestCompileEventIn(t *testing.T) {
	body, ok, err := CompileEventIn("process", "proc1")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[x-oca-event:process_ref.id IN (<proc1.id>)]", body)
}

func TestCompileEventIn_UnassociatedType(t *testing.T) {
	body, ok, err := CompileEventIn("x-oca-event", "ev1")

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, body)
}

func TestCompileEventOut(t *testing.T) {
	body, ok, err := CompileEventOut("network-traffic", "events")

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "[network-traffic:id IN (<events.network-traffic_ref.id>)]", body)
}
