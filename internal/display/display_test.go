package display

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	d := Text("hello")

	assert.Equal(t, KindText, d.Kind)
	assert.Equal(t, "hello", d.Text)
}

func TestTable(t *testing.T) {
	rows := []map[string]any{{"pid": 123}, {"pid": 456}}
	cols := []string{"pid"}
	d := Table(rows, cols)

	assert.Equal(t, KindTable, d.Kind)
	assert.Equal(t, rows, d.Table)
	assert.Equal(t, cols, d.Columns)
}

func TestMapping(t *testing.T) {
	keys := []string{"Entity Type", "Number of Entities"}
	values := map[string][]string{
		"Entity Type":        {"process"},
		"Number of Entities": {"2"},
	}

	d := Mapping(keys, values)

	assert.Equal(t, KindMapping, d.Kind)
	assert.Equal(t, keys, d.MappingKeys)
	assert.Equal(t, values, d.Mapping)
}

func TestTracker(t *testing.T) {
	g := TrackerGraph{Paths: [][]string{{"root", "leaf"}}}

	d := Tracker(g)

	assert.Equal(t, KindTracker, d.Kind)
	assert.Equal(t, g, d.Tracker)
}
