// Package tracker implements the execution-tracking graph (spec.md §4.5): a
// directed acyclic graph of statement nodes and variable nodes, recording
// data dependencies as a session runs. Built from plain adjacency maps
// rather than a graph library or back-pointers per statement node (spec.md
// §9's "avoid back-pointers" design note): roots/leaves/all-simple-paths are
// computed on demand by walking the forward adjacency, never stored.
package tracker

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/raymundl/kestrel-lang/internal/statement"
)

// NodeKind discriminates a statement node from a variable node.
type NodeKind string

const (
	KindStatement NodeKind = "statement"
	KindVariable  NodeKind = "variable"
)

// Node is one tracker graph node: either a statement invocation or a
// variable binding.
type Node struct {
	ID   string
	Kind NodeKind

	// Command is populated for statement nodes.
	Command statement.Command

	// Variable is populated for variable nodes (the bound name).
	Variable string

	// Timestamp is the statement-entry or variable-binding time.
	Timestamp time.Time

	// Summary is the one-line VarStruct.Summary() for variable nodes.
	Summary string
}

// Tracker is the execution-tracking graph for one session. Not safe for
// concurrent use without external synchronization; spec.md §5 scopes
// execution to single-threaded cooperative scheduling per session.
type Tracker struct {
	nodes map[string]Node
	edges map[string][]string // node id -> ids it points to
	order []string            // insertion order, for deterministic iteration
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{
		nodes: make(map[string]Node),
		edges: make(map[string][]string),
	}
}

// RecordStatement adds a statement node at entry time, with an edge from
// every input variable node that currently exists to the new statement node.
// Returns the new node's id.
func (t *Tracker) RecordStatement(cmd statement.Command, inputs []string, at time.Time) string {
	id := "stmt:" + uuid.NewString()

	t.nodes[id] = Node{ID: id, Kind: KindStatement, Command: cmd, Timestamp: at}
	t.order = append(t.order, id)

	for _, in := range inputs {
		if varID, ok := t.latestVariableNode(in); ok {
			t.addEdge(varID, id)
		}
	}

	return id
}

// RecordVariable adds a variable node bound by statementID at binding time,
// with an edge from the statement node to the new variable node. Rebinding a
// name adds a new node; the previous binding's node remains in the graph
// (it is still a valid dependency source for statements that ran before the
// rebind).
func (t *Tracker) RecordVariable(statementID, name, summary string, at time.Time) string {
	id := "var:" + name + ":" + uuid.NewString()

	t.nodes[id] = Node{ID: id, Kind: KindVariable, Variable: name, Timestamp: at, Summary: summary}
	t.order = append(t.order, id)

	if statementID != "" {
		t.addEdge(statementID, id)
	}

	return id
}

func (t *Tracker) addEdge(from, to string) {
	t.edges[from] = append(t.edges[from], to)
}

// latestVariableNode finds the most recently inserted variable node bound to
// name, walking insertion order backwards.
func (t *Tracker) latestVariableNode(name string) (string, bool) {
	for i := len(t.order) - 1; i >= 0; i-- {
		id := t.order[i]
		if n := t.nodes[id]; n.Kind == KindVariable && n.Variable == name {
			return id, true
		}
	}

	return "", false
}

// Roots returns every node id with in-degree zero, sorted by insertion order.
func (t *Tracker) Roots() []string {
	inDegree := t.inDegrees()

	var roots []string

	for _, id := range t.order {
		if inDegree[id] == 0 {
			roots = append(roots, id)
		}
	}

	return roots
}

// Leaves returns every node id with out-degree zero, sorted by insertion
// order.
func (t *Tracker) Leaves() []string {
	var leaves []string

	for _, id := range t.order {
		if len(t.edges[id]) == 0 {
			leaves = append(leaves, id)
		}
	}

	return leaves
}

func (t *Tracker) inDegrees() map[string]int {
	inDegree := make(map[string]int, len(t.nodes))

	for _, id := range t.order {
		inDegree[id] = 0
	}

	for _, tos := range t.edges {
		for _, to := range tos {
			inDegree[to]++
		}
	}

	return inDegree
}

// AllSimplePaths enumerates every simple path (no repeated node) from root to
// leaf, as ordered lists of node ids. Returns nil if root or leaf is unknown
// to the graph, or no path connects them.
func (t *Tracker) AllSimplePaths(root, leaf string) [][]string {
	if _, ok := t.nodes[root]; !ok {
		return nil
	}

	if _, ok := t.nodes[leaf]; !ok {
		return nil
	}

	var paths [][]string

	visited := make(map[string]bool)
	path := []string{root}
	visited[root] = true

	var walk func(current string)
	walk = func(current string) {
		if current == leaf {
			found := make([]string, len(path))
			copy(found, path)
			paths = append(paths, found)

			return
		}

		for _, next := range t.edges[current] {
			if visited[next] {
				continue
			}

			visited[next] = true
			path = append(path, next)

			walk(next)

			path = path[:len(path)-1]
			visited[next] = false
		}
	}

	walk(root)

	return paths
}

// Node returns the node registered under id.
func (t *Tracker) Node(id string) (Node, bool) {
	n, ok := t.nodes[id]

	return n, ok
}

// Graph renders the tracker into display terms: every root-to-leaf simple
// path (as variable/statement names rather than ids), plus per-step and
// per-variable timestamps and variable summaries, for DISP _.
func (t *Tracker) Graph() Graph {
	g := Graph{
		StepTimestamps:     make(map[string]int64),
		VariableTimestamps: make(map[string]int64),
		VariableSummaries:  make(map[string]string),
	}

	for _, id := range t.order {
		n := t.nodes[id]
		switch n.Kind {
		case KindStatement:
			g.StepTimestamps[labelFor(n)] = n.Timestamp.UnixMilli()
		case KindVariable:
			g.VariableTimestamps[n.Variable] = n.Timestamp.UnixMilli()
			g.VariableSummaries[n.Variable] = n.Summary
		}
	}

	roots := t.Roots()
	leaves := t.Leaves()

	sort.Strings(roots)
	sort.Strings(leaves)

	for _, root := range roots {
		for _, leaf := range leaves {
			for _, path := range t.AllSimplePaths(root, leaf) {
				g.Paths = append(g.Paths, labelPath(t, path))
			}
		}
	}

	return g
}

func labelFor(n Node) string {
	if n.Kind == KindVariable {
		return n.Variable
	}

	return fmt.Sprintf("%s#%s", n.Command, n.ID)
}

func labelPath(t *Tracker, path []string) []string {
	labels := make([]string, len(path))

	for i, id := range path {
		n := t.nodes[id]
		labels[i] = labelFor(n)
	}

	return labels
}

// Graph is the DISP _ presentation of a Tracker, decoupled from internal
// node ids (see display.TrackerGraph, which this maps onto directly).
type Graph struct {
	Paths              [][]string
	StepTimestamps     map[string]int64
	VariableTimestamps map[string]int64
	VariableSummaries  map[string]string
}
