package cfg

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidDict is returned by FromDict for structurally broken input.
var ErrInvalidDict = errors.New("invalid cfg dict")

// NodeDict is the serialized form of a block.
type NodeDict struct {
	ID           int            `json:"id"`
	Type         BlockKind      `json:"type"`
	Statements   []StatementRef `json:"statements"`
	Predecessors []int          `json:"predecessors"`
	Successors   []int          `json:"successors"`
}

// EdgeDict is the serialized form of an edge.
type EdgeDict struct {
	SourceID  int           `json:"source_id"`
	TargetID  int           `json:"target_id"`
	Condition EdgeCondition `json:"condition"`
}

// Dict is the stable persisted shape of a Graph.
type Dict struct {
	Name        string           `json:"name"`
	Nodes       map[int]NodeDict `json:"nodes"`
	Edges       []EdgeDict       `json:"edges"`
	EntryNodeID int              `json:"entry_node_id"`
	ExitNodeID  int              `json:"exit_node_id"`
}

// ToDict serializes g. Slices are copied, so the result shares no memory
// with the graph.
func (g *Graph) ToDict() Dict {
	d := Dict{
		Name:        g.Name,
		Nodes:       make(map[int]NodeDict, len(g.Blocks)),
		Edges:       make([]EdgeDict, 0, len(g.Edges)),
		EntryNodeID: g.Entry,
		ExitNodeID:  g.Exit,
	}
	for _, b := range g.Blocks {
		d.Nodes[b.ID] = NodeDict{
			ID:           b.ID,
			Type:         b.Kind,
			Statements:   append([]StatementRef{}, b.Statements...),
			Predecessors: append([]int{}, b.Predecessors...),
			Successors:   append([]int{}, b.Successors...),
		}
	}
	for _, e := range g.Edges {
		d.Edges = append(d.Edges, EdgeDict{SourceID: e.SourceID, TargetID: e.TargetID, Condition: e.Condition})
	}
	return d
}

// FromDict rebuilds a Graph. Node ids must be exactly 0..n-1 and every edge
// endpoint must exist. Adjacency sets are recomputed from the edge list.
func FromDict(d Dict) (*Graph, error) {
	ids := make([]int, 0, len(d.Nodes))
	for id, n := range d.Nodes {
		if n.ID != id {
			return nil, fmt.Errorf("%w: node key %d holds id %d", ErrInvalidDict, id, n.ID)
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for i, id := range ids {
		if id != i {
			return nil, fmt.Errorf("%w: node ids are not contiguous (missing %d)", ErrInvalidDict, i)
		}
	}

	g := &Graph{
		Name:   d.Name,
		Blocks: make([]BasicBlock, len(ids)),
		Edges:  make([]ControlEdge, 0, len(d.Edges)),
		Entry:  d.EntryNodeID,
		Exit:   d.ExitNodeID,
	}
	if _, ok := d.Nodes[g.Entry]; !ok {
		return nil, fmt.Errorf("%w: entry node %d not found", ErrInvalidDict, g.Entry)
	}
	if _, ok := d.Nodes[g.Exit]; !ok {
		return nil, fmt.Errorf("%w: exit node %d not found", ErrInvalidDict, g.Exit)
	}

	for _, id := range ids {
		n := d.Nodes[id]
		g.Blocks[id] = BasicBlock{
			ID:         id,
			Kind:       n.Type,
			Statements: append([]StatementRef(nil), n.Statements...),
		}
	}
	for _, e := range d.Edges {
		if e.SourceID < 0 || e.SourceID >= len(ids) || e.TargetID < 0 || e.TargetID >= len(ids) {
			return nil, fmt.Errorf("%w: edge %d->%d references unknown node", ErrInvalidDict, e.SourceID, e.TargetID)
		}
		g.addEdge(e.SourceID, e.TargetID, e.Condition)
	}
	return g, nil
}
