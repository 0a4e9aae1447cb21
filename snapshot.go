package toolweave

import (
	"encoding/json"
	"sort"
)

// GraphSnapshot is one immutable, fully-consistent view of the capability
// graph. Mutations build a new snapshot and install it atomically; readers
// hold a reference for the duration of their operation and never observe a
// partially-rebuilt state.
type GraphSnapshot struct {
	Version uint64

	tools map[ToolID]Tool
	edges map[edgeKey]CapabilityEdge
}

type edgeKey struct {
	source ToolID
	target ToolID
}

// NewGraphSnapshot builds a snapshot from a tool and edge set. The maps are
// copied; callers may not mutate the snapshot afterward.
func NewGraphSnapshot(version uint64, tools map[ToolID]Tool, edges []CapabilityEdge) *GraphSnapshot {
	snap := &GraphSnapshot{
		Version: version,
		tools:   make(map[ToolID]Tool, len(tools)),
		edges:   make(map[edgeKey]CapabilityEdge, len(edges)),
	}
	for id, tool := range tools {
		snap.tools[id] = tool
	}
	for _, edge := range edges {
		snap.edges[edgeKey{source: edge.Source, target: edge.Target}] = edge
	}
	return snap
}

// EmptySnapshot returns a snapshot with no tools and no edges.
func EmptySnapshot() *GraphSnapshot {
	return NewGraphSnapshot(0, nil, nil)
}

// Tool looks up a registered tool by ID.
func (s *GraphSnapshot) Tool(id ToolID) (Tool, bool) {
	tool, ok := s.tools[id]
	return tool, ok
}

// Tools returns all registered tools, ordered by ID for stable output.
func (s *GraphSnapshot) Tools() []Tool {
	out := make([]Tool, 0, len(s.tools))
	for _, tool := range s.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

// ToolCount returns the number of registered tools.
func (s *GraphSnapshot) ToolCount() int {
	return len(s.tools)
}

// Edge returns the edge for an ordered tool pair, if one exists.
func (s *GraphSnapshot) Edge(source, target ToolID) (CapabilityEdge, bool) {
	edge, ok := s.edges[edgeKey{source: source, target: target}]
	return edge, ok
}

// HasEdge reports whether an edge exists for the ordered pair.
func (s *GraphSnapshot) HasEdge(source, target ToolID) bool {
	_, ok := s.Edge(source, target)
	return ok
}

// Edges returns every edge, ordered by source then target.
func (s *GraphSnapshot) Edges() []CapabilityEdge {
	out := make([]CapabilityEdge, 0, len(s.edges))
	for _, edge := range s.edges {
		out = append(out, edge)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source.String() < out[j].Source.String()
		}
		return out[i].Target.String() < out[j].Target.String()
	})
	return out
}

// EdgeCount returns the number of edges.
func (s *GraphSnapshot) EdgeCount() int {
	return len(s.edges)
}

// EdgesFrom returns the outgoing edges of a tool, ordered by target.
func (s *GraphSnapshot) EdgesFrom(id ToolID) []CapabilityEdge {
	var out []CapabilityEdge
	for key, edge := range s.edges {
		if key.source == id {
			out = append(out, edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Target.String() < out[j].Target.String() })
	return out
}

// EdgesTo returns the incoming edges of a tool, ordered by source.
func (s *GraphSnapshot) EdgesTo(id ToolID) []CapabilityEdge {
	var out []CapabilityEdge
	for key, edge := range s.edges {
		if key.target == id {
			out = append(out, edge)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source.String() < out[j].Source.String() })
	return out
}

// MarshalJSON renders the snapshot with its tool and edge sets in stable
// order. The backing maps are unexported, so without this the snapshot
// would serialize as the bare version number.
func (s *GraphSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Version uint64           `json:"version"`
		Tools   []Tool           `json:"tools"`
		Edges   []CapabilityEdge `json:"edges"`
	}{
		Version: s.Version,
		Tools:   s.Tools(),
		Edges:   s.Edges(),
	})
}

// Summaries renders the per-tool summaries handed to the sequence
// proposer.
func (s *GraphSnapshot) Summaries() []ToolSummary {
	tools := s.Tools()
	out := make([]ToolSummary, 0, len(tools))
	for _, tool := range tools {
		out = append(out, ToolSummary{
			ID:          tool.ID,
			Description: tool.Description,
			Inputs:      tool.InputSchema.String(),
			Outputs:     tool.OutputSchema.String(),
		})
	}
	return out
}
