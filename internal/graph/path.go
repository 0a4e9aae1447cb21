package graph

import (
	"github.com/toolweave/toolweave"
)

// FindPath searches for a chain of edges from source to target with at
// most maxHops edges, preferring fewer hops. Returns nil when no path
// exists within the budget.
func FindPath(snapshot *toolweave.GraphSnapshot, source, target toolweave.ToolID, maxHops int) []toolweave.CapabilityEdge {
	if maxHops <= 0 {
		return nil
	}
	if _, ok := snapshot.Tool(source); !ok {
		return nil
	}
	if _, ok := snapshot.Tool(target); !ok {
		return nil
	}

	type queueEntry struct {
		id   toolweave.ToolID
		path []toolweave.CapabilityEdge
	}

	visited := map[toolweave.ToolID]bool{source: true}
	queue := []queueEntry{{id: source}}

	for len(queue) > 0 {
		head := queue[0]
		queue = queue[1:]

		if len(head.path) >= maxHops {
			continue
		}

		for _, edge := range snapshot.EdgesFrom(head.id) {
			if visited[edge.Target] {
				continue
			}

			path := make([]toolweave.CapabilityEdge, len(head.path), len(head.path)+1)
			copy(path, head.path)
			path = append(path, edge)

			if edge.Target == target {
				return path
			}

			visited[edge.Target] = true
			queue = append(queue, queueEntry{id: edge.Target, path: path})
		}
	}

	return nil
}

// FindPath searches the current snapshot. See the package-level FindPath.
func (g *Graph) FindPath(source, target toolweave.ToolID, maxHops int) []toolweave.CapabilityEdge {
	return FindPath(g.Snapshot(), source, target, maxHops)
}
