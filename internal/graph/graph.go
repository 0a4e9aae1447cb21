// Package graph maintains the directed capability graph over registered
// tools. Mutations are serialized through a single writer and publish
// immutable copy-on-write snapshots; readers never block and never observe
// a partially classified graph.
package graph

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/toolweave/toolweave"
	"github.com/toolweave/toolweave/internal/embedding"
	"golang.org/x/sync/errgroup"
)

// Graph implements toolweave.CapabilityGraph on top of an embedding index.
type Graph struct {
	index     *embedding.Index
	threshold float64
	workers   int

	// writeMutex serializes all mutations. Readers go through the atomic
	// snapshot pointer and never take it.
	writeMutex sync.Mutex
	snapshot   atomic.Pointer[toolweave.GraphSnapshot]
}

// Option configures a Graph.
type Option func(*Graph)

// WithThreshold sets the similarity threshold for translatable edges.
func WithThreshold(threshold float64) Option {
	return func(g *Graph) {
		g.threshold = threshold
	}
}

// WithWorkers sets the number of classification workers.
func WithWorkers(workers int) Option {
	return func(g *Graph) {
		g.workers = workers
	}
}

// New creates an empty capability graph.
func New(index *embedding.Index, options ...Option) *Graph {
	g := &Graph{
		index:     index,
		threshold: 0.75,
		workers:   4,
	}
	for _, option := range options {
		option(g)
	}
	g.snapshot.Store(toolweave.EmptySnapshot())
	return g
}

// Snapshot returns the current immutable graph snapshot.
func (g *Graph) Snapshot() *toolweave.GraphSnapshot {
	return g.snapshot.Load()
}

// EdgesFrom returns the outgoing edges of a tool in the current snapshot.
func (g *Graph) EdgesFrom(id toolweave.ToolID) []toolweave.CapabilityEdge {
	return g.Snapshot().EdgesFrom(id)
}

// AddTool embeds the tool, classifies it against every registered tool in
// both directions and installs the grown graph as one new snapshot.
// Registering an already-registered ID replaces the tool and reclassifies
// its edges.
func (g *Graph) AddTool(ctx context.Context, tool toolweave.Tool) error {
	// Embedding happens before the write lock is taken: a slow or hung
	// provider must not block purely local mutations like RemoveTool. On
	// embedder failure nothing is installed and the graph is left exactly
	// as it was.
	if err := g.index.Add(ctx, tool); err != nil {
		return err
	}

	g.writeMutex.Lock()
	defer g.writeMutex.Unlock()

	current := g.snapshot.Load()

	tools := make(map[toolweave.ToolID]toolweave.Tool, current.ToolCount()+1)
	for _, existing := range current.Tools() {
		if existing.ID != tool.ID {
			tools[existing.ID] = existing
		}
	}

	// Keep edges between unaffected pairs; every pair touching the new
	// tool is reclassified from scratch.
	edges := make([]toolweave.CapabilityEdge, 0, current.EdgeCount())
	for _, edge := range current.Edges() {
		if edge.Source != tool.ID && edge.Target != tool.ID {
			edges = append(edges, edge)
		}
	}

	var pairs []classifyPair
	for _, existing := range tools {
		pairs = append(pairs,
			classifyPair{source: tool, target: existing},
			classifyPair{source: existing, target: tool},
		)
	}
	edges = append(edges, g.classifyAll(pairs)...)

	tools[tool.ID] = tool
	g.install(tools, edges)
	return nil
}

// RemoveTool deletes the tool and exactly its incident edges.
func (g *Graph) RemoveTool(id toolweave.ToolID) error {
	g.writeMutex.Lock()
	defer g.writeMutex.Unlock()

	current := g.snapshot.Load()
	if _, ok := current.Tool(id); !ok {
		return toolweave.NewToolNotFoundError("deregister", id)
	}

	g.index.Remove(id)

	tools := make(map[toolweave.ToolID]toolweave.Tool, current.ToolCount()-1)
	for _, tool := range current.Tools() {
		if tool.ID != id {
			tools[tool.ID] = tool
		}
	}

	var edges []toolweave.CapabilityEdge
	for _, edge := range current.Edges() {
		if edge.Source != id && edge.Target != id {
			edges = append(edges, edge)
		}
	}

	g.install(tools, edges)
	return nil
}

// Rebuild re-embeds every registered tool and reclassifies every ordered
// pair from scratch. Against an unchanged tool set the result is
// deterministic. Returns the resulting edge count.
func (g *Graph) Rebuild(ctx context.Context) (int, error) {
	for {
		current := g.snapshot.Load()
		toolList := current.Tools()

		// Re-embedding runs outside the write lock and overwrites index
		// entries in place rather than clearing first. A failed embed
		// leaves the previous vectors and the previous snapshot intact,
		// and local mutations stay unblocked while the provider is slow.
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(g.workers)
		for _, tool := range toolList {
			tool := tool
			eg.Go(func() error {
				return g.index.Add(egCtx, tool)
			})
		}
		if err := eg.Wait(); err != nil {
			log.Printf("Graph rebuild aborted during embedding: %v", err)
			return 0, err
		}

		g.writeMutex.Lock()
		if g.snapshot.Load().Version != current.Version {
			// The tool set changed while embedding; classify against the
			// new set instead.
			g.writeMutex.Unlock()
			continue
		}

		tools := make(map[toolweave.ToolID]toolweave.Tool, len(toolList))
		for _, tool := range toolList {
			tools[tool.ID] = tool
		}

		var pairs []classifyPair
		for _, source := range toolList {
			for _, target := range toolList {
				if source.ID == target.ID {
					continue
				}
				pairs = append(pairs, classifyPair{source: source, target: target})
			}
		}
		edges := g.classifyAll(pairs)

		g.install(tools, edges)
		g.writeMutex.Unlock()
		return len(edges), nil
	}
}

// classifyAll runs pair classification on a bounded worker pool and
// collects the resulting edges.
func (g *Graph) classifyAll(pairs []classifyPair) []toolweave.CapabilityEdge {
	var (
		mutex sync.Mutex
		edges []toolweave.CapabilityEdge
	)

	workerPool := pool.New().WithMaxGoroutines(g.workers)
	for _, pair := range pairs {
		pair := pair
		workerPool.Go(func() {
			edge, ok := g.classify(pair.source, pair.target)
			if !ok {
				return
			}
			mutex.Lock()
			edges = append(edges, edge)
			mutex.Unlock()
		})
	}
	workerPool.Wait()

	return edges
}

// install publishes a new snapshot with a bumped version.
func (g *Graph) install(tools map[toolweave.ToolID]toolweave.Tool, edges []toolweave.CapabilityEdge) {
	version := g.snapshot.Load().Version + 1
	g.snapshot.Store(toolweave.NewGraphSnapshot(version, tools, edges))
}
