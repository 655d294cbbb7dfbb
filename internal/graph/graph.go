// Package graph builds the directed link multigraph from persisted crawl records.
package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
	"github.com/gorbunovakris4/hse-crawler/internal/metrics"
)

// Node is one URL in the graph. Processed is set when the URL was the
// subject of a crawl record, HasLinks when that record had outbound links.
type Node struct {
	ID        int
	URL       string
	Processed bool
	HasLinks  bool
}

// Edge is a directed link. Duplicates and self-loops are kept.
type Edge struct {
	From int
	To   int
}

// Graph holds nodes indexed by dense id and edges in discovery order.
type Graph struct {
	Nodes   []Node
	Edges   []Edge
	Index   map[string]int
	Skipped int
}

func newGraph() *Graph {
	return &Graph{Index: make(map[string]int)}
}

// id returns the node id for url, assigning the next free id on first sight.
func (g *Graph) id(url string) int {
	if id, ok := g.Index[url]; ok {
		return id
	}
	id := len(g.Nodes)
	g.Index[url] = id
	g.Nodes = append(g.Nodes, Node{ID: id, URL: url})
	return id
}

// Builder reads crawl records and assembles a Graph.
type Builder struct {
	source crawler.RecordSource
	logger *zap.Logger
}

// NewBuilder creates a Builder over source.
func NewBuilder(source crawler.RecordSource, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{source: source, logger: logger}
}

// Build walks every record in key order. Unreadable records are skipped;
// failing to list the records fails the build.
func (b *Builder) Build(ctx context.Context) (*Graph, error) {
	keys, err := b.source.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("read record source: %w", err)
	}

	g := newGraph()
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("build canceled: %w", err)
		}
		record, err := b.source.Load(ctx, key)
		if err != nil {
			g.Skipped++
			b.logger.Warn("skipping unreadable record", zap.String("key", key), zap.Error(err))
			continue
		}
		from := g.id(record.URL)
		g.Nodes[from].Processed = true
		if !record.HasLinks() {
			continue
		}
		g.Nodes[from].HasLinks = true
		for _, link := range record.Links {
			to := g.id(link)
			g.Edges = append(g.Edges, Edge{From: from, To: to})
		}
	}

	metrics.Init()
	metrics.ObserveGraph(len(g.Nodes), len(g.Edges), g.Skipped)
	b.logger.Info("graph built",
		zap.Int("records", len(keys)),
		zap.Int("nodes", len(g.Nodes)),
		zap.Int("edges", len(g.Edges)),
		zap.Int("skipped", g.Skipped),
	)
	return g, nil
}
