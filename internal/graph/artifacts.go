package graph

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/gorbunovakris4/hse-crawler/internal/crawler"
)

// Artifact names inside the graph directory.
const (
	DefaultDir   = "web_graph"
	LinkToIDFile = "link_to_id.json"
	IDToInfoFile = "id_to_info.json"
	EdgesFile    = "edges.txt"
)

// NodeInfo is the persisted form of a node in id_to_info.json.
type NodeInfo struct {
	URL       string `json:"url"`
	Processed bool   `json:"processed"`
	HasLinks  bool   `json:"has_links"`
}

// WriteArtifacts stores the URL→id table, the id→info table and the edge list under dir.
func WriteArtifacts(ctx context.Context, blobs crawler.BlobStore, dir string, g *Graph) error {
	linkToID, err := json.Marshal(g.Index)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", LinkToIDFile, err)
	}
	info := make(map[int]NodeInfo, len(g.Nodes))
	for _, n := range g.Nodes {
		info[n.ID] = NodeInfo{URL: n.URL, Processed: n.Processed, HasLinks: n.HasLinks}
	}
	idToInfo, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", IDToInfoFile, err)
	}
	var edges bytes.Buffer
	for _, e := range g.Edges {
		fmt.Fprintf(&edges, "%d %d\n", e.From, e.To)
	}

	artifacts := []struct {
		name        string
		contentType string
		data        []byte
	}{
		{LinkToIDFile, "application/json", linkToID},
		{IDToInfoFile, "application/json", idToInfo},
		{EdgesFile, "text/plain; charset=utf-8", edges.Bytes()},
	}
	for _, a := range artifacts {
		p := path.Join(dir, a.name)
		if _, err := blobs.PutObject(ctx, p, a.contentType, bytes.NewReader(a.data)); err != nil {
			return fmt.Errorf("write %s: %w", p, err)
		}
	}
	return nil
}

// LoadNodes reads id_to_info.json and returns the nodes ordered by id.
// Ids must form the contiguous range 0..n-1.
func LoadNodes(ctx context.Context, blobs crawler.BlobStore, dir string) ([]Node, error) {
	p := path.Join(dir, IDToInfoFile)
	data, err := blobs.GetObject(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	var info map[int]NodeInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	nodes := make([]Node, len(info))
	for id, n := range info {
		if id < 0 || id >= len(info) {
			return nil, fmt.Errorf("decode %s: node id %d outside 0..%d", p, id, len(info)-1)
		}
		nodes[id] = Node{ID: id, URL: n.URL, Processed: n.Processed, HasLinks: n.HasLinks}
	}
	return nodes, nil
}

// LoadEdges reads edges.txt and checks every endpoint against nodeCount.
func LoadEdges(ctx context.Context, blobs crawler.BlobStore, dir string, nodeCount int) ([]Edge, error) {
	p := path.Join(dir, EdgesFile)
	data, err := blobs.GetObject(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	var edges []Edge
	scanner := bufio.NewScanner(bytes.NewReader(data))
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, fmt.Errorf("%s:%d: expected \"from to\", got %q", p, line, scanner.Text())
		}
		from, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", p, line, err)
		}
		to, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", p, line, err)
		}
		if from < 0 || from >= nodeCount || to < 0 || to >= nodeCount {
			return nil, fmt.Errorf("%s:%d: edge %d->%d outside 0..%d", p, line, from, to, nodeCount-1)
		}
		edges = append(edges, Edge{From: from, To: to})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", p, err)
	}
	return edges, nil
}
