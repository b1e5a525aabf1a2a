// internal/retrieval/graph.go
package retrieval

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// NodeKind is the variant kind of a warehouse object node.
type NodeKind string

const (
	NodeDatabase NodeKind = "Database"
	NodeSchema   NodeKind = "Schema"
	NodeTable    NodeKind = "Table"
	NodeColumn   NodeKind = "Column"
)

// EdgeKind is the variant kind of a graph edge.
type EdgeKind string

const (
	EdgeContains  EdgeKind = "CONTAINS"
	EdgeHasColumn EdgeKind = "HAS_COLUMN"
)

// Node is one warehouse object in the metadata graph. ID is the fully
// qualified name (db, db.schema, db.schema.table, db.schema.table.column).
type Node struct {
	ID    string            `json:"id"`
	Kind  NodeKind          `json:"kind"`
	Name  string            `json:"name"`
	Props map[string]string `json:"props,omitempty"`
}

// Edge links a parent object to one it contains.
type Edge struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Kind EdgeKind `json:"kind"`
}

// GraphMatch is a keyword lookup hit: the node label plus its associated text.
type GraphMatch struct {
	NodeLabel      string `json:"nodeLabel"`
	AssociatedText string `json:"associatedText"`
}

// TableMeta and ColumnMeta are the metadata extractor's records the graph
// is built from.
type TableMeta struct {
	Database string `json:"databaseName"`
	Schema   string `json:"schemaName"`
	Table    string `json:"tableName"`
	RowCount int64  `json:"rowCount"`
}

type ColumnMeta struct {
	Database string `json:"databaseName"`
	Schema   string `json:"schemaName"`
	Table    string `json:"tableName"`
	Column   string `json:"columnName"`
	DataType string `json:"dataType"`
}

// Graph is a directed graph of warehouse objects with a minimal keyword
// lookup capability. Safe for concurrent reads; Build/Load take the write lock
// so an out-of-band refresh does not race in-flight questions.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // insertion order, keeps search deterministic
	edges []Edge
}

func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

func (g *Graph) addNode(n Node) {
	if _, exists := g.nodes[n.ID]; !exists {
		g.order = append(g.order, n.ID)
	}
	g.nodes[n.ID] = &n
}

// BuildFromMetadata replaces the graph content with nodes and edges derived
// from table and column metadata records.
func (g *Graph) BuildFromMetadata(tables []TableMeta, columns []ColumnMeta) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nodes = make(map[string]*Node)
	g.order = nil
	g.edges = nil

	for _, t := range tables {
		if t.Database == "" || t.Schema == "" || t.Table == "" {
			continue
		}
		schemaID := t.Database + "." + t.Schema
		tableID := schemaID + "." + t.Table

		g.addNode(Node{ID: t.Database, Kind: NodeDatabase, Name: t.Database})
		g.addNode(Node{ID: schemaID, Kind: NodeSchema, Name: t.Schema})
		g.addNode(Node{ID: tableID, Kind: NodeTable, Name: t.Table, Props: map[string]string{
			"rowCount": fmt.Sprintf("%d", t.RowCount),
		}})
		g.edges = append(g.edges,
			Edge{From: t.Database, To: schemaID, Kind: EdgeContains},
			Edge{From: schemaID, To: tableID, Kind: EdgeContains},
		)
	}

	for _, c := range columns {
		if c.Database == "" || c.Schema == "" || c.Table == "" || c.Column == "" {
			continue
		}
		tableID := c.Database + "." + c.Schema + "." + c.Table
		colID := tableID + "." + c.Column

		g.addNode(Node{ID: colID, Kind: NodeColumn, Name: c.Column, Props: map[string]string{
			"dataType": c.DataType,
		}})
		g.edges = append(g.edges, Edge{From: tableID, To: colID, Kind: EdgeHasColumn})
	}
}

// FindNodesByKeyword returns up to max nodes whose name or ID contains any of
// the tokens, case-insensitive, in insertion order.
func (g *Graph) FindNodesByKeyword(tokens []string, max int) []GraphMatch {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var matches []GraphMatch
	for _, id := range g.order {
		node := g.nodes[id]
		name := strings.ToLower(node.Name)
		idLower := strings.ToLower(node.ID)

		for _, tok := range tokens {
			if strings.Contains(name, tok) || strings.Contains(idLower, tok) {
				matches = append(matches, GraphMatch{
					NodeLabel:      string(node.Kind),
					AssociatedText: describeNode(node),
				})
				break
			}
		}
		if len(matches) >= max {
			break
		}
	}
	return matches
}

func describeNode(n *Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", n.Kind, n.ID)
	if len(n.Props) > 0 {
		// stable prop order for deterministic prompts
		keys := make([]string, 0, len(n.Props))
		for k := range n.Props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, " %s=%s", k, n.Props[k])
		}
	}
	return b.String()
}

// snapshot is the JSON persistence shape of the graph.
type snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Save writes the graph snapshot to path, creating parent directories.
func (g *Graph) Save(path string) error {
	g.mu.RLock()
	snap := snapshot{Edges: g.edges}
	for _, id := range g.order {
		snap.Nodes = append(snap.Nodes, *g.nodes[id])
	}
	g.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph dir: %w", err)
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the graph content with the snapshot at path. A missing or
// corrupt snapshot yields an empty graph, matching degraded-mode retrieval.
func (g *Graph) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		g.mu.Lock()
		g.nodes = make(map[string]*Node)
		g.order = nil
		g.edges = nil
		g.mu.Unlock()
		return fmt.Errorf("read graph snapshot: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		g.mu.Lock()
		g.nodes = make(map[string]*Node)
		g.order = nil
		g.edges = nil
		g.mu.Unlock()
		return fmt.Errorf("parse graph snapshot: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes = make(map[string]*Node, len(snap.Nodes))
	g.order = nil
	for _, n := range snap.Nodes {
		g.addNode(n)
	}
	g.edges = snap.Edges
	return nil
}

// Size returns the number of nodes.
func (g *Graph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
