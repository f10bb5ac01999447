package executor

import (
	"github.com/aescanero/pipewright/pkg/domain"
)

// Graph is the runnable form of a schema: every node with its direct
// dependencies (incoming edges) and dependents (outgoing edges)
type Graph struct {
	order        []string
	nodes        map[string]*domain.NodeDefinition
	runners      map[string]node
	dependencies map[string][]string
	dependents   map[string][]string
	incoming     map[string][]domain.EdgeDefinition
}

// BuildGraph builds the adjacency structure of a schema. Cycles are not
// rejected here; the walk detects them.
func BuildGraph(schema *domain.PipelineSchema) (*Graph, error) {
	if schema == nil {
		return nil, domain.NewInvalidRequest("schema is nil")
	}

	g := &Graph{
		order:        make([]string, 0, len(schema.NodeDefinitions)),
		nodes:        make(map[string]*domain.NodeDefinition, len(schema.NodeDefinitions)),
		runners:      make(map[string]node, len(schema.NodeDefinitions)),
		dependencies: make(map[string][]string),
		dependents:   make(map[string][]string),
		incoming:     make(map[string][]domain.EdgeDefinition),
	}

	for i := range schema.NodeDefinitions {
		def := &schema.NodeDefinitions[i]
		if def.NodeID == "" {
			return nil, domain.NewInvalidRequest("node at index %d has no id", i)
		}
		if _, exists := g.nodes[def.NodeID]; exists {
			return nil, domain.NewInvalidRequest("duplicate node ID: %s", def.NodeID)
		}

		runner, err := newNode(def)
		if err != nil {
			return nil, err
		}

		g.nodes[def.NodeID] = def
		g.runners[def.NodeID] = runner
		g.order = append(g.order, def.NodeID)
	}

	for _, edge := range schema.EdgeDefinitions {
		if _, ok := g.nodes[edge.SourceNodeID]; !ok {
			return nil, domain.NewInvalidRequest("edge %s references non-existent source node: %s", edge.ID, edge.SourceNodeID)
		}
		if _, ok := g.nodes[edge.TargetNodeID]; !ok {
			return nil, domain.NewInvalidRequest("edge %s references non-existent target node: %s", edge.ID, edge.TargetNodeID)
		}

		g.incoming[edge.TargetNodeID] = append(g.incoming[edge.TargetNodeID], edge)
		g.dependencies[edge.TargetNodeID] = appendUnique(g.dependencies[edge.TargetNodeID], edge.SourceNodeID)
		g.dependents[edge.SourceNodeID] = appendUnique(g.dependents[edge.SourceNodeID], edge.TargetNodeID)
	}

	return g, nil
}

// NodeIDs returns node ids in definition order
func (g *Graph) NodeIDs() []string {
	return append([]string(nil), g.order...)
}

// Node returns the definition of a node
func (g *Graph) Node(id string) (*domain.NodeDefinition, bool) {
	def, ok := g.nodes[id]
	return def, ok
}

// Dependencies returns the nodes id depends on
func (g *Graph) Dependencies(id string) []string {
	return g.dependencies[id]
}

// Dependents returns the nodes that depend on id
func (g *Graph) Dependents(id string) []string {
	return g.dependents[id]
}

// Len returns the number of nodes
func (g *Graph) Len() int {
	return len(g.order)
}

func appendUnique(list []string, id string) []string {
	for _, existing := range list {
		if existing == id {
			return list
		}
	}
	return append(list, id)
}
