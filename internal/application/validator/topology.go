package validator

import (
	"strconv"
	"strings"

	"github.com/aescanero/pipewright/pkg/domain"
)

// validateTopology checks the structural soundness of the node graph
func (v *Validator) validateTopology(s *domain.PipelineSchema) *result {
	r := newResult()
	r.Metrics["node_count"] = len(s.NodeDefinitions)
	r.Metrics["edge_count"] = len(s.EdgeDefinitions)

	if len(s.NodeDefinitions) == 0 {
		r.errorf(CodeEmptyNodes, "", "schema must contain at least one node")
	}
	if len(s.EdgeDefinitions) == 0 {
		r.errorf(CodeEmptyEdges, "", "schema must contain at least one edge")
	}

	// Required node kinds and unique ids
	var inputs, outputs int
	nodes := make(map[string]bool, len(s.NodeDefinitions))
	order := make([]string, 0, len(s.NodeDefinitions))
	for _, node := range s.NodeDefinitions {
		switch node.NodeType {
		case domain.NodeTypeInput:
			inputs++
		case domain.NodeTypeOutput:
			outputs++
		}

		if node.NodeID == "" {
			continue
		}
		if nodes[node.NodeID] {
			r.errorf(CodeDuplicateNodeID, node.NodeID, "duplicate node ID: %s", node.NodeID)
			continue
		}
		nodes[node.NodeID] = true
		order = append(order, node.NodeID)
	}
	r.Metrics["input_nodes"] = inputs
	r.Metrics["output_nodes"] = outputs

	if inputs == 0 {
		r.errorf(CodeMissingInputNode, "", "schema must contain at least one input node")
	}
	if outputs == 0 {
		r.errorf(CodeMissingOutputNode, "", "schema must contain at least one output node")
	}

	// Edge endpoints; only sound edges feed the graph checks below
	adjacency := make(map[string][]string, len(nodes))
	inDegree := make(map[string]int, len(nodes))
	connected := make(map[string]bool, len(nodes))
	for i, edge := range s.EdgeDefinitions {
		ref := edge.ID
		if ref == "" {
			ref = "#" + strconv.Itoa(i)
		}

		valid := true
		if !nodes[edge.SourceNodeID] {
			r.errorf(CodeInvalidEdgeSource, edge.SourceNodeID, "edge %s references non-existent source node: %q", ref, edge.SourceNodeID)
			valid = false
		}
		if !nodes[edge.TargetNodeID] {
			r.errorf(CodeInvalidEdgeTarget, edge.TargetNodeID, "edge %s references non-existent target node: %q", ref, edge.TargetNodeID)
			valid = false
		}
		if !valid {
			continue
		}

		adjacency[edge.SourceNodeID] = append(adjacency[edge.SourceNodeID], edge.TargetNodeID)
		inDegree[edge.TargetNodeID]++
		connected[edge.SourceNodeID] = true
		connected[edge.TargetNodeID] = true
	}

	if cycle := detectCycle(order, adjacency); len(cycle) > 0 {
		r.errorf(CodeCycleDetected, cycle[0], "cycle detected in schema: %s", strings.Join(cycle, " -> "))
		r.Metrics["has_cycle"] = true
	} else {
		r.Metrics["has_cycle"] = false
	}

	// Isolated nodes appear in no edge at all
	isolated := 0
	for _, id := range order {
		if !connected[id] {
			isolated++
			r.warnf(CodeIsolatedNode, id, "node %s is not connected to any edge", id)
		}
	}
	r.Metrics["isolated_nodes"] = isolated

	// Reachability from the input nodes, falling back to the graph roots
	var roots []string
	for _, node := range s.NodeDefinitions {
		if node.NodeType == domain.NodeTypeInput && nodes[node.NodeID] {
			roots = append(roots, node.NodeID)
		}
	}
	if len(roots) == 0 {
		for _, id := range order {
			if inDegree[id] == 0 {
				roots = append(roots, id)
			}
		}
	}

	reached := reachable(roots, adjacency)
	r.Metrics["reachable_nodes"] = len(reached)
	for _, id := range order {
		if !reached[id] && connected[id] {
			r.warnf(CodeUnreachableNode, id, "node %s is not reachable from any input node", id)
		}
	}

	return r
}

// detectCycle runs a depth-first search keeping a recursion stack. A node
// revisited while still on the stack closes a cycle, which is returned as a
// path starting and ending at the same node.
func detectCycle(order []string, adjacency map[string][]string) []string {
	const (
		unvisited = iota
		onStack
		done
	)

	state := make(map[string]int, len(order))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		state[id] = onStack
		stack = append(stack, id)

		for _, next := range adjacency[id] {
			switch state[next] {
			case unvisited:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			case onStack:
				for i, onPath := range stack {
					if onPath == next {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, next)
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		state[id] = done
		return nil
	}

	for _, id := range order {
		if state[id] == unvisited {
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

// reachable returns every node reachable from roots (breadth-first)
func reachable(roots []string, adjacency map[string][]string) map[string]bool {
	seen := make(map[string]bool, len(adjacency))
	queue := make([]string, 0, len(roots))
	for _, root := range roots {
		if !seen[root] {
			seen[root] = true
			queue = append(queue, root)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, next := range adjacency[current] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return seen
}
