package executor

import (
	"fmt"
	"sync"

	"github.com/aescanero/pipewright/pkg/domain"
)

// Branch result statuses
const (
	BranchCompleted = "completed"
	BranchFailed    = "failed"
)

// MaxParallelBranches bounds the branches of one parallel node, each of which
// gets its own goroutine
const MaxParallelBranches = 256

// parallelNode runs every declared branch concurrently. A failing branch is
// reported in its own slot and never aborts its siblings.
type parallelNode struct {
	def *domain.NodeDefinition
}

func (n *parallelNode) kind() domain.NodeType { return domain.NodeTypeParallel }

func (n *parallelNode) execute(nc *nodeContext) (interface{}, error) {
	branches, err := branchConfigs(n.def.Config)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	results := make([]map[string]interface{}, len(branches))

	for i, branch := range branches {
		wg.Add(1)
		go func(index int, cfg map[string]interface{}) {
			defer wg.Done()
			results[index] = nc.executor.runBranch(nc, index, cfg)
		}(i, branch)
	}
	wg.Wait()

	out := make([]interface{}, len(results))
	successful := 0
	for i, r := range results {
		if r["status"] == BranchCompleted {
			successful++
		}
		out[i] = r
	}

	return map[string]interface{}{
		"branches":            out,
		"successful_branches": successful,
		"total_branches":      len(branches),
	}, nil
}

// runBranch executes one branch, converting errors and panics into a failed
// branch result
func (e *Executor) runBranch(nc *nodeContext, index int, cfg map[string]interface{}) (result map[string]interface{}) {
	name := configString(cfg, "name", "id")
	if name == "" {
		name = fmt.Sprintf("branch_%d", index+1)
	}
	result = map[string]interface{}{
		"index": index,
		"name":  name,
	}

	defer func() {
		if r := recover(); r != nil {
			result["status"] = BranchFailed
			result["error"] = fmt.Sprintf("branch panicked: %v", r)
		}
	}()

	out, err := e.transformWork(nc, cfg, nc.def.NodeID+"/"+name)
	if err != nil {
		result["status"] = BranchFailed
		result["error"] = err.Error()
		return result
	}
	result["status"] = BranchCompleted
	result["result"] = out
	return result
}

// branchConfigs reads "branches" as a list of branch objects (or names), or
// as a branch count
func branchConfigs(config map[string]interface{}) ([]map[string]interface{}, error) {
	raw, ok := config["branches"]
	if !ok || raw == nil {
		count, err := configInt(config, "branch_count", 0)
		if err != nil {
			return nil, err
		}
		return countedBranches(count)
	}

	switch v := raw.(type) {
	case []interface{}:
		if len(v) > MaxParallelBranches {
			return nil, tooManyBranches(len(v))
		}
		branches := make([]map[string]interface{}, 0, len(v))
		for i, item := range v {
			switch b := item.(type) {
			case map[string]interface{}:
				branches = append(branches, b)
			case string:
				branches = append(branches, map[string]interface{}{"name": b})
			default:
				return nil, fmt.Errorf("branch %d must be an object or a name, got %T", i, item)
			}
		}
		return branches, nil
	case []map[string]interface{}:
		if len(v) > MaxParallelBranches {
			return nil, tooManyBranches(len(v))
		}
		return v, nil
	default:
		count, isInt := toInt(raw)
		if !isInt {
			return nil, fmt.Errorf("branches must be a list or a count, got %T", raw)
		}
		return countedBranches(count)
	}
}

func countedBranches(count int) ([]map[string]interface{}, error) {
	if count < 0 {
		return nil, fmt.Errorf("branch count must not be negative, got %d", count)
	}
	if count > MaxParallelBranches {
		return nil, tooManyBranches(count)
	}
	branches := make([]map[string]interface{}, count)
	for i := range branches {
		branches[i] = map[string]interface{}{"name": fmt.Sprintf("branch_%d", i+1)}
	}
	return branches, nil
}

func tooManyBranches(n int) error {
	return fmt.Errorf("%d parallel branches exceed the limit of %d", n, MaxParallelBranches)
}
