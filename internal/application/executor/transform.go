package executor

import (
	"errors"

	"github.com/aescanero/pipewright/pkg/domain"
)

var errNoTransformExecutor = errors.New("no transform executor configured")

// transformNode synthesises a mock result or delegates to the external
// transform executor, depending on the execution mode
type transformNode struct {
	def *domain.NodeDefinition
}

func (n *transformNode) kind() domain.NodeType { return domain.NodeTypeTransform }

func (n *transformNode) execute(nc *nodeContext) (interface{}, error) {
	return nc.executor.transformWork(nc, n.def.Config, n.def.NodeID)
}

// transformWork is shared by transform nodes and parallel branches
func (e *Executor) transformWork(nc *nodeContext, config map[string]interface{}, ref string) (interface{}, error) {
	if nc.run.Mode != domain.ExecutionModeReal {
		return mockResult(config, ref, nc.upstream)
	}

	if e.transform == nil {
		return nil, &domain.ExternalExecutorError{Executor: "transform", Cause: errNoTransformExecutor}
	}

	result, err := e.transform.Execute(nc.ctx, config, nc.upstream)
	if err != nil {
		return nil, &domain.ExternalExecutorError{Executor: "transform", Cause: err}
	}
	return result, nil
}
