package executor

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aescanero/pipewright/pkg/domain"
)

// Supported condition operators
const (
	OperatorExists = "exists"
	OperatorEquals = "equals"
)

var expressionPattern = regexp.MustCompile(`^\s*([a-zA-Z_]+)\s*\((.*)\)\s*$`)

// condition is a parsed declarative boolean expression
type condition struct {
	Operator string
	Variable string
	Value    interface{}
}

// conditionNode evaluates exists(variable) / equals(variable, value) against
// prior node outputs
type conditionNode struct {
	def *domain.NodeDefinition
}

func (n *conditionNode) kind() domain.NodeType { return domain.NodeTypeCondition }

func (n *conditionNode) execute(nc *nodeContext) (interface{}, error) {
	trueBranch := configString(n.def.Config, "true_branch")
	if trueBranch == "" {
		trueBranch = "true"
	}
	falseBranch := configString(n.def.Config, "false_branch")
	if falseBranch == "" {
		falseBranch = "false"
	}

	raw, ok := n.def.Config["condition"]
	if !ok || raw == nil {
		// Nothing to evaluate: pass through on the true branch
		return map[string]interface{}{
			"condition_result": true,
			"selected_branch":  trueBranch,
		}, nil
	}

	cond, err := parseCondition(raw)
	if err != nil {
		return nil, err
	}

	value, found := nc.resolveVariable(cond.Variable)
	var matched bool
	switch cond.Operator {
	case OperatorExists:
		matched = found && value != nil
	case OperatorEquals:
		matched = found && valuesEqual(value, cond.Value)
	}

	branch := falseBranch
	if matched {
		branch = trueBranch
	}
	return map[string]interface{}{
		"condition_result": matched,
		"selected_branch":  branch,
		"variable":         cond.Variable,
	}, nil
}

// parseCondition accepts either an expression string or a structured
// {operator, variable, value} object
func parseCondition(raw interface{}) (*condition, error) {
	switch c := raw.(type) {
	case string:
		return parseExpression(c)
	case map[string]interface{}:
		op := configString(c, "operator", "type")
		variable := configString(c, "variable")
		if variable == "" {
			return nil, fmt.Errorf("condition has no variable")
		}
		cond := &condition{Operator: strings.ToLower(op), Variable: variable, Value: c["value"]}
		if cond.Operator != OperatorExists && cond.Operator != OperatorEquals {
			return nil, fmt.Errorf("unsupported condition operator %q", op)
		}
		return cond, nil
	default:
		return nil, fmt.Errorf("condition must be a string or an object, got %T", raw)
	}
}

func parseExpression(expr string) (*condition, error) {
	m := expressionPattern.FindStringSubmatch(expr)
	if m == nil {
		return nil, fmt.Errorf("invalid condition expression %q", expr)
	}

	op := strings.ToLower(m[1])
	args := strings.TrimSpace(m[2])
	switch op {
	case OperatorExists:
		if args == "" || strings.Contains(args, ",") {
			return nil, fmt.Errorf("exists() requires exactly 1 argument in %q", expr)
		}
		return &condition{Operator: op, Variable: args}, nil
	case OperatorEquals:
		variable, literal, ok := strings.Cut(args, ",")
		variable = strings.TrimSpace(variable)
		literal = strings.TrimSpace(literal)
		if !ok || variable == "" || literal == "" {
			return nil, fmt.Errorf("equals() requires exactly 2 arguments in %q", expr)
		}
		return &condition{Operator: op, Variable: variable, Value: parseLiteral(literal)}, nil
	default:
		return nil, fmt.Errorf("unsupported condition function %q", m[1])
	}
}

// parseLiteral decodes JSON literals and falls back to the bare (optionally
// single-quoted) string
func parseLiteral(literal string) interface{} {
	var v interface{}
	if err := json.Unmarshal([]byte(literal), &v); err == nil {
		return v
	}
	return strings.Trim(literal, "'")
}

// resolveVariable looks a variable up in node results ("<node_id>.<path>"),
// the execution input ("input.<path>" or bare), then the context variables
func (nc *nodeContext) resolveVariable(variable string) (interface{}, bool) {
	head, rest, _ := strings.Cut(variable, ".")

	if head == "input" && rest != "" {
		return lookupPath(nc.run.Input, rest)
	}
	if result, ok := nc.results[head]; ok {
		return lookupPath(result, rest)
	}
	if value, ok := lookupPath(nc.run.Input, variable); ok {
		return value, true
	}
	if value, ok := lookupPath(nc.run.Variables, variable); ok {
		return value, true
	}
	return nil, false
}
