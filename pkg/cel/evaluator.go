package cel

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Input is the activation exposed to filter expressions.
type Input struct {
	Topic    string
	ID       string
	Action   string
	Document map[string]interface{}
}

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("topic", cel.StringType),
		cel.Variable("id", cel.StringType),
		cel.Variable("action", cel.StringType),
		cel.Variable("document", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// Program is a compiled boolean filter expression, safe for concurrent use.
type Program struct {
	expression string
	program    cel.Program
}

func (e *Evaluator) CompileFilter(expression string) (*Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("filter expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Program{expression: expression, program: program}, nil
}

func (p *Program) Evaluate(ctx context.Context, in Input) (bool, error) {
	document := in.Document
	if document == nil {
		document = map[string]interface{}{}
	}

	result, _, err := p.program.ContextEval(ctx, map[string]interface{}{
		"topic":    in.Topic,
		"id":       in.ID,
		"action":   in.Action,
		"document": document,
	})
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

func (p *Program) String() string {
	return p.expression
}
