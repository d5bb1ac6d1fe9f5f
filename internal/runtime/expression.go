package runtime

import (
	"fmt"
	"sync"

	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/ports"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// AnswersKey exposes every answer to expressions under one map, for block ids that are
// not valid identifiers: answers["q-1"] == "yes".
const AnswersKey = "answers"

// answerSnapshot is implemented by resolvers that can enumerate their answers.
// Expression rules need it; a resolver without it only sees an empty environment.
type answerSnapshot interface {
	Snapshot() domain.Answers
}

type expressionCache struct {
	programs sync.Map // string -> *compiledExpression
}

func newExpressionCache() *expressionCache {
	return &expressionCache{}
}

// compiledExpression is a program and the answer names it reads directly.
type compiledExpression struct {
	program *vm.Program
	names   []string
}

// identifierCollector records the identifiers an expression reads, minus its own let bindings.
type identifierCollector struct {
	read     map[string]bool
	declared map[string]bool
}

func (c *identifierCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.read[n.Value] = true
	case *ast.VariableDeclaratorNode:
		c.declared[n.Name] = true
	}
}

// CompileExpression checks that expression is valid rule syntax.
func CompileExpression(expression string) error {
	_, err := compileExpression(expression)
	return err
}

func compileExpression(expression string) (*compiledExpression, error) {
	collector := &identifierCollector{read: map[string]bool{}, declared: map[string]bool{}}
	program, err := expr.Compile(expression, expr.AllowUndefinedVariables(), expr.Patch(collector))
	if err != nil {
		return nil, fmt.Errorf("invalid expression %q: %w", expression, err)
	}

	out := &compiledExpression{program: program}
	for name := range collector.read {
		if name != AnswersKey && !collector.declared[name] {
			out.names = append(out.names, name)
		}
	}
	return out, nil
}

func (c *expressionCache) program(expression string) (*compiledExpression, error) {
	if cached, ok := c.programs.Load(expression); ok {
		return cached.(*compiledExpression), nil
	}
	compiled, err := compileExpression(expression)
	if err != nil {
		return nil, err
	}
	c.programs.Store(expression, compiled)
	return compiled, nil
}

// evaluate runs expression against the answers. An expression naming a block that has no
// answer is false without being run, so `q1 != "yes"` does not match an unanswered q1.
// Lookups through the answers map see nil instead. Non-boolean results are errors.
func (c *expressionCache) evaluate(expression string, answers ports.AnswerResolver) (bool, error) {
	compiled, err := c.program(expression)
	if err != nil {
		return false, &domain.MalformedConditionError{Field: AnswersKey, Reason: err.Error()}
	}

	env := expressionEnv(answers)
	for _, name := range compiled.names {
		if _, ok := env[name]; !ok {
			return false, nil
		}
	}

	result, err := expr.Run(compiled.program, env)
	if err != nil {
		return false, &domain.MalformedConditionError{Field: AnswersKey, Reason: err.Error()}
	}

	ok, isBool := result.(bool)
	if !isBool {
		return false, &domain.MalformedConditionError{
			Field:  AnswersKey,
			Reason: fmt.Sprintf("expression must return a boolean, got %T", result),
		}
	}
	return ok, nil
}

func expressionEnv(answers ports.AnswerResolver) map[string]any {
	all := map[string]any{}
	env := map[string]any{AnswersKey: all}

	snap, ok := answers.(answerSnapshot)
	if !ok {
		return env
	}
	for id, v := range snap.Snapshot() {
		value := v.Interface()
		all[id] = value
		if id != AnswersKey {
			env[id] = value
		}
	}
	return env
}
