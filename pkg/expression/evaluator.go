// Package expression evaluates user-supplied boolean condition expressions
// against a data context. Expressions are compiled with expr-lang, which only
// exposes the variables handed to it: no function calls into the host, no
// attribute access on runtime internals, no imports.
package expression

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Evaluator compiles and evaluates condition expressions. Compiled programs
// are cached and reused across goroutines.
type Evaluator struct {
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewEvaluator(logger *slog.Logger) *Evaluator {
	return &Evaluator{
		logger: logger.With("module", "expression"),
		cache:  make(map[string]*vm.Program),
	}
}

var (
	literalTrue  = map[string]bool{"true": true, "1": true, "yes": true}
	literalFalse = map[string]bool{"false": true, "0": true, "no": true}
)

// EvaluateBool evaluates the expression against the context map. Literal
// true/false forms are recognized first. Any compilation or evaluation error
// degrades to false; condition failures must never abort a workflow run.
func (e *Evaluator) EvaluateBool(expression string, env map[string]any) bool {
	lowered := strings.ToLower(strings.TrimSpace(expression))

	if literalTrue[lowered] {
		return true
	}

	if literalFalse[lowered] {
		return false
	}

	result, err := e.Evaluate(expression, env)
	if err != nil {
		e.logger.Warn("Condition evaluation failed, defaulting to false",
			"expression", expression, "error", err)

		return false
	}

	boolean, ok := result.(bool)
	if !ok {
		e.logger.Warn("Condition did not evaluate to a boolean, defaulting to false",
			"expression", expression, "result", result)

		return false
	}

	return boolean
}

// Evaluate compiles (or retrieves from cache) the expression and runs it with
// the context map as the environment, making all keys available as top-level
// variables.
func (e *Evaluator) Evaluate(expression string, env map[string]any) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("empty expression")
	}

	program, err := e.getOrCompile(expression)
	if err != nil {
		return nil, err
	}

	if env == nil {
		env = map[string]any{}
	}

	result, err := vm.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expression, err)
	}

	return result, nil
}

func (e *Evaluator) getOrCompile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	program, ok := e.cache[expression]
	e.mu.RUnlock()

	if ok {
		return program, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.cache[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("compiling %q: %w", expression, err)
	}

	e.cache[expression] = program

	return program, nil
}
