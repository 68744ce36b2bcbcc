package rules

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Evaluator decides whether a rule expression matches a blob's attributes
// using CEL (Common Expression Language). The post-processing gate is the
// main consumer: operators write expressions like
// mime.startsWith("video/") && size_bytes > 1048576.
type Evaluator struct {
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// Input carries the blob attributes visible to rule expressions
type Input struct {
	Mime      string
	Ext       string
	Filename  string
	SizeBytes int64
}

// NewEvaluator creates a new rule evaluator with expression caching
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string]cel.Program),
	}
}

// Evaluate compiles the expression (once per distinct expression) and
// evaluates it against the input. The expression must yield a boolean.
func (e *Evaluator) Evaluate(expr string, in Input) (bool, error) {
	if expr == "" {
		return false, fmt.Errorf("empty rule expression")
	}

	// Check cache first
	e.mu.RLock()
	prg, exists := e.cache[expr]
	e.mu.RUnlock()

	if !exists {
		// Compile and cache
		var err error
		prg, err = e.compile(expr)
		if err != nil {
			return false, err
		}

		e.mu.Lock()
		e.cache[expr] = prg
		e.mu.Unlock()
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"mime":       in.Mime,
		"ext":        in.Ext,
		"filename":   in.Filename,
		"size_bytes": in.SizeBytes,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}

	return result, nil
}

func (e *Evaluator) compile(expr string) (cel.Program, error) {
	env, err := cel.NewEnv(
		cel.Variable("mime", cel.StringType),
		cel.Variable("ext", cel.StringType),
		cel.Variable("filename", cel.StringType),
		cel.Variable("size_bytes", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return prg, nil
}

// ClearCache clears the compiled expression cache
func (e *Evaluator) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]cel.Program)
}

// CacheSize returns the number of cached expressions
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
