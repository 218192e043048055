// Package ops defines the closed operation registry the interpreter
// proposes from and the executor that runs confirmed batches. Each
// operation declares whether it is destructive; the confirmation
// gateway's classifier is built from those declarations, so an operation
// cannot exist without an explicit safety classification.
package ops

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rasidhq/rasid/internal/confirm"
)

// Operation is a single named command the panel can execute.
type Operation interface {
	// Name returns the operation's unique identifier (e.g. "issue_invoice").
	Name() string

	// Description returns a short human-readable description. Shown to
	// the interpreter model when it plans a command.
	Description() string

	// InputSchema returns a JSON Schema object describing the arguments.
	InputSchema() map[string]any

	// Destructive reports whether execution mutates durable state or has
	// an irreversible external effect. Destructive operations always go
	// through the confirmation gateway.
	Destructive() bool

	// Execute runs the operation with the given arguments.
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Result is the outcome of a single operation.
type Result struct {
	Output   string         `json:"output"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Registry holds available operations keyed by name.
// Thread-safe for concurrent reads; writes only happen at startup.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]Operation
}

// NewRegistry creates an empty operation registry.
func NewRegistry() *Registry {
	return &Registry{ops: make(map[string]Operation)}
}

// Register adds an operation. Panics on duplicate names (startup
// configuration error, not a runtime condition).
func (r *Registry) Register(op Operation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name()]; exists {
		panic("duplicate operation registration: " + op.Name())
	}
	r.ops[op.Name()] = op
}

// Get returns the operation by name, or nil if not registered.
func (r *Registry) Get(name string) Operation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ops[name]
}

// List returns all registered operation names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DestructiveNames returns the names of all destructive operations.
func (r *Registry) DestructiveNames() []string {
	return r.filter(true)
}

// SafeNames returns the names of all non-destructive operations.
func (r *Registry) SafeNames() []string {
	return r.filter(false)
}

func (r *Registry) filter(destructive bool) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var names []string
	for name, op := range r.ops {
		if op.Destructive() == destructive {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Classifier builds a confirmation classifier from the registry's
// declarations.
func (r *Registry) Classifier() *confirm.Classifier {
	return confirm.NewClassifier(r.DestructiveNames(), r.SafeNames())
}

// Observer receives a record of every operation execution. Implemented
// by the observability layer.
type Observer interface {
	Observe(operation string, duration time.Duration, err error)
}

// Executor runs frozen operation batches against the registry.
type Executor struct {
	registry *Registry
	logger   *slog.Logger
	observer Observer
}

// NewExecutor creates an executor over the registry.
func NewExecutor(registry *Registry, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, logger: logger}
}

// WithObserver attaches an execution observer.
func (e *Executor) WithObserver(obs Observer) *Executor {
	e.observer = obs
	return e
}

// ExecuteAll runs the batch in order and stops at the first failure.
// The executor trusts its caller on authorization: by the time a batch
// reaches here it was either all-safe or explicitly confirmed.
func (e *Executor) ExecuteAll(ctx context.Context, batch []confirm.ProposedOperation) ([]Result, error) {
	results := make([]Result, 0, len(batch))
	for i, proposed := range batch {
		op := e.registry.Get(proposed.Name)
		if op == nil {
			return results, fmt.Errorf("operation %d: %q is not registered", i+1, proposed.Name)
		}

		e.logger.Info("executing operation",
			slog.String("operation", proposed.Name),
			slog.Bool("destructive", op.Destructive()),
		)

		start := time.Now()
		res, err := op.Execute(ctx, proposed.Args)
		if e.observer != nil {
			e.observer.Observe(proposed.Name, time.Since(start), err)
		}
		if err != nil {
			return results, fmt.Errorf("operation %d (%s): %w", i+1, proposed.Name, err)
		}
		results = append(results, *res)
	}
	return results, nil
}

// FormatResults joins operation outputs into a single chat-friendly
// message.
func FormatResults(results []Result) string {
	if len(results) == 1 {
		return results[0].Output
	}
	var b strings.Builder
	for i, res := range results {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, res.Output)
	}
	return b.String()
}

// --- Argument helpers ---

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string", key)
	}
	return s, nil
}

// optStringArg extracts an optional string argument; nil when absent.
func optStringArg(args map[string]any, key string) (*string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("argument %q must be a string", key)
	}
	return &s, nil
}

// int64Arg extracts an integer argument. JSON numbers arrive as float64.
func int64Arg(args map[string]any, key string) (int64, error) {
	v, ok := args[key]
	if !ok {
		return 0, fmt.Errorf("missing argument %q", key)
	}
	switch t := v.(type) {
	case float64:
		return int64(t), nil
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	default:
		return 0, fmt.Errorf("argument %q must be a number", key)
	}
}

// optInt64Arg extracts an optional integer argument; nil when absent.
func optInt64Arg(args map[string]any, key string) (*int64, error) {
	if _, ok := args[key]; !ok {
		return nil, nil
	}
	n, err := int64Arg(args, key)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
