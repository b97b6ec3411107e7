package taskgraph

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/assetpipe/internal/foundation/errors"
)

// Task is a named node of the graph.
type Task struct {
	Name        string
	Description string
	Body        Node
}

// TaskError records which task a failure originated in. It is attached once,
// at the innermost named task, and passed through unchanged by enclosing tasks.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %q: %v", e.Task, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }

// Graph holds task definitions and observers.
type Graph struct {
	mu        sync.RWMutex
	tasks     map[string]*Task
	order     []string
	observers []Observer
	newRunID  func() string
}

// Option configures a Graph.
type Option func(*Graph)

// WithObserver registers an observer that receives start/finish events.
func WithObserver(o Observer) Option {
	return func(g *Graph) {
		if o != nil {
			g.observers = append(g.observers, o)
		}
	}
}

// New creates an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		tasks:    make(map[string]*Task),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddObserver registers an observer after construction.
func (g *Graph) AddObserver(o Observer) {
	if o == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observers = append(g.observers, o)
}

// Define registers a named task. Names are unique.
func (g *Graph) Define(name, description string, body Node) error {
	if strings.TrimSpace(name) == "" {
		return errors.ConfigError("task name must not be empty").Build()
	}
	if body == nil {
		return errors.ConfigError("task body must not be nil").WithContext("task", name).Build()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.tasks[name]; exists {
		return errors.ConfigError(fmt.Sprintf("task %q is already defined", name)).
			WithContext("task", name).Build()
	}
	g.tasks[name] = &Task{Name: name, Description: description, Body: body}
	g.order = append(g.order, name)
	return nil
}

// DefineFunc registers a leaf task.
func (g *Graph) DefineFunc(name, description string, f Func) error {
	if f == nil {
		return errors.ConfigError("task function must not be nil").WithContext("task", name).Build()
	}
	return g.Define(name, description, Leaf(f))
}

// Lookup returns the task registered under name.
func (g *Graph) Lookup(name string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[name]
	return t, ok
}

// Tasks returns all tasks in definition order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Task, 0, len(g.order))
	for _, n := range g.order {
		out = append(out, g.tasks[n])
	}
	return out
}

// Validate checks that every task reachable from names exists and that no
// task references itself, directly or transitively. With no names the whole
// graph is checked.
func (g *Graph) Validate(names ...string) error {
	if len(names) == 0 {
		for _, t := range g.Tasks() {
			names = append(names, t.Name)
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int)
	var stack []string

	var visit func(name, referrer string) error
	visit = func(name, referrer string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			start := 0
			for i, n := range stack {
				if n == name {
					start = i
					break
				}
			}
			cycle := append(append([]string{}, stack[start:]...), name)
			return errors.ConfigError("task reference cycle: "+strings.Join(cycle, " -> ")).
				WithContext("task", name).Build()
		}

		t, ok := g.Lookup(name)
		if !ok {
			return errUndefined(name, referrer)
		}

		state[name] = visiting
		stack = append(stack, name)
		for _, r := range t.Body.refs() {
			if err := visit(r, name); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[name] = done
		return nil
	}

	for _, n := range names {
		if err := visit(n, ""); err != nil {
			return err
		}
	}
	return nil
}

// Run validates and executes the named tasks in series under a fresh run ID.
// Nothing is executed when validation fails.
func (g *Graph) Run(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return errors.ConfigError("no task given").Build()
	}
	if err := g.Validate(names...); err != nil {
		return err
	}
	if RunIDFrom(ctx) == "" {
		ctx = WithRunID(ctx, g.newRunID())
	}
	return Series(Refs(names...)...).run(ctx, g)
}

// Tree renders the composition of the named task for listings.
func (g *Graph) Tree(name string) (string, error) {
	t, ok := g.Lookup(name)
	if !ok {
		return "", errUndefined(name, "")
	}
	var b strings.Builder
	b.WriteString(t.Name + "\n")
	t.Body.tree(&b, "  ")
	return b.String(), nil
}

// execute runs body as one observable unit named name.
func (g *Graph) execute(ctx context.Context, name string, body Func) error {
	ev := Event{RunID: RunIDFrom(ctx), Task: name, Started: time.Now()}
	g.notifyStarted(ctx, ev)

	err := body(ctx)

	ev.Duration = time.Since(ev.Started)
	ev.Err = err
	ev.Outcome, err = classify(err)
	g.notifyFinished(ctx, ev)

	if err == nil {
		return nil
	}
	var te *TaskError
	if stderrors.As(err, &te) {
		return err
	}
	return &TaskError{Task: name, Err: err}
}

func (g *Graph) snapshotObservers() []Observer {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Observer(nil), g.observers...)
}

func (g *Graph) notifyStarted(ctx context.Context, ev Event) {
	for _, o := range g.snapshotObservers() {
		o.TaskStarted(ctx, ev)
	}
}

func (g *Graph) notifyFinished(ctx context.Context, ev Event) {
	for _, o := range g.snapshotObservers() {
		o.TaskFinished(ctx, ev)
	}
}

func errUndefined(name, referrer string) error {
	b := errors.ConfigError(fmt.Sprintf("task %q is not defined", name)).WithContext("task", name)
	if referrer != "" {
		b = b.WithContext("referenced_by", referrer)
	}
	return b.Build()
}

type runIDKey struct{}

// WithRunID attaches a run ID to ctx.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFrom returns the run ID attached to ctx, or "".
func RunIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}
