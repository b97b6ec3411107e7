package taskgraph

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Func is the body of a leaf task.
type Func func(ctx context.Context) error

// Node is a composable unit of a task body.
type Node interface {
	run(ctx context.Context, g *Graph) error
	// refs returns the task names referenced directly by this node.
	refs() []string
	// tree renders the node for task listings.
	tree(b *strings.Builder, indent string)
}

// Ref refers to another task by name.
func Ref(name string) Node { return ref(name) }

// Refs is shorthand for a list of Ref nodes.
func Refs(names ...string) []Node {
	out := make([]Node, len(names))
	for i, n := range names {
		out[i] = Ref(n)
	}
	return out
}

// Series runs nodes one after another.
func Series(nodes ...Node) Node { return series(nodes) }

// Parallel runs nodes concurrently and joins them.
func Parallel(nodes ...Node) Node { return parallel(nodes) }

// Inline wraps an anonymous function. name is only used in logs and listings.
func Inline(name string, f Func) Node { return inline{name: name, f: f} }

// Leaf wraps the body of a named task.
func Leaf(f Func) Node { return leaf{f: f} }

type ref string

func (r ref) run(ctx context.Context, g *Graph) error {
	t, ok := g.Lookup(string(r))
	if !ok {
		return errUndefined(string(r), "")
	}
	return g.execute(ctx, t.Name, func(ctx context.Context) error { return t.Body.run(ctx, g) })
}

func (r ref) refs() []string { return []string{string(r)} }

func (r ref) tree(b *strings.Builder, indent string) {
	b.WriteString(indent + string(r) + "\n")
}

type series []Node

func (s series) run(ctx context.Context, g *Graph) error {
	for _, n := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := n.run(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (s series) refs() []string { return collectRefs(s) }

func (s series) tree(b *strings.Builder, indent string) {
	b.WriteString(indent + "<series>\n")
	for _, n := range s {
		n.tree(b, indent+"  ")
	}
}

type parallel []Node

func (p parallel) run(ctx context.Context, g *Graph) error {
	// A plain Group, not WithContext: one failing member must not cancel the
	// others. Their results are discarded and the first error wins.
	var eg errgroup.Group
	for _, n := range p {
		eg.Go(func() error { return n.run(ctx, g) })
	}
	return eg.Wait()
}

func (p parallel) refs() []string { return collectRefs(p) }

func (p parallel) tree(b *strings.Builder, indent string) {
	b.WriteString(indent + "<parallel>\n")
	for _, n := range p {
		n.tree(b, indent+"  ")
	}
}

type inline struct {
	name string
	f    Func
}

func (i inline) run(ctx context.Context, g *Graph) error {
	return g.execute(ctx, i.displayName(), i.f)
}

func (i inline) displayName() string {
	if i.name == "" {
		return "<anonymous>"
	}
	return "<" + i.name + ">"
}

func (i inline) refs() []string { return nil }

func (i inline) tree(b *strings.Builder, indent string) {
	b.WriteString(indent + i.displayName() + "\n")
}

type leaf struct {
	f Func
}

func (l leaf) run(ctx context.Context, _ *Graph) error { return l.f(ctx) }
func (l leaf) refs() []string                          { return nil }
func (l leaf) tree(*strings.Builder, string)           {}

func collectRefs(nodes []Node) []string {
	var out []string
	for _, n := range nodes {
		out = append(out, n.refs()...)
	}
	return out
}
