package commands

import (
	"fmt"
	"text/tabwriter"

	"git.home.luguber.info/inful/assetpipe/internal/orchestrator"
)

// TasksCmd implements the 'tasks' command.
type TasksCmd struct {
	Tree bool `short:"t" help:"Show how composite tasks are built from other tasks"`
}

func (c *TasksCmd) Run(g *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}
	// Listing needs the graph only.
	cfg.History.Disabled = true
	cfg.Notify.NATSURL = ""
	cfg.Notify.Desktop = false

	p, err := orchestrator.New(cfg, cfg.ResolveMode())
	if err != nil {
		return err
	}
	defer func() { _ = p.Shutdown() }()

	out := g.out()
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, t := range p.Graph().Tasks() {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if !c.Tree {
		return nil
	}
	for _, name := range []string{orchestrator.TaskBuild, orchestrator.TaskDev} {
		tree, err := p.Graph().Tree(name)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "\n%s", tree)
	}
	return nil
}
