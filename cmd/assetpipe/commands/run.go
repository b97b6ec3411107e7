package commands

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"git.home.luguber.info/inful/assetpipe/internal/config"
	"git.home.luguber.info/inful/assetpipe/internal/logfields"
	"git.home.luguber.info/inful/assetpipe/internal/orchestrator"
)

// RunCmd implements the 'run' command.
type RunCmd struct {
	Tasks []string `arg:"" name:"task" help:"Tasks to run in order (see 'assetpipe tasks')."`
}

func (r *RunCmd) Run(_ *Global, root *CLI) error {
	cfg, err := loadConfig(root)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	return RunTasks(ctx, cfg, cfg.ResolveMode(), r.Tasks)
}

// RunTasks runs tasks and, when they left subscriptions open (dev server,
// watchers), keeps serving until ctx is done.
func RunTasks(ctx context.Context, cfg *config.Config, mode config.BuildMode, tasks []string, opts ...orchestrator.Option) error {
	slog.Info("Starting assetpipe", logfields.Mode(mode.String()), slog.Any("tasks", tasks))

	p, err := orchestrator.New(cfg, mode, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Shutdown(); err != nil {
			slog.Warn("Shutdown incomplete", logfields.Error(err))
		}
	}()

	if err := p.Run(ctx, tasks...); err != nil {
		return err
	}
	p.Wait(ctx)
	return nil
}
