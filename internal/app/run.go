package app

import (
	"context"
	"fmt"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/compiler"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/runtime"
)

// Run evaluates the configured program and, when serving builds, keeps
// serving until ctx is cancelled.
func (app *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, app.logger)
	app.ctx = ctx
	app.logger.Debug("App.Run method started.")

	app.healthCheckServer()
	defer app.closeHealthCheckServer()
	defer app.close()

	if app.config.ProgramPath != "" {
		if err := app.runProgram(ctx); err != nil {
			return err
		}
	}

	if app.config.Serve {
		app.logger.Info("🚀 Serving builds.", "port", app.config.HealthcheckPort)
		<-ctx.Done()
		app.logger.Info("🏁 Build server stopping.")
	}

	app.logger.Debug("App.Run method finished.")
	return nil
}

func (app *App) runProgram(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	rt := runtime.New(ctx, runtime.Config{
		Workers: app.config.WorkerCount,
		Defaults: ast.Attrs{
			ast.AttrStd:    ast.StdLogic,
			ast.AttrTarget: compiler.TargetSoftware,
			ast.AttrLoc:    "local",
		},
		Compiler: app.compiler,
		Metrics:  app.metrics,
	})
	app.runtime = rt
	defer rt.Close(context.WithoutCancel(ctx))

	logger.Info("🚀 Evaluating program...", "path", app.config.ProgramPath)
	if err := rt.EvalPath(ctx, app.config.ProgramPath); err != nil {
		return fmt.Errorf("evaluation failed: %w", err)
	}
	if err := rt.Quiesce(ctx); err != nil {
		return fmt.Errorf("compilation failed: %w", err)
	}

	if app.config.MarchPath != "" {
		if err := rt.RetargetFile(ctx, app.config.MarchPath); err != nil {
			return fmt.Errorf("retarget failed: %w", err)
		}
		if err := rt.Quiesce(ctx); err != nil {
			return fmt.Errorf("compilation failed: %w", err)
		}
	}

	if app.config.RestartPath != "" {
		if err := rt.RestartFile(ctx, app.config.RestartPath); err != nil {
			return fmt.Errorf("restart failed: %w", err)
		}
		logger.Info("Restarted from saved state.", "path", app.config.RestartPath)
	}
	if err := rt.Propagate(ctx); err != nil {
		return err
	}
	if app.config.SavePath != "" {
		if err := rt.SaveFile(ctx, app.config.SavePath); err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		logger.Info("Saved state.", "path", app.config.SavePath)
	}

	modules := 0
	if root := rt.Root(); root != nil {
		modules = root.Size()
	}
	logger.Info("🏁 Program compiled.", "modules", modules)
	return nil
}

// Runtime returns the runtime of the last Run, or nil. This is primarily for
// testing.
func (app *App) Runtime() *runtime.Runtime {
	return app.runtime
}
