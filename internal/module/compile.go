package module

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/compiler"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/engine"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/specialistvlad/slotjit/internal/transform"
)

// CompileAndReplace recompiles the node, ignoring initial blocks among the
// first ignore top-level items of its declaration. Pass 1 runs inline and a
// failure is returned as a *FatalError; later passes are scheduled in the
// background.
func (n *Node) CompileAndReplace(ctx context.Context, ignore int) error {
	md, err := n.env.Isolator.Isolate(n.id, n.src, ignore)
	if err != nil {
		return &FatalError{Module: n.id.String(), Pass: 1, Err: err}
	}
	if md.IsLogic() {
		if err := transform.Logic(md); err != nil {
			return &FatalError{Module: n.id.String(), Pass: 1, Err: err}
		}
	}
	v := n.version.Add(1)
	if v > 1 {
		// Hardware passes of the previous version can no longer be installed.
		n.env.Compiler.StopCompile(n.engineID())
	}
	return n.firstPass(ctx, md, v)
}

// split prepares md for the given pass. The head segment of the target and
// loc annotations stays on md; if more segments follow and md is logic, a
// clone carrying them is returned for the next pass.
func split(md *ast.ModuleDecl, pass int) (*ast.ModuleDecl, error) {
	target, loc := md.Attr(ast.AttrTarget), md.Attr(ast.AttrLoc)
	tHead, tTail, tSplit := strings.Cut(target, ";")
	lHead, lTail, lSplit := strings.Cut(loc, ";")
	if !md.IsLogic() || (!tSplit && !lSplit) {
		return nil, nil
	}

	next := md.Clone()
	if tSplit {
		next.SetAttr(ast.AttrTarget, tTail)
		md.SetAttr(ast.AttrTarget, tHead)
	}
	if lSplit {
		next.SetAttr(ast.AttrLoc, lTail)
		md.SetAttr(ast.AttrLoc, lHead)
	}
	md.DeleteAttr(ast.AttrDelay)
	md.DeleteAttr(ast.AttrStateSafeInt)

	// Later passes must not rerun program startup, and deleting initial
	// blocks can leave dead code behind.
	if pass == 1 {
		if err := transform.Run(next,
			transform.Pass{Name: "delete-initial", Run: transform.DeleteInitial},
			transform.Pass{Name: "dead-code-eliminate", Run: transform.DeadCodeEliminate},
		); err != nil {
			return nil, err
		}
	}
	return next, nil
}

func (n *Node) passLogger(ctx context.Context, md *ast.ModuleDecl, v uint64, pass int) *slog.Logger {
	return ctxlog.FromContext(ctx).With(
		"module", n.id.String(),
		"version", v,
		"pass", pass,
		"target", md.Attr(ast.AttrTarget),
		"loc", md.Attr(ast.AttrLoc),
	)
}

func (n *Node) firstPass(ctx context.Context, md *ast.ModuleDecl, v uint64) error {
	fatal := func(err error) error {
		n.env.Metrics.PassOutcome("1", "failed")
		return &FatalError{Module: n.id.String(), Pass: 1, Err: err}
	}

	next, err := split(md, 1)
	if err != nil {
		return fatal(err)
	}
	if md.IsLogic() && md.Attr(ast.AttrTarget) != compiler.TargetSoftware {
		return fatal(fmt.Errorf("logic must target %q on the first pass, not %q", compiler.TargetSoftware, md.Attr(ast.AttrTarget)))
	}
	logger := n.passLogger(ctx, md, v, 1)

	e, err := n.env.Compiler.Compile(ctx, n.engineID(), md)
	if err != nil {
		return fatal(err)
	}
	if err := n.swap(e); err != nil {
		return fatal(err)
	}
	if n.engine.IsStub() {
		n.env.Metrics.PassOutcome("1", "deferred")
		logger.Info("Deferring compilation.")
		return nil
	}
	n.env.Metrics.PassOutcome("1", "finished")
	logger.Info("Finished compilation.")

	if next != nil {
		return n.schedulePass(next, v, 2)
	}
	return nil
}

// swap installs e under the disposal sequencer, which also serializes the
// close of the core it replaces.
func (n *Node) swap(e *engine.Engine) error {
	var err error
	n.env.Disposer.Do(func() { err = n.engine.ReplaceWith(e) })
	return err
}

func (n *Node) schedulePass(md *ast.ModuleDecl, v uint64, pass int) error {
	err := n.env.Scheduler.ScheduleAsync(func(ctx context.Context) {
		n.laterPass(ctx, md, v, pass)
	})
	if err != nil {
		return fmt.Errorf("scheduling pass %d of %s: %w", pass, n.id, err)
	}
	return nil
}

// laterPass runs on the background pool. The compiled engine is handed to
// the interpreter loop, which installs it only if v is still the live
// version.
func (n *Node) laterPass(ctx context.Context, md *ast.ModuleDecl, v uint64, pass int) {
	label := strconv.Itoa(pass)
	next, err := split(md, pass)
	logger := n.passLogger(ctx, md, v, pass)
	if err != nil {
		n.env.Metrics.PassOutcome(label, "failed")
		logger.Error("Failed to prepare compilation.", "error", err)
		return
	}
	if v < n.version.Load() {
		n.env.Metrics.PassOutcome(label, "stale")
		logger.Info("Skipping stale compilation.")
		return
	}

	e, err := n.env.Compiler.Compile(ctx, n.engineID(), md)
	n.env.Scheduler.ScheduleInterrupt(func(ictx context.Context) {
		logger := n.passLogger(ictx, md, v, pass)
		switch {
		case err != nil:
			n.env.Disposer.Dispose(ictx, e)
			if errors.Is(err, context.Canceled) || slots.IsStopped(err) {
				n.env.Metrics.PassOutcome(label, "stale")
				logger.Info("Aborted compilation.", "reason", err)
				return
			}
			n.env.Metrics.PassOutcome(label, "failed")
			logger.Error("Compilation failed, keeping previous engine.", "error", err)
		case v < n.version.Load():
			n.env.Disposer.Dispose(ictx, e)
			n.env.Metrics.PassOutcome(label, "stale")
			logger.Info("Aborted stale compilation.", "live_version", n.version.Load())
		default:
			if err := n.swap(e); err != nil {
				n.env.Disposer.Dispose(ictx, e)
				n.env.Metrics.PassOutcome(label, "failed")
				logger.Error("Failed to install engine, keeping previous engine.", "error", err)
				return
			}
			n.env.Metrics.PassOutcome(label, "finished")
			logger.Info("Finished compilation.")
			if next != nil && !n.engine.IsStub() {
				if err := n.schedulePass(next, v, pass+1); err != nil {
					logger.Warn("Could not schedule next pass.", "error", err)
				}
			}
		}
	}, func(actx context.Context) {
		n.env.Disposer.Dispose(actx, e)
	})
}
