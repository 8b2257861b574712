package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/compiler"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/dataplane"
	"github.com/specialistvlad/slotjit/internal/dispose"
	"github.com/specialistvlad/slotjit/internal/isolate"
	"github.com/specialistvlad/slotjit/internal/jobs"
	"github.com/specialistvlad/slotjit/internal/metrics"
	"github.com/specialistvlad/slotjit/internal/module"
	"github.com/specialistvlad/slotjit/internal/program"
)

// ErrFinished is returned by every blocking call once the runtime has
// finished. When a fatal compilation finished it, the error wraps the cause.
var ErrFinished = errors.New("runtime has finished")

// Config configures a Runtime.
type Config struct {
	// Workers is the number of goroutines running later compile passes.
	Workers int
	// Defaults are applied to every declaration that leaves an annotation
	// unset.
	Defaults ast.Attrs
	// Compiler builds engines. A compiler with the built-in targets only is
	// used when nil.
	Compiler *compiler.Compiler
	Metrics  *metrics.Metrics
}

type interrupt struct {
	fn, alt func(ctx context.Context)
}

// Runtime is a live program together with everything needed to recompile it.
type Runtime struct {
	ctx      context.Context
	prog     *program.Program
	compiler *compiler.Compiler
	pool     *jobs.Pool
	plane    *dataplane.Plane
	metrics  *metrics.Metrics
	env      *module.Env

	// root is only touched on the loop goroutine, and by Close after the
	// loop has exited.
	root *module.Node

	mu       sync.Mutex
	cond     *sync.Cond
	queue    []interrupt
	busy     bool
	finished bool
	stopping bool
	cause    error
	done     chan struct{}
}

// New starts a runtime. ctx must carry a logger; it is inherited by the
// interpreter loop and the pool.
func New(ctx context.Context, cfg Config) *Runtime {
	c := cfg.Compiler
	if c == nil {
		c = compiler.New()
	}
	prog := program.New(cfg.Defaults)
	r := &Runtime{
		ctx:      ctx,
		prog:     prog,
		compiler: c,
		pool:     jobs.New(ctx, cfg.Workers),
		plane:    dataplane.New(),
		metrics:  cfg.Metrics,
		done:     make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	r.env = &module.Env{
		Resolver:  prog,
		Isolator:  isolate.New(prog),
		Compiler:  c,
		Plane:     r.plane,
		Disposer:  dispose.New(),
		Scheduler: r,
		Metrics:   cfg.Metrics,
	}
	go r.loop()
	return r
}

func (r *Runtime) loop() {
	defer close(r.done)
	logger := ctxlog.FromContext(r.ctx)
	logger.Debug("Interpreter loop started.")
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.stopping {
			r.cond.Wait()
		}
		if len(r.queue) == 0 {
			r.mu.Unlock()
			logger.Debug("Interpreter loop stopped.")
			return
		}
		it := r.queue[0]
		r.queue[0] = interrupt{}
		r.queue = r.queue[1:]
		finished := r.finished
		r.busy = true
		r.mu.Unlock()

		if finished {
			it.alt(r.ctx)
		} else {
			it.fn(r.ctx)
		}

		r.mu.Lock()
		r.busy = false
		r.cond.Broadcast()
		r.mu.Unlock()
	}
}

// ScheduleInterrupt queues fn for the interpreter loop. If the runtime has
// already finished, alt runs on the calling goroutine instead.
func (r *Runtime) ScheduleInterrupt(fn, alt func(ctx context.Context)) {
	r.mu.Lock()
	if r.finished || r.stopping {
		r.mu.Unlock()
		alt(r.ctx)
		return
	}
	r.queue = append(r.queue, interrupt{fn: fn, alt: alt})
	r.cond.Broadcast()
	r.mu.Unlock()
}

// ScheduleAsync runs job on the background pool.
func (r *Runtime) ScheduleAsync(job jobs.Job) error {
	return r.pool.Submit(job)
}

// run executes fn on the loop and waits for its result. If the runtime
// finishes first, alt's result is returned; a nil alt reports ErrFinished.
func (r *Runtime) run(ctx context.Context, fn, alt func(ctx context.Context) error) error {
	if alt == nil {
		alt = func(context.Context) error { return r.Err() }
	}
	res := make(chan error, 1)
	r.ScheduleInterrupt(
		func(lctx context.Context) { res <- fn(lctx) },
		func(lctx context.Context) { res <- alt(lctx) },
	)
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runtime) finish(cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	r.cause = cause
	r.cond.Broadcast()
}

// Finished reports whether the runtime has finished.
func (r *Runtime) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}

// Err returns nil while the runtime is live and ErrFinished afterwards.
func (r *Runtime) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		return nil
	}
	if r.cause != nil {
		return fmt.Errorf("%w: %w", ErrFinished, r.cause)
	}
	return ErrFinished
}

// Program returns the live program.
func (r *Runtime) Program() *program.Program { return r.prog }

// Compiler returns the compiler engines are built with.
func (r *Runtime) Compiler() *compiler.Compiler { return r.compiler }

// Plane returns the data plane connecting the engines.
func (r *Runtime) Plane() *dataplane.Plane { return r.plane }

// Metrics returns the runtime's metrics, which may be nil.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Root returns the root of the instance tree, or nil before the first Eval.
// The tree must only be inspected while the runtime is quiescent.
func (r *Runtime) Root() *module.Node { return r.root }

// Eval merges src into the program and brings the instance tree up to date.
// A parse error leaves the runtime untouched. A fatal compilation error
// finishes the runtime.
func (r *Runtime) Eval(ctx context.Context, src []byte, filename string) error {
	return r.run(ctx, func(lctx context.Context) error {
		added, err := r.prog.Eval(lctx, src, filename)
		if err != nil {
			return fmt.Errorf("failed to evaluate %s: %w", filename, err)
		}
		if r.root == nil {
			r.root = module.NewRoot(r.env, r.prog.Root())
		}
		if err := r.root.Synchronize(lctx, added); err != nil {
			var fatal *module.FatalError
			if errors.As(err, &fatal) {
				ctxlog.FromContext(lctx).Error("Fatal compilation error, finishing runtime.", "error", err)
				r.finish(err)
				return r.Err()
			}
			return err
		}
		return nil
	}, nil)
}

// EvalPath evaluates a single .hcl file or every .hcl file of a directory in
// lexical order.
func (r *Runtime) EvalPath(ctx context.Context, path string) error {
	files, srcs, err := program.ReadPath(ctx, path)
	if err != nil {
		return err
	}
	for i, f := range files {
		if err := r.Eval(ctx, srcs[i], f); err != nil {
			return err
		}
	}
	return nil
}

// Retarget swaps the annotations of every declaration for the ones m gives
// for its std and rebuilds the tree. A std that m does not describe finishes
// the runtime.
func (r *Runtime) Retarget(ctx context.Context, m program.March) error {
	return r.run(ctx, func(lctx context.Context) error {
		logger := ctxlog.FromContext(lctx)
		if err := r.prog.Retarget(m); err != nil {
			logger.Error("Unsupported target, finishing runtime.", "error", err)
			r.finish(err)
			return r.Err()
		}
		if r.root == nil {
			return nil
		}
		if err := r.root.Rebuild(lctx); err != nil {
			var fatal *module.FatalError
			if errors.As(err, &fatal) {
				logger.Error("Fatal compilation error, finishing runtime.", "error", err)
				r.finish(err)
				return r.Err()
			}
			return err
		}
		logger.Info("Retargeted program.", "modules", r.root.Size())
		return nil
	}, nil)
}

// RetargetFile reads a target description from path and retargets to it.
func (r *Runtime) RetargetFile(ctx context.Context, path string) error {
	m, err := program.ReadMarch(path)
	if err != nil {
		return err
	}
	return r.Retarget(ctx, m)
}

// Propagate moves every driven value across the data plane once.
func (r *Runtime) Propagate(ctx context.Context) error {
	return r.run(ctx, func(lctx context.Context) error {
		r.plane.Propagate(lctx)
		return nil
	}, nil)
}

// Quiesce waits until no compile pass is queued or running and the interrupt
// queue is empty.
func (r *Runtime) Quiesce(ctx context.Context) error {
	for {
		if err := r.pool.WaitIdle(ctx); err != nil {
			if errors.Is(err, jobs.ErrClosed) {
				return r.Err()
			}
			return err
		}
		if err := r.run(ctx, func(context.Context) error { return nil }, nil); err != nil {
			return err
		}
		r.mu.Lock()
		drained := len(r.queue) == 0 && !r.busy
		r.mu.Unlock()
		if drained && r.pool.Idle() {
			return nil
		}
	}
}

func (r *Runtime) save(ctx context.Context, w io.Writer) error {
	if r.root == nil {
		_, err := io.WriteString(w, "0\n")
		return err
	}
	return r.root.Save(ctx, w)
}

func (r *Runtime) restart(ctx context.Context, rd io.Reader) error {
	if r.root == nil {
		return errors.New("nothing to restart: no program has been evaluated")
	}
	return r.root.Restart(ctx, rd)
}

// Save writes the state of every engine to w. It also works after the
// runtime has finished.
func (r *Runtime) Save(ctx context.Context, w io.Writer) error {
	fn := func(lctx context.Context) error { return r.save(lctx, w) }
	return r.run(ctx, fn, fn)
}

// Restart loads engine state previously written by Save.
func (r *Runtime) Restart(ctx context.Context, rd io.Reader) error {
	return r.run(ctx, func(lctx context.Context) error { return r.restart(lctx, rd) }, nil)
}

// SaveFile saves to the file at path, replacing it.
func (r *Runtime) SaveFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create save file: %w", err)
	}
	if err := r.Save(ctx, f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// RestartFile restarts from the file at path. A file that cannot be opened
// finishes the runtime.
func (r *Runtime) RestartFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open restart file: %w", err)
		r.finish(err)
		return r.Err()
	}
	defer f.Close()
	return r.Restart(ctx, f)
}

// StateSafe runs fn on the loop between a save and a restart, so that engine
// state survives work that reprograms the device underneath them. If the
// runtime has finished, fn runs alone.
func (r *Runtime) StateSafe(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.run(ctx, func(lctx context.Context) error {
		var buf bytes.Buffer
		if err := r.save(lctx, &buf); err != nil {
			return err
		}
		if err := fn(lctx); err != nil {
			return err
		}
		if r.root == nil {
			return nil
		}
		return r.restart(lctx, &buf)
	}, fn)
}

// Close finishes the runtime and releases everything it holds: pending
// compilations are aborted, the pool is stopped, queued interrupts run their
// alternates and the tree is torn down.
func (r *Runtime) Close(ctx context.Context) {
	logger := ctxlog.FromContext(ctx)
	r.finish(nil)
	r.compiler.StopAll()
	if dropped := r.pool.Close(); dropped > 0 {
		logger.Debug("Dropped queued compile passes.", "count", dropped)
	}

	r.mu.Lock()
	r.stopping = true
	r.cond.Broadcast()
	r.mu.Unlock()
	<-r.done

	if r.root != nil {
		r.root.Close(ctx)
		r.root = nil
	}
	logger.Debug("Runtime closed.")
}
