// Package remotebuilder is a slots.Backend that sends composite text to a
// build server and waits for the image.
package remotebuilder

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/pborman/uuid"
	"github.com/specialistvlad/slotjit/internal/ast"
	"github.com/specialistvlad/slotjit/internal/buildproto"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// ErrDisconnected fails requests outstanding when the connection drops.
var ErrDisconnected = errors.New("build server disconnected")

// ErrRemote wraps the message of a build the server reported as failed.
var ErrRemote = errors.New("remote build failed")

// ConnectTimeout bounds Dial when ctx has no deadline.
const ConnectTimeout = 15 * time.Second

// Builder talks to one build server.
type Builder struct {
	io *socket.Socket

	mu      sync.Mutex
	pending map[string]chan buildproto.CompileReply
}

// Dial connects to the build server at rawURL. If rawURL has no path, the
// default socket.io path is used.
func Dial(ctx context.Context, rawURL string) (*Builder, error) {
	logger := ctxlog.FromContext(ctx).With("url", rawURL)
	logger.Info("Connecting to build server...")

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	path := u.Path
	if path == "" || path == "/" {
		path = buildproto.DefaultPath
	}

	opts := socket.DefaultOptions()
	opts.SetPath(path)
	opts.SetTransports(types.NewSet(transports.WebSocket))
	manager := socket.NewManager(fmt.Sprintf("%s://%s", u.Scheme, u.Host), opts)
	io := manager.Socket("/", opts)

	b := &Builder{io: io, pending: make(map[string]chan buildproto.CompileReply)}

	connected := make(chan error, 1)
	io.Once(types.EventName("connect"), func(...any) {
		connected <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		err, _ := errs[0].(error)
		if err == nil {
			err = fmt.Errorf("%v", errs[0])
		}
		connected <- err
	})
	io.On(types.EventName(buildproto.EventCompiled), b.onCompiled)
	io.On(types.EventName("disconnect"), func(...any) {
		logger.Warn("Build server connection lost.")
		b.failPending()
	})
	io.Connect()

	timeout := time.NewTimer(ConnectTimeout)
	defer timeout.Stop()
	select {
	case err := <-connected:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for build server: %w", ctx.Err())
	case <-timeout.C:
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %v waiting for build server", ConnectTimeout)
	}
	logger.Info("Connected to build server.", "sid", io.Id())
	return b, nil
}

func (b *Builder) onCompiled(args ...any) {
	var reply buildproto.CompileReply
	if err := buildproto.Decode(args, &reply); err != nil {
		return
	}
	b.mu.Lock()
	ch, ok := b.pending[reply.ID]
	delete(b.pending, reply.ID)
	b.mu.Unlock()
	if ok {
		ch <- reply
	}
}

func (b *Builder) failPending() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.pending {
		ch <- buildproto.CompileReply{ID: id, Error: ErrDisconnected.Error()}
		delete(b.pending, id)
	}
}

// Build prepares the logic a hardware engine for decl runs on.
func (b *Builder) Build(decl *ast.ModuleDecl, slot int) (*slots.Logic, error) {
	return slots.NewLogic(decl, slot), nil
}

// CompileText sends text to the server and waits for the reply.
func (b *Builder) CompileText(ctx context.Context, text string) (slots.Artifact, error) {
	id := uuid.New()
	logger := ctxlog.FromContext(ctx).With("request", id)

	ch := make(chan buildproto.CompileReply, 1)
	b.mu.Lock()
	b.pending[id] = ch
	b.mu.Unlock()

	if !b.io.Connected() {
		b.forget(id)
		return slots.Artifact{}, ErrDisconnected
	}
	logger.Debug("Sending compile request.", "length", len(text))
	if err := b.io.Emit(buildproto.EventCompile, buildproto.CompileRequest{ID: id, Text: text}); err != nil {
		b.forget(id)
		return slots.Artifact{}, fmt.Errorf("failed to send compile request: %w", err)
	}

	select {
	case reply := <-ch:
		if reply.Error == ErrDisconnected.Error() {
			return slots.Artifact{}, ErrDisconnected
		}
		if !reply.OK {
			return slots.Artifact{}, fmt.Errorf("%w: %s", ErrRemote, reply.Error)
		}
		return slots.Artifact{AGFI: reply.AGFI, AFI: reply.AFI}, nil
	case <-ctx.Done():
		b.forget(id)
		return slots.Artifact{}, context.Cause(ctx)
	}
}

func (b *Builder) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.pending, id)
}

// AbortCompile asks the server to cancel its build in flight.
func (b *Builder) AbortCompile() {
	b.io.Emit(buildproto.EventAbort)
}

// Close disconnects from the server. Outstanding requests fail.
func (b *Builder) Close() {
	b.io.Disconnect()
	b.failPending()
}
