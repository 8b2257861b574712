// Package buildserver exposes a slots.Backend to remote schedulers over
// socket.io.
//
// A client emits "compile" with a request id and the composite text and
// eventually receives "compiled" with the same id. Only one build runs at a
// time across all clients: a new request cancels the one in flight, whose
// requester receives a failed reply. "abort" cancels the build in flight
// without starting another.
package buildserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/specialistvlad/slotjit/internal/buildproto"
	"github.com/specialistvlad/slotjit/internal/ctxlog"
	"github.com/specialistvlad/slotjit/internal/slots"
	"github.com/zishang520/socket.io/v2/socket"
)

// Compiler is the part of a backend the server drives.
type Compiler interface {
	CompileText(ctx context.Context, text string) (slots.Artifact, error)
	AbortCompile()
}

// Server serves build requests.
type Server struct {
	ctx      context.Context
	cancel   context.CancelFunc
	compiler Compiler
	io       *socket.Server
	wg       sync.WaitGroup
}

// New creates a server building with c. ctx must carry a logger; cancelling
// it cancels every build the server started.
func New(ctx context.Context, c Compiler) *Server {
	ctx, cancel := context.WithCancel(ctx)
	s := &Server{ctx: ctx, cancel: cancel, compiler: c}

	opts := socket.DefaultServerOptions()
	opts.SetServeClient(false)
	opts.SetPath(buildproto.DefaultPath)
	s.io = socket.NewServer(nil, opts)
	s.io.On("connection", func(clients ...any) {
		client, ok := clients[0].(*socket.Socket)
		if !ok {
			return
		}
		s.serve(client)
	})
	return s
}

func (s *Server) serve(client *socket.Socket) {
	logger := ctxlog.FromContext(s.ctx).With("sid", client.Id())
	logger.Info("Build client connected.")

	client.On(buildproto.EventCompile, func(args ...any) {
		var req buildproto.CompileRequest
		if err := buildproto.Decode(args, &req); err != nil {
			logger.Warn("Dropping malformed compile request.", "error", err)
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			reply := s.compile(ctxlog.With(s.ctx, "sid", client.Id(), "request", req.ID), req)
			client.Emit(buildproto.EventCompiled, reply)
		}()
	})
	client.On(buildproto.EventAbort, func(...any) {
		logger.Info("Build aborted by client.")
		s.compiler.AbortCompile()
	})
	client.On("disconnect", func(reason ...any) {
		logger.Info("Build client disconnected.", "reason", reason)
	})
}

func (s *Server) compile(ctx context.Context, req buildproto.CompileRequest) buildproto.CompileReply {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Compile requested.", "length", len(req.Text))
	art, err := s.compiler.CompileText(ctx, req.Text)
	if err != nil {
		logger.Info("Compile failed.", "error", err)
		return buildproto.CompileReply{ID: req.ID, Error: err.Error()}
	}
	logger.Info("Compile succeeded.", "agfi", art.AGFI)
	return buildproto.CompileReply{ID: req.ID, OK: true, AGFI: art.AGFI, AFI: art.AFI}
}

// Handler returns the socket.io endpoint. Mount it at buildproto.DefaultPath.
func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

// Close cancels every build and disconnects every client.
func (s *Server) Close() {
	s.cancel()
	s.wg.Wait()
	s.io.Close(nil)
}
