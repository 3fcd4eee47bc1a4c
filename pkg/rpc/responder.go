package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/marmos91/dittocache/internal/logger"
	"github.com/marmos91/dittocache/internal/telemetry"
)

// HandlerFunc serves one selector. A returned error, or a panic, becomes a
// failed Response carrying the error text.
type HandlerFunc func(ctx context.Context, args []Value) (Value, error)

// InitFunc prepares whatever the handlers depend on. Serve runs it before
// listening, so callers never observe a half-initialized responder.
type InitFunc func(ctx context.Context) error

// Metrics records responder activity. A nil Metrics disables recording.
type Metrics interface {
	RecordCall(procedure string, success bool, duration time.Duration)
}

// ResponderConfig configures a Responder.
type ResponderConfig struct {
	// Address is the unix socket path to listen on. A stale socket file at
	// this path is removed before listening.
	Address string

	// Metrics is optional.
	Metrics Metrics

	// OnReady is called with the listening address once init succeeded and
	// the socket accepts connections, before the first call is served.
	OnReady func(addr string)
}

type handler struct {
	name string
	fn   HandlerFunc
}

// Responder dispatches incoming Calls to registered handlers.
//
// Register every handler before Serve. Each connection is served by its
// own goroutine; calls on one connection are answered in arrival order.
type Responder struct {
	config   ResponderConfig
	handlers map[uint32]handler

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	stopped  bool

	active   sync.WaitGroup
	stopOnce sync.Once
	done     chan struct{}
}

// NewResponder creates a stopped responder.
func NewResponder(config ResponderConfig) *Responder {
	return &Responder{
		config:   config,
		handlers: make(map[uint32]handler),
		conns:    make(map[net.Conn]struct{}),
		done:     make(chan struct{}),
	}
}

// Register binds fn to selector. name is used in logs, spans and metrics.
// Registering a selector twice replaces the earlier handler.
func (r *Responder) Register(selector uint32, name string, fn HandlerFunc) {
	r.handlers[selector] = handler{name: name, fn: fn}
}

// Serve runs init, starts listening and serves connections until ctx is
// cancelled or Stop is called. It returns nil after a clean shutdown.
func (r *Responder) Serve(ctx context.Context, init InitFunc) error {
	if init != nil {
		if err := init(ctx); err != nil {
			return fmt.Errorf("responder init failed: %w", err)
		}
	}

	if err := os.Remove(r.config.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale socket %s: %w", r.config.Address, err)
	}
	listener, err := net.Listen("unix", r.config.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.config.Address, err)
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		_ = listener.Close()
		return ErrClosed
	}
	r.listener = listener
	r.mu.Unlock()

	logger.Info("Responder listening", logger.KeyAddress, r.config.Address, "handlers", len(r.handlers))
	if r.config.OnReady != nil {
		r.config.OnReady(r.config.Address)
	}

	go func() {
		select {
		case <-ctx.Done():
			logger.Debug("Responder shutdown signal received", logger.Err(ctx.Err()))
			r.shutdown()
		case <-r.done:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-r.done:
				r.active.Wait()
				return nil
			default:
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			r.shutdown()
			r.active.Wait()
			return fmt.Errorf("accept failed: %w", err)
		}

		if !r.track(conn) {
			_ = conn.Close()
			continue
		}
		r.active.Add(1)
		go func() {
			defer r.active.Done()
			defer r.untrack(conn)
			r.serveConn(conn)
		}()
	}
}

// Stop closes the listener and every open connection, then waits for the
// connection goroutines or for ctx to expire.
func (r *Responder) Stop(ctx context.Context) error {
	r.shutdown()

	finished := make(chan struct{})
	go func() {
		r.active.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("responder shutdown: %w", ctx.Err())
	}
}

// Addr returns the socket address, or "" before Serve is listening.
func (r *Responder) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener == nil {
		return ""
	}
	return r.listener.Addr().String()
}

func (r *Responder) shutdown() {
	r.stopOnce.Do(func() {
		r.mu.Lock()
		r.stopped = true
		listener := r.listener
		conns := make([]net.Conn, 0, len(r.conns))
		for c := range r.conns {
			conns = append(conns, c)
		}
		r.mu.Unlock()

		close(r.done)
		if listener != nil {
			_ = listener.Close()
		}
		for _, c := range conns {
			_ = c.Close()
		}
		logger.Debug("Responder stopped", logger.KeyAddress, r.config.Address, "connections", len(conns))
	})
}

func (r *Responder) track(conn net.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.conns[conn] = struct{}{}
	return true
}

func (r *Responder) untrack(conn net.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	r.mu.Unlock()
	_ = conn.Close()
}

// serveConn answers the calls of one connection in arrival order. Frames
// are read ahead so that a disconnect cancels the handler in progress.
func (r *Responder) serveConn(conn net.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan []byte)
	go func() {
		defer cancel()
		defer close(frames)
		for {
			frame, err := ReadFrame(conn)
			if err != nil {
				select {
				case <-r.done:
				default:
					if !errors.Is(err, net.ErrClosed) {
						logger.Debug("Connection closed", logger.Err(err))
					}
				}
				return
			}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()

	for frame := range frames {
		resp := r.handle(ctx, frame)
		data, err := MarshalResponse(resp)
		if err != nil {
			logger.Error("Failed to encode response", logger.KeyCallUID, resp.UID, logger.Err(err))
			data, err = MarshalResponse(&Response{UID: resp.UID, Error: err.Error()})
			if err != nil {
				return
			}
		}
		if err := WriteFrame(conn, data); err != nil {
			logger.Debug("Failed to write response", logger.KeyCallUID, resp.UID, logger.Err(err))
			return
		}
	}
}

// handle decodes and dispatches one frame under connCtx, which is cancelled
// when the connection goes away. It always produces a Response.
func (r *Responder) handle(connCtx context.Context, frame []byte) *Response {
	call, err := UnmarshalCall(frame)
	if err != nil {
		uid, _ := peekUID(frame)
		logger.Warn("Malformed call", logger.KeyCallUID, uid, logger.Err(err))
		return &Response{UID: uid, Error: fmt.Sprintf("malformed call: %v", err)}
	}

	h, ok := r.handlers[call.Selector]
	if !ok {
		logger.Warn("Call to unknown selector", logger.KeySelector, call.Selector, logger.KeyCallUID, call.UID)
		return &Response{UID: call.UID, Error: fmt.Sprintf("%s: %d", ErrUnknownSelector.Error(), call.Selector)}
	}

	start := time.Now()
	lc := logger.NewLogContext("rpc").WithCall(h.name, call.UID)
	ctx := logger.WithContext(connCtx, lc)
	ctx, span := telemetry.StartRPCSpan(ctx, h.name, call.Selector, call.UID)
	defer span.End()
	ctx = telemetry.LogContext(ctx)

	result, err := invoke(ctx, h.fn, call.Args)
	span.SetAttributes(telemetry.RPCSuccess(err == nil))

	if r.config.Metrics != nil {
		r.config.Metrics.RecordCall(h.name, err == nil, time.Since(start))
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		logger.DebugCtx(ctx, "Call failed", logger.Err(err), logger.DurationMs(start))
		return &Response{UID: call.UID, Error: err.Error()}
	}

	logger.DebugCtx(ctx, "Call served", logger.DurationMs(start))
	return &Response{UID: call.UID, Success: true, Result: result}
}

func invoke(ctx context.Context, fn HandlerFunc, args []Value) (result Value, err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.ErrorCtx(ctx, "Handler panicked", "panic", p, "stack", string(debug.Stack()))
			result = Value{}
			err = fmt.Errorf("handler panicked: %v", p)
		}
	}()
	return fn(ctx, args)
}
