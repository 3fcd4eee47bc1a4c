package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/dittocache/internal/logger"
)

const (
	DefaultRetryInterval = time.Second
	DefaultDialTimeout   = 5 * time.Second
)

// State is the connection state of a Requester.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateClosed
	StateGaveUp
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	case StateGaveUp:
		return "gave_up"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

func (s State) terminal() bool {
	return s == StateClosed || s == StateGaveUp
}

var uidSeq atomic.Uint64

func init() {
	uidSeq.Store(uint64(time.Now().UnixMilli()))
}

func nextUID() uint64 {
	return uidSeq.Add(1)
}

// RequesterConfig configures a Requester.
type RequesterConfig struct {
	// Address is the responder's unix socket path.
	Address string

	// RetryInterval is the delay between reconnect attempts, and the first
	// delay when MaxRetryInterval enables exponential backoff.
	RetryInterval time.Duration

	// MaxRetryInterval switches to exponential backoff capped at this value.
	// Zero keeps the interval constant.
	MaxRetryInterval time.Duration

	// GiveUpAfter bounds how long a single reconnect episode may last before
	// the requester enters StateGaveUp. Zero retries forever.
	GiveUpAfter time.Duration

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
}

func (c *RequesterConfig) applyDefaults() {
	if c.RetryInterval <= 0 {
		c.RetryInterval = DefaultRetryInterval
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
}

func (c *RequesterConfig) policy() backoff.BackOff {
	if c.MaxRetryInterval <= 0 {
		return backoff.NewConstantBackOff(c.RetryInterval)
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.MaxInterval = max(c.MaxRetryInterval, c.RetryInterval)
	b.MaxElapsedTime = c.GiveUpAfter
	return b
}

// Future is the pending outcome of a call.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value Value
	err   error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve(v Value, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the call resolved or was rejected.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the call completes or ctx is done. A cancelled ctx
// stops the wait only; the call stays queued.
func (f *Future) Wait(ctx context.Context) (Value, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return Value{}, ctx.Err()
	}
}

type pendingCall struct {
	call   *Call
	data   []byte
	future *Future
}

// Requester sends Calls to one Responder, one at a time, in submission
// order.
//
// A call leaves the queue only once its Response arrived. When the
// connection drops, queued calls stay pending and the call in flight is sent
// again after reconnecting.
type Requester struct {
	config RequesterConfig

	mu        sync.Mutex
	state     State
	connected bool
	running   bool
	queue     []*pendingCall
	conn      net.Conn

	wake    chan struct{}
	closing chan struct{}
	ready   chan struct{}
	stopped chan struct{}

	startOnce sync.Once
	closeOnce sync.Once
}

// NewRequester creates an idle requester. Call Start to connect.
func NewRequester(config RequesterConfig) *Requester {
	config.applyDefaults()
	return &Requester{
		config:  config,
		wake:    make(chan struct{}, 1),
		closing: make(chan struct{}),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Start begins connecting in the background.
func (r *Requester) Start() {
	r.startOnce.Do(func() {
		r.mu.Lock()
		if r.state.terminal() {
			r.mu.Unlock()
			return
		}
		r.state = StateConnecting
		r.running = true
		r.mu.Unlock()
		go r.run()
	})
}

// WaitReady blocks until the first connection succeeds. It returns
// ErrGaveUp or ErrClosed when the requester terminated first.
func (r *Requester) WaitReady(ctx context.Context) error {
	if r.State().terminal() {
		return r.terminalErr()
	}
	select {
	case <-r.ready:
		return nil
	case <-r.stopped:
		return r.terminalErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connection state.
func (r *Requester) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Go enqueues a call and returns its future. Calls made before the first
// connection are rejected with ErrNotReady.
func (r *Requester) Go(selector uint32, args ...Value) *Future {
	f := newFuture()
	call := &Call{UID: nextUID(), Selector: selector, Args: args}

	r.mu.Lock()
	if r.state.terminal() {
		err := r.terminalErrLocked()
		r.mu.Unlock()
		f.resolve(Value{}, err)
		return f
	}
	if !r.connected {
		r.mu.Unlock()
		f.resolve(Value{}, ErrNotReady)
		return f
	}
	r.mu.Unlock()

	data, err := MarshalCall(call)
	if err != nil {
		f.resolve(Value{}, fmt.Errorf("failed to encode call: %w", err))
		return f
	}

	r.mu.Lock()
	if r.state.terminal() {
		err := r.terminalErrLocked()
		r.mu.Unlock()
		f.resolve(Value{}, err)
		return f
	}
	r.queue = append(r.queue, &pendingCall{call: call, data: data, future: f})
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
	return f
}

// Call sends a call and waits for its result. A failed Response is returned
// as *RemoteError.
func (r *Requester) Call(ctx context.Context, selector uint32, args ...Value) (Value, error) {
	return r.Go(selector, args...).Wait(ctx)
}

// Pending returns the number of calls not yet answered.
func (r *Requester) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.queue)
}

// Close stops the requester. Pending calls are rejected with ErrClosed.
func (r *Requester) Close() error {
	r.closeOnce.Do(func() {
		// Start after Close does nothing.
		r.startOnce.Do(func() {})

		close(r.closing)
		r.terminate(StateClosed)

		r.mu.Lock()
		conn := r.conn
		running := r.running
		r.mu.Unlock()
		if conn != nil {
			_ = conn.Close()
		}

		if running {
			<-r.stopped
		} else {
			close(r.stopped)
		}
	})
	return nil
}

func (r *Requester) terminalErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.terminalErrLocked()
}

func (r *Requester) terminalErrLocked() error {
	if r.state == StateGaveUp {
		return ErrGaveUp
	}
	return ErrClosed
}

// terminate moves to a terminal state once and rejects everything queued.
func (r *Requester) terminate(state State) {
	r.mu.Lock()
	if r.state.terminal() {
		r.mu.Unlock()
		return
	}
	r.state = state
	queue := r.queue
	r.queue = nil
	err := r.terminalErrLocked()
	r.mu.Unlock()

	for _, p := range queue {
		p.future.resolve(Value{}, err)
	}
	logger.Debug("Requester terminated", logger.KeyAddress, r.config.Address, logger.KeyState, state.String(), logger.KeyPending, len(queue))
}

func (r *Requester) setState(state State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.terminal() {
		return false
	}
	r.state = state
	return true
}

func (r *Requester) run() {
	defer close(r.stopped)

	for {
		conn, err := r.connect()
		if err != nil {
			if errors.Is(err, ErrGaveUp) {
				logger.Warn("Requester gave up reconnecting", logger.KeyAddress, r.config.Address, logger.Err(err))
				r.terminate(StateGaveUp)
			} else {
				r.terminate(StateClosed)
			}
			return
		}

		err = r.drain(conn)
		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		_ = conn.Close()

		select {
		case <-r.closing:
			return
		default:
		}

		if !r.setState(StateDisconnected) {
			return
		}
		logger.Warn("Requester disconnected", logger.KeyAddress, r.config.Address, logger.KeyPending, r.Pending(), logger.Err(err))
	}
}

// connect dials until it succeeds, the policy gives up, or Close is called.
func (r *Requester) connect() (net.Conn, error) {
	if !r.setState(StateConnecting) {
		return nil, ErrClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-r.closing:
			cancel()
		case <-ctx.Done():
		}
	}()

	started := time.Now()
	attempt := 0
	var conn net.Conn
	op := func() error {
		attempt++
		if r.config.GiveUpAfter > 0 && attempt > 1 && time.Since(started) > r.config.GiveUpAfter {
			return backoff.Permanent(ErrGaveUp)
		}
		dialer := net.Dialer{Timeout: r.config.DialTimeout}
		c, err := dialer.DialContext(ctx, "unix", r.config.Address)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, next time.Duration) {
		logger.Debug("Connect attempt failed", logger.KeyAddress, r.config.Address,
			logger.KeyAttempt, attempt, "retry_in", next.String(), logger.Err(err))
	}

	err := backoff.RetryNotify(op, backoff.WithContext(r.config.policy(), ctx), notify)
	if err != nil {
		select {
		case <-r.closing:
			return nil, ErrClosed
		default:
		}
		if errors.Is(err, ErrGaveUp) {
			return nil, err
		}
		// The exponential policy ran out of elapsed time.
		return nil, fmt.Errorf("%w: %v", ErrGaveUp, err)
	}

	r.mu.Lock()
	if r.state.terminal() {
		r.mu.Unlock()
		_ = conn.Close()
		return nil, ErrClosed
	}
	r.state = StateConnected
	r.conn = conn
	first := !r.connected
	r.connected = true
	pending := len(r.queue)
	r.mu.Unlock()

	if first {
		close(r.ready)
	}
	logger.Info("Requester connected", logger.KeyAddress, r.config.Address, logger.KeyAttempt, attempt, logger.KeyPending, pending)
	return conn, nil
}

// head waits for the oldest queued call. It returns nil once closing.
func (r *Requester) head() *pendingCall {
	for {
		r.mu.Lock()
		if len(r.queue) > 0 {
			p := r.queue[0]
			r.mu.Unlock()
			return p
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-r.closing:
			return nil
		}
	}
}

// pop removes p if it is still the head of the queue.
func (r *Requester) pop(p *pendingCall) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 || r.queue[0] != p {
		return false
	}
	r.queue[0] = nil
	r.queue = r.queue[1:]
	return true
}

// drain sends queued calls one at a time over conn until an I/O error.
func (r *Requester) drain(conn net.Conn) error {
	for {
		p := r.head()
		if p == nil {
			return ErrClosed
		}

		if err := WriteFrame(conn, p.data); err != nil {
			return fmt.Errorf("failed to send call %d: %w", p.call.UID, err)
		}

		for {
			frame, err := ReadFrame(conn)
			if err != nil {
				return fmt.Errorf("failed to read response to call %d: %w", p.call.UID, err)
			}

			resp, err := UnmarshalResponse(frame)
			if err != nil {
				logger.Warn("Malformed response", logger.KeyCallUID, p.call.UID, logger.Err(err))
				if r.pop(p) {
					p.future.resolve(Value{}, fmt.Errorf("malformed response: %w", err))
				}
				break
			}
			if resp.UID != p.call.UID {
				logger.Debug("Ignoring response for another call", logger.KeyCallUID, resp.UID, "expected", p.call.UID)
				continue
			}

			if r.pop(p) {
				if resp.Success {
					p.future.resolve(resp.Result, nil)
				} else {
					p.future.resolve(Value{}, &RemoteError{Selector: p.call.Selector, Message: resp.Error})
				}
			}
			break
		}
	}
}
