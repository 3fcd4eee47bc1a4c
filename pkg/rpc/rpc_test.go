package rpc

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	selEcho uint32 = iota + 1
	selFail
	selPanic
	selBlock
)

// socketPath returns a short socket path; t.TempDir() paths can exceed
// the unix socket length limit.
func socketPath(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "rpc")
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return filepath.Join(dir, "w.sock")
}

func echo(_ context.Context, args []Value) (Value, error) {
	if len(args) == 0 {
		return Void(), nil
	}
	return args[0], nil
}

// startResponder serves on addr until the test ends. register adds
// handlers before serving.
func startResponder(t *testing.T, addr string, register func(*Responder)) *Responder {
	t.Helper()

	ready := make(chan struct{})
	r := NewResponder(ResponderConfig{
		Address: addr,
		OnReady: func(string) { close(ready) },
	})
	r.Register(selEcho, "Echo", echo)
	if register != nil {
		register(r)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Serve(ctx, nil) }()

	select {
	case <-ready:
	case err := <-done:
		t.Fatalf("responder failed to start: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		<-done
	})
	return r
}

func newRequester(t *testing.T, addr string) *Requester {
	t.Helper()
	req := NewRequester(RequesterConfig{Address: addr, RetryInterval: 10 * time.Millisecond})
	t.Cleanup(func() { _ = req.Close() })
	return req
}

func connect(t *testing.T, addr string) *Requester {
	t.Helper()
	req := newRequester(t, addr)
	req.Start()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, req.WaitReady(ctx))
	return req
}

func callCtx(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCallRoundTrip(t *testing.T) {
	addr := socketPath(t)
	startResponder(t, addr, nil)
	req := connect(t, addr)

	v, err := req.Call(callCtx(t), selEcho, Int(5))
	require.NoError(t, err)
	n, err := v.AsInt()
	require.NoError(t, err)
	assert.EqualValues(t, 5, n)

	v, err = req.Call(callCtx(t), selEcho, String("file$a.flac"))
	require.NoError(t, err)
	assert.Equal(t, "file$a.flac", v.Str)

	v, err = req.Call(callCtx(t), selEcho)
	require.NoError(t, err)
	assert.True(t, v.IsVoid())

	assert.Equal(t, StateConnected, req.State())
	assert.Zero(t, req.Pending())
}

func TestFailedCalls(t *testing.T) {
	addr := socketPath(t)
	startResponder(t, addr, func(r *Responder) {
		r.Register(selFail, "Fail", func(context.Context, []Value) (Value, error) {
			return Value{}, errors.New("content not found")
		})
		r.Register(selPanic, "Panic", func(context.Context, []Value) (Value, error) {
			var m map[string]int
			m["boom"]++
			return Void(), nil
		})
	})
	req := connect(t, addr)

	t.Run("HandlerError", func(t *testing.T) {
		_, err := req.Call(callCtx(t), selFail)
		require.Error(t, err)
		assert.True(t, IsRemoteError(err))

		var remote *RemoteError
		require.ErrorAs(t, err, &remote)
		assert.Equal(t, selFail, remote.Selector)
		assert.Equal(t, "content not found", remote.Message)
	})

	t.Run("UnknownSelector", func(t *testing.T) {
		_, err := req.Call(callCtx(t), 999)
		assert.ErrorIs(t, err, ErrUnknownSelector)
	})

	t.Run("PanicIsRecovered", func(t *testing.T) {
		_, err := req.Call(callCtx(t), selPanic)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "panicked")

		v, err := req.Call(callCtx(t), selEcho, Bool(true))
		require.NoError(t, err, "responder keeps serving after a panic")
		assert.True(t, v.Bool)
	})
}

func TestNotReadyBeforeFirstConnection(t *testing.T) {
	addr := socketPath(t)

	req := newRequester(t, addr)
	_, err := req.Go(selEcho).Wait(callCtx(t))
	assert.ErrorIs(t, err, ErrNotReady)
	assert.Equal(t, StateIdle, req.State())

	req.Start()
	_, err = req.Go(selEcho).Wait(callCtx(t))
	assert.ErrorIs(t, err, ErrNotReady, "no responder yet")
	assert.Zero(t, req.Pending())

	startResponder(t, addr, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, req.WaitReady(ctx))

	_, err = req.Call(callCtx(t), selEcho, Int(1))
	assert.NoError(t, err)
}

func TestOneCallInFlightInSubmissionOrder(t *testing.T) {
	var (
		mu       sync.Mutex
		order    []int64
		inFlight atomic.Int32
		maxSeen  atomic.Int32
	)

	addr := socketPath(t)
	startResponder(t, addr, func(r *Responder) {
		r.Register(selBlock, "Record", func(_ context.Context, args []Value) (Value, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			mu.Lock()
			order = append(order, args[0].Int)
			mu.Unlock()
			return Void(), nil
		})
	})
	req := connect(t, addr)

	futures := make([]*Future, 20)
	for i := range futures {
		futures[i] = req.Go(selBlock, Int(int64(i)))
	}
	for _, f := range futures {
		_, err := f.Wait(callCtx(t))
		require.NoError(t, err)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 20)
	for i, n := range order {
		assert.EqualValues(t, i, n)
	}
	assert.EqualValues(t, 1, maxSeen.Load())
}

func TestIndependentRequestersAreConcurrent(t *testing.T) {
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})

	addr := socketPath(t)
	startResponder(t, addr, func(r *Responder) {
		r.Register(selBlock, "Block", func(ctx context.Context, _ []Value) (Value, error) {
			arrived <- struct{}{}
			<-release
			return Int(1), nil
		})
	})

	a := connect(t, addr)
	b := connect(t, addr)
	fa := a.Go(selBlock)
	fb := b.Go(selBlock)

	for range 2 {
		select {
		case <-arrived:
		case <-time.After(5 * time.Second):
			close(release)
			t.Fatal("calls from independent requesters were serialized")
		}
	}
	close(release)

	_, err := fa.Wait(callCtx(t))
	assert.NoError(t, err)
	_, err = fb.Wait(callCtx(t))
	assert.NoError(t, err)
}

func TestInFlightCallIsRetransmittedAfterReconnect(t *testing.T) {
	addr := socketPath(t)

	started := make(chan struct{})
	unblock := make(chan struct{})
	var firstCalls atomic.Int32

	first := NewResponder(ResponderConfig{Address: addr})
	first.Register(selBlock, "Block", func(context.Context, []Value) (Value, error) {
		firstCalls.Add(1)
		close(started)
		<-unblock
		return Int(1), nil
	})
	ready := make(chan struct{})
	first.config.OnReady = func(string) { close(ready) }
	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() { firstDone <- first.Serve(firstCtx, nil) }()
	<-ready

	req := connect(t, addr)
	future := req.Go(selBlock)
	<-started

	// Drop the connection while the call is in flight.
	stopCtx, cancelStop := context.WithTimeout(context.Background(), 50*time.Millisecond)
	_ = first.Stop(stopCtx)
	cancelStop()
	cancelFirst()

	require.Eventually(t, func() bool { return req.State() != StateConnected }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, req.Pending(), "the unanswered call stays queued")
	select {
	case <-future.Done():
		t.Fatal("call rejected by a disconnect")
	default:
	}

	startResponder(t, addr, func(r *Responder) {
		r.Register(selBlock, "Block", func(context.Context, []Value) (Value, error) {
			return Int(2), nil
		})
	})

	v, err := future.Wait(callCtx(t))
	require.NoError(t, err)
	assert.EqualValues(t, 2, v.Int)
	assert.EqualValues(t, 1, firstCalls.Load())
	assert.Zero(t, req.Pending())

	close(unblock)
	<-firstDone
}

func TestGiveUp(t *testing.T) {
	addr := socketPath(t)

	responder := NewResponder(ResponderConfig{Address: addr})
	responder.Register(selEcho, "Echo", echo)
	ready := make(chan struct{})
	responder.config.OnReady = func(string) { close(ready) }
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- responder.Serve(ctx, nil) }()
	<-ready

	req := NewRequester(RequesterConfig{
		Address:       addr,
		RetryInterval: 10 * time.Millisecond,
		GiveUpAfter:   100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = req.Close() })
	req.Start()
	require.NoError(t, req.WaitReady(callCtx(t)))

	cancel()
	require.NoError(t, <-done)

	_, err := req.Call(callCtx(t), selEcho, Int(1))
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, StateGaveUp, req.State())

	_, err = req.Call(callCtx(t), selEcho, Int(2))
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.ErrorIs(t, req.WaitReady(callCtx(t)), ErrGaveUp)
}

func TestExponentialPolicyGivesUp(t *testing.T) {
	req := NewRequester(RequesterConfig{
		Address:          filepath.Join(os.TempDir(), "dittocache-missing.sock"),
		RetryInterval:    5 * time.Millisecond,
		MaxRetryInterval: 20 * time.Millisecond,
		GiveUpAfter:      60 * time.Millisecond,
	})
	t.Cleanup(func() { _ = req.Close() })
	req.Start()

	err := req.WaitReady(callCtx(t))
	assert.ErrorIs(t, err, ErrGaveUp)
	assert.Equal(t, StateGaveUp, req.State())
}

func TestCloseRejectsPendingCalls(t *testing.T) {
	release := make(chan struct{})
	addr := socketPath(t)
	startResponder(t, addr, func(r *Responder) {
		r.Register(selBlock, "Block", func(context.Context, []Value) (Value, error) {
			<-release
			return Void(), nil
		})
	})
	t.Cleanup(func() { close(release) })

	req := connect(t, addr)
	blocked := req.Go(selBlock)
	queued := req.Go(selEcho, Int(1))

	require.NoError(t, req.Close())

	_, err := blocked.Wait(callCtx(t))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = queued.Wait(callCtx(t))
	assert.ErrorIs(t, err, ErrClosed)
	assert.Equal(t, StateClosed, req.State())

	_, err = req.Call(callCtx(t), selEcho)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, req.Close(), "close is idempotent")
}

func TestCloseWithoutStart(t *testing.T) {
	req := NewRequester(RequesterConfig{Address: "unused"})
	require.NoError(t, req.Close())
	assert.ErrorIs(t, req.WaitReady(callCtx(t)), ErrClosed)

	req.Start()
	assert.Equal(t, StateClosed, req.State())
}

func TestWaitIsCancellable(t *testing.T) {
	release := make(chan struct{})
	addr := socketPath(t)
	startResponder(t, addr, func(r *Responder) {
		r.Register(selBlock, "Block", func(context.Context, []Value) (Value, error) {
			<-release
			return Int(3), nil
		})
	})
	t.Cleanup(func() { close(release) })
	req := connect(t, addr)

	future := req.Go(selBlock)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := future.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, req.Pending(), "cancelling the wait does not cancel the call")
}

func TestMalformedCallGetsFailedResponse(t *testing.T) {
	addr := socketPath(t)
	startResponder(t, addr, nil)

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	// uid 42, selector 1, one argument of an unknown kind
	payload := []byte{
		0, 0, 0, 0, 0, 0, 0, 42,
		0, 0, 0, 1,
		0, 0, 0, 1,
		0, 0, 0, 99,
	}
	require.NoError(t, WriteFrame(conn, payload))

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	frame, err := ReadFrame(conn)
	require.NoError(t, err)
	resp, err := UnmarshalResponse(frame)
	require.NoError(t, err)

	assert.EqualValues(t, 42, resp.UID)
	assert.False(t, resp.Success)
	assert.Contains(t, resp.Error, "malformed call")
}

func TestDisconnectCancelsHandler(t *testing.T) {
	addr := socketPath(t)
	started := make(chan struct{})
	cancelled := make(chan error, 1)
	startResponder(t, addr, func(r *Responder) {
		r.Register(selBlock, "Block", func(ctx context.Context, _ []Value) (Value, error) {
			close(started)
			<-ctx.Done()
			cancelled <- ctx.Err()
			return Void(), ctx.Err()
		})
	})

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	payload, err := MarshalCall(&Call{UID: 7, Selector: selBlock})
	require.NoError(t, err)
	require.NoError(t, WriteFrame(conn, payload))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("handler never ran")
	}
	require.NoError(t, conn.Close())

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("handler context outlived its connection")
	}
}

func TestPipelinedCallsAnsweredInOrder(t *testing.T) {
	addr := socketPath(t)
	startResponder(t, addr, nil)

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	for uid := uint64(1); uid <= 3; uid++ {
		payload, err := MarshalCall(&Call{UID: uid, Selector: selEcho, Args: []Value{Int(int64(uid))}})
		require.NoError(t, err)
		require.NoError(t, WriteFrame(conn, payload))
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for uid := uint64(1); uid <= 3; uid++ {
		frame, err := ReadFrame(conn)
		require.NoError(t, err)
		resp, err := UnmarshalResponse(frame)
		require.NoError(t, err)
		assert.Equal(t, uid, resp.UID)
		assert.True(t, resp.Success)
		assert.EqualValues(t, uid, resp.Result.Int)
	}
}

func TestResponderInit(t *testing.T) {
	t.Run("ReadyAfterInit", func(t *testing.T) {
		var initialized atomic.Bool
		readyAfterInit := make(chan bool, 1)

		addr := socketPath(t)
		r := NewResponder(ResponderConfig{
			Address: addr,
			OnReady: func(string) { readyAfterInit <- initialized.Load() },
		})
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() {
			done <- r.Serve(ctx, func(context.Context) error {
				initialized.Store(true)
				return nil
			})
		}()

		select {
		case ok := <-readyAfterInit:
			assert.True(t, ok)
		case <-time.After(5 * time.Second):
			t.Fatal("not ready")
		}
		assert.Equal(t, addr, r.Addr())

		cancel()
		assert.NoError(t, <-done)
	})

	t.Run("InitFailure", func(t *testing.T) {
		r := NewResponder(ResponderConfig{
			Address: socketPath(t),
			OnReady: func(string) { t.Error("ready signalled after failed init") },
		})
		err := r.Serve(context.Background(), func(context.Context) error {
			return errors.New("store unavailable")
		})
		assert.ErrorContains(t, err, "store unavailable")
		assert.Empty(t, r.Addr())
	})

	t.Run("StaleSocketIsReplaced", func(t *testing.T) {
		addr := socketPath(t)
		require.NoError(t, os.WriteFile(addr, nil, 0o600))

		startResponder(t, addr, nil)
		req := connect(t, addr)
		_, err := req.Call(callCtx(t), selEcho, Int(1))
		assert.NoError(t, err)
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "gave_up", StateGaveUp.String())
	assert.Equal(t, "disconnected", StateDisconnected.String())
}
