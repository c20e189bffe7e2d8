package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Transport moves whole frames. ReadMessage is called from a single
// goroutine; WriteMessage calls are serialized by the caller.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// CallInfo describes one delivered call.
type CallInfo struct {
	Interface string
	Method    string
	Cap       uint64
	TraceID   string
	Pipelined bool
	Duration  time.Duration
	Status    string
	Err       error
	// Params and Result are the raw request and the reply value; Result is
	// nil when Err is set.
	Params json.RawMessage
	Result any
}

// Options configures a server connection. All fields are optional.
type Options struct {
	Logger *zap.Logger
	// OnCall runs after every delivered call, on the capability's worker.
	OnCall func(CallInfo)
	// OnExport is told about every capability added (+1) or dropped (-1).
	OnExport func(iface string, delta int)
}

type inbound struct {
	frame     *Frame
	trace     string
	pipelined bool
	answer    *answer
}

type pendingCall struct {
	in    *inbound
	field string
}

// answer tracks a question until the client finishes it. Calls pipelined
// on an unresolved answer wait in pending.
type answer struct {
	done    bool
	err     error
	caps    map[string]uint64
	pending []pendingCall
}

// export is one capability. Its worker delivers queued calls in order.
type export struct {
	id      uint64
	srv     Server
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []*inbound
	stopped bool
}

func newExport(id uint64, srv Server) *export {
	e := &export{id: id, srv: srv}
	e.cond = sync.NewCond(&e.mu)
	return e
}

func (e *export) push(in *inbound) {
	e.mu.Lock()
	e.queue = append(e.queue, in)
	e.mu.Unlock()
	e.cond.Signal()
}

// stop ends the worker once the queue is empty; drop discards the queue.
func (e *export) stop(drop bool) {
	e.mu.Lock()
	e.stopped = true
	if drop {
		e.queue = nil
	}
	e.mu.Unlock()
	e.cond.Broadcast()
}

func (e *export) next() (*inbound, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.queue) == 0 && !e.stopped {
		e.cond.Wait()
	}
	if len(e.queue) == 0 {
		return nil, false
	}
	in := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	return in, true
}

// Conn is the server side of one RPC connection.
type Conn struct {
	tr     Transport
	boot   Server
	opts   Options
	logger *zap.Logger

	wmu sync.Mutex

	mu         sync.Mutex
	ctx        context.Context
	exports    map[uint64]*export
	nextExport uint64
	answers    map[uint64]*answer
	closed     bool
	wg         sync.WaitGroup
}

// NewConn prepares a connection that exposes bootstrap as capability 0.
// Nothing runs until Serve.
func NewConn(tr Transport, bootstrap Server, opts Options) *Conn {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Conn{
		tr:      tr,
		boot:    bootstrap,
		opts:    opts,
		logger:  logger,
		exports: make(map[uint64]*export),
		answers: make(map[uint64]*answer),
	}
}

// Serve reads frames until the transport fails or ctx is done, then stops
// every capability worker and returns the read error.
func (c *Conn) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.export(c.boot)

	go func() {
		<-ctx.Done()
		_ = c.tr.Close()
	}()

	var err error
	for {
		var data []byte
		data, err = c.tr.ReadMessage()
		if err != nil {
			break
		}
		if ferr := c.handle(data); ferr != nil {
			c.logger.Warn("rpc frame rejected", zap.Error(ferr))
			c.send(&Frame{Type: FrameAbort, Error: ferr.Error()})
		}
	}
	c.shutdown()
	return err
}

func (c *Conn) shutdown() {
	c.mu.Lock()
	c.closed = true
	exports := make([]*export, 0, len(c.exports))
	for id, e := range c.exports {
		exports = append(exports, e)
		delete(c.exports, id)
	}
	c.answers = make(map[uint64]*answer)
	c.mu.Unlock()

	for _, e := range exports {
		e.stop(true)
		c.exported(e.srv, -1)
	}
	c.wg.Wait()
}

func (c *Conn) handle(data []byte) error {
	f, err := DecodeFrame(data)
	if err != nil {
		return err
	}
	switch f.Type {
	case FrameCall:
		c.handleCall(f)
	case FrameFinish:
		c.mu.Lock()
		delete(c.answers, f.Question)
		c.mu.Unlock()
	case FrameRelease:
		c.release(f.Cap)
	default:
		return fmt.Errorf("%w: unexpected %q frame from client", ErrBadFrame, f.Type)
	}
	return nil
}

func (c *Conn) handleCall(f *Frame) {
	in := &inbound{frame: f, trace: uuid.NewString(), answer: &answer{}}

	c.mu.Lock()
	if _, dup := c.answers[f.Question]; dup {
		c.mu.Unlock()
		c.send(&Frame{Type: FrameReturn, Question: f.Question, Error: ErrQuestionInUse.Error()})
		return
	}
	c.answers[f.Question] = in.answer

	var routeErr error
	if p := f.Target.Promise; p != nil {
		target, ok := c.answers[p.Question]
		switch {
		case !ok:
			routeErr = fmt.Errorf("%w: %d", ErrUnknownQuestion, p.Question)
		case !target.done:
			in.pipelined = true
			target.pending = append(target.pending, pendingCall{in: in, field: p.Field})
		default:
			in.pipelined = true
			routeErr = c.routeLocked(in, target, p.Field)
		}
	} else if e, ok := c.exports[f.Target.Cap]; ok {
		e.push(in)
	} else {
		routeErr = fmt.Errorf("%w: %d", ErrUnknownCapability, f.Target.Cap)
	}
	c.mu.Unlock()

	if routeErr != nil {
		c.resolve(in, nil, nil, routeErr)
	}
}

// routeLocked queues in on the capability named field of a resolved answer.
func (c *Conn) routeLocked(in *inbound, a *answer, field string) error {
	if a.err != nil {
		return fmt.Errorf("%w: %v", ErrBrokenPromise, a.err)
	}
	id, ok := a.caps[field]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotCapability, field)
	}
	e, ok := c.exports[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownCapability, id)
	}
	e.push(in)
	return nil
}

// resolve settles in's answer, hands calls pipelined on it to their
// capabilities and sends the return frame.
func (c *Conn) resolve(in *inbound, result json.RawMessage, caps map[string]uint64, err error) {
	type failed struct {
		in  *inbound
		err error
	}
	var failures []failed

	c.mu.Lock()
	a := in.answer
	a.done = true
	a.err = err
	a.caps = caps
	pending := a.pending
	a.pending = nil
	for _, p := range pending {
		if rerr := c.routeLocked(p.in, a, p.field); rerr != nil {
			failures = append(failures, failed{in: p.in, err: rerr})
		}
	}
	c.mu.Unlock()

	ret := &Frame{Type: FrameReturn, Question: in.frame.Question}
	if err != nil {
		ret.Error = err.Error()
	} else {
		ret.Result = result
		if len(caps) > 0 {
			ret.Caps = caps
		}
	}
	c.send(ret)

	for _, f := range failures {
		c.resolve(f.in, nil, nil, f.err)
	}
}

func (c *Conn) export(srv Server) uint64 {
	c.mu.Lock()
	id := c.nextExport
	c.nextExport++
	e := newExport(id, srv)
	if c.closed {
		c.mu.Unlock()
		return id
	}
	c.exports[id] = e
	c.wg.Add(1)
	go c.run(e)
	c.mu.Unlock()

	c.exported(srv, 1)
	return id
}

func (c *Conn) release(id uint64) {
	c.mu.Lock()
	e, ok := c.exports[id]
	if ok {
		delete(c.exports, id)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	e.stop(false)
	c.exported(e.srv, -1)
	c.logger.Debug("capability released", zap.Uint64("cap", id), zap.String("interface", e.srv.Name()))
}

func (c *Conn) exported(srv Server, delta int) {
	if c.opts.OnExport != nil {
		c.opts.OnExport(srv.Name(), delta)
	}
}

func (c *Conn) run(e *export) {
	defer c.wg.Done()
	for {
		in, ok := e.next()
		if !ok {
			return
		}
		c.deliver(e, in)
	}
}

func (c *Conn) deliver(e *export, in *inbound) {
	call := &Call{
		Method:  in.frame.Method,
		Params:  in.frame.Params,
		TraceID: in.trace,
		conn:    c,
		caps:    make(map[string]uint64),
	}
	c.mu.Lock()
	ctx := context.WithValue(c.ctx, ctxKeyTraceID{}, in.trace)
	c.mu.Unlock()

	start := time.Now()
	result, err := c.dispatch(ctx, e, call)
	var payload json.RawMessage
	if err == nil {
		payload, err = json.Marshal(result)
	}
	c.resolve(in, payload, call.caps, err)

	if c.opts.OnCall != nil {
		info := CallInfo{
			Interface: e.srv.Name(),
			Method:    call.Method,
			Cap:       e.id,
			TraceID:   in.trace,
			Pipelined: in.pipelined,
			Duration:  time.Since(start),
			Err:       err,
			Params:    call.Params,
		}
		if err == nil {
			info.Result = result
		}
		if sr, ok := result.(StatusReporter); ok && err == nil {
			info.Status = sr.RPCStatus()
		}
		c.opts.OnCall(info)
	}
}

func (c *Conn) dispatch(ctx context.Context, e *export, call *Call) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in rpc method",
				zap.String("interface", e.srv.Name()),
				zap.String("method", call.Method),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			result, err = nil, fmt.Errorf("rpc: internal error in %s.%s", e.srv.Name(), call.Method)
		}
	}()
	return e.srv.Dispatch(ctx, call)
}

func (c *Conn) send(f *Frame) {
	data, err := EncodeFrame(f)
	if err != nil {
		c.logger.Error("rpc encode frame failed", zap.Error(err))
		return
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.tr.WriteMessage(data); err != nil {
		c.logger.Debug("rpc write failed", zap.String("type", f.Type), zap.Error(err))
	}
}
