package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// RemoteError is a substrate error reported by the peer.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string { return "rpc remote: " + e.Message }

// Client is the calling side of a connection. Calls are written in issue
// order, so a call pipelined on an answer always reaches the server before
// the finish for that answer.
type Client struct {
	tr     Transport
	logger *zap.Logger

	mu        sync.Mutex
	nextQ     uint64
	questions map[uint64]*Answer
	err       error
	done      chan struct{}
}

// NewClient starts reading frames from tr.
func NewClient(tr Transport, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		tr:        tr,
		logger:    logger,
		nextQ:     1,
		questions: make(map[uint64]*Answer),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c
}

// Bootstrap returns the peer's bootstrap capability.
func (c *Client) Bootstrap() *Capability {
	return &Capability{client: c, id: 0}
}

// Close shuts the transport; outstanding answers fail with ErrClosed.
func (c *Client) Close() error {
	err := c.tr.Close()
	<-c.done
	return err
}

// Done is closed once the read loop has stopped.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) readLoop() {
	defer close(c.done)
	for {
		data, err := c.tr.ReadMessage()
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", ErrClosed, err))
			return
		}
		f, err := DecodeFrame(data)
		if err != nil {
			c.logger.Warn("rpc client dropped frame", zap.Error(err))
			continue
		}
		switch f.Type {
		case FrameReturn:
			c.settle(f)
		case FrameAbort:
			c.logger.Warn("rpc peer aborted frame", zap.String("error", f.Error))
		}
	}
}

func (c *Client) settle(f *Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.questions[f.Question]
	if !ok {
		return
	}
	delete(c.questions, f.Question)
	if f.Error != "" {
		a.err = &RemoteError{Message: f.Error}
	} else {
		a.result = f.Result
		a.caps = f.Caps
	}
	a.resolved = true
	close(a.ready)
	c.writeLocked(&Frame{Type: FrameFinish, Question: f.Question})
}

func (c *Client) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
	for q, a := range c.questions {
		a.err = err
		a.resolved = true
		close(a.ready)
		delete(c.questions, q)
	}
}

func (c *Client) writeLocked(f *Frame) {
	data, err := EncodeFrame(f)
	if err == nil {
		err = c.tr.WriteMessage(data)
	}
	if err != nil {
		c.logger.Debug("rpc client write failed", zap.String("type", f.Type), zap.Error(err))
	}
}

// Capability is a callable reference: either a concrete exported id or a
// field of an answer that may still be in flight.
type Capability struct {
	client  *Client
	id      uint64
	promise *Answer
	field   string
}

// targetLocked picks the wire target for a call issued now.
func (p *Capability) targetLocked() (*Target, error) {
	a := p.promise
	if a == nil {
		return &Target{Cap: p.id}, nil
	}
	if !a.resolved {
		return &Target{Promise: &PromisedAnswer{Question: a.question, Field: p.field}}, nil
	}
	if a.err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBrokenPromise, a.err)
	}
	id, ok := a.caps[p.field]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotCapability, p.field)
	}
	return &Target{Cap: id}, nil
}

// Call sends method with params and returns its answer without waiting.
func (p *Capability) Call(ctx context.Context, method string, params any) *Answer {
	c := p.client
	a := &Answer{client: c, ready: make(chan struct{})}

	var raw json.RawMessage
	if params != nil {
		b, err := json.Marshal(params)
		if err != nil {
			return a.failed(fmt.Errorf("%w: %v", ErrBadParams, err))
		}
		raw = b
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return a.failed(c.err)
	}
	target, err := p.targetLocked()
	if err != nil {
		return a.failed(err)
	}
	a.question = c.nextQ
	c.nextQ++
	c.questions[a.question] = a
	c.writeLocked(&Frame{Type: FrameCall, Question: a.question, Target: target, Method: method, Params: raw})
	return a
}

// Release tells the peer the capability is no longer needed. Promised
// capabilities must have resolved first.
func (p *Capability) Release() error {
	c := p.client
	c.mu.Lock()
	defer c.mu.Unlock()
	if p.promise != nil && !p.promise.resolved {
		return fmt.Errorf("rpc: release of unresolved capability %q", p.field)
	}
	target, err := p.targetLocked()
	if err != nil {
		return err
	}
	if target.Cap == 0 {
		return nil
	}
	c.writeLocked(&Frame{Type: FrameRelease, Cap: target.Cap})
	return nil
}

// Answer is the eventual result of a call.
type Answer struct {
	client   *Client
	question uint64
	ready    chan struct{}
	resolved bool
	result   json.RawMessage
	caps     map[string]uint64
	err      error
}

func (a *Answer) failed(err error) *Answer {
	a.err = err
	a.resolved = true
	close(a.ready)
	return a
}

// Cap returns the capability the answer will carry in field. It can be
// called on at once; the server delivers those calls after the answer
// resolves.
func (a *Answer) Cap(field string) *Capability {
	return &Capability{client: a.client, promise: a, field: field}
}

// Wait blocks until the answer settles or ctx is done.
func (a *Answer) Wait(ctx context.Context) error {
	select {
	case <-a.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	return a.err
}

// Struct waits for the answer and decodes the result into v.
func (a *Answer) Struct(ctx context.Context, v any) error {
	if err := a.Wait(ctx); err != nil {
		return err
	}
	if v == nil || len(a.result) == 0 {
		return nil
	}
	return json.Unmarshal(a.result, v)
}

// CapID returns the concrete id behind field once the answer has resolved.
func (a *Answer) CapID(field string) (uint64, bool) {
	select {
	case <-a.ready:
	default:
		return 0, false
	}
	id, ok := a.caps[field]
	return id, ok
}
