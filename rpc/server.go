// Package rpc is a small capability RPC substrate over a message transport.
//
// A connection exports server objects as numbered capabilities. Calls
// target either an exported capability or a capability promised by an
// earlier call that has not returned yet (promise pipelining). Calls on the
// same capability are delivered one at a time, in arrival order; calls on
// different capabilities run concurrently.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	ErrBadFrame          = errors.New("rpc: malformed frame")
	ErrBadParams         = errors.New("rpc: malformed params")
	ErrUnknownMethod     = errors.New("rpc: unknown method")
	ErrUnknownCapability = errors.New("rpc: unknown capability")
	ErrUnknownQuestion   = errors.New("rpc: unknown question")
	ErrQuestionInUse     = errors.New("rpc: question id in use")
	ErrNotCapability     = errors.New("rpc: field is not a capability")
	ErrBrokenPromise     = errors.New("rpc: promised answer failed")
	ErrClosed            = errors.New("rpc: connection closed")
)

// Server is a dispatch target that can be exported as a capability.
type Server interface {
	Name() string
	Dispatch(ctx context.Context, call *Call) (any, error)
}

// StatusReporter is implemented by results that carry an application
// status; the status is reported to observers.
type StatusReporter interface {
	RPCStatus() string
}

// CapRef is the wire form of a capability inside a result.
type CapRef struct {
	ID uint64 `json:"cap"`
}

// Call is one inbound method invocation.
type Call struct {
	Method  string
	Params  json.RawMessage
	TraceID string

	conn *Conn
	caps map[string]uint64
}

// Decode unmarshals the call parameters into v. Missing params leave v
// untouched.
func (c *Call) Decode(v any) error {
	if len(c.Params) == 0 || string(c.Params) == "null" {
		return nil
	}
	if err := json.Unmarshal(c.Params, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadParams, c.Method, err)
	}
	return nil
}

// Export publishes srv as a new capability under the result field name.
// Pipelined calls addressed to field are delivered to srv.
func (c *Call) Export(field string, srv Server) CapRef {
	id := c.conn.export(srv)
	c.caps[field] = id
	return CapRef{ID: id}
}

// MethodFunc handles one method of an Interface.
type MethodFunc func(ctx context.Context, call *Call) (any, error)

// Interface is a Server backed by a method table.
type Interface struct {
	name    string
	methods map[string]MethodFunc
}

// NewInterface creates an empty method table named name.
func NewInterface(name string) *Interface {
	return &Interface{name: name, methods: make(map[string]MethodFunc)}
}

// On registers fn for method and returns i for chaining.
func (i *Interface) On(method string, fn MethodFunc) *Interface {
	i.methods[method] = fn
	return i
}

func (i *Interface) Name() string { return i.name }

// Methods lists the registered method names in sorted order.
func (i *Interface) Methods() []string {
	out := make([]string, 0, len(i.methods))
	for m := range i.methods {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// Dispatch implements Server.
func (i *Interface) Dispatch(ctx context.Context, call *Call) (any, error) {
	fn, ok := i.methods[call.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, i.name, call.Method)
	}
	return fn(ctx, call)
}

type ctxKeyTraceID struct{}

// TraceIDFromCtx returns the per-call trace id stored in ctx.
func TraceIDFromCtx(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyTraceID{}).(string); ok {
		return v
	}
	return ""
}
