package mcpclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/transport"
)

// fakeAdapter is an in-memory transport.Adapter test double: it never
// touches a network or a subprocess, and lets a test script canned
// responses keyed by method so Client's state machine and request/reply
// plumbing can be exercised deterministically.
type fakeAdapter struct {
	mu        sync.Mutex
	onMessage transport.MessageFunc
	onClose   transport.CloseFunc
	sent      []rpc.Message
	responder func(rpc.Message) *rpc.Message
	openErr   error
	sendErr   error
	closed    bool
}

func newFakeAdapter(responder func(rpc.Message) *rpc.Message) *fakeAdapter {
	return &fakeAdapter{responder: responder}
}

func (f *fakeAdapter) Open(ctx context.Context) error { return f.openErr }

func (f *fakeAdapter) Send(ctx context.Context, msg rpc.Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.sent = append(f.sent, msg)
	onMessage := f.onMessage
	f.mu.Unlock()

	if f.responder == nil {
		return nil
	}
	reply := f.responder(msg)
	if reply != nil && onMessage != nil {
		onMessage(*reply)
	}
	return nil
}

func (f *fakeAdapter) Close(ctx context.Context) error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	onClose := f.onClose
	f.mu.Unlock()
	if !already && onClose != nil {
		onClose(nil)
	}
	return nil
}

func (f *fakeAdapter) SetInbound(onMessage transport.MessageFunc, onClose transport.CloseFunc) {
	f.mu.Lock()
	f.onMessage = onMessage
	f.onClose = onClose
	f.mu.Unlock()
}

func (f *fakeAdapter) SetProtocolVersion(version string) {}

func (f *fakeAdapter) sentMethods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.Method
	}
	return out
}

func resultResponse(id json.RawMessage, result any) *rpc.Message {
	raw, _ := json.Marshal(result)
	return &rpc.Message{JSONRPC: rpc.Version, ID: id, Result: raw}
}

func errorResponse(id json.RawMessage, code int, message string) *rpc.Message {
	return &rpc.Message{JSONRPC: rpc.Version, ID: id, Error: &rpc.WireError{Code: code, Message: message}}
}
