// Package transport implements the three MCP wire-level adapters: Stdio,
// SSE-with-POST, and Streamable-HTTP. All three satisfy the same Adapter
// contract so the MCP Client can drive any of them identically.
package transport

import (
	"context"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
)

// Kind identifies which wire variant a ServerEntry configures.
type Kind string

const (
	KindStdio          Kind = "stdio"
	KindSSE            Kind = "sse"
	KindStreamableHTTP Kind = "streamableHttp"
)

// Config is the subset of a server entry an adapter needs to open its
// connection. Only the fields relevant to Kind are consulted.
type Config struct {
	Kind    Kind
	Command string
	Args    []string
	Env     map[string]string
	URL     string
}

// MessageFunc is invoked once per inbound message, off the adapter's own
// read goroutine, and must not block on anything beyond brief
// waiter-table access (spec.md §5).
type MessageFunc func(rpc.Message)

// CloseFunc is invoked exactly once when the adapter's underlying
// resource (child process, event stream, HTTP session) is gone, with the
// error that caused it (nil for a clean caller-initiated Close).
type CloseFunc func(error)

// Adapter is the capability set spec.md §4.1 requires of every transport
// variant.
type Adapter interface {
	// Open establishes the underlying connection or spawns the child
	// process. The inbound handler and close handler must be installed
	// with SetInbound before Open is called.
	Open(ctx context.Context) error
	// Send writes one outbound JSON-RPC message.
	Send(ctx context.Context, msg rpc.Message) error
	// Close tears down the underlying resource. Safe to call more than
	// once.
	Close(ctx context.Context) error
	// SetInbound installs the callbacks the owning Client uses to receive
	// messages and observe unrecoverable closure.
	SetInbound(onMessage MessageFunc, onClose CloseFunc)
	// SetProtocolVersion updates the negotiated protocol version. The SSE
	// adapter sends it as a header on its sidecar POSTs; Stdio ignores it,
	// and Streamable-HTTP stores it but sends no version header. Called by
	// the Client once the handshake completes.
	SetProtocolVersion(version string)
}

// New constructs the adapter matching cfg.Kind.
func New(cfg Config) (Adapter, error) {
	switch cfg.Kind {
	case KindStdio:
		return NewStdio(cfg.Command, cfg.Args, cfg.Env), nil
	case KindSSE:
		return NewSSE(cfg.URL), nil
	case KindStreamableHTTP:
		return NewStreamableHTTP(cfg.URL), nil
	default:
		return nil, errUnknownKind(cfg.Kind)
	}
}

type errUnknownKind Kind

func (e errUnknownKind) Error() string { return "transport: unknown kind " + string(e) }
