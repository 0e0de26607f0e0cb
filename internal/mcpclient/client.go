// Package mcpclient implements the MCP Client state machine and protocol
// driver described in spec.md §4.3: handshake, capability negotiation,
// list_tools/call_tool, and the result-unwrapping heuristic.
package mcpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/mcperr"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/transport"
)

// State is one node of the Client's lifecycle state machine.
type State int

const (
	StateNew State = iota
	StateHandshaking
	StateReady
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// protocolVersion is this Client's own constant, used when a server's
// initialize response omits one entirely.
const protocolVersion = "2025-03-26"

// ClientInfo identifies this Client during the handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Validator validates tool-call arguments against a tool's JSON Schema.
// Implemented by internal/validation; declared here so mcpclient does not
// depend on the concrete validation library.
type Validator interface {
	Validate(schema json.RawMessage, arguments json.RawMessage) error
}

type initializeParams struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ClientInfo      ClientInfo      `json:"clientInfo"`
}

type initializeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      json.RawMessage `json:"serverInfo"`
}

// Tool mirrors the wire shape of one entry in a tools/list result and is
// stored verbatim as a ToolDescriptor by the settings/toolcache layers.
type Tool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type listToolsResult struct {
	Tools []Tool `json:"tools"`
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithVersionAccepted overrides the protocol-version acceptance predicate.
// spec.md §9's Open Question requires the default to accept anything.
func WithVersionAccepted(f func(string) bool) Option {
	return func(c *Client) { c.versionAccepted = f }
}

func WithValidator(v Validator) Option {
	return func(c *Client) { c.validator = v }
}

func WithClientInfo(info ClientInfo) Option {
	return func(c *Client) { c.clientInfo = info }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// Client is the per-connection state machine and protocol driver owning
// exactly one transport.Adapter.
type Client struct {
	id      string
	name    string
	adapter transport.Adapter
	corr    *rpc.Correlator
	log     logging.Logger

	clientInfo      ClientInfo
	versionAccepted func(string) bool
	validator       Validator
	requestTimeout  time.Duration

	mu                 sync.Mutex
	state              State
	negotiatedVersion  string
	serverCapabilities json.RawMessage
}

func New(name string, adapter transport.Adapter, opts ...Option) *Client {
	c := &Client{
		id:              uuid.New().String(),
		name:            name,
		adapter:         adapter,
		state:           StateNew,
		versionAccepted: func(string) bool { return true },
		clientInfo:      ClientInfo{Name: "mcpbrokerd", Version: "0.1.0"},
		requestTimeout:  30 * time.Second,
	}
	c.log = logging.GetDefault().With("component", "mcpclient", "server", name, "client_id", c.id)
	for _, opt := range opts {
		opt(c)
	}
	c.corr = rpc.NewCorrelator(c.transformResult)
	adapter.SetInbound(c.onMessage, c.onTransportClosed)
	if h, ok := adapter.(*transport.StreamableHTTP); ok {
		h.Rehandshake = c.rehandshake
	}
	return c
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Capabilities returns the server's negotiated capabilities, or nil
// before handshake completes.
func (c *Client) Capabilities() json.RawMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverCapabilities
}

// Start opens the transport and runs the initialize/initialized
// handshake, moving the Client from NEW to READY (or FAILED/CLOSED).
func (c *Client) Start(ctx context.Context) error {
	if err := c.adapter.Open(ctx); err != nil {
		c.setState(StateClosed)
		return fmt.Errorf("mcpclient: open transport: %w", err)
	}
	if _, ok := c.adapter.(*transport.Stdio); ok {
		// give the child's own stdin read loop time to come up before the
		// first request lands, per spec.md §4.3.
		time.Sleep(100 * time.Millisecond)
	}
	return c.handshake(ctx)
}

func (c *Client) handshake(ctx context.Context) error {
	c.setState(StateHandshaking)

	result, err := c.sendRequest(ctx, "initialize", initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    json.RawMessage(`{}`),
		ClientInfo:      c.clientInfo,
	}, true)
	if err != nil {
		c.setState(StateFailed)
		return err
	}

	var parsed initializeResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		c.setState(StateFailed)
		return mcperr.New(mcperr.InternalError, "malformed initialize response", nil)
	}

	version := parsed.ProtocolVersion
	if version == "" {
		version = protocolVersion
	}
	if !c.versionAccepted(version) {
		c.setState(StateFailed)
		return mcperr.New(mcperr.UnsupportedProtocolVersion, "unsupported protocol version: "+version, nil)
	}

	c.mu.Lock()
	c.negotiatedVersion = version
	c.serverCapabilities = parsed.Capabilities
	c.mu.Unlock()
	c.adapter.SetProtocolVersion(version)

	notif, err := rpc.NewNotification("notifications/initialized", struct{}{})
	if err == nil {
		if err := c.adapter.Send(ctx, notif); err != nil {
			c.log.Warn("failed to send initialized notification", "err", err)
		}
	}

	c.setState(StateReady)
	return nil
}

// rehandshake is passed to the Streamable-HTTP adapter so it can recover
// transparently from an expired session (spec.md §4.1, scenario S6).
func (c *Client) rehandshake(ctx context.Context) error {
	return c.handshake(ctx)
}

// ListTools sends tools/list and returns the server's tool descriptors.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	result, err := c.sendRequest(ctx, "tools/list", struct{}{}, false)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}
	var parsed listToolsResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, mcperr.New(mcperr.InternalError, "malformed tools/list response", nil)
	}
	return parsed.Tools, nil
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// CallTool validates arguments against schema, invokes tools/call, and
// returns the unwrapped result node.
func (c *Client) CallTool(ctx context.Context, name string, arguments json.RawMessage, schema json.RawMessage) (json.RawMessage, error) {
	if c.validator != nil && schema != nil {
		if err := c.validator.Validate(schema, arguments); err != nil {
			return nil, mcperr.New(mcperr.InvalidParams, err.Error(), nil)
		}
	}
	return c.sendRequest(ctx, "tools/call", callToolParams{Name: name, Arguments: arguments}, false)
}

// Close marks the Client CLOSED, fails every pending request, and closes
// the adapter. A best-effort shutdown request is sent first only when the
// Client is READY; a Client that never reached READY is still torn down.
// A no-op if already CLOSED.
func (c *Client) Close(ctx context.Context) error {
	state := c.State()
	if state == StateClosed {
		return nil
	}
	if state == StateReady {
		if _, err := c.sendRequest(ctx, "shutdown", struct{}{}, true); err != nil {
			c.log.Warn("shutdown request failed", "err", err)
		}
	}
	c.setState(StateClosed)
	c.corr.Teardown()
	return c.adapter.Close(ctx)
}

func (c *Client) sendRequest(ctx context.Context, method string, params any, bypassReady bool) (json.RawMessage, error) {
	if !bypassReady && c.State() != StateReady {
		return nil, mcperr.New(mcperr.InvalidRequest, "client is not ready", nil)
	}

	deadline := ctx
	var cancel context.CancelFunc
	if c.requestTimeout > 0 {
		deadline, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	id := c.corr.NextID()
	msg, err := rpc.NewRequest(id, method, params, "")
	if err != nil {
		return nil, mcperr.New(mcperr.InternalError, err.Error(), nil)
	}
	outcome := c.corr.Register(id, method)

	if err := c.adapter.Send(deadline, msg); err != nil {
		c.corr.Cancel(id)
		return nil, mcperr.New(mcperr.ConnectionClosed, err.Error(), nil)
	}

	select {
	case o := <-outcome:
		if o.Err != nil {
			return nil, o.Err
		}
		return o.Result, nil
	case <-deadline.Done():
		c.corr.Cancel(id)
		return nil, mcperr.New(mcperr.RequestTimeout, "request timed out", nil)
	}
}

func (c *Client) onMessage(msg rpc.Message) {
	c.corr.Dispatch(msg)
}

func (c *Client) onTransportClosed(err error) {
	if c.State() == StateFailed {
		c.corr.Teardown()
		return
	}
	c.setState(StateClosed)
	c.corr.Teardown()
	if err != nil {
		c.log.Warn("transport closed unexpectedly", "err", err)
	}
}

// transformResult is threaded into the correlator as the ResultTransform
// hook; it applies the tools/call result-unwrapping heuristic and leaves
// every other method's result untouched, per spec.md §4.2/§4.3.
func (c *Client) transformResult(method string, result json.RawMessage) (json.RawMessage, *mcperr.Error) {
	if method != "tools/call" {
		return result, nil
	}
	return unwrapResult(result)
}
