package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/go-resty/resty/v2"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
)

// Rehandshake is invoked by StreamableHTTP when a 404 response indicates
// the session has expired, so the Client can re-run initialize and hand
// back the new session id before the original request is retried once.
// It is supplied by mcpclient, since only the Client owns the handshake.
type Rehandshake func(ctx context.Context) error

// StreamableHTTP implements the Streamable-HTTP variant: every message,
// inbound or outbound, rides a single POST endpoint whose response is
// either a JSON body or a short SSE fragment, per spec.md §4.1.
type StreamableHTTP struct {
	url    string
	client *resty.Client
	log    logging.Logger

	onMessage MessageFunc
	onClose   CloseFunc

	mu              sync.Mutex
	sessionID       string
	protocolVersion string

	Rehandshake Rehandshake

	closeOnce sync.Once
}

func NewStreamableHTTP(url string) *StreamableHTTP {
	return &StreamableHTTP{
		url:    url,
		client: resty.New(),
		log:    logging.GetDefault().With("component", "transport.streamhttp", "url", url),
	}
}

func (h *StreamableHTTP) SetInbound(onMessage MessageFunc, onClose CloseFunc) {
	h.onMessage = onMessage
	h.onClose = onClose
}

func (h *StreamableHTTP) SetProtocolVersion(v string) {
	h.mu.Lock()
	h.protocolVersion = v
	h.mu.Unlock()
}

// SetSessionID records the session id sent on later requests; Send calls
// it with the Mcp-Session-Id response header and clears it on expiry.
func (h *StreamableHTTP) SetSessionID(id string) {
	h.mu.Lock()
	h.sessionID = id
	h.mu.Unlock()
}

// Open is a no-op: there is no persistent connection to establish, only
// per-request POSTs.
func (h *StreamableHTTP) Open(context.Context) error { return nil }

func (h *StreamableHTTP) Send(ctx context.Context, msg rpc.Message) error {
	resp, err := h.post(ctx, msg)
	if err != nil {
		return err
	}

	if resp.StatusCode() == http.StatusNotFound && h.hasSession() {
		h.log.Info("session expired, re-handshaking")
		h.SetSessionID("")
		if h.Rehandshake == nil {
			return fmt.Errorf("streamhttp: session expired and no rehandshake hook installed")
		}
		if err := h.Rehandshake(ctx); err != nil {
			return fmt.Errorf("streamhttp: rehandshake: %w", err)
		}
		resp, err = h.post(ctx, msg)
		if err != nil {
			return err
		}
	}

	if resp.IsError() {
		return fmt.Errorf("streamhttp: post status %d", resp.StatusCode())
	}

	if sid := resp.Header().Get("Mcp-Session-Id"); sid != "" {
		h.SetSessionID(sid)
	}

	return h.handleBody(resp)
}

func (h *StreamableHTTP) post(ctx context.Context, msg rpc.Message) (*resty.Response, error) {
	h.mu.Lock()
	sessionID := h.sessionID
	h.mu.Unlock()

	req := h.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json, text/event-stream").
		SetDoNotParseResponse(false).
		SetBody(msg)
	if sessionID != "" {
		req.SetHeader("Mcp-Session-Id", sessionID)
	}
	resp, err := req.Post(h.url)
	if err != nil {
		return nil, fmt.Errorf("streamhttp: post: %w", err)
	}
	return resp, nil
}

func (h *StreamableHTTP) hasSession() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sessionID != ""
}

func (h *StreamableHTTP) handleBody(resp *resty.Response) error {
	contentType := resp.Header().Get("Content-Type")
	body := resp.Body()
	if len(body) == 0 {
		return nil
	}

	if strings.HasPrefix(contentType, "text/event-stream") {
		return h.deliverEventStream(body)
	}

	var out rpc.Message
	if err := json.Unmarshal(body, &out); err != nil {
		return fmt.Errorf("streamhttp: parse response: %w", err)
	}
	if h.onMessage != nil {
		h.onMessage(out)
	}
	return nil
}

func (h *StreamableHTTP) deliverEventStream(body []byte) error {
	scanner := bufio.NewScanner(strings.NewReader(string(body)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var out rpc.Message
		if err := json.Unmarshal([]byte(data), &out); err != nil {
			h.log.Warn("discarding unparseable event line", "err", err)
			continue
		}
		if h.onMessage != nil {
			h.onMessage(out)
		}
	}
	return nil
}

func (h *StreamableHTTP) Close(context.Context) error {
	h.closeOnce.Do(func() {
		if h.onClose != nil {
			h.onClose(nil)
		}
	})
	return nil
}
