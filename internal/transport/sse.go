package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sync"

	"github.com/go-resty/resty/v2"
	sse "github.com/tmaxmax/go-sse"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
)

// SSE implements the SSE-with-POST variant: a persistent event-stream
// subscription paired with a sidecar POST channel discovered from the
// stream's "endpoint" event, per spec.md §4.1.
type SSE struct {
	connectURL string
	client     *resty.Client
	log        logging.Logger

	onMessage MessageFunc
	onClose   CloseFunc

	mu              sync.Mutex
	postEndpoint    string
	protocolVersion string

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewSSE(connectURL string) *SSE {
	return &SSE{
		connectURL: connectURL,
		client:     resty.New(),
		log:        logging.GetDefault().With("component", "transport.sse", "url", connectURL),
		done:       make(chan struct{}),
	}
}

func (s *SSE) SetInbound(onMessage MessageFunc, onClose CloseFunc) {
	s.onMessage = onMessage
	s.onClose = onClose
}

func (s *SSE) SetProtocolVersion(v string) {
	s.mu.Lock()
	s.protocolVersion = v
	s.mu.Unlock()
}

func (s *SSE) Open(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel

	resp, err := s.client.R().
		SetContext(streamCtx).
		SetDoNotParseResponse(true).
		Get(s.connectURL)
	if err != nil {
		cancel()
		return fmt.Errorf("sse: connect: %w", err)
	}
	if resp.StatusCode() != 200 {
		cancel()
		return fmt.Errorf("sse: unexpected status %d", resp.StatusCode())
	}

	ready := make(chan error, 1)
	go s.readLoop(resp.RawBody(), ready)

	select {
	case err := <-ready:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *SSE) readLoop(body io.ReadCloser, ready chan<- error) {
	defer body.Close()
	haveEndpoint := false

	for ev, err := range sse.Read(body, nil) {
		if err != nil {
			if !haveEndpoint {
				ready <- fmt.Errorf("sse: read: %w", err)
			}
			s.terminate(fmt.Errorf("sse: stream ended: %w", err))
			return
		}

		switch ev.Type {
		case "endpoint":
			endpoint, perr := s.resolveEndpoint(ev.Data)
			if perr != nil {
				ready <- perr
				return
			}
			s.mu.Lock()
			s.postEndpoint = endpoint
			s.mu.Unlock()
			haveEndpoint = true
			ready <- nil
		case "message":
			if !haveEndpoint {
				s.log.Warn("message received before endpoint event")
				continue
			}
			var msg rpc.Message
			if err := json.Unmarshal([]byte(ev.Data), &msg); err != nil {
				s.log.Warn("discarding unparseable event", "err", err)
				continue
			}
			if s.onMessage != nil {
				s.onMessage(msg)
			}
		default:
			s.log.Debug("unhandled sse event type", "type", string(ev.Type))
		}
	}
}

func (s *SSE) resolveEndpoint(raw string) (string, error) {
	base, err := url.Parse(s.connectURL)
	if err != nil {
		return "", fmt.Errorf("sse: parse connect URL: %w", err)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("sse: parse endpoint URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func (s *SSE) Send(ctx context.Context, msg rpc.Message) error {
	s.mu.Lock()
	endpoint := s.postEndpoint
	version := s.protocolVersion
	s.mu.Unlock()
	if endpoint == "" {
		return fmt.Errorf("sse: no post endpoint yet")
	}

	req := s.client.R().SetContext(ctx).SetHeader("Content-Type", "application/json").SetBody(msg)
	if version != "" {
		req.SetHeader("MCP-Protocol-Version", version)
	}
	resp, err := req.Post(endpoint)
	if err != nil {
		return fmt.Errorf("sse: post: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("sse: post status %d", resp.StatusCode())
	}
	return nil
}

func (s *SSE) Close(context.Context) error {
	s.terminate(nil)
	return nil
}

func (s *SSE) terminate(err error) {
	s.closeOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		close(s.done)
		if s.onClose != nil {
			s.onClose(err)
		}
	})
}
