package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
)

func TestStreamableHTTP_Send(t *testing.T) {
	t.Run("Should deliver a JSON response body as a message and capture the session id header", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req rpc.Message
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			w.Header().Set("Mcp-Session-Id", "sess-123")
			w.Header().Set("Content-Type", "application/json")
			resp, _ := json.Marshal(rpc.Message{JSONRPC: rpc.Version, ID: req.ID, Result: []byte(`{"tools":[]}`)})
			w.Write(resp)
		}))
		defer server.Close()

		h := NewStreamableHTTP(server.URL)
		var received rpc.Message
		h.SetInbound(func(msg rpc.Message) { received = msg }, func(error) {})

		msg, err := rpc.NewRequest(1, "tools/list", struct{}{}, "")
		require.NoError(t, err)
		require.NoError(t, h.Send(context.Background(), msg))

		assert.JSONEq(t, `{"tools":[]}`, string(received.Result))
		assert.Equal(t, "sess-123", h.sessionID)
	})

	t.Run("Should re-handshake once on a 404 and retry the original request", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := calls.Add(1)
			body, _ := io.ReadAll(r.Body)
			var req rpc.Message
			require.NoError(t, json.Unmarshal(body, &req))

			switch n {
			case 1:
				// first request establishes a session
				w.Header().Set("Mcp-Session-Id", "sess-1")
				w.Header().Set("Content-Type", "application/json")
				resp, _ := json.Marshal(rpc.Message{JSONRPC: rpc.Version, ID: req.ID, Result: []byte(`{}`)})
				w.Write(resp)
			case 2:
				// session considered expired on the second (real) request
				w.WriteHeader(http.StatusNotFound)
			default:
				// retry after rehandshake succeeds
				w.Header().Set("Mcp-Session-Id", "sess-2")
				w.Header().Set("Content-Type", "application/json")
				resp, _ := json.Marshal(rpc.Message{JSONRPC: rpc.Version, ID: req.ID, Result: []byte(`{"ok":true}`)})
				w.Write(resp)
			}
		}))
		defer server.Close()

		h := NewStreamableHTTP(server.URL)
		var received rpc.Message
		h.SetInbound(func(msg rpc.Message) { received = msg }, func(error) {})

		var rehandshakeCalls atomic.Int32
		h.Rehandshake = func(ctx context.Context) error {
			rehandshakeCalls.Add(1)
			return nil
		}

		seedMsg, err := rpc.NewRequest(1, "initialize", struct{}{}, "")
		require.NoError(t, err)
		require.NoError(t, h.Send(context.Background(), seedMsg))

		realMsg, err := rpc.NewRequest(2, "tools/list", struct{}{}, "")
		require.NoError(t, err)
		require.NoError(t, h.Send(context.Background(), realMsg))

		assert.Equal(t, int32(1), rehandshakeCalls.Load())
		assert.JSONEq(t, `{"ok":true}`, string(received.Result))
	})
}
