package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/rpc"
)

// cat echoes every stdin line back on stdout unmodified, which is enough
// to exercise the write-then-read round trip without a real MCP server.
func TestStdio_SendReceivesEchoedLine(t *testing.T) {
	t.Run("Should parse a line the child writes back and deliver it as a message", func(t *testing.T) {
		s := NewStdio("cat", nil, nil)
		received := make(chan rpc.Message, 1)
		s.SetInbound(func(msg rpc.Message) { received <- msg }, func(error) {})

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		require.NoError(t, s.Open(ctx))
		defer s.Close(context.Background())

		msg, err := rpc.NewRequest(1, "tools/list", struct{}{}, "")
		require.NoError(t, err)
		require.NoError(t, s.Send(context.Background(), msg))

		select {
		case got := <-received:
			assert.Equal(t, "tools/list", got.Method)
			assert.Equal(t, "1", got.IDString())
		case <-time.After(3 * time.Second):
			t.Fatal("timed out waiting for echoed message")
		}
	})
}

func TestStdio_Close(t *testing.T) {
	t.Run("Should be safe to call twice", func(t *testing.T) {
		s := NewStdio("cat", nil, nil)
		s.SetInbound(func(rpc.Message) {}, func(error) {})
		require.NoError(t, s.Open(context.Background()))

		assert.NoError(t, s.Close(context.Background()))
		assert.NoError(t, s.Close(context.Background()))
	})
}

func TestMergeEnv(t *testing.T) {
	t.Run("Should append overlay entries onto the base slice", func(t *testing.T) {
		base := []string{"PATH=/usr/bin"}
		out := mergeEnv(base, map[string]string{"FOO": "bar"})
		assert.Contains(t, out, "PATH=/usr/bin")
		assert.Contains(t, out, "FOO=bar")
	})

	t.Run("Should return the base slice unchanged when overlay is empty", func(t *testing.T) {
		base := []string{"PATH=/usr/bin"}
		out := mergeEnv(base, nil)
		assert.Equal(t, base, out)
	})
}

func TestIsShellInvocation(t *testing.T) {
	t.Run("Should recognize .bat and .cmd suffixes and the bare cmd shell", func(t *testing.T) {
		assert.True(t, isShellInvocation("run.bat"))
		assert.True(t, isShellInvocation("run.CMD"))
		assert.True(t, isShellInvocation("cmd"))
		assert.False(t, isShellInvocation("weather-mcp"))
	})
}
