package mcpclient

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapResult(t *testing.T) {
	t.Run("Should descend through single-key wrappers to reach content", func(t *testing.T) {
		raw := json.RawMessage(`{"toolResults":{"content":[{"type":"text","text":"hi"}]}}`)
		node, err := unwrapResult(raw)
		require.Nil(t, err)
		assert.JSONEq(t, `{"content":[{"type":"text","text":"hi"}]}`, string(node))
	})

	t.Run("Should stop descending once it reaches a multi-key object", func(t *testing.T) {
		raw := json.RawMessage(`{"wrapper":{"content":[],"meta":{"ok":true}}}`)
		node, err := unwrapResult(raw)
		require.Nil(t, err)
		assert.JSONEq(t, `{"content":[],"meta":{"ok":true}}`, string(node))
	})

	t.Run("Should leave an already-unwrapped node untouched", func(t *testing.T) {
		raw := json.RawMessage(`{"content":[{"type":"text","text":"hi"}]}`)
		node, err := unwrapResult(raw)
		require.Nil(t, err)
		assert.JSONEq(t, string(raw), string(node))
	})

	t.Run("Should be idempotent: unwrapping twice yields the same node", func(t *testing.T) {
		raw := json.RawMessage(`{"toolResults":{"content":[{"type":"text","text":"hi"}]}}`)
		once, err := unwrapResult(raw)
		require.Nil(t, err)
		twice, err := unwrapResult(once)
		require.Nil(t, err)
		assert.JSONEq(t, string(once), string(twice))
	})

	t.Run("Should turn an isError node into an InternalError using its first text entry", func(t *testing.T) {
		raw := json.RawMessage(`{"isError":true,"content":[{"type":"text","text":"division by zero"}]}`)
		node, err := unwrapResult(raw)
		require.Nil(t, node)
		require.NotNil(t, err)
		assert.Equal(t, "division by zero", err.Message)
	})

	t.Run("Should stop once descent reaches a non-object leaf", func(t *testing.T) {
		raw := json.RawMessage(`{"wrapper":"just a string"}`)
		node, err := unwrapResult(raw)
		require.Nil(t, err)
		assert.JSONEq(t, `"just a string"`, string(node))
	})
}
