package settings

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettings_UnmarshalJSON(t *testing.T) {
	t.Run("Should forward-migrate a document that omits every known key", func(t *testing.T) {
		var s Settings
		require.NoError(t, json.Unmarshal([]byte(`{}`), &s))
		assert.NotNil(t, s.MCPServers)
		assert.NotNil(t, s.DisabledServers)
		assert.NotNil(t, s.DisabledTools)
		assert.NotNil(t, s.CachedTools)
	})

	t.Run("Should preserve unknown top-level keys through a round trip", func(t *testing.T) {
		var s Settings
		require.NoError(t, json.Unmarshal([]byte(`{"someFutureKey":{"nested":true},"mcpServers":{}}`), &s))
		require.Contains(t, s.Extra, "someFutureKey")

		out, err := json.Marshal(s)
		require.NoError(t, err)

		var roundTripped map[string]json.RawMessage
		require.NoError(t, json.Unmarshal(out, &roundTripped))
		assert.JSONEq(t, `{"nested":true}`, string(roundTripped["someFutureKey"]))
	})

	t.Run("Should decode a fully populated document", func(t *testing.T) {
		doc := `{
			"mcpServers": {"weather": {"name":"weather","type":"stdio","command":"weather-mcp"}},
			"disabledServers": ["weather"],
			"disabledTools": {"weather": ["forecast"]},
			"cachedTools": {"weather": [{"name":"forecast"}]}
		}`
		var s Settings
		require.NoError(t, json.Unmarshal([]byte(doc), &s))
		assert.True(t, s.IsServerDisabled("weather"))
		assert.True(t, s.IsToolDisabled("weather", "forecast"))
		assert.False(t, s.IsToolDisabled("weather", "current"))
		assert.Equal(t, "weather-mcp", s.MCPServers["weather"].Command)
	})
}

func TestSettings_DeleteServer(t *testing.T) {
	t.Run("Should drop the server's entry, disabled tools, and cached tools but keep DisabledServers", func(t *testing.T) {
		s := Default()
		s.MCPServers["weather"] = ServerEntry{Name: "weather", Type: TypeStdio, Command: "weather-mcp"}
		s.DisabledServers = []string{"weather"}
		s.DisabledTools["weather"] = []string{"forecast"}
		s.CachedTools["weather"] = []ToolDescriptor{{Name: "forecast"}}

		s.DeleteServer("weather")

		_, exists := s.MCPServers["weather"]
		assert.False(t, exists)
		_, hasDisabledTools := s.DisabledTools["weather"]
		assert.False(t, hasDisabledTools)
		_, hasCached := s.CachedTools["weather"]
		assert.False(t, hasCached)
		assert.Equal(t, []string{"weather"}, s.DisabledServers)
	})
}
