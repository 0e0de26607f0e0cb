package toolcache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/registry"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *settings.Store) {
	t.Helper()
	store := settings.NewStore(filepath.Join(t.TempDir(), "mcp_settings.json"))
	reg := registry.New(nil)
	return New(reg, store), store
}

func TestCoordinator_ReloadCache(t *testing.T) {
	t.Run("Should fail with ErrUnknownServer for a name absent from settings", func(t *testing.T) {
		coord, _ := newTestCoordinator(t)
		_, err := coord.ReloadCache(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrUnknownServer))
	})

	t.Run("Should leave the prior cache untouched when the connection attempt fails", func(t *testing.T) {
		coord, store := newTestCoordinator(t)
		require.NoError(t, store.Mutate(context.Background(), func(s *settings.Settings) error {
			s.MCPServers["weather"] = settings.ServerEntry{Name: "weather", Type: "carrier-pigeon"}
			s.CachedTools["weather"] = []settings.ToolDescriptor{{Name: "forecast"}}
			return nil
		}))

		_, err := coord.ReloadCache(context.Background(), "weather")
		require.Error(t, err)

		current, err := store.Load(context.Background())
		require.NoError(t, err)
		require.Len(t, current.CachedTools["weather"], 1)
		assert.Equal(t, "forecast", current.CachedTools["weather"][0].Name)
	})
}

func TestCoordinator_ListWithStatus(t *testing.T) {
	t.Run("Should fail with ErrUnknownServer for a name absent from settings", func(t *testing.T) {
		coord, _ := newTestCoordinator(t)
		_, err := coord.ListWithStatus(context.Background(), "missing")
		assert.True(t, errors.Is(err, ErrUnknownServer))
	})

	t.Run("Should annotate cached tools with their disabled status without reloading", func(t *testing.T) {
		coord, store := newTestCoordinator(t)
		require.NoError(t, store.Mutate(context.Background(), func(s *settings.Settings) error {
			s.MCPServers["weather"] = settings.ServerEntry{Name: "weather", Type: settings.TypeStdio, Command: "weather-mcp"}
			s.CachedTools["weather"] = []settings.ToolDescriptor{{Name: "forecast"}, {Name: "current"}}
			s.DisabledTools["weather"] = []string{"forecast"}
			return nil
		}))

		out, err := coord.ListWithStatus(context.Background(), "weather")
		require.NoError(t, err)
		require.Len(t, out, 2)
		byName := map[string]bool{}
		for _, ts := range out {
			byName[ts.Name] = ts.Enabled
		}
		assert.False(t, byName["forecast"])
		assert.True(t, byName["current"])
	})
}

func TestCoordinator_ListAllTools(t *testing.T) {
	t.Run("Should skip a disabled server even when it has cached tools", func(t *testing.T) {
		coord, store := newTestCoordinator(t)
		require.NoError(t, store.Mutate(context.Background(), func(s *settings.Settings) error {
			s.MCPServers["weather"] = settings.ServerEntry{Name: "weather", Type: settings.TypeStdio, Command: "weather-mcp"}
			s.CachedTools["weather"] = []settings.ToolDescriptor{{Name: "forecast"}}
			s.DisabledServers = []string{"weather"}
			return nil
		}))

		out, err := coord.ListAllTools(context.Background())
		require.NoError(t, err)
		assert.Empty(t, out)
	})

	t.Run("Should skip a server that is not currently running, without starting it", func(t *testing.T) {
		coord, store := newTestCoordinator(t)
		require.NoError(t, store.Mutate(context.Background(), func(s *settings.Settings) error {
			s.MCPServers["weather"] = settings.ServerEntry{Name: "weather", Type: settings.TypeStdio, Command: "weather-mcp"}
			s.CachedTools["weather"] = []settings.ToolDescriptor{{Name: "forecast"}}
			return nil
		}))

		out, err := coord.ListAllTools(context.Background())
		require.NoError(t, err)
		assert.Empty(t, out)
	})
}
