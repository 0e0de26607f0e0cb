// Package toolcache implements the Tool Cache Coordinator (spec.md §4.6)
// and its SPEC_FULL.md §4.10 supplement, ListAllTools.
package toolcache

import (
	"context"
	"errors"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/mcpclient"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/registry"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
)

var ErrUnknownServer = errors.New("toolcache: unknown server")

// ToolStatus annotates a cached descriptor with whether it is currently
// callable, per spec.md §4.6's "_enabled" field.
type ToolStatus struct {
	settings.ToolDescriptor
	Enabled bool `json:"_enabled"`
}

// AggregatedTool is one row of ListAllTools, tagging a tool with its
// owning server.
type AggregatedTool struct {
	settings.ToolDescriptor
	Enabled bool   `json:"_enabled"`
	Server  string `json:"server"`
}

// Coordinator sits above the Registry and Store.
type Coordinator struct {
	registry *registry.Registry
	store    *settings.Store
	log      logging.Logger
}

func New(reg *registry.Registry, store *settings.Store) *Coordinator {
	return &Coordinator{
		registry: reg,
		store:    store,
		log:      logging.GetDefault().With("component", "toolcache"),
	}
}

// ReloadCache obtains a Client for name (starting one temporarily if
// needed), lists its tools, and persists the descriptors. A failure in
// list_tools propagates without touching the prior cache.
func (c *Coordinator) ReloadCache(ctx context.Context, name string) ([]settings.ToolDescriptor, error) {
	current, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	entry, ok := current.MCPServers[name]
	if !ok {
		return nil, ErrUnknownServer
	}

	var tools []mcpclient.Tool
	err = c.registry.TemporaryConnect(ctx, entry, func(client *mcpclient.Client) error {
		t, err := client.ListTools(ctx)
		if err != nil {
			return err
		}
		tools = t
		return nil
	})
	if err != nil {
		return nil, err
	}

	descriptors := make([]settings.ToolDescriptor, len(tools))
	for i, t := range tools {
		descriptors[i] = settings.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}

	if err := c.store.Mutate(ctx, func(s *settings.Settings) error {
		s.CachedTools[name] = descriptors
		return nil
	}); err != nil {
		return nil, err
	}
	return descriptors, nil
}

// ListWithStatus returns the cached tools for name, annotated with
// whether each is enabled. If the cache is empty it triggers a single
// implicit reload first.
func (c *Coordinator) ListWithStatus(ctx context.Context, name string) ([]ToolStatus, error) {
	current, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := current.MCPServers[name]; !ok {
		return nil, ErrUnknownServer
	}

	cached := current.CachedTools[name]
	if len(cached) == 0 {
		if _, err := c.ReloadCache(ctx, name); err != nil {
			return nil, err
		}
		current, err = c.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		cached = current.CachedTools[name]
	}

	out := make([]ToolStatus, len(cached))
	for i, td := range cached {
		out[i] = ToolStatus{ToolDescriptor: td, Enabled: !current.IsToolDisabled(name, td.Name)}
	}
	return out, nil
}

// ListAllTools aggregates enabled cached tools across every non-disabled,
// currently-running server. It never starts a server as a side effect.
func (c *Coordinator) ListAllTools(ctx context.Context) ([]AggregatedTool, error) {
	current, err := c.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	var out []AggregatedTool
	for name := range current.MCPServers {
		if current.IsServerDisabled(name) {
			continue
		}
		if _, running := c.registry.Get(name); !running {
			continue
		}
		for _, td := range current.CachedTools[name] {
			if current.IsToolDisabled(name, td.Name) {
				continue
			}
			out = append(out, AggregatedTool{ToolDescriptor: td, Enabled: true, Server: name})
		}
	}
	return out, nil
}
