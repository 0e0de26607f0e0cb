// Package settings implements the persistent settings/tool-cache store
// described in spec.md §4.5 and §6.1.
package settings

import (
	"encoding/json"
	"time"
)

// ServerEntry is one configured MCP server, keyed by Name in Settings.
type ServerEntry struct {
	Name    string            `json:"name"`
	Type    string            `json:"type"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`

	// TimeoutSeconds and MaxReconnects are SPEC_FULL additions (see
	// SPEC_FULL.md §3): optional per-server overrides, absent from the
	// distilled wire shape and safe to omit.
	TimeoutSeconds int `json:"timeoutSeconds,omitempty"`
	MaxReconnects  int `json:"maxReconnects,omitempty"`
}

// Timeout returns d if TimeoutSeconds is unset.
func (e ServerEntry) Timeout(d time.Duration) time.Duration {
	if e.TimeoutSeconds <= 0 {
		return d
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

const (
	TypeStdio          = "stdio"
	TypeSSE            = "sse"
	TypeStreamableHTTP = "streamableHttp"
)

// ToolDescriptor is stored verbatim from a tools/list response.
type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// Settings is the full document persisted at mcp_settings.json.
type Settings struct {
	MCPServers      map[string]ServerEntry      `json:"-"`
	DisabledServers []string                    `json:"-"`
	DisabledTools   map[string][]string         `json:"-"`
	CachedTools     map[string][]ToolDescriptor `json:"-"`

	// Extra preserves any top-level keys this store doesn't understand,
	// per spec.md §6.1's "unknown top-level keys are preserved".
	Extra map[string]json.RawMessage `json:"-"`
}

func Default() Settings {
	return Settings{
		MCPServers:      map[string]ServerEntry{},
		DisabledServers: []string{},
		DisabledTools:   map[string][]string{},
		CachedTools:     map[string][]ToolDescriptor{},
		Extra:           map[string]json.RawMessage{},
	}
}

// DeleteServer removes name's entry, disabled-tools, and cached-tools,
// leaving DisabledServers untouched per spec.md invariant 4.
func (s *Settings) DeleteServer(name string) {
	delete(s.MCPServers, name)
	delete(s.DisabledTools, name)
	delete(s.CachedTools, name)
}

// IsServerDisabled reports whether name appears in DisabledServers.
func (s *Settings) IsServerDisabled(name string) bool {
	for _, n := range s.DisabledServers {
		if n == name {
			return true
		}
	}
	return false
}

// IsToolDisabled reports whether toolName is disabled for server.
func (s *Settings) IsToolDisabled(server, toolName string) bool {
	for _, n := range s.DisabledTools[server] {
		if n == toolName {
			return true
		}
	}
	return false
}

func (s Settings) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+4)
	for k, v := range s.Extra {
		out[k] = v
	}
	servers, err := json.Marshal(s.MCPServers)
	if err != nil {
		return nil, err
	}
	disabledServers, err := json.Marshal(s.DisabledServers)
	if err != nil {
		return nil, err
	}
	disabledTools, err := json.Marshal(s.DisabledTools)
	if err != nil {
		return nil, err
	}
	cachedTools, err := json.Marshal(s.CachedTools)
	if err != nil {
		return nil, err
	}
	out["mcpServers"] = servers
	out["disabledServers"] = disabledServers
	out["disabledTools"] = disabledTools
	out["cachedTools"] = cachedTools
	return json.Marshal(out)
}

func (s *Settings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Default()
	if v, ok := raw["mcpServers"]; ok {
		if err := json.Unmarshal(v, &s.MCPServers); err != nil {
			return err
		}
		delete(raw, "mcpServers")
	}
	if v, ok := raw["disabledServers"]; ok {
		if err := json.Unmarshal(v, &s.DisabledServers); err != nil {
			return err
		}
		delete(raw, "disabledServers")
	}
	if v, ok := raw["disabledTools"]; ok {
		if err := json.Unmarshal(v, &s.DisabledTools); err != nil {
			return err
		}
		delete(raw, "disabledTools")
	}
	if v, ok := raw["cachedTools"]; ok {
		if err := json.Unmarshal(v, &s.CachedTools); err != nil {
			return err
		}
		delete(raw, "cachedTools")
	}
	s.Extra = raw
	return nil
}
