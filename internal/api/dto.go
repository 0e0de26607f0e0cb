package api

import (
	"encoding/json"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
)

type serverConfigInput struct {
	Type           string            `json:"type"`
	Command        string            `json:"command,omitempty"`
	Args           []string          `json:"args,omitempty"`
	Env            map[string]string `json:"env,omitempty"`
	URL            string            `json:"url,omitempty"`
	TimeoutSeconds int               `json:"timeoutSeconds,omitempty"`
	MaxReconnects  int               `json:"maxReconnects,omitempty"`
}

type createServerRequest struct {
	Name   string            `json:"name"`
	Config serverConfigInput `json:"config"`
}

type serverConfigDTO struct {
	Command string   `json:"command,omitempty"`
	Args    []string `json:"args,omitempty"`
}

type serverDTO struct {
	Name          string                    `json:"name"`
	IsRunning     bool                      `json:"isRunning"`
	Config        serverConfigDTO           `json:"config"`
	Capabilities  json.RawMessage           `json:"capabilities,omitempty"`
	Enabled       bool                      `json:"enabled"`
	DisabledTools []string                  `json:"disabledTools"`
	CachedTools   []settings.ToolDescriptor `json:"cachedTools"`
}

type disabledServersRequest struct {
	DisabledServers []string `json:"disabledServers"`
}

type disabledToolsRequest struct {
	DisabledTools []string `json:"disabledTools"`
}

type callToolRequest struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments"`
}

type callToolResultDTO struct {
	ToolName string          `json:"toolName"`
	Status   string          `json:"status"`
	Data     json.RawMessage `json:"data"`
}

func entryFromInput(name string, in serverConfigInput) settings.ServerEntry {
	return settings.ServerEntry{
		Name:           name,
		Type:           in.Type,
		Command:        in.Command,
		Args:           in.Args,
		Env:            in.Env,
		URL:            in.URL,
		TimeoutSeconds: in.TimeoutSeconds,
		MaxReconnects:  in.MaxReconnects,
	}
}
