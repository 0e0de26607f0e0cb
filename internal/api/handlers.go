// Package api implements the control-plane REST surface, spec.md §6.3.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/logging"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/registry"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/toolcache"
)

// Handlers wires the registry, settings store, and tool cache coordinator
// into one route-method-per-endpoint struct, grounded on the teacher's
// AdminHandlers/MCPService split.
type Handlers struct {
	registry  *registry.Registry
	store     *settings.Store
	toolcache *toolcache.Coordinator
	log       logging.Logger
}

func NewHandlers(reg *registry.Registry, store *settings.Store, cache *toolcache.Coordinator) *Handlers {
	return &Handlers{
		registry:  reg,
		store:     store,
		toolcache: cache,
		log:       logging.GetDefault().With("component", "api.handlers"),
	}
}

// ListServers handles GET /servers.
func (h *Handlers) ListServers(c *gin.Context) {
	ctx := c.Request.Context()
	current, err := h.store.Load(ctx)
	if err != nil {
		writeError(c, 500, err.Error())
		return
	}

	running := make(map[string]registry.Status)
	for _, st := range h.registry.Snapshot(ctx) {
		running[st.Name] = st
	}

	out := make([]serverDTO, 0, len(current.MCPServers))
	for name, entry := range current.MCPServers {
		st, isRunning := running[name]
		dto := serverDTO{
			Name:          name,
			IsRunning:     isRunning && st.Running,
			Config:        serverConfigDTO{Command: entry.Command, Args: entry.Args},
			Enabled:       !current.IsServerDisabled(name),
			DisabledTools: current.DisabledTools[name],
			CachedTools:   current.CachedTools[name],
		}
		if isRunning {
			dto.Capabilities = st.Capabilities
		}
		out = append(out, dto)
	}
	c.JSON(http.StatusOK, out)
}

// CreateServer handles POST /servers.
func (h *Handlers) CreateServer(c *gin.Context) {
	var req createServerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "invalid request body")
		return
	}
	entry := entryFromInput(req.Name, req.Config)
	if msg := validateEntry(entry); msg != "" {
		writeError(c, 400, msg)
		return
	}

	ctx := c.Request.Context()
	err := h.store.Mutate(ctx, func(s *settings.Settings) error {
		if _, exists := s.MCPServers[entry.Name]; exists {
			return errAlreadyExists
		}
		s.MCPServers[entry.Name] = entry
		return nil
	})
	switch {
	case errors.Is(err, errAlreadyExists):
		writeError(c, 409, "a server with this name already exists")
	case err != nil:
		writeError(c, 500, err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{})
	}
}

var errAlreadyExists = errors.New("api: server already exists")

// DeleteServer handles DELETE /servers/:name. It stops the server (if
// running) before rewriting settings, per DESIGN.md's resolution of
// spec.md §9's delete-while-connected Open Question.
func (h *Handlers) DeleteServer(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	if err := h.registry.Stop(ctx, name); err != nil {
		h.log.Warn("stop before delete failed", "name", name, "err", err)
	}

	if err := h.store.Mutate(ctx, func(s *settings.Settings) error {
		s.DeleteServer(name)
		return nil
	}); err != nil {
		writeError(c, 500, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// SetDisabledServers handles POST /servers/disabled.
func (h *Handlers) SetDisabledServers(c *gin.Context) {
	var req disabledServersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "disabledServers must be an array of strings")
		return
	}
	ctx := c.Request.Context()
	if err := h.store.Mutate(ctx, func(s *settings.Settings) error {
		s.DisabledServers = req.DisabledServers
		return nil
	}); err != nil {
		writeError(c, 500, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// StartServer handles POST /servers/:name/start.
func (h *Handlers) StartServer(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	current, err := h.store.Load(ctx)
	if err != nil {
		writeError(c, 500, err.Error())
		return
	}
	entry, ok := current.MCPServers[name]
	if !ok {
		writeError(c, 404, "unknown server")
		return
	}
	if current.IsServerDisabled(name) {
		writeError(c, 403, "server is disabled")
		return
	}

	if _, err := h.registry.Start(ctx, entry); err != nil {
		if errors.Is(err, registry.ErrAlreadyRunning) {
			c.JSON(http.StatusOK, gin.H{})
			return
		}
		writeError(c, 500, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// StopServer handles POST /servers/:name/stop.
func (h *Handlers) StopServer(c *gin.Context) {
	name := c.Param("name")
	if _, running := h.registry.Get(name); !running {
		writeError(c, 400, "server is not running")
		return
	}
	if err := h.registry.Stop(c.Request.Context(), name); err != nil {
		writeError(c, 500, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ListTools handles GET /servers/:name/list-tools.
func (h *Handlers) ListTools(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	current, err := h.store.Load(ctx)
	if err != nil {
		writeError(c, 500, err.Error())
		return
	}
	if _, ok := current.MCPServers[name]; !ok {
		writeError(c, 404, "unknown server")
		return
	}

	tools, err := h.toolcache.ListWithStatus(ctx, name)
	if err != nil {
		if errors.Is(err, toolcache.ErrUnknownServer) {
			writeError(c, 404, "unknown server")
			return
		}
		writeMcpError(c, err)
		return
	}
	c.JSON(http.StatusOK, tools)
}

// SetDisabledTools handles POST /servers/:name/disabled-tools.
func (h *Handlers) SetDisabledTools(c *gin.Context) {
	name := c.Param("name")
	var req disabledToolsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, 400, "disabledTools must be an array of strings")
		return
	}

	ctx := c.Request.Context()
	current, err := h.store.Load(ctx)
	if err != nil {
		writeError(c, 500, err.Error())
		return
	}
	if _, ok := current.MCPServers[name]; !ok {
		writeError(c, 404, "unknown server")
		return
	}

	if err := h.store.Mutate(ctx, func(s *settings.Settings) error {
		s.DisabledTools[name] = req.DisabledTools
		return nil
	}); err != nil {
		writeError(c, 500, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// ReloadTools handles POST /servers/:name/reload-tools.
func (h *Handlers) ReloadTools(c *gin.Context) {
	name := c.Param("name")
	ctx := c.Request.Context()

	current, err := h.store.Load(ctx)
	if err != nil {
		writeError(c, 500, err.Error())
		return
	}
	if _, ok := current.MCPServers[name]; !ok {
		writeError(c, 404, "unknown server")
		return
	}

	if _, err := h.toolcache.ReloadCache(ctx, name); err != nil {
		if errors.Is(err, toolcache.ErrUnknownServer) {
			writeError(c, 404, "unknown server")
			return
		}
		writeMcpError(c, err)
		return
	}

	tools, err := h.toolcache.ListWithStatus(ctx, name)
	if err != nil {
		writeMcpError(c, err)
		return
	}
	c.JSON(http.StatusOK, tools)
}

// CallTool handles POST /servers/:name/call-tool.
func (h *Handlers) CallTool(c *gin.Context) {
	name := c.Param("name")
	var req callToolRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ToolName == "" {
		writeError(c, 400, "toolName is required")
		return
	}

	client, running := h.registry.Get(name)
	if !running {
		writeError(c, 400, "server is not running")
		return
	}

	ctx := c.Request.Context()
	current, err := h.store.Load(ctx)
	if err != nil {
		writeError(c, 500, err.Error())
		return
	}
	if current.IsToolDisabled(name, req.ToolName) {
		writeError(c, 403, "This tool is disabled")
		return
	}

	var schema []byte
	found := false
	for _, td := range current.CachedTools[name] {
		if td.Name == req.ToolName {
			schema = td.InputSchema
			found = true
			break
		}
	}
	if !found {
		writeError(c, 404, "unknown tool")
		return
	}

	result, err := client.CallTool(ctx, req.ToolName, req.Arguments, schema)
	if err != nil {
		writeMcpError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"result": callToolResultDTO{ToolName: req.ToolName, Status: "executed", Data: result},
	})
}
