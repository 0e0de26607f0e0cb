package api

import (
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/mcperr"
	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/settings"
)

// errorEnvelope is the JSON shape of every non-2xx response, defined by
// SPEC_FULL.md §6.3.
type errorEnvelope struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
	Data  any    `json:"data,omitempty"`
}

func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, errorEnvelope{Error: message, Code: 0})
}

// writeMcpError renders err as a 500 response carrying its JSON-RPC code
// and data when it is (or wraps) an *mcperr.Error, per S2's contract.
func writeMcpError(c *gin.Context, err error) {
	if e, ok := mcperr.As(err); ok {
		c.JSON(500, errorEnvelope{Error: e.Message, Code: int(e.Code), Data: e.Data})
		return
	}
	c.JSON(500, errorEnvelope{Error: err.Error(), Code: 0})
}

// validateEntry enforces spec.md §3's ServerEntry invariants.
func validateEntry(entry settings.ServerEntry) string {
	if entry.Name == "" {
		return "name is required"
	}
	switch entry.Type {
	case settings.TypeStdio:
		if entry.Command == "" {
			return "command is required for stdio servers"
		}
	case settings.TypeSSE, settings.TypeStreamableHTTP:
		u, err := url.Parse(entry.URL)
		if err != nil || !u.IsAbs() {
			return "url must be an absolute URL"
		}
	default:
		return "type must be one of stdio, sse, streamableHttp"
	}
	return ""
}
