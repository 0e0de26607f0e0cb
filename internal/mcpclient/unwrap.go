package mcpclient

import (
	"encoding/json"

	"github.com/kumorikarasu/SillyTavern-MCP-Server/internal/mcperr"
)

// unwrapResult implements spec.md §4.3's result-unwrapping heuristic:
// descend through single-key wrapper objects until a "content" field is
// found or no further descent is possible, then check for an isError
// node. It is idempotent by construction: the node it returns is either
// not an object, does not have exactly one key, or already carries "content", so
// a second pass is a no-op (invariant 6).
func unwrapResult(raw json.RawMessage) (json.RawMessage, *mcperr.Error) {
	node := raw
	for {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(node, &obj); err != nil {
			break
		}
		if _, hasContent := obj["content"]; hasContent {
			break
		}
		if len(obj) != 1 {
			break
		}
		for _, v := range obj {
			node = v
		}
	}

	var probe struct {
		IsError bool `json:"isError"`
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(node, &probe); err == nil && probe.IsError {
		message := "tool call reported an error"
		for _, entry := range probe.Content {
			if entry.Text != "" {
				message = entry.Text
				break
			}
		}
		var data any
		_ = json.Unmarshal(node, &data)
		return nil, mcperr.New(mcperr.InternalError, message, data)
	}

	return node, nil
}
