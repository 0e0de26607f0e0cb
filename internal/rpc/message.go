// Package rpc implements the JSON-RPC 2.0 wire types and the
// request/response correlator sitting between the MCP Client and its
// transport adapter.
package rpc

import (
	"encoding/json"
	"strconv"
)

const Version = "2.0"

// Meta is the optional envelope carried on every outbound request's
// params, used to convey a progress token when the caller supplies one.
type Meta struct {
	ProgressToken string `json:"progressToken,omitempty"`
}

// WireError mirrors the "error" member of a JSON-RPC response.
type WireError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Message is a JSON-RPC 2.0 request, response, or notification. Exactly
// one of (Method without Result/Error) or (Result or Error without
// Method) is populated on the wire, but all fields are decoded
// permissively since the id shape and member presence vary by direction.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *WireError      `json:"error,omitempty"`
}

// IsNotification reports whether msg carries no id, i.e. no response is
// expected.
func (m Message) IsNotification() bool {
	return len(m.ID) == 0 && m.Method != ""
}

// IsResponse reports whether msg is a response to a previously sent
// request (has an id, carries no method).
func (m Message) IsResponse() bool {
	return len(m.ID) > 0 && m.Method == ""
}

// IDString returns the raw id JSON verbatim as a string key. A string id
// keeps its quotes, so the string "1" and the number 1 are distinct keys.
func (m Message) IDString() string {
	return string(m.ID)
}

// NewRequest builds an outbound request message for the given integer id.
func NewRequest(id uint64, method string, params any, progressToken string) (Message, error) {
	payload, err := mergeParams(params, progressToken)
	if err != nil {
		return Message{}, err
	}
	return Message{
		JSONRPC: Version,
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
		Method:  method,
		Params:  payload,
	}, nil
}

// NewNotification builds a fire-and-forget notification message.
func NewNotification(method string, params any) (Message, error) {
	payload, err := mergeParams(params, "")
	if err != nil {
		return Message{}, err
	}
	return Message{JSONRPC: Version, Method: method, Params: payload}, nil
}

func mergeParams(params any, progressToken string) (json.RawMessage, error) {
	if params == nil && progressToken == "" {
		return nil, nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	if progressToken == "" {
		return raw, nil
	}
	var obj map[string]json.RawMessage
	if len(raw) > 0 && raw[0] == '{' {
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, err
		}
	} else {
		obj = map[string]json.RawMessage{}
	}
	metaRaw, err := json.Marshal(Meta{ProgressToken: progressToken})
	if err != nil {
		return nil, err
	}
	obj["_meta"] = metaRaw
	return json.Marshal(obj)
}
