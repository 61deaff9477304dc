// File: internal/mcp/jsonrpc.go
package mcp

import (
	"fmt"

	json "github.com/json-iterator/go"
)

const (
	JSONRPCVersion = "2.0"
	// ProtocolVersion is the MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"
)

// Standard JSON-RPC error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

var nullID = json.RawMessage("null")

// Request is a JSON-RPC 2.0 request or, when the id member is absent, a
// notification. An explicit "id": null is a request and gets a reply.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`

	hasID bool
}

// UnmarshalJSON records whether the id member was present, since a null id
// decodes to an empty RawMessage.
func (r *Request) UnmarshalJSON(data []byte) error {
	type plain Request
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(data, &members); err != nil {
		return err
	}
	_, p.hasID = members["id"]
	if p.hasID && len(p.ID) == 0 {
		p.ID = nullID
	}
	*r = Request(p)
	return nil
}

// IsNotification reports whether the sender expects no response.
func (r *Request) IsNotification() bool { return !r.hasID && len(r.ID) == 0 }

// Response is a JSON-RPC 2.0 response. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

func newResponse(id json.RawMessage, result any) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Result: result}
}

func newErrorResponse(id json.RawMessage, err *RPCError) *Response {
	if len(id) == 0 {
		id = nullID
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: err}
}

func rpcErrorf(code int, format string, args ...any) *RPCError {
	return &RPCError{Code: code, Message: fmt.Sprintf(format, args...)}
}
