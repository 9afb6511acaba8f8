package models

import "encoding/json"

// Methods understood by the stdio transport
const (
	MethodProcess = "process"
	MethodInfo    = "info"
	MethodHealth  = "health"
)

// RPCRequest is one line on a plugin's stdin. ID is echoed back so a host can
// keep several calls outstanding on the same pipe.
type RPCRequest struct {
	ID      string          `json:"id,omitempty"`
	Method  string          `json:"method"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// RPCResponse is one line on a plugin's stdout. Exactly one of Result and
// Error is set.
type RPCResponse struct {
	ID     string          `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
}

// RPCError carries a fault over the stdio transport
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
