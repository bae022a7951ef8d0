// ABOUTME: RPC request/response envelope types for editor integrations
// ABOUTME: JSON-serializable types exchanged one per line over stdin/stdout

package rpc

import "encoding/json"

// Request represents an RPC request from an editor.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response represents an RPC response to an editor.
type Response struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  *Error `json:"error,omitempty"`
}

// Error represents an RPC error.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Methods
const (
	MethodInitialize         = "initialize"
	MethodCodeActions        = "code_actions"
	MethodInline             = "inline"
	MethodIntroduceParameter = "introduce_parameter"
	MethodLocalToField       = "local_to_field"
	MethodPreview            = "preview"
	MethodApply              = "apply"
	MethodRestart            = "restart"
	MethodStatus             = "status"
	MethodShutdown           = "shutdown"
)
