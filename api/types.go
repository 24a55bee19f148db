package api

import "encoding/json"

// ProtocolVersion is the protocol revision reported by initialize.
const ProtocolVersion = "2024-11-05"

// JSON-RPC error codes. The taxonomy is fixed and stable across versions:
// clients may switch on these values.
const (
	// CodeParseError reports a body that is not valid JSON.
	CodeParseError = -32700
	// CodeMethodNotFound reports an unrecognized method.
	CodeMethodNotFound = -32601
	// CodeInvalidParams reports missing or invalid parameters, including
	// path escapes, policy violations, and bad line ranges or patterns.
	CodeInvalidParams = -32602
	// CodeOperationFailed reports a file operation that failed after
	// validation, such as a missing file or an existing destination.
	CodeOperationFailed = -32000
	// CodeUnauthorized reports a missing or invalid credential, or a
	// credential lacking a required scope.
	CodeUnauthorized = -32001
)

// Request is one JSON-RPC 2.0 request envelope.
type Request struct {
	// JSONRPC is the protocol marker and must be "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID is echoed verbatim in the response; it may be a string, a number, or null.
	ID json.RawMessage `json:"id,omitempty"`
	// Method is one of initialize, tools/list, or tools/call.
	Method string `json:"method"`
	// Params carries the method parameters when the method takes any.
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one JSON-RPC 2.0 response envelope. Exactly one of Result
// and Error is set.
type Response struct {
	// JSONRPC is the protocol marker, always "2.0".
	JSONRPC string `json:"jsonrpc"`
	// ID mirrors the request id; null when the request carried none or the body was unparseable.
	ID json.RawMessage `json:"id"`
	// Result is the method result on success.
	Result any `json:"result,omitempty"`
	// Error describes the failure when the request could not be served.
	Error *ErrorObject `json:"error,omitempty"`
}

// ErrorObject is the structured error carried by a failed response.
type ErrorObject struct {
	// Code is one of the Code* constants.
	Code int `json:"code"`
	// Message is human-readable and references only sandbox-relative paths.
	Message string `json:"message"`
}

// ToolsCallParams are the parameters of a tools/call request.
type ToolsCallParams struct {
	// Name selects the tool to invoke.
	Name string `json:"name"`
	// Arguments holds the tool's named arguments.
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ToolResult wraps a tool's textual output.
type ToolResult struct {
	// Content holds the result items; this server always returns one text item.
	Content []ContentItem `json:"content"`
}

// ContentItem is one element of a tool result.
type ContentItem struct {
	// Type is always "text".
	Type string `json:"type"`
	// Text is the human-readable operation result.
	Text string `json:"text"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	// ProtocolVersion is the protocol revision the server speaks.
	ProtocolVersion string `json:"protocolVersion"`
	// Capabilities advertises the server's feature set.
	Capabilities Capabilities `json:"capabilities"`
	// ServerInfo identifies the server implementation.
	ServerInfo ServerInfo `json:"serverInfo"`
}

// Capabilities advertises supported protocol features.
type Capabilities struct {
	// Tools marks tool support; it carries no options.
	Tools ToolsCapability `json:"tools"`
}

// ToolsCapability carries no options; its presence in Capabilities
// signals tool support.
type ToolsCapability struct{}

// ServerInfo names the server implementation.
type ServerInfo struct {
	// Name is the configured server name.
	Name string `json:"name"`
	// Version is the build version string.
	Version string `json:"version"`
}

// ToolsListResult is the result of the tools/list method.
type ToolsListResult struct {
	// Tools lists every available tool in a stable order.
	Tools []ToolDescriptor `json:"tools"`
}

// ToolDescriptor describes one callable tool.
type ToolDescriptor struct {
	// Name is the tool's call name.
	Name string `json:"name"`
	// Description states what the tool does.
	Description string `json:"description"`
	// InputSchema is a JSON-Schema object describing the tool arguments.
	InputSchema map[string]any `json:"inputSchema"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	// Status is "healthy" whenever the server can respond at all.
	Status string `json:"status"`
	// Server is the configured server name.
	Server string `json:"server"`
}
