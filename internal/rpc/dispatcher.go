// Package rpc implements the JSON-RPC 2.0 dispatcher that exposes the
// sandboxed file operations as tools. Dispatch is transport-agnostic:
// the HTTP handler and the stdio loop both hand it a raw request body
// plus the caller's credentials and forward the marshalled response.
//
// Every tools/call passes through the same pipeline: authenticate the
// credential, check the tool's scope, resolve and confine path
// arguments, apply the content policy, then run the operation. Error
// texts never contain absolute filesystem paths; unexpected failures
// are logged server-side and surfaced as a generic message.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pkt.systems/filed/api"
	"pkt.systems/filed/internal/correlation"
	"pkt.systems/filed/internal/fileops"
	"pkt.systems/filed/internal/pathguard"
	"pkt.systems/filed/internal/policy"
	"pkt.systems/filed/internal/scopes"
	"pkt.systems/pslog"
)

const (
	methodInitialize = "initialize"
	methodToolsList  = "tools/list"
	methodToolsCall  = "tools/call"
)

// failureMessage is the only text clients see for unexpected errors.
const failureMessage = "File operation failed"

// Caller carries the transport-level credential for one request.
type Caller struct {
	// Token is the API key the client presented, empty when none.
	Token string
	// Trusted bypasses the key check for local transports such as stdio.
	Trusted bool
}

// NewDispatcherRequest wraps constructor inputs.
type NewDispatcherRequest struct {
	// Guard confines every path argument to the base directory.
	Guard *pathguard.Resolver
	// Policy holds the write-side extension and size rules.
	Policy policy.Policy
	// Auth validates credentials and enforces per-tool scopes.
	Auth *scopes.Authorizer
	// Info is reported in the initialize handshake.
	Info api.ServerInfo
	// Logger receives per-request events. Nil means no logging.
	Logger pslog.Logger
}

// Dispatcher routes JSON-RPC requests to the tool handlers. It is
// stateless across requests and safe for concurrent use.
type Dispatcher struct {
	ops     *fileops.Ops
	guard   *pathguard.Resolver
	policy  policy.Policy
	auth    *scopes.Authorizer
	info    api.ServerInfo
	logger  pslog.Logger
	metrics *dispatcherMetrics
	tools   map[string]toolDefinition
}

// NewDispatcher constructs a dispatcher over the given sandbox.
func NewDispatcher(req NewDispatcherRequest) (*Dispatcher, error) {
	if req.Guard == nil {
		return nil, errors.New("rpc: guard is required")
	}
	if req.Auth == nil {
		return nil, errors.New("rpc: authorizer is required")
	}
	logger := req.Logger
	if logger == nil {
		logger = pslog.NoopLogger()
	}
	d := &Dispatcher{
		ops:     fileops.New(req.Guard),
		guard:   req.Guard,
		policy:  req.Policy,
		auth:    req.Auth,
		info:    req.Info,
		logger:  logger,
		metrics: newDispatcherMetrics(logger),
	}
	d.tools = d.buildToolRegistry()
	return d, nil
}

// toolCall is the per-invocation state threaded through the pipeline.
type toolCall struct {
	name     string
	identity scopes.Identity
	args     map[string]any
	paths    map[string]pathguard.Resolved
}

// path returns the resolved location of a path argument. The pipeline
// resolves every declared path argument before the runner executes.
func (c *toolCall) path(key string) pathguard.Resolved {
	return c.paths[key]
}

// Dispatch executes one JSON-RPC request body and returns the
// marshalled response. It never returns an empty slice: malformed JSON
// yields a parse error response with a null id.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte, caller Caller) []byte {
	ctx, cid := correlation.Ensure(ctx)
	start := time.Now()
	var req api.Request
	if err := json.Unmarshal(body, &req); err != nil {
		d.logger.Warn("rpc.request.parse_error", "correlation_id", cid, "error", err)
		resp := errorResponse(nil, api.CodeParseError, "Parse error")
		d.metrics.recordRequest(ctx, "", outcomeOf(resp), time.Since(start))
		return marshalResponse(resp)
	}
	resp := d.handle(ctx, cid, &req, caller)
	d.metrics.recordRequest(ctx, req.Method, outcomeOf(resp), time.Since(start))
	return marshalResponse(resp)
}

func (d *Dispatcher) handle(ctx context.Context, cid string, req *api.Request, caller Caller) (resp api.Response) {
	logger := d.logger.With("correlation_id", cid, "method", req.Method)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("rpc.request.panic", "panic", fmt.Sprintf("%v", r))
			resp = errorResponse(req.ID, api.CodeOperationFailed, failureMessage)
		}
	}()

	identity, err := d.auth.Authenticate(caller.Token, caller.Trusted)
	if err != nil {
		logger.Warn("rpc.auth.invalid_key")
		return errorResponse(req.ID, api.CodeUnauthorized, err.Error())
	}
	logger = logger.With("client", identity.Client)

	switch req.Method {
	case methodInitialize:
		logger.Debug("rpc.initialize", "protocol_version", api.ProtocolVersion)
		return resultResponse(req.ID, api.InitializeResult{
			ProtocolVersion: api.ProtocolVersion,
			Capabilities:    api.Capabilities{Tools: api.ToolsCapability{}},
			ServerInfo:      d.info,
		})
	case methodToolsList:
		return resultResponse(req.ID, d.listTools())
	case methodToolsCall:
		return d.callTool(ctx, req, identity, logger)
	default:
		return errorResponse(req.ID, api.CodeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (d *Dispatcher) listTools() api.ToolsListResult {
	tools := make([]api.ToolDescriptor, 0, len(toolOrder))
	for _, name := range toolOrder {
		def := d.tools[name]
		tools = append(tools, api.ToolDescriptor{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		})
	}
	return api.ToolsListResult{Tools: tools}
}

func (d *Dispatcher) callTool(ctx context.Context, req *api.Request, identity scopes.Identity, logger pslog.Logger) api.Response {
	var params api.ToolsCallParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, api.CodeInvalidParams, "Invalid params")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil || params.Name == "" {
		return errorResponse(req.ID, api.CodeInvalidParams, "Invalid params")
	}
	def, ok := d.tools[params.Name]
	if !ok {
		return errorResponse(req.ID, api.CodeInvalidParams, fmt.Sprintf("Unknown tool: %s", params.Name))
	}
	logger = logger.With("tool", def.Name)

	call := &toolCall{
		name:     def.Name,
		identity: identity,
		args:     params.Arguments,
		paths:    make(map[string]pathguard.Resolved, len(def.pathArgs)),
	}
	text, err := d.runPipeline(ctx, def, call)
	if err != nil {
		code, msg := clientError(err)
		if code == api.CodeOperationFailed && msg == failureMessage {
			logger.Error("rpc.tool.failure", "error", err)
		} else {
			logger.Debug("rpc.tool.rejected", "code", code, "message", msg)
		}
		resp := errorResponse(req.ID, code, msg)
		d.metrics.recordToolCall(ctx, def.Name, outcomeOf(resp))
		return resp
	}
	logger.Debug("rpc.tool.ok")
	d.metrics.recordToolCall(ctx, def.Name, "ok")
	return resultResponse(req.ID, api.ToolResult{
		Content: []api.ContentItem{{Type: "text", Text: text}},
	})
}

// runPipeline applies the tools/call stages in their fixed order. Each
// stage either mutates call or rejects the request.
func (d *Dispatcher) runPipeline(ctx context.Context, def toolDefinition, call *toolCall) (string, error) {
	if err := d.checkArguments(def, call); err != nil {
		return "", err
	}
	if err := d.checkScope(def, call); err != nil {
		return "", err
	}
	if err := d.resolvePaths(def, call); err != nil {
		return "", err
	}
	if err := d.checkPolicy(def, call); err != nil {
		return "", err
	}
	return def.run(ctx, call)
}

// checkArguments fills in per-tool defaults and rejects arguments the
// tool schema does not declare.
func (d *Dispatcher) checkArguments(def toolDefinition, call *toolCall) error {
	if call.args == nil {
		call.args = make(map[string]any, len(def.defaults))
	}
	for key, value := range def.defaults {
		if _, ok := call.args[key]; !ok {
			call.args[key] = value
		}
	}
	return assertNoUnknownArguments(call.args, allowedArguments(def.InputSchema))
}

func (d *Dispatcher) checkScope(def toolDefinition, call *toolCall) error {
	return d.auth.Authorize(call.identity, def.scope)
}

// resolvePaths confines every declared path argument to the base
// directory before any operation code sees it.
func (d *Dispatcher) resolvePaths(def toolDefinition, call *toolCall) error {
	for _, key := range def.pathArgs {
		raw, err := requirePath(call.args, key)
		if err != nil {
			return err
		}
		resolved, err := d.guard.Resolve(raw)
		if err != nil {
			return err
		}
		call.paths[key] = resolved
	}
	return nil
}

// checkPolicy applies the tool's content policy. Creation checks both
// the extension allow-list and the size ceiling; overwrites check size
// only, since the file's extension was vetted when it was created.
func (d *Dispatcher) checkPolicy(def toolDefinition, call *toolCall) error {
	if def.policy == policyNone {
		return nil
	}
	content, err := requireString(call.args, argContent)
	if err != nil {
		return err
	}
	if def.policy == policyCreate {
		if err := d.policy.CheckExtension(call.path(argFilePath).Rel); err != nil {
			return paramErrorf("%s", err.Error())
		}
	}
	if err := d.policy.CheckSize(content); err != nil {
		return paramErrorf("%s", err.Error())
	}
	return nil
}

// clientError maps a pipeline or operation error to the JSON-RPC code
// and message sent to the client. Untyped errors collapse to a generic
// message so OS error strings, which embed absolute paths, never leak.
func clientError(err error) (int, string) {
	var pErr *paramError
	var denied *scopes.DeniedError
	var opErr *fileops.OpError
	switch {
	case errors.As(err, &pErr):
		return api.CodeInvalidParams, pErr.Error()
	case errors.Is(err, scopes.ErrInvalidKey):
		return api.CodeUnauthorized, err.Error()
	case errors.As(err, &denied):
		return api.CodeUnauthorized, denied.Error()
	case errors.Is(err, pathguard.ErrEscape):
		return api.CodeInvalidParams, pathguard.ErrEscape.Error()
	case errors.As(err, &opErr):
		if opErr.Kind == fileops.KindInvalidArgument {
			return api.CodeInvalidParams, opErr.Error()
		}
		return api.CodeOperationFailed, opErr.Error()
	default:
		return api.CodeOperationFailed, failureMessage
	}
}

func resultResponse(id json.RawMessage, result any) api.Response {
	return api.Response{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string) api.Response {
	return api.Response{JSONRPC: "2.0", ID: id, Error: &api.ErrorObject{Code: code, Message: message}}
}

func marshalResponse(resp api.Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		return []byte(`{"jsonrpc":"2.0","id":null,"error":{"code":-32000,"message":"File operation failed"}}`)
	}
	return out
}
