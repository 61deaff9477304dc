// File: internal/mcp/server.go
package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/swapflow/internal/config"
	"github.com/xkilldash9x/swapflow/internal/service"
)

// maxBatchConcurrency bounds how many calls of one batch run at once.
const maxBatchConcurrency = 4

const serverInstructions = "Automates exchange creation. Run setup_wallet once per wallet, " +
	"then create_session, execute_swap and check_status."

// Server exposes the service facade as MCP tools, resources and prompts. It is
// transport agnostic: Handle takes one JSON-RPC payload and returns the reply.
type Server struct {
	svc     *service.Service
	cfg     config.Interface
	logger  *zap.Logger
	info    ServerInfo
	metrics *Metrics

	tools     []Tool
	toolIndex map[string]toolHandler
}

// Option configures a Server.
type Option func(*Server)

// WithVersion sets the version reported during initialization.
func WithVersion(version string) Option {
	return func(s *Server) { s.info.Version = version }
}

// WithMetrics replaces the server's metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds an MCP server over svc.
func NewServer(svc *service.Service, cfg config.Interface, logger *zap.Logger, opts ...Option) (*Server, error) {
	if svc == nil || cfg == nil || logger == nil {
		return nil, errors.New("cannot initialize MCP server with nil dependencies")
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger.Named("mcp"),
		info:   ServerInfo{Name: "swapflow", Version: "dev"},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	s.registerTools()
	return s, nil
}

// Metrics returns the server's collector.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Handle processes a single request or a batch and returns the encoded reply.
// It returns nil when nothing must be sent back (notifications only).
func (s *Server) Handle(ctx context.Context, payload []byte) []byte {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return nil
	}
	if payload[0] == '[' {
		return s.handleBatch(ctx, payload)
	}
	resp := s.handleRaw(ctx, payload)
	if resp == nil {
		return nil
	}
	return s.encode(resp)
}

func (s *Server) handleBatch(ctx context.Context, payload []byte) []byte {
	var raws []json.RawMessage
	if err := json.Unmarshal(payload, &raws); err != nil {
		return s.encode(newErrorResponse(nil, rpcErrorf(ParseError, "invalid batch: %v", err)))
	}
	if len(raws) == 0 {
		return s.encode(newErrorResponse(nil, rpcErrorf(InvalidRequest, "empty batch")))
	}

	replies := make([]*Response, len(raws))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchConcurrency)
	for i, raw := range raws {
		g.Go(func() error {
			replies[i] = s.handleRaw(gctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*Response, 0, len(replies))
	for _, r := range replies {
		if r != nil {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return s.encode(out)
}

func (s *Server) encode(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
		data, _ = json.Marshal(newErrorResponse(nil, rpcErrorf(InternalError, "failed to encode response")))
	}
	return data
}

// handleRaw decodes and dispatches one request. Panics in a handler become
// internal errors for that request only.
func (s *Server) handleRaw(ctx context.Context, raw []byte) (resp *Response) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		s.metrics.observe("invalid", "parse_error", 0)
		return newErrorResponse(nil, rpcErrorf(ParseError, "failed to parse request: %v", err))
	}
	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		s.metrics.observe("invalid", "invalid_request", 0)
		return newErrorResponse(req.ID, rpcErrorf(InvalidRequest, "invalid JSON-RPC request"))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while handling request", zap.String("method", req.Method), zap.Any("panic", r))
			resp = newErrorResponse(req.ID, rpcErrorf(InternalError, "internal error: %v", r))
		}
		outcome := "ok"
		if resp != nil && resp.Error != nil {
			outcome = "error"
		}
		s.metrics.observe(req.Method, outcome, time.Since(start))
		if req.IsNotification() {
			resp = nil
		}
	}()

	result, rpcErr := s.dispatch(ctx, &req)
	if rpcErr != nil {
		s.logger.Debug("Request failed", zap.String("method", req.Method), zap.Int("code", rpcErr.Code), zap.String("message", rpcErr.Message))
		return newErrorResponse(req.ID, rpcErr)
	}
	return newResponse(req.ID, result)
}

func (s *Server) dispatch(ctx context.Context, req *Request) (any, *RPCError) {
	switch req.Method {
	case "initialize":
		return InitializeResult{
			ProtocolVersion: ProtocolVersion,
			ServerInfo:      s.info,
			Capabilities: map[string]any{
				"tools":     map[string]any{"listChanged": false},
				"resources": map[string]any{"listChanged": false, "subscribe": false},
				"prompts":   map[string]any{"listChanged": false},
			},
			Instructions: serverInstructions,
		}, nil
	case "ping":
		return map[string]any{}, nil
	case "notifications/initialized", "notifications/cancelled":
		return nil, nil
	case "tools/list":
		return map[string]any{"tools": s.tools}, nil
	case "tools/call":
		var p CallToolParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return s.callTool(ctx, p)
	case "resources/list":
		return map[string]any{"resources": resources}, nil
	case "resources/templates/list":
		return map[string]any{"resourceTemplates": resourceTemplates}, nil
	case "resources/read":
		var p ReadResourceParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		contents, err := s.readResource(p.URI)
		if err != nil {
			return nil, err
		}
		return map[string]any{"contents": []ResourceContents{contents}}, nil
	case "prompts/list":
		return map[string]any{"prompts": promptList()}, nil
	case "prompts/get":
		var p GetPromptParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return getPrompt(p.Name)
	default:
		return nil, rpcErrorf(MethodNotFound, "method not found: %s", req.Method)
	}
}

func decodeParams(raw json.RawMessage, v any) *RPCError {
	if len(raw) == 0 {
		return rpcErrorf(InvalidParams, "missing params")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return rpcErrorf(InvalidParams, "invalid params: %v", err)
	}
	return nil
}

func (s *Server) callTool(ctx context.Context, p CallToolParams) (CallToolResult, *RPCError) {
	handler, ok := s.toolIndex[p.Name]
	if !ok {
		return CallToolResult{}, rpcErrorf(InvalidParams, "unknown tool: %s", p.Name)
	}
	s.logger.Info("Tool called", zap.String("tool", p.Name))
	text, err := handler(ctx, p.Arguments)
	if err != nil {
		s.metrics.toolCall(p.Name, "error")
		s.logger.Warn("Tool failed", zap.String("tool", p.Name), zap.Error(err))
		return errorResult(err.Error()), nil
	}
	s.metrics.toolCall(p.Name, "ok")
	return textResult(text), nil
}

func toJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}
