package rpcjson

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/IC-FOODS/pafh-ontology/internal/application"
	"github.com/IC-FOODS/pafh-ontology/internal/domain"
)

// Server is the local ops surface: JSON-RPC 2.0 over a unix socket, mirroring
// the HTTP API for tooling on the same host.
type Server struct {
	service  *application.GatewayService
	listener net.Listener
	path     string
}

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      any             `json:"id"`
}

type response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
	ID      any       `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func Start(path string, service *application.GatewayService) (*Server, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rpc socket path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	_ = os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		_ = os.Remove(path)
		return nil, err
	}

	s := &Server{service: service, listener: ln, path: path}
	go s.serve()
	return s, nil
}

func (s *Server) serve() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		go s.handleConn(conn)
	}
}

func (s *Server) Close() error {
	err := s.listener.Close()
	_ = os.Remove(s.path)
	return err
}

func (s *Server) handleConn(conn net.Conn) {
	defer func() { _ = conn.Close() }()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)

	for {
		var req request
		if err := dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			_ = enc.Encode(response{JSONRPC: "2.0", Error: &rpcError{Code: -32700, Message: "parse error"}, ID: nil})
			return
		}

		resp := s.dispatch(context.Background(), req)
		if err := enc.Encode(resp); err != nil {
			return
		}
	}
}

// identityFromParams resolves the optional token param. A missing or empty
// token yields an anonymous caller, matching the HTTP surface.
func (s *Server) identityFromParams(ctx context.Context, raw json.RawMessage) (*domain.Identity, *rpcError) {
	var p struct {
		Token string `json:"token"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	if strings.TrimSpace(p.Token) == "" {
		return nil, nil
	}
	identity, err := s.service.Validate(ctx, p.Token)
	if err != nil {
		return nil, &rpcError{Code: 40100, Message: "unauthorized"}
	}
	return &identity, nil
}

func (s *Server) dispatch(ctx context.Context, req request) response {
	if req.JSONRPC != "2.0" || strings.TrimSpace(req.Method) == "" {
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32600, Message: "invalid request"}, ID: req.ID}
	}

	switch req.Method {
	case "auth.login":
		var p struct {
			Username  string `json:"username"`
			Password  string `json:"password"`
			TokenName string `json:"token_name"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		u, token, err := s.service.Login(ctx, p.Username, p.Password, p.TokenName, nil)
		if err != nil {
			return response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "invalid credentials"}, ID: req.ID}
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"user_id": u.ID, "username": u.Username, "token": token}, ID: req.ID}

	case "auth.whoami":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		if identity == nil {
			return response{JSONRPC: "2.0", Error: &rpcError{Code: 40100, Message: "unauthorized"}, ID: req.ID}
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"user_id": identity.UserID, "username": identity.Username, "superuser": identity.Superuser}, ID: req.ID}

	case "capabilities":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		snapshot, err := s.service.Capabilities(ctx, identity)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: snapshot, ID: req.ID}

	case "sources.list":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		sources, err := s.service.ListSources(ctx, identity)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"sources": sources}, ID: req.ID}

	case "sources.create_virtual_rdf":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token string                            `json:"token"`
			Input application.VirtualRDFSourceInput `json:"input"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		summary, outcome, err := s.service.CreateVirtualRDFSource(ctx, identity, p.Input)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"source": summary, "runtime": outcome}, ID: req.ID}

	case "sources.configure":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token string                         `json:"token"`
			Name  string                         `json:"name"`
			Input application.SourceConfigUpdate `json:"input"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		summary, outcome, err := s.service.UpdateSourceConfig(ctx, identity, p.Name, p.Input)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"source": summary, "runtime": outcome}, ID: req.ID}

	case "search":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token   string   `json:"token"`
			Query   string   `json:"query"`
			Sources []string `json:"sources"`
			Limit   int      `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		results, err := s.service.Search(ctx, identity, p.Query, p.Sources, p.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"results": results, "total": len(results)}, ID: req.ID}

	case "query.dispatch":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token     string `json:"token"`
			SourceID  uint   `json:"source_id"`
			Query     string `json:"query"`
			QueryType string `json:"query_type"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		result, err := s.service.DispatchQuery(ctx, identity, p.SourceID, p.Query, p.QueryType)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: result, ID: req.ID}

	case "writeback.create":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token string                     `json:"token"`
			Input application.WriteBackInput `json:"input"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		created, err := s.service.CreateWriteBack(ctx, identity, p.Input)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: created, ID: req.ID}

	case "writeback.list":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token string `json:"token"`
			Limit int    `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		requests, err := s.service.ListWriteBacks(ctx, identity, p.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"requests": requests, "total": len(requests)}, ID: req.ID}

	case "writeback.get":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token string `json:"token"`
			ID    uint   `json:"id"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		result, err := s.service.GetWriteBack(ctx, identity, p.ID)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: result, ID: req.ID}

	case "writeback.review":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token  string `json:"token"`
			ID     uint   `json:"id"`
			Action string `json:"action"`
			Reason string `json:"reason"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		result, err := s.service.ReviewWriteBack(ctx, identity, p.ID, p.Action, p.Reason)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: result, ID: req.ID}

	case "audit.list":
		identity, rpcErr := s.identityFromParams(ctx, req.Params)
		if rpcErr != nil {
			return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
		}
		var p struct {
			Token string `json:"token"`
			Limit int    `json:"limit"`
		}
		if !decodeParams(req.Params, &p) {
			return invalidParams(req.ID)
		}
		logs, err := s.service.ListAuditLogs(ctx, identity, p.Limit)
		if err != nil {
			return appError(req.ID, err)
		}
		return response{JSONRPC: "2.0", Result: map[string]any{"logs": logs}, ID: req.ID}

	default:
		return response{JSONRPC: "2.0", Error: &rpcError{Code: -32601, Message: "method not found"}, ID: req.ID}
	}
}

func decodeParams(raw json.RawMessage, out any) bool {
	if len(raw) == 0 {
		return false
	}
	return json.Unmarshal(raw, out) == nil
}

func invalidParams(id any) response {
	return response{JSONRPC: "2.0", Error: &rpcError{Code: -32602, Message: "invalid params"}, ID: id}
}

// appError maps the domain error taxonomy to JSON-RPC codes in the 4xx/5xx
// convention used by the CLI client.
func appError(id any, err error) response {
	code := 50000
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		code = 40000
	case domain.KindUnauthenticated:
		code = 40100
	case domain.KindForbidden:
		code = 40300
	case domain.KindNotFound:
		code = 40400
	case domain.KindConflict:
		code = 40900
	case domain.KindBackendUnavailable:
		code = 50200
	}
	return response{JSONRPC: "2.0", Error: &rpcError{Code: code, Message: err.Error()}, ID: id}
}
