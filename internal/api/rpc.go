package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// JSON-RPC 2.0 error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  []string    `json:"params,omitempty"`
	ID      interface{} `json:"id"`
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
	ID      interface{} `json:"id"`
}

// RPCError is the error member of a Response
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// handleRPC serves POST /rpc
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, CodeParseError, "Parse error", nil)
		return
	}

	if req.JSONRPC != "2.0" || req.Method == "" {
		s.writeErrorResponse(w, CodeInvalidRequest, "Invalid Request", req.ID)
		return
	}

	response := s.processRequest(r.Context(), &req)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Warn().Err(err).Msg("failed to encode rpc response")
	}
}

// handleNotPost answers any other verb on /rpc
func (s *Server) handleNotPost(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	s.writeErrorResponse(w, CodeInvalidRequest, "Invalid Request", nil)
}

func (s *Server) processRequest(ctx context.Context, req *Request) *Response {
	handler, ok := s.registry.Get(req.Method)
	if !ok {
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: CodeMethodNotFound, Message: "Method not found"},
			ID:      req.ID,
		}
	}

	result, err := handler.Handle(ctx, req.Params)
	if err != nil {
		var paramsErr *ParamsError
		if errors.As(err, &paramsErr) {
			return &Response{
				JSONRPC: "2.0",
				Error:   &RPCError{Code: CodeInvalidParams, Message: paramsErr.Message},
				ID:      req.ID,
			}
		}
		s.logger.Error().Err(err).Str("method", req.Method).Msg("rpc handler failed")
		return &Response{
			JSONRPC: "2.0",
			Error:   &RPCError{Code: CodeInternalError, Message: "Internal error"},
			ID:      req.ID,
		}
	}

	return &Response{
		JSONRPC: "2.0",
		Result:  result,
		ID:      req.ID,
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, code int, message string, id interface{}) {
	response := &Response{
		JSONRPC: "2.0",
		Error:   &RPCError{Code: code, Message: message},
		ID:      id,
	}

	w.WriteHeader(http.StatusBadRequest)
	json.NewEncoder(w).Encode(response)
}

// registerRaceMethods installs race.status and race.command
func (s *Server) registerRaceMethods() {
	s.registry.Register(NewHandlerFunc("race.status", "Current race snapshot",
		func(ctx context.Context, params []string) (interface{}, error) {
			return s.source.Snapshot(), nil
		}))

	s.registry.Register(NewHandlerFunc("race.command", "Submit one control line, e.g. \"go\" or \"lap 1\"",
		func(ctx context.Context, params []string) (interface{}, error) {
			if len(params) != 1 || strings.TrimSpace(params[0]) == "" {
				return nil, &ParamsError{Message: "expected exactly one command line"}
			}
			if err := s.submitter.Submit(params[0]); err != nil {
				return nil, &ParamsError{Message: err.Error()}
			}
			return "ok", nil
		}))
}
