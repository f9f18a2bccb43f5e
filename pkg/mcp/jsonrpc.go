// Copyright 2025 MakeMCP Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package mcp implements the JSON-RPC 2.0 envelope and the MCP result
// shapes served by the bridge endpoint.
package mcp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Protocol constants.
const (
	// ProtocolVersion is the MCP protocol revision this server speaks.
	ProtocolVersion = "2024-11-05"

	// JSONRPCVersion is the JSON-RPC version used by MCP.
	JSONRPCVersion = "2.0"
)

// Standard JSON-RPC 2.0 error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// MCP-specific error codes.
const (
	// CodeAuthFailed covers both authentication failures and tool
	// not-found-or-forbidden results; the two are indistinguishable on the
	// wire so tool names never leak across identities.
	CodeAuthFailed = -32001

	// CodeToolExecutionFailed indicates the upstream call failed.
	CodeToolExecutionFailed = -32003
)

// NullID is the id used in error responses when the request id is absent
// or unusable.
var NullID = json.RawMessage("null")

// Request is an MCP JSON-RPC 2.0 request. ID and Params stay raw so the
// engine can distinguish "absent" from "null" and validate types itself.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// IsNotification reports whether the request carries no id and therefore
// must not produce a response body.
func (r *Request) IsNotification() bool {
	return len(r.ID) == 0 || bytes.Equal(r.ID, NullID)
}

// ResponseID returns the id to echo in a response for this request.
func (r *Request) ResponseID() json.RawMessage {
	if len(r.ID) == 0 {
		return NullID
	}
	return r.ID
}

// Response is an MCP JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ErrorDetail is the conventional data payload of an Error.
type ErrorDetail struct {
	Detail string `json:"detail"`
}

// NewResult builds a success response for the given request.
func NewResult(req *Request, result any) *Response {
	return &Response{JSONRPC: JSONRPCVersion, ID: req.ResponseID(), Result: result}
}

// NewError builds an error response. A nil request yields a null id.
func NewError(req *Request, code int, message, detail string) *Response {
	id := NullID
	if req != nil {
		id = req.ResponseID()
	}
	e := &Error{Code: code, Message: message}
	if detail != "" {
		e.Data = ErrorDetail{Detail: detail}
	}
	return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: e}
}

// ParseRequest decodes and validates a JSON-RPC request envelope. The
// returned error response is ready to serialise; the request is nil only
// for parse errors, otherwise it is returned even when invalid so callers
// can echo its id.
func ParseRequest(body []byte) (*Request, *Response) {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		if json.Valid(body) {
			// Well-formed JSON that is not a request object.
			return nil, NewError(nil, CodeInvalidRequest, "Invalid Request", "Request must be a JSON object")
		}
		return nil, NewError(nil, CodeParseError, "Parse error", "Invalid JSON payload")
	}
	if req.JSONRPC != JSONRPCVersion {
		return &req, NewError(&req, CodeInvalidRequest, "Invalid Request", `jsonrpc must be "2.0"`)
	}
	if req.Method == "" {
		return &req, NewError(&req, CodeInvalidRequest, "Invalid Request", "Missing method")
	}
	if !validID(req.ID) {
		req.ID = nil
		return &req, NewError(&req, CodeInvalidRequest, "Invalid Request", "Invalid request id")
	}
	if len(req.Params) > 0 && !validParams(req.Params) {
		return &req, NewError(&req, CodeInvalidRequest, "Invalid Request", "Invalid params type")
	}
	return &req, nil
}

// validID accepts absent, null, string or number ids.
func validID(id json.RawMessage) bool {
	if len(id) == 0 {
		return true
	}
	switch id[0] {
	case '{', '[', 't', 'f':
		return false
	}
	return json.Valid(id)
}

// validParams accepts object or array params per JSON-RPC 2.0.
func validParams(params json.RawMessage) bool {
	trimmed := bytes.TrimSpace(params)
	if len(trimmed) == 0 {
		return false
	}
	return trimmed[0] == '{' || trimmed[0] == '['
}
