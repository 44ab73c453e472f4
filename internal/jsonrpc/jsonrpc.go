// Copyright 2025 The A2A Authors
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

// Package jsonrpc provides the JSON-RPC 2.0 envelope used by the task protocol.
package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/a2aproject/a2a-relay/a2a"
)

// JSON-RPC 2.0 protocol constants
const (
	Version = "2.0"

	// HTTP headers
	ContentJSON = "application/json"

	MethodTasksSend          = "tasks/send"
	MethodTasksSendSubscribe = "tasks/sendSubscribe"
	MethodTasksGet           = "tasks/get"
	MethodTasksCancel        = "tasks/cancel"
)

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Error implements the error interface for jsonrpcError.
func (e *Error) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("jsonrpc error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// WithTaskID attaches the ID of the task the failed request was about as data.taskId.
func (e *Error) WithTaskID(taskID a2a.TaskID) *Error {
	if taskID == "" {
		return e
	}
	data := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		data[k] = v
	}
	data["taskId"] = string(taskID)
	return &Error{Code: e.Code, Message: e.Message, Data: data}
}

type codeMapping struct {
	code int
	err  error
}

var codes = []codeMapping{
	{code: -32700, err: a2a.ErrParseError},
	{code: -32600, err: a2a.ErrInvalidRequest},
	{code: -32601, err: a2a.ErrMethodNotFound},
	{code: -32602, err: a2a.ErrInvalidParams},
	{code: -32603, err: a2a.ErrInternalError},
	{code: -32001, err: a2a.ErrTaskNotFound},
}

func codeOf(err error) (int, error, bool) {
	for _, m := range codes {
		if errors.Is(err, m.err) {
			return m.code, m.err, true
		}
	}
	return -32603, a2a.ErrInternalError, false
}

// ToA2AError converts a JSON-RPC error to an [a2a.Error].
func (e *Error) ToA2AError() error {
	err := a2a.ErrInternalError
	for _, m := range codes {
		if m.code == e.Code {
			err = m.err
			break
		}
	}

	msg := e.Message
	if len(msg) == 0 {
		msg = err.Error()
	}

	result := a2a.NewError(err, msg)
	if len(e.Data) > 0 {
		result = result.WithDetails(e.Data)
	}
	return result
}

// ToJSONRPCError converts an error to a JSON-RPC [Error]. Errors which do not wrap
// a known sentinel are reported as internal errors.
func ToJSONRPCError(err error) *Error {
	jsonrpcErr := &Error{}
	if errors.As(err, &jsonrpcErr) {
		return jsonrpcErr
	}

	var a2aErr *a2a.Error
	if errors.As(err, &a2aErr) {
		code, _, _ := codeOf(a2aErr.Err)
		return &Error{
			Code:    code,
			Message: a2aErr.Error(),
			Data:    a2aErr.Details,
		}
	}

	code, sentinel, _ := codeOf(err)
	return &Error{
		Code:    code,
		Message: sentinel.Error(),
		Data:    map[string]any{"error": err.Error()},
	}
}

// IsValidID checks if the given ID is valid for a JSON-RPC request.
func IsValidID(id any) bool {
	if id == nil {
		return true
	}
	switch id.(type) {
	case string, float64:
		return true
	default:
		return false
	}
}

// ServerRequest represents a JSON-RPC 2.0 server request.
type ServerRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id"`
}

// ParseServerRequest decodes and validates a request envelope. The returned error
// wraps [a2a.ErrParseError] for malformed JSON and [a2a.ErrInvalidRequest] for
// well-formed payloads which are not valid requests.
func ParseServerRequest(body []byte) (*ServerRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: request must be a JSON object", a2a.ErrInvalidRequest)
		}
		return nil, fmt.Errorf("%w: %w", a2a.ErrParseError, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: request must be a JSON object", a2a.ErrInvalidRequest)
	}

	var req ServerRequest
	if err := json.Unmarshal(fields["jsonrpc"], &req.JSONRPC); err != nil || req.JSONRPC != Version {
		return nil, fmt.Errorf("%w: jsonrpc must be %q", a2a.ErrInvalidRequest, Version)
	}
	if err := json.Unmarshal(fields["method"], &req.Method); err != nil || req.Method == "" {
		return nil, fmt.Errorf("%w: method must be a non-empty string", a2a.ErrInvalidRequest)
	}
	if raw, ok := fields["id"]; ok {
		if err := json.Unmarshal(raw, &req.ID); err != nil || !IsValidID(req.ID) {
			return nil, fmt.Errorf("%w: id must be a string, a number or null", a2a.ErrInvalidRequest)
		}
	}
	if raw, ok := fields["params"]; ok {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || (trimmed[0] != '{' && trimmed[0] != '[') {
			return nil, fmt.Errorf("%w: params must be an object or an array", a2a.ErrInvalidRequest)
		}
		req.Params = raw
	}
	return &req, nil
}

// ServerResponse represents a JSON-RPC 2.0 server response.
type ServerResponse struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// NewResultResponse creates a success response.
func NewResultResponse(id any, result any) *ServerResponse {
	return &ServerResponse{JSONRPC: Version, ID: id, Result: result}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(id any, err *Error) *ServerResponse {
	return &ServerResponse{JSONRPC: Version, ID: id, Error: err}
}

// ClientRequest represents a JSON-RPC 2.0 client request.
type ClientRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      string `json:"id"`
}

// ClientResponse represents a JSON-RPC 2.0 client response.
type ClientResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}
