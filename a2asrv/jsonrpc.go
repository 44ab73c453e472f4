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
package a2asrv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/jsonrpc"
	"github.com/a2aproject/a2a-relay/internal/sse"
	"github.com/a2aproject/a2a-relay/log"
)

const maxRequestBodySize = 10 * 1024 * 1024

// JSONRPCHandler serves the task protocol over JSON-RPC. Streaming methods are answered
// with an SSE stream of JSON-RPC responses.
type JSONRPCHandler struct {
	handler           RequestHandler
	keepAliveInterval time.Duration
}

var _ http.Handler = (*JSONRPCHandler)(nil)

// JSONRPCHandlerOption is a functional option for configuring the JSONRPC handler.
type JSONRPCHandlerOption func(*JSONRPCHandler)

// WithKeepAlive enables SSE keep-alive messages at the specified interval.
// Keep-alive messages prevent API gateways from dropping idle connections.
// If interval is 0 or negative, keep-alive is disabled (default behavior).
func WithKeepAlive(interval time.Duration) JSONRPCHandlerOption {
	return func(h *JSONRPCHandler) {
		h.keepAliveInterval = interval
	}
}

// NewJSONRPCHandler creates a [JSONRPCHandler] dispatching requests to the provided handler.
func NewJSONRPCHandler(handler RequestHandler, options ...JSONRPCHandlerOption) *JSONRPCHandler {
	h := &JSONRPCHandler{handler: handler}
	for _, option := range options {
		option(h)
	}
	return h
}

// Handle processes a raw request body. Exactly one of the results is non-nil: a single
// response, or a stream of responses for streaming methods. Every failure is reported as
// a JSON-RPC error response.
func (h *JSONRPCHandler) Handle(ctx context.Context, body []byte) (*jsonrpc.ServerResponse, iter.Seq[*jsonrpc.ServerResponse]) {
	req, err := jsonrpc.ParseServerRequest(body)
	if err != nil {
		return errorResponse(nil, err, ""), nil
	}

	switch req.Method {
	case jsonrpc.MethodTasksSend:
		params, err := decodeParams[a2a.TaskSendParams](req.Params)
		if err != nil {
			return errorResponse(req.ID, err, ""), nil
		}
		return h.call(ctx, req.ID, params.ID, func() (any, error) { return h.handler.OnSendTask(ctx, params) }), nil

	case jsonrpc.MethodTasksSendSubscribe:
		params, err := decodeParams[a2a.TaskSendParams](req.Params)
		if err != nil {
			return errorResponse(req.ID, err, ""), nil
		}
		if err := params.Validate(); err != nil {
			return errorResponse(req.ID, err, params.ID), nil
		}
		return nil, h.stream(ctx, req.ID, params)

	case jsonrpc.MethodTasksGet:
		params, err := decodeParams[a2a.TaskQueryParams](req.Params)
		if err != nil {
			return errorResponse(req.ID, err, ""), nil
		}
		return h.call(ctx, req.ID, params.ID, func() (any, error) { return h.handler.OnGetTask(ctx, params) }), nil

	case jsonrpc.MethodTasksCancel:
		params, err := decodeParams[a2a.TaskIDParams](req.Params)
		if err != nil {
			return errorResponse(req.ID, err, ""), nil
		}
		return h.call(ctx, req.ID, params.ID, func() (any, error) { return h.handler.OnCancelTask(ctx, params) }), nil

	default:
		return errorResponse(req.ID, fmt.Errorf("%w: %s", a2a.ErrMethodNotFound, req.Method), ""), nil
	}
}

func (h *JSONRPCHandler) call(ctx context.Context, id any, taskID a2a.TaskID, fn func() (any, error)) (resp *jsonrpc.ServerResponse) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("%w: handler panic: %v", a2a.ErrInternalError, r)
			log.Error(ctx, "request handler panicked", err, "stack", string(debug.Stack()))
			resp = errorResponse(id, err, taskID)
		}
	}()

	result, err := fn()
	if err != nil {
		return errorResponse(id, err, taskID)
	}
	return jsonrpc.NewResultResponse(id, result)
}

func (h *JSONRPCHandler) stream(ctx context.Context, id any, params *a2a.TaskSendParams) iter.Seq[*jsonrpc.ServerResponse] {
	return func(yield func(*jsonrpc.ServerResponse) bool) {
		stopped := false
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("%w: handler panic: %v", a2a.ErrInternalError, r)
				log.Error(ctx, "streaming request handler panicked", err, "stack", string(debug.Stack()))
				if !stopped {
					yield(errorResponse(id, err, params.ID))
				}
			}
		}()

		for event, err := range h.handler.OnSendTaskSubscribe(ctx, params) {
			var resp *jsonrpc.ServerResponse
			if err != nil {
				resp = errorResponse(id, err, params.ID)
			} else {
				resp = jsonrpc.NewResultResponse(id, event)
			}
			if !yield(resp) {
				stopped = true
				return
			}
			if err != nil {
				return
			}
		}
	}
}

func decodeParams[T any](raw json.RawMessage) (*T, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: params are required", a2a.ErrInvalidParams)
	}
	var params T
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("%w: %w", a2a.ErrInvalidParams, err)
	}
	return &params, nil
}

func errorResponse(id any, err error, taskID a2a.TaskID) *jsonrpc.ServerResponse {
	jsonrpcErr := jsonrpc.ToJSONRPCError(err)
	if taskID != "" {
		jsonrpcErr = jsonrpcErr.WithTaskID(taskID)
	}
	return jsonrpc.NewErrorResponse(id, jsonrpcErr)
}

// ServeHTTP implements [http.Handler].
func (h *JSONRPCHandler) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	ctx := req.Context()
	if req.Method != http.MethodPost {
		rw.Header().Set("Allow", http.MethodPost)
		writeJSON(ctx, rw, http.StatusMethodNotAllowed, errorResponse(nil, a2a.ErrInvalidRequest, ""))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(rw, req.Body, maxRequestBodySize))
	if err != nil {
		writeJSON(ctx, rw, http.StatusOK, errorResponse(nil, fmt.Errorf("%w: %w", a2a.ErrParseError, err), ""))
		return
	}

	resp, stream := h.Handle(ctx, body)
	if resp != nil {
		writeJSON(ctx, rw, http.StatusOK, resp)
		return
	}
	h.writeStream(ctx, rw, stream)
}

type sseFrame struct {
	event string
	data  []byte
}

func (h *JSONRPCHandler) writeStream(ctx context.Context, rw http.ResponseWriter, responses iter.Seq[*jsonrpc.ServerResponse]) {
	sseWriter, err := sse.NewWriter(rw)
	if err != nil {
		writeJSON(ctx, rw, http.StatusOK, errorResponse(nil, fmt.Errorf("%w: %w", a2a.ErrInternalError, err), ""))
		return
	}
	sseWriter.WriteHeaders()

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	frames := make(chan sseFrame)
	go func() {
		defer close(frames)
		for resp := range responses {
			frame := sseFrame{}
			if resp.Error != nil {
				frame.event = sse.EventError
			}
			data, err := json.Marshal(resp)
			if err != nil {
				log.Error(streamCtx, "failed to encode stream response", err)
				frame.event = sse.EventError
				data, _ = json.Marshal(errorResponse(resp.ID, fmt.Errorf("%w: %w", a2a.ErrInternalError, err), ""))
			}
			frame.data = data
			select {
			case frames <- frame:
			case <-streamCtx.Done():
				return
			}
		}
	}()

	var keepAlive <-chan time.Time
	if h.keepAliveInterval > 0 {
		ticker := time.NewTicker(h.keepAliveInterval)
		defer ticker.Stop()
		keepAlive = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-keepAlive:
			if err := sseWriter.WriteKeepAlive(ctx); err != nil {
				log.Error(ctx, "failed to write keep-alive", err)
				return
			}
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := sseWriter.WriteEvent(ctx, frame.event, frame.data); err != nil {
				log.Error(ctx, "failed to write an event", err)
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, rw http.ResponseWriter, status int, resp *jsonrpc.ServerResponse) {
	rw.Header().Set("Content-Type", jsonrpc.ContentJSON)
	rw.WriteHeader(status)
	if err := json.NewEncoder(rw).Encode(resp); err != nil {
		log.Error(ctx, "failed to encode response", err)
	}
}
