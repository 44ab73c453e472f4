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
	"iter"
	"log/slog"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/jsonrpc"
	"github.com/a2aproject/a2a-relay/log"
)

const tracerName = "github.com/a2aproject/a2a-relay/a2asrv"

// InterceptedHandler implements [RequestHandler]. It initializes the call context for every
// method of the wrapped handler: a request scoped logger and a tracing span.
type InterceptedHandler struct {
	// Handler is responsible for the actual processing of every call.
	Handler RequestHandler
	// Logger is the logger which will be accessible from request scope context using log package
	// methods. Defaults to slog.Default() if not set.
	Logger *slog.Logger
	// Tracer is used for starting a span for every call. Defaults to a tracer of the global provider.
	Tracer trace.Tracer
}

var _ RequestHandler = (*InterceptedHandler)(nil)

// OnSendTask implements RequestHandler.
func (h *InterceptedHandler) OnSendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	ctx, span := h.startCall(ctx, jsonrpc.MethodTasksSend, sendParamsAttrs(params)...)
	task, err := h.Handler.OnSendTask(ctx, params)
	endCall(span, err)
	return task, err
}

// OnSendTaskSubscribe implements RequestHandler.
func (h *InterceptedHandler) OnSendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		ctx, span := h.startCall(ctx, jsonrpc.MethodTasksSendSubscribe, sendParamsAttrs(params)...)
		var streamErr error
		defer func() { endCall(span, streamErr) }()

		for event, err := range h.Handler.OnSendTaskSubscribe(ctx, params) {
			if err != nil {
				streamErr = err
			} else {
				span.AddEvent(event.Kind())
			}
			if !yield(event, err) {
				return
			}
		}
	}
}

// OnGetTask implements RequestHandler.
func (h *InterceptedHandler) OnGetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	var taskID a2a.TaskID
	if params != nil {
		taskID = params.ID
	}
	ctx, span := h.startCall(ctx, jsonrpc.MethodTasksGet, slog.String("task_id", string(taskID)))
	task, err := h.Handler.OnGetTask(ctx, params)
	endCall(span, err)
	return task, err
}

// OnCancelTask implements RequestHandler.
func (h *InterceptedHandler) OnCancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	var taskID a2a.TaskID
	if params != nil {
		taskID = params.ID
	}
	ctx, span := h.startCall(ctx, jsonrpc.MethodTasksCancel, slog.String("task_id", string(taskID)))
	task, err := h.Handler.OnCancelTask(ctx, params)
	endCall(span, err)
	return task, err
}

func sendParamsAttrs(params *a2a.TaskSendParams) []slog.Attr {
	if params == nil {
		return nil
	}
	attrs := []slog.Attr{slog.String("task_id", string(params.ID))}
	if params.Message != nil {
		attrs = append(attrs, slog.String("message_id", params.Message.ID))
	}
	return attrs
}

// startCall attaches a request scoped logger to the context and starts a span named
// after the method. The call attributes are recorded on both.
func (h *InterceptedHandler) startCall(ctx context.Context, method string, attrs ...slog.Attr) (context.Context, trace.Span) {
	requestID := uuid.NewString()
	ctx = h.withLoggerContext(ctx, append(attrs, slog.String("method", method), slog.String("request_id", requestID))...)

	tracer := h.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	spanAttrs := []attribute.KeyValue{attribute.String("rpc.method", method), attribute.String("a2a.request_id", requestID)}
	for _, attr := range attrs {
		spanAttrs = append(spanAttrs, attribute.String("a2a."+attr.Key, attr.Value.String()))
	}
	return tracer.Start(ctx, method, trace.WithSpanKind(trace.SpanKindServer), trace.WithAttributes(spanAttrs...))
}

func endCall(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// withLoggerContext attaches an slog.Logger with a2a-specific attributes to the provided context.
func (h *InterceptedHandler) withLoggerContext(ctx context.Context, attrs ...slog.Attr) context.Context {
	logger := h.Logger
	if logger == nil {
		logger = log.LoggerFrom(ctx)
	}
	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}
	return log.AttachLogger(ctx, logger.WithGroup("a2a").With(args...))
}
