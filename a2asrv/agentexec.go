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
	"sync/atomic"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
)

// AgentExecutor implementations translate agent outputs to task events and publish them
// on the provided bus. The provided [RequestContext] should be used as a
// [a2a.TaskInfoProvider] argument for event constructor functions, for example:
//
//	bus.Publish(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil))
//	bus.Publish(ctx, a2a.NewArtifactEvent(reqCtx, &a2a.Artifact{Name: "answer", Parts: parts}))
//
// The server stops processing events of an execution after the first status update in
// a terminal or [a2a.TaskStateInputRequired] state. If Execute returns without publishing
// one, the task is completed once no more events arrive. A returned error moves the task
// to [a2a.TaskStateFailed].
type AgentExecutor interface {
	// Execute invokes the agent passing information about the request which triggered
	// the execution. Every invocation runs in a dedicated goroutine. The context is
	// canceled when the server stops processing events of the execution.
	Execute(ctx context.Context, reqCtx *RequestContext, bus eventbus.Bus) error
}

// AgentExecutorFunc is a function adapter for [AgentExecutor].
type AgentExecutorFunc func(ctx context.Context, reqCtx *RequestContext, bus eventbus.Bus) error

// Execute implements [AgentExecutor].
func (fn AgentExecutorFunc) Execute(ctx context.Context, reqCtx *RequestContext, bus eventbus.Bus) error {
	return fn(ctx, reqCtx, bus)
}

// TaskHandler is a generator style agent. It yields events instead of publishing them.
type TaskHandler func(ctx context.Context, reqCtx *RequestContext) iter.Seq2[a2a.Event, error]

// NewTaskHandlerExecutor creates an [AgentExecutor] which publishes every event yielded
// by the handler. The first yielded error is returned as the execution result. The
// iteration stops early when the task gets canceled.
func NewTaskHandlerExecutor(handler TaskHandler) AgentExecutor {
	return AgentExecutorFunc(func(ctx context.Context, reqCtx *RequestContext, bus eventbus.Bus) error {
		for event, err := range handler(ctx, reqCtx) {
			if err != nil {
				return err
			}
			if err := bus.Publish(ctx, event); err != nil {
				return err
			}
			if reqCtx.IsCanceled() {
				return nil
			}
		}
		return nil
	})
}

// RequestContext provides information about an incoming request to [AgentExecutor].
type RequestContext struct {
	// Task is a snapshot of the task taken after the user message was applied.
	Task *a2a.Task
	// UserMessage is the message which triggered the execution.
	UserMessage *a2a.Message
	// History contains all messages of the task including UserMessage.
	History []*a2a.Message
	// TaskID is the ID of the executed task.
	TaskID a2a.TaskID
	// ContextID is the ID of the context the task belongs to.
	ContextID string

	canceled   atomic.Bool
	isCanceled func() bool
}

var _ a2a.TaskInfoProvider = (*RequestContext)(nil)

// TaskInfo returns information used for associating events with a task.
func (rc *RequestContext) TaskInfo() a2a.TaskInfo {
	return a2a.TaskInfo{TaskID: rc.TaskID, ContextID: rc.ContextID}
}

// IsCanceled reports whether cancelation of the task was requested.
func (rc *RequestContext) IsCanceled() bool {
	if rc.canceled.Load() {
		return true
	}
	return rc.isCanceled != nil && rc.isCanceled()
}
