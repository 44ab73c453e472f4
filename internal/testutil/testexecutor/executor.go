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
// Package testexecutor provides agent executors for testing.
package testexecutor

import (
	"context"
	"sync"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
)

// TestAgentExecutor is a configurable [a2asrv.AgentExecutor] which records published events.
type TestAgentExecutor struct {
	ExecuteFn func(context.Context, *a2asrv.RequestContext, eventbus.Bus) error

	mu      sync.Mutex
	emitted []a2a.Event
	started chan a2a.TaskID
}

var _ a2asrv.AgentExecutor = (*TestAgentExecutor)(nil)

// FromFunction creates a [TestAgentExecutor] from a function.
func FromFunction(fn func(context.Context, *a2asrv.RequestContext, eventbus.Bus) error) *TestAgentExecutor {
	return &TestAgentExecutor{ExecuteFn: fn}
}

// FromEventGenerator creates a [TestAgentExecutor] which publishes the generated events in order.
func FromEventGenerator(generator func(reqCtx *a2asrv.RequestContext) []a2a.Event) *TestAgentExecutor {
	exec := &TestAgentExecutor{}
	exec.ExecuteFn = func(ctx context.Context, reqCtx *a2asrv.RequestContext, bus eventbus.Bus) error {
		for _, event := range generator(reqCtx) {
			if err := bus.Publish(ctx, event); err != nil {
				return err
			}
			exec.record(event)
		}
		return nil
	}
	return exec
}

// Blocking creates a [TestAgentExecutor] which reports the task as working and then waits
// until its context is canceled. The ID of every started task is sent to Started.
func Blocking() *TestAgentExecutor {
	exec := &TestAgentExecutor{started: make(chan a2a.TaskID, 16)}
	exec.ExecuteFn = func(ctx context.Context, reqCtx *a2asrv.RequestContext, bus eventbus.Bus) error {
		working := a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)
		if err := bus.Publish(ctx, working); err != nil {
			return err
		}
		exec.record(working)
		exec.started <- reqCtx.TaskID
		<-ctx.Done()
		return ctx.Err()
	}
	return exec
}

// Started returns a channel receiving the IDs of tasks started by a [Blocking] executor.
func (e *TestAgentExecutor) Started() <-chan a2a.TaskID {
	return e.started
}

// Emitted returns the events published so far.
func (e *TestAgentExecutor) Emitted() []a2a.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]a2a.Event(nil), e.emitted...)
}

func (e *TestAgentExecutor) record(event a2a.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emitted = append(e.emitted, event)
}

// Execute implements [a2asrv.AgentExecutor] interface.
func (e *TestAgentExecutor) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, bus eventbus.Bus) error {
	if e.ExecuteFn != nil {
		return e.ExecuteFn(ctx, reqCtx, bus)
	}
	return nil
}
