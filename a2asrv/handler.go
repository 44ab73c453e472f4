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
	"cmp"
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"maps"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
	"github.com/a2aproject/a2a-relay/a2asrv/taskstore"
	"github.com/a2aproject/a2a-relay/internal/taskupdate"
	"github.com/a2aproject/a2a-relay/internal/utils"
	"github.com/a2aproject/a2a-relay/log"
)

// RequestHandler defines a transport-agnostic interface for handling incoming task requests.
type RequestHandler interface {
	// OnSendTask handles the 'tasks/send' protocol method. It returns the task after
	// the execution reached a final state.
	OnSendTask(context.Context, *a2a.TaskSendParams) (*a2a.Task, error)

	// OnSendTaskSubscribe handles the 'tasks/sendSubscribe' protocol method. The sequence
	// ends after the first update with the final flag set or after an error.
	OnSendTaskSubscribe(context.Context, *a2a.TaskSendParams) iter.Seq2[a2a.Event, error]

	// OnGetTask handles the 'tasks/get' protocol method.
	OnGetTask(context.Context, *a2a.TaskQueryParams) (*a2a.Task, error)

	// OnCancelTask handles the 'tasks/cancel' protocol method.
	OnCancelTask(context.Context, *a2a.TaskIDParams) (*a2a.Task, error)
}

// TerminalTaskPolicy defines what happens to a message sent to a task in a terminal state.
type TerminalTaskPolicy int

const (
	// RestartTerminalTasks moves the task back to submitted state and executes it again.
	RestartTerminalTasks TerminalTaskPolicy = iota
	// RejectTerminalTasks fails the request with [a2a.ErrInvalidParams].
	RejectTerminalTasks
)

const defaultSettlePeriod = 250 * time.Millisecond

// Implements a2asrv.RequestHandler.
type defaultRequestHandler struct {
	executor       AgentExecutor
	store          taskstore.Store
	buses          *eventbus.Manager
	terminalPolicy TerminalTaskPolicy
	settlePeriod   time.Duration
	metrics        *Metrics

	cancelMarks *taskSet
	executions  *executionSet
}

var _ RequestHandler = (*defaultRequestHandler)(nil)

// RequestHandlerOption can be used to customize the default [RequestHandler] implementation behavior.
type RequestHandlerOption func(*InterceptedHandler, *defaultRequestHandler)

// WithLogger sets a custom logger. Request scoped parameters will be attached to this logger
// on method invocations. Any injected dependency will be able to access the logger using
// [github.com/a2aproject/a2a-relay/log] package-level functions.
// If not provided, defaults to slog.Default().
func WithLogger(logger *slog.Logger) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		ih.Logger = logger
	}
}

// WithTaskStore overrides the task store. If not provided, defaults to an unbounded
// in-memory implementation.
func WithTaskStore(store taskstore.Store) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		h.store = store
	}
}

// WithBusManager overrides the event bus manager. If not provided, defaults to a manager
// creating local buses.
func WithBusManager(manager *eventbus.Manager) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		h.buses = manager
	}
}

// WithTerminalTaskPolicy sets the behavior for messages sent to tasks in a terminal state.
func WithTerminalTaskPolicy(policy TerminalTaskPolicy) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		h.terminalPolicy = policy
	}
}

// WithSettlePeriod sets how long events are still awaited after the executor returned
// without publishing a final status. Buses delivering events asynchronously need a period
// longer than their delivery delay. Non-positive values keep the default.
func WithSettlePeriod(period time.Duration) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		if period > 0 {
			h.settlePeriod = period
		}
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(metrics *Metrics) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		h.metrics = metrics
	}
}

// WithTracerProvider sets the provider of the tracer used for creating a span for every
// method invocation. If not provided, the global provider is used.
func WithTracerProvider(provider trace.TracerProvider) RequestHandlerOption {
	return func(ih *InterceptedHandler, h *defaultRequestHandler) {
		ih.Tracer = provider.Tracer(tracerName)
	}
}

// NewHandler creates a new request handler.
func NewHandler(executor AgentExecutor, options ...RequestHandlerOption) RequestHandler {
	h := &defaultRequestHandler{
		executor:     executor,
		settlePeriod: defaultSettlePeriod,
		cancelMarks:  &taskSet{ids: make(map[a2a.TaskID]struct{})},
		executions:   &executionSet{runs: make(map[a2a.TaskID]*runningExecution)},
	}
	ih := &InterceptedHandler{Handler: h, Logger: slog.Default()}

	for _, option := range options {
		option(ih, h)
	}

	if h.store == nil {
		h.store = taskstore.NewInMemory(&taskstore.InMemoryStoreConfig{})
	}
	if h.buses == nil {
		h.buses = eventbus.NewManager(nil)
	}
	return ih
}

// OnGetTask implements RequestHandler.
func (h *defaultRequestHandler) OnGetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	if params == nil || params.ID == "" {
		return nil, fmt.Errorf("missing TaskID: %w", a2a.ErrInvalidParams)
	}
	if params.HistoryLength != nil && *params.HistoryLength < 0 {
		return nil, fmt.Errorf("negative historyLength: %w", a2a.ErrInvalidParams)
	}

	data, err := h.store.Load(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return taskWithHistory(data, params.HistoryLength), nil
}

// OnCancelTask implements RequestHandler.
func (h *defaultRequestHandler) OnCancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	if params == nil || params.ID == "" {
		return nil, fmt.Errorf("missing TaskID: %w", a2a.ErrInvalidParams)
	}

	data, err := h.store.Load(ctx, params.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if data.Task.Status.State.Terminal() {
		return taskWithHistory(data, nil), nil
	}

	h.cancelMarks.add(params.ID)
	defer h.cancelMarks.remove(params.ID)

	data, err = h.cancelRunning(ctx, data)
	if err != nil {
		return nil, err
	}
	if data.Task.Status.State.Terminal() {
		return taskWithHistory(data, nil), nil
	}

	mgr := taskupdate.NewManager(h.store, data)
	if _, err := mgr.SetTaskCanceled(ctx); err != nil {
		return nil, fmt.Errorf("failed to cancel task: %w", err)
	}
	log.Info(ctx, "task canceled")
	return taskWithHistory(mgr.Snapshot(), nil), nil
}

// cancelRunning hands the cancelation over to an execution of the task running in this
// process, so that the execution stays the only writer of the task. It returns the stored
// task after the execution stopped, or data when the task is not being executed.
func (h *defaultRequestHandler) cancelRunning(ctx context.Context, data *taskstore.TaskAndHistory) (*taskstore.TaskAndHistory, error) {
	taskID := data.Task.ID
	run, ok := h.executions.get(taskID)
	if !ok {
		return data, nil
	}
	bus, ok := h.buses.GetByTaskID(taskID)
	if !ok {
		return data, nil
	}

	event := a2a.NewStatusUpdateEvent(data.Task, a2a.TaskStateCanceled, nil)
	event.SetMeta(executionMetaKey, run.id)
	if err := bus.Publish(ctx, event); err != nil {
		return nil, fmt.Errorf("failed to publish cancelation: %w", err)
	}
	select {
	case <-run.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	reloaded, err := h.store.Load(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task after execution stopped: %w", err)
	}
	return reloaded, nil
}

// OnSendTask implements RequestHandler.
func (h *defaultRequestHandler) OnSendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	result, err := h.execute(ctx, params, func(a2a.Event) bool { return true })
	if err != nil {
		return nil, err
	}
	return taskWithHistory(result, params.HistoryLength), nil
}

// OnSendTaskSubscribe implements RequestHandler.
func (h *defaultRequestHandler) OnSendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		stopped := false
		_, err := h.execute(ctx, params, func(event a2a.Event) bool {
			stopped = !yield(event, nil)
			return !stopped
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

func taskWithHistory(data *taskstore.TaskAndHistory, historyLength *int) *a2a.Task {
	task := *data.Task
	task.History = data.History
	if historyLength != nil {
		task.History = utils.Truncate(data.History, *historyLength)
	}
	return &task
}

// taskSet is a set of task IDs safe for concurrent use.
type taskSet struct {
	mu  sync.Mutex
	ids map[a2a.TaskID]struct{}
}

func (s *taskSet) add(id a2a.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
}

func (s *taskSet) remove(id a2a.TaskID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
}

func (s *taskSet) contains(id a2a.TaskID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// executionSet tracks tasks executed by this process.
type executionSet struct {
	mu   sync.Mutex
	runs map[a2a.TaskID]*runningExecution
}

type runningExecution struct {
	// id marks the events published by the execution.
	id string
	// done is closed when the events of the execution stop being processed.
	done chan struct{}
}

func (s *executionSet) start(taskID a2a.TaskID) (run *runningExecution, finish func(), ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, running := s.runs[taskID]; running {
		return nil, nil, false
	}
	run = &runningExecution{id: newExecutionID(), done: make(chan struct{})}
	s.runs[taskID] = run
	return run, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.runs, taskID)
		close(run.done)
	}, true
}

func (s *executionSet) get(taskID a2a.TaskID) (*runningExecution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[taskID]
	return run, ok
}
