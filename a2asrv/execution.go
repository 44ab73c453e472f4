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
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
	"github.com/a2aproject/a2a-relay/a2asrv/taskstore"
	"github.com/a2aproject/a2a-relay/internal/eventpipe"
	"github.com/a2aproject/a2a-relay/internal/taskupdate"
	"github.com/a2aproject/a2a-relay/internal/utils"
	"github.com/a2aproject/a2a-relay/log"
)

// executionMetaKey marks events with the id of the execution which published them.
// Remote buses replay a context topic from its start, so a later execution of a task
// receives the events of all earlier ones.
const executionMetaKey = "a2a-relay/execution"

// errConsumerGone is returned by [execution.next] when the request context is done.
var errConsumerGone = errors.New("execution consumer went away")

// execute runs the agent for the message and applies the events it produces to the task
// until a final status is reached. Every applied status and artifact update is passed to
// emit. When emit returns false or ctx is done the remaining events are applied in the
// background and no snapshot is returned.
func (h *defaultRequestHandler) execute(ctx context.Context, params *a2a.TaskSendParams, emit func(a2a.Event) bool) (*taskstore.TaskAndHistory, error) {
	if params == nil {
		return nil, fmt.Errorf("params are required: %w", a2a.ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	run, finish, ok := h.executions.start(params.ID)
	if !ok {
		return nil, a2a.NewError(a2a.ErrInvalidParams, fmt.Sprintf("task %s is already being executed", params.ID))
	}
	e, err := h.startExecution(ctx, params, run.id, finish)
	if err != nil {
		finish()
		return nil, err
	}
	return e.process(ctx, emit)
}

// execution is the state of a single agent run. It is owned by one goroutine at a time:
// the request goroutine, and after the consumer went away a background one.
type execution struct {
	h      *defaultRequestHandler
	reqCtx *RequestContext
	mgr    *taskupdate.Manager
	pipe   *eventpipe.Local

	// workCtx is detached from the request so that the task still reaches a final status
	// after the consumer went away.
	workCtx context.Context
	// runningCtx is done once the executor returned.
	runningCtx      context.Context
	execDone        chan struct{}
	execErr         error
	executorRunning bool

	closeOnce sync.Once
	closers   []func()
}

// startExecution prepares the task and starts the executor. finish is called last when
// the execution is closed.
func (h *defaultRequestHandler) startExecution(ctx context.Context, params *a2a.TaskSendParams, id string, finish func()) (*execution, error) {
	data, err := h.prepareTask(ctx, params)
	if err != nil {
		return nil, err
	}
	reqCtx, err := h.newRequestContext(data)
	if err != nil {
		return nil, err
	}
	task := data.Task
	userMessage := data.History[len(data.History)-1]

	workCtx := context.WithoutCancel(ctx)
	e := &execution{
		h:               h,
		reqCtx:          reqCtx,
		mgr:             taskupdate.NewManager(h.store, data),
		pipe:            eventpipe.NewLocal(),
		workCtx:         workCtx,
		execDone:        make(chan struct{}),
		executorRunning: true,
	}
	e.onClose(finish)

	bus := h.buses.CreateOrGetByMessageID(userMessage.ID, task.ContextID)
	h.buses.AssociateTask(ctx, task.ID, userMessage.ID)
	e.onClose(func() { h.buses.CleanupByMessageID(userMessage.ID) })
	e.onClose(e.pipe.Close)

	sub := eventbus.SubscribeContext(bus, task.ContextID, func(ctx context.Context, event a2a.Event) {
		if event.TaskInfo().TaskID != task.ID || !fromExecution(event, id) {
			return
		}
		if err := e.pipe.Writer.Write(ctx, event); err != nil && !errors.Is(err, eventpipe.ErrPipeClosed) {
			log.Warn(ctx, "failed to forward execution event", "kind", event.Kind(), "error", err)
		}
	})
	e.onClose(func() { bus.Unsubscribe(sub) })

	execCtx, cancelExec := context.WithCancel(workCtx)
	e.onClose(cancelExec)
	runningCtx, stopRunning := context.WithCancel(workCtx)
	e.runningCtx = runningCtx
	e.onClose(stopRunning)

	go func() {
		defer close(e.execDone)
		e.execErr = h.runExecutor(execCtx, reqCtx, &executionBus{Bus: bus, id: id})
	}()
	go func() {
		select {
		case <-e.execDone:
			stopRunning()
		case <-runningCtx.Done():
		}
	}()

	h.metrics.taskStarted()
	log.Info(ctx, "task execution started", "context_id", task.ContextID)
	return e, nil
}

func (e *execution) process(ctx context.Context, emit func(a2a.Event) bool) (*taskstore.TaskAndHistory, error) {
	for {
		update, final, err := e.next(ctx)
		if errors.Is(err, errConsumerGone) {
			e.detach()
			return nil, ctx.Err()
		}
		if err != nil {
			e.close()
			return nil, err
		}
		if !emit(update) && !final {
			e.detach()
			return nil, nil
		}
		if final {
			e.close()
			return e.mgr.Snapshot(), nil
		}
	}
}

// detach hands the execution over to a background goroutine which applies events until
// a final status is reached.
func (e *execution) detach() {
	log.Info(e.workCtx, "execution consumer went away, applying remaining events in the background")
	go func() {
		defer e.close()
		for {
			_, final, err := e.next(e.workCtx)
			if err != nil || final {
				return
			}
		}
	}()
}

// next applies events until one of them produces an update for clients. final is set
// when the task reached a final status, which ends the execution.
func (e *execution) next(ctx context.Context) (update a2a.Event, final bool, err error) {
	for {
		event, err := e.read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, false, errConsumerGone
			}
			if e.executorRunning {
				e.executorRunning = false
				continue
			}
			return e.settle()
		}

		applied, err := e.mgr.Process(e.workCtx, event)
		if errors.Is(err, taskupdate.ErrIgnored) {
			continue
		}
		if err != nil {
			return nil, true, e.h.fail(e.workCtx, e.mgr, fmt.Errorf("failed to apply %s event: %w", event.Kind(), err))
		}
		e.h.metrics.eventApplied(applied)

		update, ok := toUpdate(applied)
		if !ok {
			continue
		}
		if status, isStatus := update.(*a2a.TaskStatusUpdateEvent); isStatus && status.Status.State == a2a.TaskStateCanceled {
			e.reqCtx.canceled.Store(true)
		}
		if taskupdate.IsFinal(update) {
			e.h.finished(e.workCtx, e.mgr)
			return update, true, nil
		}
		return update, false, nil
	}
}

// read returns the next event of the execution. After the executor returned, events are
// awaited for the settle period. After an executor failure only events which were already
// delivered are returned.
func (e *execution) read(ctx context.Context) (a2a.Event, error) {
	var readCtx context.Context
	var cancel context.CancelFunc
	switch {
	case e.executorRunning:
		readCtx, cancel = context.WithCancel(e.runningCtx)
	case e.execErr != nil:
		readCtx, cancel = context.WithCancel(e.workCtx)
		cancel()
	default:
		readCtx, cancel = context.WithTimeout(e.workCtx, e.h.settlePeriod)
	}
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return e.pipe.Reader.Read(readCtx)
}

// settle ends an execution whose executor returned without publishing a final status.
func (e *execution) settle() (a2a.Event, bool, error) {
	if e.execErr != nil {
		return nil, true, e.h.fail(e.workCtx, e.mgr, e.execErr)
	}
	completed, err := e.mgr.SetTaskCompleted(e.workCtx)
	if err != nil {
		log.Error(e.workCtx, "failed to complete task", err)
		return nil, true, fmt.Errorf("failed to complete task: %w", err)
	}
	e.h.finished(e.workCtx, e.mgr)
	return completed, true, nil
}

func (e *execution) onClose(fn func()) {
	e.closers = append(e.closers, fn)
}

// close releases the execution resources in reverse order of acquisition.
func (e *execution) close() {
	e.closeOnce.Do(func() {
		for _, fn := range slices.Backward(e.closers) {
			fn()
		}
	})
}

// executionBus is the bus handed to the executor. It marks every published event with
// the execution id.
type executionBus struct {
	eventbus.Bus
	id string
}

func (b *executionBus) Publish(ctx context.Context, event a2a.Event) error {
	if event == nil {
		return b.Bus.Publish(ctx, event)
	}
	marked, err := a2a.CloneEvent(event)
	if err != nil {
		return err
	}
	marked.SetMeta(executionMetaKey, b.id)
	return b.Bus.Publish(ctx, marked)
}

// fromExecution reports whether the event carries the mark of the execution and removes
// the mark. Events are copied for every listener, so the event is owned by the caller.
func fromExecution(event a2a.Event, id string) bool {
	meta := event.Meta()
	if mark, ok := meta[executionMetaKey].(string); !ok || mark != id {
		return false
	}
	delete(meta, executionMetaKey)
	if len(meta) == 0 {
		clearMeta(event)
	}
	return true
}

func clearMeta(event a2a.Event) {
	switch v := event.(type) {
	case *a2a.Message:
		v.Metadata = nil
	case *a2a.Task:
		v.Metadata = nil
	case *a2a.TaskStatusUpdateEvent:
		v.Metadata = nil
	case *a2a.TaskArtifactUpdateEvent:
		v.Metadata = nil
	}
}

func newExecutionID() string {
	return uuid.NewString()
}

func (h *defaultRequestHandler) newRequestContext(data *taskstore.TaskAndHistory) (*RequestContext, error) {
	task, err := utils.DeepCopy(data.Task)
	if err != nil {
		return nil, fmt.Errorf("failed to copy task: %w", err)
	}
	history, err := utils.DeepCopy(data.History)
	if err != nil {
		return nil, fmt.Errorf("failed to copy history: %w", err)
	}
	taskID := task.ID
	return &RequestContext{
		Task:        task,
		UserMessage: history[len(history)-1],
		History:     history,
		TaskID:      taskID,
		ContextID:   task.ContextID,
		isCanceled:  func() bool { return h.cancelMarks.contains(taskID) },
	}, nil
}

func (h *defaultRequestHandler) runExecutor(ctx context.Context, reqCtx *RequestContext, bus eventbus.Bus) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("agent executor panic: %v", r)
			log.Error(ctx, "agent executor panicked", err, "stack", string(debug.Stack()))
		}
	}()
	return h.executor.Execute(ctx, reqCtx, bus)
}

// fail persists the failed state on a best-effort basis and returns the error to report.
func (h *defaultRequestHandler) fail(ctx context.Context, mgr *taskupdate.Manager, cause error) error {
	h.metrics.executorFailed()
	log.Error(ctx, "task execution failed", cause)
	if _, err := mgr.SetTaskFailed(ctx, cause); err != nil && !errors.Is(err, taskupdate.ErrIgnored) {
		log.Error(ctx, "failed to persist task failure", err)
	}
	h.metrics.taskFinished(mgr.Snapshot().Task.Status.State)
	return fmt.Errorf("agent execution failed: %w", cause)
}

func (h *defaultRequestHandler) finished(ctx context.Context, mgr *taskupdate.Manager) {
	state := mgr.Snapshot().Task.Status.State
	h.metrics.taskFinished(state)
	log.Info(ctx, "task execution finished", "state", state)
}

// toUpdate converts an applied event to the update reported to clients. Messages are
// only recorded in the history.
func toUpdate(applied a2a.Event) (a2a.Event, bool) {
	switch v := applied.(type) {
	case *a2a.TaskStatusUpdateEvent, *a2a.TaskArtifactUpdateEvent:
		return v, true
	case *a2a.Task:
		return &a2a.TaskStatusUpdateEvent{
			TaskID:    v.ID,
			ContextID: v.ContextID,
			Status:    v.Status,
			Final:     v.Status.State.Final(),
			Metadata:  v.Metadata,
		}, true
	default:
		return nil, false
	}
}
