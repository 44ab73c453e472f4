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
// Package taskupdate applies execution events to a task snapshot.
package taskupdate

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv/taskstore"
	"github.com/a2aproject/a2a-relay/log"
)

// ErrIgnored is returned by [Manager.Process] for events which cannot change the task
// because it already reached a terminal state.
var ErrIgnored = errors.New("event ignored for terminal task")

// Manager is used for processing [a2a.Event] related to an [a2a.Task]. It updates
// the snapshot accordingly and uses [taskstore.Store] to persist it after every event.
// A Manager is not safe for concurrent use.
type Manager struct {
	store taskstore.Store
	data  *taskstore.TaskAndHistory
	now   func() time.Time
}

// NewManager is a [Manager] constructor function. The manager takes ownership of data.
func NewManager(store taskstore.Store, data *taskstore.TaskAndHistory) *Manager {
	return &Manager{store: store, data: data, now: time.Now}
}

// Snapshot returns the last persisted snapshot. Callers must not modify it.
func (mgr *Manager) Snapshot() *taskstore.TaskAndHistory {
	return mgr.data
}

// Process validates the event, integrates it into the task, persists the task and
// returns the event in the form it was applied in: status updates get the merge
// timestamp and the final flag.
func (mgr *Manager) Process(ctx context.Context, event a2a.Event) (a2a.Event, error) {
	if err := mgr.validate(event); err != nil {
		return nil, err
	}

	task := mgr.data.Task
	if _, isMessage := event.(*a2a.Message); !isMessage && task.Status.State.Terminal() {
		log.Debug(ctx, "event ignored for terminal task", "kind", event.Kind(), "state", task.Status.State)
		return nil, ErrIgnored
	}

	switch v := event.(type) {
	case *a2a.Message:
		mgr.data.History = append(mgr.data.History, v)
		return v, mgr.save(ctx)

	case *a2a.Task:
		mgr.checkTransition(ctx, v.Status.State)
		mgr.setStatus(v.Status, v.Metadata)
		task.Artifacts = v.Artifacts
		return task, mgr.save(ctx)

	case *a2a.TaskArtifactUpdateEvent:
		if v.Artifact == nil {
			return nil, fmt.Errorf("artifact update without an artifact: %w", a2a.ErrInvalidParams)
		}
		artifacts, err := MergeArtifact(task.Artifacts, v.Artifact)
		if err != nil {
			return nil, err
		}
		task.Artifacts = artifacts
		return v, mgr.save(ctx)

	case *a2a.TaskStatusUpdateEvent:
		mgr.checkTransition(ctx, v.Status.State)
		applied := *v
		applied.Status = mgr.setStatus(v.Status, v.Metadata)
		applied.Final = applied.Status.State.Final()
		return &applied, mgr.save(ctx)

	default:
		return nil, fmt.Errorf("unexpected event type %T", v)
	}
}

// SetTaskFailed moves the task to failed state with an agent message carrying the
// cause and persists it.
func (mgr *Manager) SetTaskFailed(ctx context.Context, cause error) (*a2a.TaskStatusUpdateEvent, error) {
	msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, mgr.data.Task, a2a.NewTextPart(cause.Error()))
	event := a2a.NewStatusUpdateEvent(mgr.data.Task, a2a.TaskStateFailed, msg)
	return mgr.processStatus(ctx, event)
}

// SetTaskCompleted moves the task to completed state and persists it.
func (mgr *Manager) SetTaskCompleted(ctx context.Context) (*a2a.TaskStatusUpdateEvent, error) {
	return mgr.processStatus(ctx, a2a.NewStatusUpdateEvent(mgr.data.Task, a2a.TaskStateCompleted, nil))
}

// SetTaskCanceled moves the task to canceled state and persists it.
func (mgr *Manager) SetTaskCanceled(ctx context.Context) (*a2a.TaskStatusUpdateEvent, error) {
	return mgr.processStatus(ctx, a2a.NewStatusUpdateEvent(mgr.data.Task, a2a.TaskStateCanceled, nil))
}

func (mgr *Manager) processStatus(ctx context.Context, event *a2a.TaskStatusUpdateEvent) (*a2a.TaskStatusUpdateEvent, error) {
	applied, err := mgr.Process(ctx, event)
	if err != nil {
		return nil, err
	}
	return applied.(*a2a.TaskStatusUpdateEvent), nil
}

// checkTransition logs status changes outside of the task lifecycle without rejecting them.
func (mgr *Manager) checkTransition(ctx context.Context, to a2a.TaskState) {
	from := mgr.data.Task.Status.State
	if !ValidTransition(from, to) {
		log.Warn(ctx, "unexpected task status transition", "from", from, "to", to)
	}
}

// setStatus replaces the task status. Agent messages carried by the status are
// appended to the history.
func (mgr *Manager) setStatus(status a2a.TaskStatus, metadata map[string]any) a2a.TaskStatus {
	task := mgr.data.Task
	now := mgr.now()
	status.Timestamp = &now
	if status.Message != nil && status.Message.Role == a2a.MessageRoleAgent {
		mgr.data.History = append(mgr.data.History, status.Message)
	}
	if metadata != nil {
		if task.Metadata == nil {
			task.Metadata = make(map[string]any, len(metadata))
		}
		maps.Copy(task.Metadata, metadata)
	}
	task.Status = status
	return status
}

func (mgr *Manager) save(ctx context.Context) error {
	if err := mgr.store.Save(ctx, mgr.data); err != nil {
		return fmt.Errorf("failed to save task state: %w", err)
	}
	return nil
}

func (mgr *Manager) validate(event a2a.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	info := event.TaskInfo()
	task := mgr.data.Task
	if _, isMessage := event.(*a2a.Message); isMessage && info.TaskID == "" {
		return nil
	}
	if info.TaskID != task.ID {
		return fmt.Errorf("task IDs don't match: %s != %s", info.TaskID, task.ID)
	}
	if info.ContextID != "" && info.ContextID != task.ContextID {
		return fmt.Errorf("context IDs don't match: %s != %s", info.ContextID, task.ContextID)
	}
	return nil
}
