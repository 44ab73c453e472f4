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

// Package taskstore defines the persistence contract for task snapshots and provides
// in-memory, remote cache and SQL implementations.
package taskstore

import (
	"context"
	"errors"

	"github.com/a2aproject/a2a-relay/a2a"
)

// ErrStoreUnavailable wraps I/O failures of remote store implementations. It is not
// retried by the store.
var ErrStoreUnavailable = errors.New("task store unavailable")

// TaskAndHistory is the persisted snapshot of a task together with its message history.
type TaskAndHistory struct {
	Task    *a2a.Task      `json:"task"`
	History []*a2a.Message `json:"history"`
}

// Store is an interface the server stack uses for storing and retrieving task snapshots.
// Implementations must hand out copies on both sides: neither the caller nor the store
// can observe in-place mutations made by the other after a call returns.
type Store interface {
	// Save persists the snapshot keyed by its task ID, overwriting a previous one.
	Save(ctx context.Context, data *TaskAndHistory) error

	// Load returns a detached copy of the snapshot. If the task doesn't exist the method
	// should return [a2a.ErrTaskNotFound].
	Load(ctx context.Context, taskID a2a.TaskID) (*TaskAndHistory, error)
}

func validate(data *TaskAndHistory) error {
	if data == nil || data.Task == nil {
		return errors.New("task is required")
	}
	if data.Task.ID == "" {
		return errors.New("task id is required")
	}
	return nil
}
