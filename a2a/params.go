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

package a2a

import "fmt"

// TaskSendParams defines the parameters of 'tasks/send' and 'tasks/sendSubscribe' requests.
type TaskSendParams struct {
	// ID is the identifier of the task. A new task is created when no task with this ID exists.
	ID TaskID `json:"id"`

	// ContextID optionally groups the task with an existing conversation. Defaults to Message.ContextID.
	ContextID string `json:"contextId,omitempty"`

	// Message is the message sent to the agent.
	Message *Message `json:"message"`

	// HistoryLength is the number of most recent messages to include in the returned task.
	HistoryLength *int `json:"historyLength,omitempty"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Validate checks the params before any state is modified.
func (p *TaskSendParams) Validate() error {
	if p.ID == "" {
		return NewError(ErrInvalidParams, "task id is required")
	}
	if p.Message == nil {
		return NewError(ErrInvalidParams, "message is required")
	}
	if len(p.Message.Parts) == 0 {
		return NewError(ErrInvalidParams, "message must have at least one part")
	}
	if p.Message.Role != MessageRoleUser && p.Message.Role != MessageRoleAgent {
		return NewError(ErrInvalidParams, fmt.Sprintf("unsupported message role %q", p.Message.Role))
	}
	if p.HistoryLength != nil && *p.HistoryLength < 0 {
		return NewError(ErrInvalidParams, "historyLength must be non-negative")
	}
	return nil
}

// TaskQueryParams defines the parameters of a 'tasks/get' request.
type TaskQueryParams struct {
	// ID is the ID of the task to get.
	ID TaskID `json:"id"`

	// HistoryLength is the number of most recent messages from the task's history to retrieve.
	HistoryLength *int `json:"historyLength,omitempty"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskIDParams defines the parameters of a 'tasks/cancel' request.
type TaskIDParams struct {
	// ID is the ID of the task.
	ID TaskID `json:"id"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`
}
