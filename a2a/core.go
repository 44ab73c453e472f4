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

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// TaskInfoProvider provides information about the Task.
type TaskInfoProvider interface {
	// TaskInfo returns information about the task.
	TaskInfo() TaskInfo
}

// MetadataCarrier provides access to extensions metadata container.
type MetadataCarrier interface {
	// Meta returns the metadata container.
	Meta() map[string]any
	// SetMeta sets the metadata value for the provided key.
	SetMeta(k string, v any)
}

// TaskInfo represents information about the Task and the conversation it belongs to.
// Values might be empty which means the TaskInfoProvider is not associated with any tasks.
type TaskInfo struct {
	// TaskID is an id of the task.
	TaskID TaskID
	// ContextID is an id of the conversation the task belongs to.
	ContextID string
}

// TaskInfo implements TaskInfoProvider so that the struct can be passed to core type constructor functions.
func (ti TaskInfo) TaskInfo() TaskInfo {
	return ti
}

// Event is a sealed union of the types which flow through an execution event bus:
// [*Task], [*Message], [*TaskStatusUpdateEvent] and [*TaskArtifactUpdateEvent].
type Event interface {
	TaskInfoProvider
	MetadataCarrier

	// Kind returns the value of the "kind" discriminator used in the JSON encoding.
	Kind() string

	isEvent()
}

func (*Message) isEvent()                 {}
func (*Task) isEvent()                    {}
func (*TaskStatusUpdateEvent) isEvent()   {}
func (*TaskArtifactUpdateEvent) isEvent() {}

// Event kind discriminators.
const (
	KindTask           = "task"
	KindMessage        = "message"
	KindStatusUpdate   = "status-update"
	KindArtifactUpdate = "artifact-update"
)

// MessageRole identifies the message sender.
type MessageRole string

const (
	// MessageRoleUnspecified is an unspecified message role.
	MessageRoleUnspecified MessageRole = ""
	// MessageRoleAgent is an agent message role.
	MessageRoleAgent MessageRole = "agent"
	// MessageRoleUser is a user message role.
	MessageRoleUser MessageRole = "user"
)

// NewMessageID generates a new random message identifier.
func NewMessageID() string {
	return newUUIDString()
}

var _ Event = (*Message)(nil)

// Message represents a single message in the conversation between a user and an agent.
// Messages are appended to a task history and never modified afterwards.
type Message struct {
	// ID is a unique identifier for the message generated by the sender.
	ID string `json:"messageId"`

	// ContextID is the conversation identifier. It is required for routing the message
	// through a remote event bus.
	ContextID string `json:"contextId,omitempty"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Parts is an array of content parts that form the message body.
	Parts ContentParts `json:"parts"`

	// Role identifies the sender of the message.
	Role MessageRole `json:"role"`

	// TaskID is the identifier of the task this message is part of.
	TaskID TaskID `json:"taskId,omitempty"`
}

// NewMessage creates a new message with a random identifier.
func NewMessage(role MessageRole, parts ...*Part) *Message {
	return &Message{
		ID:    NewMessageID(),
		Role:  role,
		Parts: parts,
	}
}

// NewMessageForTask creates a new message with a random identifier that references the provided Task.
func NewMessageForTask(role MessageRole, infoProvider TaskInfoProvider, parts ...*Part) *Message {
	taskInfo := infoProvider.TaskInfo()
	return &Message{
		ID:        NewMessageID(),
		Role:      role,
		TaskID:    taskInfo.TaskID,
		ContextID: taskInfo.ContextID,
		Parts:     parts,
	}
}

// Kind implements Event.
func (m *Message) Kind() string { return KindMessage }

// Meta implements MetadataCarrier.
func (m *Message) Meta() map[string]any {
	return m.Metadata
}

// SetMeta implements MetadataCarrier.
func (m *Message) SetMeta(k string, v any) {
	setMeta(&m.Metadata, k, v)
}

// TaskInfo implements TaskInfoProvider.
func (m *Message) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: m.TaskID, ContextID: m.ContextID}
}

// MarshalJSON adds the kind discriminator.
func (m Message) MarshalJSON() ([]byte, error) {
	type wrapped Message
	return json.Marshal(struct {
		Kind string `json:"kind"`
		wrapped
	}{Kind: KindMessage, wrapped: wrapped(m)})
}

// TaskID is a unique identifier for the task.
type TaskID string

// NewTaskID generates a new random task identifier.
func NewTaskID() TaskID {
	return TaskID(newUUIDString())
}

// NewContextID generates a new random context identifier.
func NewContextID() string {
	return newUUIDString()
}

// TaskState defines a set of possible task states.
type TaskState string

const (
	// TaskStateUnspecified represents a missing TaskState value.
	TaskStateUnspecified TaskState = ""
	// TaskStateSubmitted means the task has been accepted and is awaiting execution.
	TaskStateSubmitted TaskState = "submitted"
	// TaskStateWorking means the agent is actively working on the task.
	TaskStateWorking TaskState = "working"
	// TaskStateInputRequired means the task is paused and waiting for input from the user.
	TaskStateInputRequired TaskState = "input-required"
	// TaskStateCompleted means the task has been successfully completed.
	TaskStateCompleted TaskState = "completed"
	// TaskStateFailed means the task failed due to an error during execution.
	TaskStateFailed TaskState = "failed"
	// TaskStateCanceled means the task has been canceled by the user.
	TaskStateCanceled TaskState = "canceled"
	// TaskStateUnknown means the task is in an unknown or indeterminate state.
	TaskStateUnknown TaskState = "unknown"
)

// Terminal returns true for states in which no further status transition is applied
// within an execution.
func (ts TaskState) Terminal() bool {
	return ts == TaskStateCompleted ||
		ts == TaskStateCanceled ||
		ts == TaskStateFailed
}

// Final returns true for states which end a streaming response: terminal states and
// input-required.
func (ts TaskState) Final() bool {
	return ts.Terminal() || ts == TaskStateInputRequired
}

var _ Event = (*Task)(nil)

// Task represents a single, stateful unit of work between a client and an agent.
type Task struct {
	// ID is a unique identifier for the task, assigned by the client or the server.
	ID TaskID `json:"id"`

	// Artifacts is a collection of artifacts generated by the agent during the execution of the task.
	Artifacts []*Artifact `json:"artifacts,omitempty"`

	// ContextID groups the task with its originating conversation.
	ContextID string `json:"contextId"`

	// History is the list of messages exchanged during the task.
	History []*Message `json:"history,omitempty"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`

	// Status is the current status of the task.
	Status TaskStatus `json:"status"`
}

// NewSubmittedTask is a utility for creating a Task in submitted state.
// New values are generated for task and context id when they are missing.
func NewSubmittedTask(infoProvider TaskInfoProvider) *Task {
	taskInfo := infoProvider.TaskInfo()
	taskID := taskInfo.TaskID
	if taskID == "" {
		taskID = NewTaskID()
	}
	contextID := taskInfo.ContextID
	if contextID == "" {
		contextID = NewContextID()
	}
	now := time.Now()
	return &Task{
		ID:        taskID,
		ContextID: contextID,
		Status:    TaskStatus{State: TaskStateSubmitted, Timestamp: &now},
	}
}

// Kind implements Event.
func (t *Task) Kind() string { return KindTask }

// Meta implements MetadataCarrier.
func (t *Task) Meta() map[string]any {
	return t.Metadata
}

// SetMeta implements MetadataCarrier.
func (t *Task) SetMeta(k string, v any) {
	setMeta(&t.Metadata, k, v)
}

// TaskInfo implements TaskInfoProvider.
func (t *Task) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: t.ID, ContextID: t.ContextID}
}

// MarshalJSON adds the kind discriminator.
func (t Task) MarshalJSON() ([]byte, error) {
	type wrapped Task
	return json.Marshal(struct {
		Kind string `json:"kind"`
		wrapped
	}{Kind: KindTask, wrapped: wrapped(t)})
}

// TaskStatus represents the status of a task at a specific point in time.
type TaskStatus struct {
	// Message is the agent's latest status-carrying message.
	Message *Message `json:"message,omitempty"`

	// State is the current state of the task's lifecycle.
	State TaskState `json:"state"`

	// Timestamp is set by the server whenever the status is applied to a task.
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// Artifact represents an output produced by an agent during a task, possibly in several chunks.
// An artifact is identified by Index when it is set, and by Name otherwise.
type Artifact struct {
	// Index is an optional position based identity of the artifact.
	Index *int `json:"index,omitempty"`

	// Name is an optional, human-readable name of the artifact.
	Name string `json:"name,omitempty"`

	// Description is an optional, human-readable description of the artifact.
	Description string `json:"description,omitempty"`

	// Parts is an array of content parts that make up the artifact.
	Parts ContentParts `json:"parts"`

	// Append requests merging Parts into an existing artifact with the same identity
	// instead of replacing it.
	Append bool `json:"append,omitempty"`

	// LastChunk marks the final chunk of an incrementally produced artifact.
	LastChunk bool `json:"lastChunk,omitempty"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Meta implements MetadataCarrier.
func (a *Artifact) Meta() map[string]any {
	return a.Metadata
}

// SetMeta implements MetadataCarrier.
func (a *Artifact) SetMeta(k string, v any) {
	setMeta(&a.Metadata, k, v)
}

// IndexOrZero returns the artifact index, treating a missing index as 0.
func (a *Artifact) IndexOrZero() int {
	if a.Index == nil {
		return 0
	}
	return *a.Index
}

// Ptr is a helper for populating optional fields like [Artifact.Index].
func Ptr[T any](v T) *T {
	return &v
}

var _ Event = (*TaskArtifactUpdateEvent)(nil)

// TaskArtifactUpdateEvent notifies observers that an artifact has been generated or updated.
type TaskArtifactUpdateEvent struct {
	// Artifact is the artifact that was generated or updated.
	Artifact *Artifact `json:"artifact"`

	// ContextID is the context ID associated with the task.
	ContextID string `json:"contextId"`

	// TaskID is the ID of the task this artifact belongs to.
	TaskID TaskID `json:"taskId"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewArtifactEvent creates a TaskArtifactUpdateEvent for the artifact.
func NewArtifactEvent(infoProvider TaskInfoProvider, artifact *Artifact) *TaskArtifactUpdateEvent {
	taskInfo := infoProvider.TaskInfo()
	return &TaskArtifactUpdateEvent{
		ContextID: taskInfo.ContextID,
		TaskID:    taskInfo.TaskID,
		Artifact:  artifact,
	}
}

// Kind implements Event.
func (e *TaskArtifactUpdateEvent) Kind() string { return KindArtifactUpdate }

// Meta implements MetadataCarrier.
func (e *TaskArtifactUpdateEvent) Meta() map[string]any {
	return e.Metadata
}

// SetMeta implements MetadataCarrier.
func (e *TaskArtifactUpdateEvent) SetMeta(k string, v any) {
	setMeta(&e.Metadata, k, v)
}

// TaskInfo implements TaskInfoProvider.
func (e *TaskArtifactUpdateEvent) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: e.TaskID, ContextID: e.ContextID}
}

// MarshalJSON adds the kind discriminator.
func (e TaskArtifactUpdateEvent) MarshalJSON() ([]byte, error) {
	type wrapped TaskArtifactUpdateEvent
	return json.Marshal(struct {
		Kind string `json:"kind"`
		wrapped
	}{Kind: KindArtifactUpdate, wrapped: wrapped(e)})
}

var _ Event = (*TaskStatusUpdateEvent)(nil)

// TaskStatusUpdateEvent notifies observers of a change in a task's status.
type TaskStatusUpdateEvent struct {
	// ContextID is the context ID associated with the task.
	ContextID string `json:"contextId"`

	// Final is set by the server when the resulting state ends a stream.
	Final bool `json:"final"`

	// Status is the new status of the task.
	Status TaskStatus `json:"status"`

	// TaskID is the ID of the task that was updated.
	TaskID TaskID `json:"taskId"`

	// Metadata is an optional metadata for extensions.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewStatusUpdateEvent creates a TaskStatusUpdateEvent that references the provided Task.
func NewStatusUpdateEvent(infoProvider TaskInfoProvider, state TaskState, msg *Message) *TaskStatusUpdateEvent {
	now := time.Now()
	taskInfo := infoProvider.TaskInfo()
	return &TaskStatusUpdateEvent{
		ContextID: taskInfo.ContextID,
		TaskID:    taskInfo.TaskID,
		Status: TaskStatus{
			State:     state,
			Message:   msg,
			Timestamp: &now,
		},
	}
}

// Kind implements Event.
func (e *TaskStatusUpdateEvent) Kind() string { return KindStatusUpdate }

// Meta implements MetadataCarrier.
func (e *TaskStatusUpdateEvent) Meta() map[string]any {
	return e.Metadata
}

// SetMeta implements MetadataCarrier.
func (e *TaskStatusUpdateEvent) SetMeta(k string, v any) {
	setMeta(&e.Metadata, k, v)
}

// TaskInfo implements TaskInfoProvider.
func (e *TaskStatusUpdateEvent) TaskInfo() TaskInfo {
	return TaskInfo{TaskID: e.TaskID, ContextID: e.ContextID}
}

// MarshalJSON adds the kind discriminator.
func (e TaskStatusUpdateEvent) MarshalJSON() ([]byte, error) {
	type wrapped TaskStatusUpdateEvent
	return json.Marshal(struct {
		Kind string `json:"kind"`
		wrapped
	}{Kind: KindStatusUpdate, wrapped: wrapped(e)})
}

func setMeta(m *map[string]any, k string, v any) {
	if *m == nil {
		*m = make(map[string]any)
	}
	(*m)[k] = v
}

// Time-based UUID generally improves index update performance if ID field is indexed in a persistent store.
func newUUIDString() string {
	return uuid.Must(uuid.NewV7()).String()
}
