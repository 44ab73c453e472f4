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
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestUnmarshalEvent_DispatchesOnKind(t *testing.T) {
	testCases := []struct {
		name string
		json string
		want Event
	}{
		{
			name: "message",
			json: `{"kind":"message","messageId":"m1","role":"user","parts":[{"kind":"text","text":"hello"}]}`,
			want: &Message{ID: "m1", Role: MessageRoleUser, Parts: ContentParts{NewTextPart("hello")}},
		},
		{
			name: "status update",
			json: `{"kind":"status-update","taskId":"t1","contextId":"c1","final":true,"status":{"state":"completed"}}`,
			want: &TaskStatusUpdateEvent{TaskID: "t1", ContextID: "c1", Final: true, Status: TaskStatus{State: TaskStateCompleted}},
		},
		{
			name: "artifact update",
			json: `{"kind":"artifact-update","taskId":"t1","contextId":"c1","artifact":{"index":0,"append":true,"parts":[{"kind":"data","data":{"k":"v"}}]}}`,
			want: &TaskArtifactUpdateEvent{
				TaskID:    "t1",
				ContextID: "c1",
				Artifact:  &Artifact{Index: Ptr(0), Append: true, Parts: ContentParts{NewDataPart(map[string]any{"k": "v"})}},
			},
		},
		{
			name: "task",
			json: `{"kind":"task","id":"t1","contextId":"c1","status":{"state":"working"}}`,
			want: &Task{ID: "t1", ContextID: "c1", Status: TaskStatus{State: TaskStateWorking}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := UnmarshalEvent([]byte(tc.json))
			if err != nil {
				t.Fatalf("UnmarshalEvent() error = %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("UnmarshalEvent() wrong result (-want +got) diff = %s", diff)
			}
		})
	}
}

func TestUnmarshalEvent_UnknownKind(t *testing.T) {
	_, err := UnmarshalEvent([]byte(`{"kind":"push-config"}`))
	if err == nil || !strings.Contains(err.Error(), "unknown event kind") {
		t.Fatalf("UnmarshalEvent() error = %v, want unknown event kind", err)
	}
}

func TestEventMarshal_IncludesKind(t *testing.T) {
	events := []Event{
		&Task{ID: "t1"},
		&Message{ID: "m1"},
		&TaskStatusUpdateEvent{TaskID: "t1"},
		&TaskArtifactUpdateEvent{TaskID: "t1", Artifact: &Artifact{}},
	}
	for _, event := range events {
		bytes, err := json.Marshal(event)
		if err != nil {
			t.Fatalf("json.Marshal(%T) error = %v", event, err)
		}
		var decoded map[string]any
		if err := json.Unmarshal(bytes, &decoded); err != nil {
			t.Fatalf("json.Unmarshal() error = %v", err)
		}
		if decoded["kind"] != event.Kind() {
			t.Fatalf("json.Marshal(%T) kind = %v, want %q", event, decoded["kind"], event.Kind())
		}
	}
}

func TestPartUnmarshal_InvalidFile(t *testing.T) {
	testCases := map[string]string{
		"missing file":  `{"kind":"file"}`,
		"bytes and uri": `{"kind":"file","file":{"bytes":"aGk=","uri":"https://example.com"}}`,
		"neither":       `{"kind":"file","file":{"name":"a.txt"}}`,
		"unknown kind":  `{"kind":"video"}`,
	}
	for name, input := range testCases {
		t.Run(name, func(t *testing.T) {
			var p Part
			if err := json.Unmarshal([]byte(input), &p); err == nil {
				t.Fatalf("json.Unmarshal(%s) succeeded, want error", input)
			}
		})
	}
}

func TestCloneEvent_NoSharedMemory(t *testing.T) {
	original := &TaskArtifactUpdateEvent{
		TaskID:    "t1",
		ContextID: "c1",
		Artifact:  &Artifact{Index: Ptr(0), Name: "a", Parts: ContentParts{NewTextPart("x")}},
	}

	cloned, err := CloneEvent(original)
	if err != nil {
		t.Fatalf("CloneEvent() error = %v", err)
	}
	if diff := cmp.Diff(Event(original), cloned); diff != "" {
		t.Fatalf("CloneEvent() wrong result (-want +got) diff = %s", diff)
	}

	clonedUpdate := cloned.(*TaskArtifactUpdateEvent)
	*clonedUpdate.Artifact.Index = 5
	clonedUpdate.Artifact.Parts[0] = NewTextPart("y")
	if original.Artifact.IndexOrZero() != 0 || original.Artifact.Parts[0].Text() != "x" {
		t.Fatalf("CloneEvent() result shares memory with the original: %+v", original.Artifact)
	}
}

func TestTaskState_Final(t *testing.T) {
	testCases := []struct {
		state    TaskState
		terminal bool
		final    bool
	}{
		{state: TaskStateSubmitted},
		{state: TaskStateWorking},
		{state: TaskStateInputRequired, final: true},
		{state: TaskStateCompleted, terminal: true, final: true},
		{state: TaskStateFailed, terminal: true, final: true},
		{state: TaskStateCanceled, terminal: true, final: true},
	}
	for _, tc := range testCases {
		if got := tc.state.Terminal(); got != tc.terminal {
			t.Errorf("%q.Terminal() = %v, want %v", tc.state, got, tc.terminal)
		}
		if got := tc.state.Final(); got != tc.final {
			t.Errorf("%q.Final() = %v, want %v", tc.state, got, tc.final)
		}
	}
}

func TestTaskSendParams_Validate(t *testing.T) {
	valid := func() *TaskSendParams {
		return &TaskSendParams{ID: "t1", Message: NewMessage(MessageRoleUser, NewTextPart("hi"))}
	}
	testCases := map[string]func(p *TaskSendParams){
		"missing id":       func(p *TaskSendParams) { p.ID = "" },
		"missing message":  func(p *TaskSendParams) { p.Message = nil },
		"empty parts":      func(p *TaskSendParams) { p.Message.Parts = nil },
		"bad role":         func(p *TaskSendParams) { p.Message.Role = "system" },
		"negative history": func(p *TaskSendParams) { p.HistoryLength = Ptr(-1) },
	}
	for name, mutate := range testCases {
		t.Run(name, func(t *testing.T) {
			p := valid()
			mutate(p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidParams) {
				t.Fatalf("Validate() error = %v, want %v", err, ErrInvalidParams)
			}
		})
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() error = %v, want nil", err)
	}
}
