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
package taskupdate

import (
	"slices"

	"github.com/a2aproject/a2a-relay/a2a"
)

// transitions lists the status changes of the task lifecycle besides staying in the same
// state. Failure and cancelation are accepted from every non-terminal state.
var transitions = map[a2a.TaskState][]a2a.TaskState{
	a2a.TaskStateSubmitted:     {a2a.TaskStateWorking, a2a.TaskStateInputRequired, a2a.TaskStateCompleted},
	a2a.TaskStateWorking:       {a2a.TaskStateInputRequired, a2a.TaskStateCompleted},
	a2a.TaskStateInputRequired: {a2a.TaskStateWorking},
}

// ValidTransition reports whether moving a non-terminal task from one state to another
// follows the task lifecycle.
func ValidTransition(from, to a2a.TaskState) bool {
	if from == to || to == a2a.TaskStateFailed || to == a2a.TaskStateCanceled {
		return true
	}
	return slices.Contains(transitions[from], to)
}

// IsFinal returns true if event must terminate a stream of task updates.
func IsFinal(event a2a.Event) bool {
	var state a2a.TaskState
	switch v := event.(type) {
	case *a2a.TaskStatusUpdateEvent:
		state = v.Status.State
	case *a2a.Task:
		state = v.Status.State
	default:
		return false
	}
	return state.Final()
}
