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
	"fmt"
)

// UnmarshalEvent decodes an [Event] using the "kind" discriminator.
func UnmarshalEvent(data []byte) (Event, error) {
	var te struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(data, &te); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	switch te.Kind {
	case KindMessage:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Message event: %w", err)
		}
		return &msg, nil
	case KindTask:
		var task Task
		if err := json.Unmarshal(data, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal Task event: %w", err)
		}
		return &task, nil
	case KindStatusUpdate:
		var statusUpdate TaskStatusUpdateEvent
		if err := json.Unmarshal(data, &statusUpdate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal TaskStatusUpdateEvent: %w", err)
		}
		return &statusUpdate, nil
	case KindArtifactUpdate:
		var artifactUpdate TaskArtifactUpdateEvent
		if err := json.Unmarshal(data, &artifactUpdate); err != nil {
			return nil, fmt.Errorf("failed to unmarshal TaskArtifactUpdateEvent: %w", err)
		}
		return &artifactUpdate, nil
	default:
		return nil, fmt.Errorf("unknown event kind: %q", te.Kind)
	}
}

// CloneEvent returns a deep copy of the event which shares no memory with the original.
func CloneEvent(event Event) (Event, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to copy event: %w", err)
	}
	return UnmarshalEvent(data)
}
