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
package eventbus

import (
	"context"
	"sync"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/log"
)

// Factory creates a new bus for an execution.
type Factory func() ContextBus

// Manager tracks the bus of every active execution. A bus is keyed by the ID of the
// message which started the execution and can additionally be found by the ID of the
// task the message was bound to. Tasks never create a bus.
type Manager struct {
	factory Factory

	mu            sync.Mutex
	byMessage     map[string]ContextBus
	taskToMessage map[a2a.TaskID]string
}

// NewManager creates a [Manager]. Buses are created with [NewLocal] if factory is nil.
func NewManager(factory Factory) *Manager {
	if factory == nil {
		factory = func() ContextBus { return NewLocal() }
	}
	return &Manager{
		factory:       factory,
		byMessage:     make(map[string]ContextBus),
		taskToMessage: make(map[a2a.TaskID]string),
	}
}

// CreateOrGetByMessageID returns the bus of the message, creating it if needed, and
// registers the context on it.
func (m *Manager) CreateOrGetByMessageID(messageID, contextID string) ContextBus {
	m.mu.Lock()
	bus, ok := m.byMessage[messageID]
	if !ok {
		bus = m.factory()
		m.byMessage[messageID] = bus
	}
	m.mu.Unlock()

	bus.RegisterContext(contextID)
	return bus
}

// AssociateTask makes the bus of the message available by task ID. It does nothing
// if the message has no bus.
func (m *Manager) AssociateTask(ctx context.Context, taskID a2a.TaskID, messageID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byMessage[messageID]; !ok {
		log.Warn(ctx, "no bus for message, cannot bind task", "message_id", messageID, "task_id", taskID)
		return
	}
	m.taskToMessage[taskID] = messageID
}

// GetByTaskID returns the bus the task was associated with.
func (m *Manager) GetByTaskID(taskID a2a.TaskID) (ContextBus, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	messageID, ok := m.taskToMessage[taskID]
	if !ok {
		return nil, false
	}
	bus, ok := m.byMessage[messageID]
	return bus, ok
}

// CleanupByMessageID removes all listeners of the message bus, stops its context
// registrations and forgets the bus together with its task aliases.
func (m *Manager) CleanupByMessageID(messageID string) {
	m.mu.Lock()
	bus, ok := m.byMessage[messageID]
	delete(m.byMessage, messageID)
	for taskID, msgID := range m.taskToMessage {
		if msgID == messageID {
			delete(m.taskToMessage, taskID)
		}
	}
	m.mu.Unlock()

	if ok {
		bus.UnsubscribeAll()
	}
}

// Len returns the number of tracked buses.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byMessage)
}
