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
// Package eventbus fans out events produced by an agent execution to the observers of
// the execution. Events can be delivered in-process ([Local]) or through a hosted topic
// service ([Remote]) which makes them observable from other processes.
package eventbus

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/log"
)

// ErrMissingContextID is returned by [Remote.Publish] for events without a context ID.
var ErrMissingContextID = errors.New("event context id is required")

// Listener is invoked for every event delivered by a bus. Each listener receives its
// own copy of the event.
type Listener func(ctx context.Context, event a2a.Event)

// Subscription is a handle of a registered [Listener].
type Subscription struct {
	listener Listener
	once     bool
}

// Bus delivers published events to subscribed listeners.
type Bus interface {
	// Publish delivers the event to listeners of the bus.
	Publish(ctx context.Context, event a2a.Event) error
	// Subscribe registers a listener for every event delivered by the bus.
	Subscribe(l Listener) *Subscription
	// SubscribeOnce registers a listener which is removed after the first delivery.
	SubscribeOnce(l Listener) *Subscription
	// Unsubscribe removes the listener. It is a no-op for unknown subscriptions.
	Unsubscribe(s *Subscription)
	// UnsubscribeAll removes all listeners.
	UnsubscribeAll()
}

// ContextBus is a [Bus] which needs to know the contexts it should receive events for.
type ContextBus interface {
	Bus
	// RegisterContext starts receiving events published for the context. It is idempotent.
	RegisterContext(contextID string)
	// UnregisterContext stops receiving events published for the context.
	UnregisterContext(contextID string)
}

// SubscribeContext subscribes the listener to events of the given context only. The
// context is registered on the bus first if the bus implements [ContextBus].
func SubscribeContext(bus Bus, contextID string, l Listener) *Subscription {
	if cb, ok := bus.(ContextBus); ok {
		cb.RegisterContext(contextID)
	}
	return bus.Subscribe(func(ctx context.Context, event a2a.Event) {
		if event.TaskInfo().ContextID == contextID {
			l(ctx, event)
		}
	})
}

type registry struct {
	mu   sync.Mutex
	subs []*Subscription
}

func (r *registry) Subscribe(l Listener) *Subscription {
	return r.add(&Subscription{listener: l})
}

func (r *registry) SubscribeOnce(l Listener) *Subscription {
	return r.add(&Subscription{listener: l, once: true})
}

func (r *registry) add(s *Subscription) *Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, s)
	return s
}

func (r *registry) Unsubscribe(s *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = slices.DeleteFunc(r.subs, func(existing *Subscription) bool { return existing == s })
}

func (r *registry) UnsubscribeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = nil
}

func (r *registry) listenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.subs)
}

// emit calls listeners in subscription order. Once-listeners are removed before they are
// called so that concurrent emits never deliver to them twice.
func (r *registry) emit(ctx context.Context, event a2a.Event) {
	r.mu.Lock()
	subs := slices.Clone(r.subs)
	r.subs = slices.DeleteFunc(r.subs, func(s *Subscription) bool { return s.once })
	r.mu.Unlock()

	for _, s := range subs {
		copy, err := a2a.CloneEvent(event)
		if err != nil {
			log.Error(ctx, "failed to copy event for a listener", err, "kind", event.Kind())
			continue
		}
		s.listener(ctx, copy)
	}
}
