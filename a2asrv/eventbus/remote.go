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
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/cacheapi"
	"github.com/a2aproject/a2a-relay/log"
)

const defaultPollInterval = 100 * time.Millisecond

// RemoteConfig is a configuration for [Remote] bus.
type RemoteConfig struct {
	// PollInterval is the pause between two successful topic polls. Defaults to 100ms.
	PollInterval time.Duration
	// RetryPolicy controls the pause after a failed poll. Defaults to a fixed 100ms backoff.
	RetryPolicy RetryPolicy
	// PollErrors is incremented for every failed poll if set.
	PollErrors prometheus.Counter
	// Logger is used by the polling goroutines. Defaults to [slog.Default].
	Logger *slog.Logger
}

type poller struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Remote is a [ContextBus] which publishes events to a topic named after the event
// context ID and delivers events it reads from the topics of registered contexts.
// Publish does not deliver to local listeners directly: listeners of all processes
// polling the context, including this one, receive the event from the topic.
type Remote struct {
	registry

	client  *cacheapi.Client
	config  RemoteConfig
	baseCtx context.Context

	mu      sync.Mutex
	pollers map[string]*poller
	closed  bool
}

var _ ContextBus = (*Remote)(nil)

// NewRemote creates a [Remote] bus which uses the provided cache client.
func NewRemote(client *cacheapi.Client, config *RemoteConfig) *Remote {
	b := &Remote{client: client, pollers: make(map[string]*poller)}
	if config != nil {
		b.config = *config
	}
	if b.config.PollInterval <= 0 {
		b.config.PollInterval = defaultPollInterval
	}
	if b.config.RetryPolicy == nil {
		b.config.RetryPolicy = FixedBackoff{Delay: defaultPollInterval}
	}
	b.baseCtx = context.Background()
	if b.config.Logger != nil {
		b.baseCtx = log.AttachLogger(b.baseCtx, b.config.Logger)
	}
	return b
}

// Publish implements [Bus] interface. It returns after the topic service acknowledged
// the event.
func (b *Remote) Publish(ctx context.Context, event a2a.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	contextID := event.TaskInfo().ContextID
	if contextID == "" {
		return ErrMissingContextID
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	if err := b.client.Publish(ctx, contextID, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// RegisterContext implements [ContextBus] interface. It starts a goroutine which polls
// the context topic until the context is unregistered.
func (b *Remote) RegisterContext(contextID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if _, ok := b.pollers[contextID]; ok {
		return
	}

	ctx, cancel := context.WithCancel(b.baseCtx)
	p := &poller{cancel: cancel, done: make(chan struct{})}
	b.pollers[contextID] = p
	go b.poll(ctx, contextID, p)
}

// UnregisterContext implements [ContextBus] interface. An in-flight poll is aborted.
func (b *Remote) UnregisterContext(contextID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p, ok := b.pollers[contextID]; ok {
		p.cancel()
		delete(b.pollers, contextID)
	}
}

// UnsubscribeAll removes all listeners and unregisters every context.
func (b *Remote) UnsubscribeAll() {
	b.registry.UnsubscribeAll()
	b.stopPollers()
}

// Close removes all listeners and waits for the polling goroutines to exit. Contexts
// registered after Close are ignored.
func (b *Remote) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	b.registry.UnsubscribeAll()
	for _, p := range b.stopPollers() {
		<-p.done
	}
}

func (b *Remote) stopPollers() []*poller {
	b.mu.Lock()
	defer b.mu.Unlock()
	stopped := make([]*poller, 0, len(b.pollers))
	for contextID, p := range b.pollers {
		p.cancel()
		stopped = append(stopped, p)
		delete(b.pollers, contextID)
	}
	return stopped
}

// RegisteredContexts returns the number of contexts being polled.
func (b *Remote) RegisteredContexts() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pollers)
}

func (b *Remote) poll(ctx context.Context, contextID string, p *poller) {
	defer close(p.done)

	ctx = log.AttachLogger(ctx, log.LoggerFrom(ctx).With(slog.String("context_id", contextID)))
	var cursor cacheapi.Cursor
	failures := 0
	for {
		entries, err := b.client.Poll(ctx, contextID, cursor)
		if ctx.Err() != nil {
			return
		}

		delay := b.config.PollInterval
		if err != nil {
			log.Warn(ctx, "topic poll failed", "error", err, "attempt", failures)
			if b.config.PollErrors != nil {
				b.config.PollErrors.Inc()
			}
			delay = b.config.RetryPolicy.NextDelay(failures)
			failures++
		} else {
			failures = 0
			for _, entry := range entries {
				cursor = b.handleEntry(ctx, cursor, entry)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (b *Remote) handleEntry(ctx context.Context, cursor cacheapi.Cursor, entry cacheapi.PollEntry) cacheapi.Cursor {
	if d := entry.Discontinuity; d != nil {
		log.Debug(ctx, "topic discontinuity", "new_sequence", d.NewSequence, "new_page", d.NewPage)
		return cacheapi.Cursor{SequenceNumber: d.NewSequence + 1, SequencePage: d.NewPage}
	}

	item := entry.Item
	if item == nil || behind(item, cursor) {
		return cursor
	}
	next := cacheapi.Cursor{SequenceNumber: item.SequenceNumber + 1, SequencePage: item.SequencePage}

	event, err := a2a.UnmarshalEvent(item.Value)
	if err != nil {
		log.Error(ctx, "failed to decode topic item", err, "sequence_number", item.SequenceNumber)
		return next
	}
	b.emit(ctx, event)
	return next
}

func behind(item *cacheapi.TopicItem, cursor cacheapi.Cursor) bool {
	if item.SequencePage != cursor.SequencePage {
		return item.SequencePage < cursor.SequencePage
	}
	return item.SequenceNumber < cursor.SequenceNumber
}
