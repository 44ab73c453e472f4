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
	"errors"

	"github.com/a2aproject/a2a-relay/a2a"
)

// Local is an in-process [ContextBus]. Publish delivers the event synchronously to all
// listeners in subscription order before returning.
type Local struct {
	registry
}

var _ ContextBus = (*Local)(nil)

// NewLocal creates a [Local] bus without listeners.
func NewLocal() *Local {
	return &Local{}
}

// Publish implements [Bus] interface.
func (b *Local) Publish(ctx context.Context, event a2a.Event) error {
	if event == nil {
		return errors.New("event is required")
	}
	b.emit(ctx, event)
	return nil
}

// RegisterContext is a no-op, a local bus sees every published event.
func (b *Local) RegisterContext(contextID string) {}

// UnregisterContext is a no-op.
func (b *Local) UnregisterContext(contextID string) {}
