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
package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/cacheapi"
)

// DefaultRemoteTTL is the time-to-live attached to every snapshot written by [Remote].
const DefaultRemoteTTL = 300 * time.Second

// RemoteStoreConfig is a configuration for [Remote] store.
type RemoteStoreConfig struct {
	// TTL overrides [DefaultRemoteTTL].
	TTL time.Duration
}

// Remote is an implementation of [Store] backed by a hosted cache. Snapshots are stored
// as JSON documents keyed by task ID and expire after the configured TTL.
type Remote struct {
	client *cacheapi.Client
	ttl    time.Duration
}

var _ Store = (*Remote)(nil)

// NewRemote creates a [Remote] store which uses the provided cache client.
func NewRemote(client *cacheapi.Client, config *RemoteStoreConfig) *Remote {
	ttl := DefaultRemoteTTL
	if config != nil && config.TTL > 0 {
		ttl = config.TTL
	}
	return &Remote{client: client, ttl: ttl}
}

// Save implements [Store] interface.
func (s *Remote) Save(ctx context.Context, data *TaskAndHistory) error {
	if err := validate(data); err != nil {
		return err
	}
	bytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot: %w", err)
	}
	if err := s.client.Set(ctx, string(data.Task.ID), bytes, s.ttl); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Load implements [Store] interface.
func (s *Remote) Load(ctx context.Context, taskID a2a.TaskID) (*TaskAndHistory, error) {
	bytes, err := s.client.Get(ctx, string(taskID))
	if errors.Is(err, cacheapi.ErrNotFound) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	var data TaskAndHistory
	if err := json.Unmarshal(bytes, &data); err != nil {
		return nil, fmt.Errorf("failed to deserialize snapshot: %w", err)
	}
	if data.Task == nil {
		return nil, a2a.ErrTaskNotFound
	}
	return &data, nil
}
