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
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/utils"
)

// InMemoryStoreConfig is a configuration for [InMemory] store.
type InMemoryStoreConfig struct {
	// MaxEntries limits the number of stored snapshots. The least recently used snapshot
	// is evicted when the limit is reached. Zero means unbounded.
	MaxEntries int
	// TTL is the time after which a snapshot is evicted. Zero means snapshots never expire.
	TTL time.Duration
}

// InMemory is an implementation of [Store] which stores snapshots in memory.
// This means that store contents do not survive server restarts.
type InMemory struct {
	cache *expirable.LRU[a2a.TaskID, *TaskAndHistory]
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty [InMemory] store.
func NewInMemory(config *InMemoryStoreConfig) *InMemory {
	var cfg InMemoryStoreConfig
	if config != nil {
		cfg = *config
	}
	return &InMemory{cache: expirable.NewLRU[a2a.TaskID, *TaskAndHistory](max(cfg.MaxEntries, 0), nil, cfg.TTL)}
}

// Save implements [Store] interface.
func (s *InMemory) Save(ctx context.Context, data *TaskAndHistory) error {
	if err := validate(data); err != nil {
		return err
	}
	copy, err := utils.DeepCopy(data)
	if err != nil {
		return fmt.Errorf("snapshot copy failed: %w", err)
	}
	s.cache.Add(data.Task.ID, copy)
	return nil
}

// Load implements [Store] interface.
func (s *InMemory) Load(ctx context.Context, taskID a2a.TaskID) (*TaskAndHistory, error) {
	stored, ok := s.cache.Get(taskID)
	if !ok {
		return nil, a2a.ErrTaskNotFound
	}
	copy, err := utils.DeepCopy(stored)
	if err != nil {
		return nil, fmt.Errorf("snapshot copy failed: %w", err)
	}
	return copy, nil
}

// Len returns the number of snapshots currently held by the store.
func (s *InMemory) Len() int {
	return s.cache.Len()
}
