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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/log"
)

// SQLSchema creates the table used by [SQL] store. It uses MySQL dialect.
const SQLSchema = `
CREATE TABLE IF NOT EXISTS task_snapshot (
	id VARCHAR(64) NOT NULL PRIMARY KEY,
	context_id VARCHAR(64) NOT NULL,
	state VARCHAR(32) NOT NULL,
	snapshot_json LONGTEXT NOT NULL,
	updated_at BIGINT NOT NULL,
	INDEX idx_task_snapshot_context (context_id)
)`

// SQLStoreConfig is a configuration for [SQL] store.
type SQLStoreConfig struct {
	// TTL makes snapshots which were not saved for longer than TTL invisible to Load.
	// Zero means snapshots never expire.
	TTL time.Duration
	// TimeProvider overrides time.Now.
	TimeProvider func() time.Time
}

// SQL is an implementation of [Store] backed by a relational database reached
// through database/sql. The caller owns the *sql.DB and registers the driver.
type SQL struct {
	db     *sql.DB
	config SQLStoreConfig
}

var _ Store = (*SQL)(nil)

// NewSQL creates a [SQL] store.
func NewSQL(db *sql.DB, config *SQLStoreConfig) *SQL {
	s := &SQL{db: db}
	if config != nil {
		s.config = *config
	}
	if s.config.TimeProvider == nil {
		s.config.TimeProvider = time.Now
	}
	return s
}

// EnsureSchema creates the snapshot table if it does not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SQLSchema); err != nil {
		return fmt.Errorf("failed to create task_snapshot table: %w", err)
	}
	return nil
}

// Save implements [Store] interface.
func (s *SQL) Save(ctx context.Context, data *TaskAndHistory) error {
	if err := validate(data); err != nil {
		return err
	}
	snapshotJSON, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	defer rollbackTx(ctx, tx)

	task := data.Task
	_, err = tx.ExecContext(ctx, `
		INSERT INTO task_snapshot (id, context_id, state, snapshot_json, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			context_id = VALUES(context_id),
			state = VALUES(state),
			snapshot_json = VALUES(snapshot_json),
			updated_at = VALUES(updated_at)
	`, task.ID, task.ContextID, task.Status.State, string(snapshotJSON), s.config.TimeProvider().UnixNano())
	if err != nil {
		return fmt.Errorf("%w: failed to upsert snapshot: %w", ErrStoreUnavailable, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// Load implements [Store] interface.
func (s *SQL) Load(ctx context.Context, taskID a2a.TaskID) (*TaskAndHistory, error) {
	var snapshotJSON string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, "SELECT snapshot_json, updated_at FROM task_snapshot WHERE id = ?", taskID).
		Scan(&snapshotJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, a2a.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	if s.config.TTL > 0 && s.config.TimeProvider().Sub(time.Unix(0, updatedAt)) > s.config.TTL {
		return nil, a2a.ErrTaskNotFound
	}

	var data TaskAndHistory
	if err := json.Unmarshal([]byte(snapshotJSON), &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &data, nil
}

func rollbackTx(ctx context.Context, tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Warn(ctx, "snapshot transaction rollback failed", "error", err)
	}
}
