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
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/go-cmp/cmp"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/cacheapi"
	"github.com/a2aproject/a2a-relay/internal/testutil"
)

func newSnapshot(id a2a.TaskID) *TaskAndHistory {
	task := &a2a.Task{
		ID:        id,
		ContextID: "ctx-" + string(id),
		Status:    a2a.TaskStatus{State: a2a.TaskStateWorking},
		Artifacts: []*a2a.Artifact{{Index: a2a.Ptr(0), Name: "out", Parts: a2a.ContentParts{a2a.NewTextPart("x")}}},
	}
	msg := a2a.NewMessageForTask(a2a.MessageRoleUser, task, a2a.NewTextPart("hello"))
	task.History = []*a2a.Message{msg}
	return &TaskAndHistory{Task: task, History: []*a2a.Message{msg}}
}

func testStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := t.Context()

	t.Run("not found", func(t *testing.T) {
		if _, err := store.Load(ctx, a2a.NewTaskID()); !errors.Is(err, a2a.ErrTaskNotFound) {
			t.Fatalf("store.Load() error = %v, want %v", err, a2a.ErrTaskNotFound)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		want := newSnapshot(a2a.NewTaskID())
		if err := store.Save(ctx, want); err != nil {
			t.Fatalf("store.Save() error = %v", err)
		}
		got, err := store.Load(ctx, want.Task.ID)
		if err != nil {
			t.Fatalf("store.Load() error = %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("store.Load() wrong result (-want +got) diff = %s", diff)
		}
	})

	t.Run("save overwrites", func(t *testing.T) {
		snapshot := newSnapshot(a2a.NewTaskID())
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("store.Save() error = %v", err)
		}
		snapshot.Task.Status.State = a2a.TaskStateCompleted
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("store.Save() error = %v", err)
		}
		got, err := store.Load(ctx, snapshot.Task.ID)
		if err != nil {
			t.Fatalf("store.Load() error = %v", err)
		}
		if got.Task.Status.State != a2a.TaskStateCompleted {
			t.Fatalf("store.Load() state = %q, want %q", got.Task.Status.State, a2a.TaskStateCompleted)
		}
	})

	t.Run("copy isolation", func(t *testing.T) {
		snapshot := newSnapshot(a2a.NewTaskID())
		if err := store.Save(ctx, snapshot); err != nil {
			t.Fatalf("store.Save() error = %v", err)
		}
		snapshot.Task.Status.State = a2a.TaskStateFailed
		snapshot.History[0].Parts[0] = a2a.NewTextPart("mutated")

		loaded, err := store.Load(ctx, snapshot.Task.ID)
		if err != nil {
			t.Fatalf("store.Load() error = %v", err)
		}
		if loaded.Task.Status.State != a2a.TaskStateWorking || loaded.History[0].Parts[0].Text() != "hello" {
			t.Fatalf("store.Load() observed caller mutation after Save: %+v", loaded.Task)
		}

		loaded.Task.Artifacts[0].Name = "mutated"
		again, err := store.Load(ctx, snapshot.Task.ID)
		if err != nil {
			t.Fatalf("store.Load() error = %v", err)
		}
		if again.Task.Artifacts[0].Name != "out" {
			t.Fatalf("store.Load() observed mutation of a previous Load result")
		}
	})

	t.Run("invalid", func(t *testing.T) {
		if err := store.Save(ctx, &TaskAndHistory{}); err == nil {
			t.Fatal("store.Save() succeeded without a task, want error")
		}
		if err := store.Save(ctx, &TaskAndHistory{Task: &a2a.Task{}}); err == nil {
			t.Fatal("store.Save() succeeded without a task id, want error")
		}
	})
}

func TestInMemory_Contract(t *testing.T) {
	testStoreContract(t, NewInMemory(nil))
}

func TestInMemory_MaxEntries(t *testing.T) {
	ctx := t.Context()
	store := NewInMemory(&InMemoryStoreConfig{MaxEntries: 2})

	first, second, third := newSnapshot("t1"), newSnapshot("t2"), newSnapshot("t3")
	for _, s := range []*TaskAndHistory{first, second, third} {
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("store.Save() error = %v", err)
		}
	}

	if got := store.Len(); got != 2 {
		t.Fatalf("store.Len() = %d, want 2", got)
	}
	if _, err := store.Load(ctx, "t1"); !errors.Is(err, a2a.ErrTaskNotFound) {
		t.Fatalf("store.Load(evicted) error = %v, want %v", err, a2a.ErrTaskNotFound)
	}
	if _, err := store.Load(ctx, "t3"); err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
}

func TestInMemory_TTL(t *testing.T) {
	ctx := t.Context()
	store := NewInMemory(&InMemoryStoreConfig{TTL: 20 * time.Millisecond})
	if err := store.Save(ctx, newSnapshot("t1")); err != nil {
		t.Fatalf("store.Save() error = %v", err)
	}
	if _, err := store.Load(ctx, "t1"); err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if _, err := store.Load(ctx, "t1"); !errors.Is(err, a2a.ErrTaskNotFound) {
		t.Fatalf("store.Load(expired) error = %v, want %v", err, a2a.ErrTaskNotFound)
	}
}

func newRemoteStore(t *testing.T) (*Remote, *testutil.FakeCacheServer) {
	t.Helper()
	server := testutil.NewFakeCacheServer(t)
	client, err := cacheapi.NewClient("tasks", testutil.TestAPIKey, cacheapi.WithBaseURL(server.URL), cacheapi.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("cacheapi.NewClient() error = %v", err)
	}
	return NewRemote(client, nil), server
}

func TestRemote_Contract(t *testing.T) {
	store, _ := newRemoteStore(t)
	testStoreContract(t, store)
}

func TestRemote_WireFormat(t *testing.T) {
	ctx := t.Context()
	store, server := newRemoteStore(t)

	snapshot := newSnapshot("t1")
	if err := store.Save(ctx, snapshot); err != nil {
		t.Fatalf("store.Save() error = %v", err)
	}
	if got := server.TTL("t1"); got != "300" {
		t.Fatalf("ttl_seconds = %q, want 300", got)
	}

	raw, ok := server.Item("t1")
	if !ok {
		t.Fatal("snapshot was not written to the cache")
	}
	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	for _, key := range []string{"task", "history"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("stored snapshot %s has no %q key", raw, key)
		}
	}
}

func TestRemote_LoadValueWrittenElsewhere(t *testing.T) {
	ctx := t.Context()
	store, server := newRemoteStore(t)
	server.SetItem("t1", `{"task":{"kind":"task","id":"t1","contextId":"c1","status":{"state":"completed"}},"history":[]}`)

	got, err := store.Load(ctx, "t1")
	if err != nil {
		t.Fatalf("store.Load() error = %v", err)
	}
	want := &TaskAndHistory{
		Task:    &a2a.Task{ID: "t1", ContextID: "c1", Status: a2a.TaskStatus{State: a2a.TaskStateCompleted}},
		History: []*a2a.Message{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("store.Load() wrong result (-want +got) diff = %s", diff)
	}
}

func TestRemote_Unavailable(t *testing.T) {
	ctx := t.Context()
	store, server := newRemoteStore(t)
	server.FailNextWrites(1)

	if err := store.Save(ctx, newSnapshot("t1")); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("store.Save() error = %v, want %v", err, ErrStoreUnavailable)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := store.Load(canceled, "t1"); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("store.Load() error = %v, want %v", err, ErrStoreUnavailable)
	}
}

func TestSQL_Contract(t *testing.T) {
	dsn := os.Getenv("A2A_RELAY_TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("A2A_RELAY_TEST_MYSQL_DSN is not set")
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	store := NewSQL(db, nil)
	if err := store.EnsureSchema(t.Context()); err != nil {
		t.Fatalf("store.EnsureSchema() error = %v", err)
	}
	testStoreContract(t, store)

	t.Run("ttl", func(t *testing.T) {
		now := time.Now()
		expiring := NewSQL(db, &SQLStoreConfig{TTL: time.Minute, TimeProvider: func() time.Time { return now }})
		snapshot := newSnapshot(a2a.NewTaskID())
		if err := expiring.Save(t.Context(), snapshot); err != nil {
			t.Fatalf("store.Save() error = %v", err)
		}
		now = now.Add(2 * time.Minute)
		if _, err := expiring.Load(t.Context(), snapshot.Task.ID); !errors.Is(err, a2a.ErrTaskNotFound) {
			t.Fatalf("store.Load(expired) error = %v, want %v", err, a2a.ErrTaskNotFound)
		}
	})
}
