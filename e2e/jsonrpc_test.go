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
package e2e_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2aclient"
	"github.com/a2aproject/a2a-relay/a2asrv"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
	"github.com/a2aproject/a2a-relay/internal/testutil/testexecutor"
)

func newAgentCard(url string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               "Test Agent",
		URL:                url,
		Version:            "1.0.0",
		Capabilities:       a2a.AgentCapabilities{Streaming: true},
		DefaultInputModes:  []string{"text"},
		DefaultOutputModes: []string{"text"},
	}
}

// startServer serves the handler under /invoke and its card under the well-known path,
// and returns a client created from the resolved card.
func startServer(t *testing.T, handler a2asrv.RequestHandler) *a2aclient.Client {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	mux.Handle(a2asrv.WellKnownAgentCardPath, a2asrv.NewStaticAgentCardHandler(newAgentCard(server.URL+"/invoke")))
	mux.Handle("/invoke", a2asrv.NewJSONRPCHandler(handler, a2asrv.WithKeepAlive(10*time.Millisecond)))

	card, err := a2aclient.ResolveAgentCard(t.Context(), server.URL, server.Client())
	if err != nil {
		t.Fatalf("a2aclient.ResolveAgentCard() error = %v", err)
	}
	client, err := a2aclient.NewFromCard(card, a2aclient.WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("a2aclient.NewFromCard() error = %v", err)
	}
	return client
}

func userMessage(taskID a2a.TaskID, text string) *a2a.TaskSendParams {
	return &a2a.TaskSendParams{ID: taskID, Message: a2a.NewMessage(a2a.MessageRoleUser, a2a.NewTextPart(text))}
}

func eventKinds(events []a2a.Event) []string {
	var result []string
	for _, event := range events {
		result = append(result, event.Kind())
	}
	return result
}

func TestJSONRPC_Streaming(t *testing.T) {
	ctx := t.Context()
	executor := testexecutor.FromEventGenerator(func(reqCtx *a2asrv.RequestContext) []a2a.Event {
		return []a2a.Event{
			a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil),
			a2a.NewArtifactEvent(reqCtx, &a2a.Artifact{Index: a2a.Ptr(0), Parts: a2a.ContentParts{a2a.NewTextPart("Hello")}}),
			a2a.NewArtifactEvent(reqCtx, &a2a.Artifact{Index: a2a.Ptr(0), Append: true, LastChunk: true, Parts: a2a.ContentParts{a2a.NewTextPart(", world!")}}),
			a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateCompleted, a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.NewTextPart("Done!"))),
		}
	})
	client := startServer(t, a2asrv.NewHandler(executor))

	var received []a2a.Event
	for event, err := range client.SendTaskSubscribe(ctx, userMessage("t1", "Work")) {
		if err != nil {
			t.Fatalf("client.SendTaskSubscribe() error = %v", err)
		}
		received = append(received, event)
	}

	if diff := cmp.Diff(eventKinds(executor.Emitted()), eventKinds(received)); diff != "" {
		t.Fatalf("client.SendTaskSubscribe() wrong events (-want +got) diff = %s", diff)
	}
	last := received[len(received)-1].(*a2a.TaskStatusUpdateEvent)
	if !last.Final || last.Status.State != a2a.TaskStateCompleted {
		t.Fatalf("client.SendTaskSubscribe() last event = %+v, want final completed update", last)
	}

	task, err := client.GetTask(ctx, &a2a.TaskQueryParams{ID: "t1"})
	if err != nil {
		t.Fatalf("client.GetTask() error = %v", err)
	}
	wantArtifacts := []*a2a.Artifact{{
		Index:     a2a.Ptr(0),
		LastChunk: true,
		Parts:     a2a.ContentParts{a2a.NewTextPart("Hello"), a2a.NewTextPart(", world!")},
	}}
	if diff := cmp.Diff(wantArtifacts, task.Artifacts); diff != "" {
		t.Fatalf("client.GetTask() wrong artifacts (-want +got) diff = %s", diff)
	}
}

func TestJSONRPC_StreamingPanic(t *testing.T) {
	ctx := t.Context()
	executor := testexecutor.FromFunction(func(ctx context.Context, reqCtx *a2asrv.RequestContext, bus eventbus.Bus) error {
		panic("oh no")
	})
	client := startServer(t, a2asrv.NewHandler(executor, a2asrv.WithSettlePeriod(time.Millisecond)))

	var gotErr error
	for _, err := range client.SendTaskSubscribe(ctx, userMessage("t1", "Work")) {
		gotErr = err
	}
	if !errors.Is(gotErr, a2a.ErrInternalError) {
		t.Fatalf("client.SendTaskSubscribe() error = %v, want %v", gotErr, a2a.ErrInternalError)
	}

	task, err := client.GetTask(ctx, &a2a.TaskQueryParams{ID: "t1"})
	if err != nil {
		t.Fatalf("client.GetTask() error = %v", err)
	}
	if task.Status.State != a2a.TaskStateFailed {
		t.Fatalf("client.GetTask() state = %q, want %q", task.Status.State, a2a.TaskStateFailed)
	}
}

func TestJSONRPC_CancelRunningTask(t *testing.T) {
	ctx := t.Context()
	executor := testexecutor.Blocking()
	client := startServer(t, a2asrv.NewHandler(executor))

	type result struct {
		events []a2a.Event
		err    error
	}
	resultc := make(chan result, 1)
	go func() {
		var r result
		for event, err := range client.SendTaskSubscribe(ctx, userMessage("t1", "Work")) {
			if err != nil {
				r.err = err
				break
			}
			r.events = append(r.events, event)
		}
		resultc <- r
	}()

	select {
	case <-executor.Started():
	case <-time.After(5 * time.Second):
		t.Fatal("executor was not started")
	}

	task, err := client.CancelTask(ctx, &a2a.TaskIDParams{ID: "t1"})
	if err != nil {
		t.Fatalf("client.CancelTask() error = %v", err)
	}
	if task.Status.State != a2a.TaskStateCanceled {
		t.Fatalf("client.CancelTask() state = %q, want %q", task.Status.State, a2a.TaskStateCanceled)
	}

	r := <-resultc
	if r.err != nil {
		t.Fatalf("client.SendTaskSubscribe() error = %v", r.err)
	}
	if diff := cmp.Diff([]string{a2a.KindStatusUpdate, a2a.KindStatusUpdate}, eventKinds(r.events)); diff != "" {
		t.Fatalf("client.SendTaskSubscribe() wrong events (-want +got) diff = %s", diff)
	}
	last := r.events[len(r.events)-1].(*a2a.TaskStatusUpdateEvent)
	if last.Status.State != a2a.TaskStateCanceled {
		t.Fatalf("client.SendTaskSubscribe() last state = %q, want %q", last.Status.State, a2a.TaskStateCanceled)
	}

	if _, err := client.CancelTask(ctx, &a2a.TaskIDParams{ID: "t1"}); err != nil {
		t.Fatalf("client.CancelTask() on a canceled task error = %v", err)
	}
}

func TestJSONRPC_MultiTurn(t *testing.T) {
	ctx := t.Context()
	executor := testexecutor.FromFunction(func(ctx context.Context, reqCtx *a2asrv.RequestContext, bus eventbus.Bus) error {
		state, reply := a2a.TaskStateInputRequired, "Which city?"
		if len(reqCtx.History) > 1 {
			state, reply = a2a.TaskStateCompleted, "Sunny in "+reqCtx.UserMessage.Parts[0].Text()
		}
		msg := a2a.NewMessageForTask(a2a.MessageRoleAgent, reqCtx, a2a.NewTextPart(reply))
		return bus.Publish(ctx, a2a.NewStatusUpdateEvent(reqCtx, state, msg))
	})
	client := startServer(t, a2asrv.NewHandler(executor))

	task, err := client.SendTask(ctx, userMessage("t1", "Weather?"))
	if err != nil {
		t.Fatalf("client.SendTask() error = %v", err)
	}
	if task.Status.State != a2a.TaskStateInputRequired {
		t.Fatalf("client.SendTask() state = %q, want %q", task.Status.State, a2a.TaskStateInputRequired)
	}

	params := userMessage("t1", "Paris")
	params.ContextID = task.ContextID
	task, err = client.SendTask(ctx, params)
	if err != nil {
		t.Fatalf("client.SendTask() error = %v", err)
	}
	var history []string
	for _, msg := range task.History {
		history = append(history, msg.Parts[0].Text())
	}
	want := []string{"Weather?", "Which city?", "Paris", "Sunny in Paris"}
	if diff := cmp.Diff(want, history); diff != "" {
		t.Fatalf("client.SendTask() wrong history (-want +got) diff = %s", diff)
	}
}
