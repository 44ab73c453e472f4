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
package a2asrv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/a2asrv/eventbus"
	"github.com/a2aproject/a2a-relay/internal/jsonrpc"
)

type wireResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *jsonrpc.Error  `json:"error"`
}

func decodeResponse(t *testing.T, resp *jsonrpc.ServerResponse) wireResponse {
	t.Helper()
	data, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var result wireResponse
	if err := json.Unmarshal(data, &result); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	return result
}

func TestJSONRPCHandler_HandleErrors(t *testing.T) {
	handler := NewJSONRPCHandler(NewHandler(echoExecutor()))

	testCases := []struct {
		name     string
		body     string
		wantID   any
		wantCode int
		wantData map[string]any
	}{
		{
			name:     "malformed json",
			body:     `{"jsonrpc":"2.0",`,
			wantCode: -32700,
		},
		{
			name:     "not an object",
			body:     `[1,2]`,
			wantCode: -32600,
		},
		{
			name:     "wrong version",
			body:     `{"jsonrpc":"1.0","method":"tasks/get","id":1}`,
			wantCode: -32600,
		},
		{
			name:     "params not structured",
			body:     `{"jsonrpc":"2.0","method":"tasks/get","params":"t1","id":1}`,
			wantCode: -32600,
		},
		{
			name:     "unknown method",
			body:     `{"jsonrpc":"2.0","method":"tasks/list","id":"r1"}`,
			wantID:   "r1",
			wantCode: -32601,
		},
		{
			name:     "missing params",
			body:     `{"jsonrpc":"2.0","method":"tasks/get","id":2}`,
			wantID:   float64(2),
			wantCode: -32602,
		},
		{
			name:     "task not found",
			body:     `{"jsonrpc":"2.0","method":"tasks/get","params":{"id":"missing"},"id":3}`,
			wantID:   float64(3),
			wantCode: -32001,
			wantData: map[string]any{"taskId": "missing"},
		},
		{
			name:     "invalid send params",
			body:     `{"jsonrpc":"2.0","method":"tasks/send","params":{"id":"t1"},"id":4}`,
			wantID:   float64(4),
			wantCode: -32602,
			wantData: map[string]any{"taskId": "t1"},
		},
		{
			name:     "invalid subscribe params",
			body:     `{"jsonrpc":"2.0","method":"tasks/sendSubscribe","params":{"id":"t1"},"id":5}`,
			wantID:   float64(5),
			wantCode: -32602,
			wantData: map[string]any{"taskId": "t1"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp, stream := handler.Handle(t.Context(), []byte(tc.body))
			if stream != nil || resp == nil {
				t.Fatalf("handler.Handle() = (%v, %v), want a single response", resp, stream)
			}
			got := decodeResponse(t, resp)
			if got.Error == nil {
				t.Fatalf("handler.Handle() result = %s, want error", got.Result)
			}
			if got.Error.Code != tc.wantCode {
				t.Fatalf("handler.Handle() error code = %d, want %d", got.Error.Code, tc.wantCode)
			}
			if diff := cmp.Diff(tc.wantID, got.ID); diff != "" {
				t.Fatalf("handler.Handle() wrong id (-want +got) diff = %s", diff)
			}
			if tc.wantData != nil {
				if diff := cmp.Diff(tc.wantData["taskId"], got.Error.Data["taskId"]); diff != "" {
					t.Fatalf("handler.Handle() wrong error data (-want +got) diff = %s", diff)
				}
			}
		})
	}
}

func TestJSONRPCHandler_HandleSend(t *testing.T) {
	handler := NewJSONRPCHandler(NewHandler(echoExecutor()))
	body := `{"jsonrpc":"2.0","method":"tasks/send","id":"r1","params":{"id":"t1","message":{"role":"user","messageId":"m1","parts":[{"kind":"text","text":"hi"}]}}}`

	resp, stream := handler.Handle(t.Context(), []byte(body))
	if stream != nil || resp == nil {
		t.Fatalf("handler.Handle() = (%v, %v), want a single response", resp, stream)
	}
	got := decodeResponse(t, resp)
	if got.Error != nil {
		t.Fatalf("handler.Handle() error = %v", got.Error)
	}
	var task a2a.Task
	if err := json.Unmarshal(got.Result, &task); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if task.ID != "t1" || task.Status.State != a2a.TaskStateCompleted || len(task.History) != 2 {
		t.Fatalf("handler.Handle() task = %+v, want completed t1 with 2 messages", task)
	}
}

func TestJSONRPCHandler_HandleSubscribeReturnsStream(t *testing.T) {
	handler := NewJSONRPCHandler(NewHandler(echoExecutor()))
	body := `{"jsonrpc":"2.0","method":"tasks/sendSubscribe","id":7,"params":{"id":"t1","message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`

	resp, stream := handler.Handle(t.Context(), []byte(body))
	if resp != nil || stream == nil {
		t.Fatalf("handler.Handle() = (%v, %v), want a stream", resp, stream)
	}
	var responses []wireResponse
	for r := range stream {
		responses = append(responses, decodeResponse(t, r))
	}
	if len(responses) != 1 {
		t.Fatalf("stream length = %d, want 1", len(responses))
	}
	var update a2a.TaskStatusUpdateEvent
	if err := json.Unmarshal(responses[0].Result, &update); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if update.Status.State != a2a.TaskStateCompleted || !update.Final || responses[0].ID != float64(7) {
		t.Fatalf("stream response = %+v, want final completed update for request 7", responses[0])
	}
}

type sseTestFrame struct {
	id    string
	event string
	data  string
}

func parseSSEFrames(t *testing.T, body string) []sseTestFrame {
	t.Helper()
	var frames []sseTestFrame
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		if strings.HasPrefix(block, ":") {
			continue
		}
		var frame sseTestFrame
		for _, line := range strings.Split(block, "\n") {
			key, value, _ := strings.Cut(line, ": ")
			switch key {
			case "id":
				frame.id = value
			case "event":
				frame.event = value
			case "data":
				frame.data = value
			}
		}
		frames = append(frames, frame)
	}
	return frames
}

func TestJSONRPCHandler_ServeHTTPStreamError(t *testing.T) {
	executor := AgentExecutorFunc(func(ctx context.Context, reqCtx *RequestContext, bus eventbus.Bus) error {
		if err := bus.Publish(ctx, a2a.NewStatusUpdateEvent(reqCtx, a2a.TaskStateWorking, nil)); err != nil {
			return err
		}
		return errors.New("model unavailable")
	})
	server := httptest.NewServer(NewJSONRPCHandler(NewHandler(executor, WithSettlePeriod(10*time.Millisecond))))
	t.Cleanup(server.Close)

	body := `{"jsonrpc":"2.0","method":"tasks/sendSubscribe","id":"r1","params":{"id":"t1","message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`
	resp, err := server.Client().Post(server.URL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("http.Post() error = %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if got := resp.Header.Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", got)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("io.ReadAll() error = %v", err)
	}

	frames := parseSSEFrames(t, string(raw))
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2: %q", len(frames), raw)
	}
	for _, frame := range frames {
		if frame.id == "" {
			t.Fatalf("frame %+v has no id", frame)
		}
	}
	if frames[0].event != "" || !strings.Contains(frames[0].data, `"state":"working"`) {
		t.Fatalf("first frame = %+v, want working update", frames[0])
	}
	if frames[1].event != "error" {
		t.Fatalf("second frame event = %q, want error", frames[1].event)
	}
	var errResp wireResponse
	if err := json.Unmarshal([]byte(frames[1].data), &errResp); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if errResp.Error == nil || errResp.Error.Code != -32603 || errResp.Error.Data["taskId"] != "t1" || errResp.ID != "r1" {
		t.Fatalf("error frame = %+v, want internal error for t1", errResp)
	}
}

func TestJSONRPCHandler_ServeHTTP(t *testing.T) {
	server := httptest.NewServer(NewJSONRPCHandler(NewHandler(echoExecutor())))
	t.Cleanup(server.Close)

	t.Run("get is not allowed", func(t *testing.T) {
		resp, err := server.Client().Get(server.URL)
		if err != nil {
			t.Fatalf("http.Get() error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
		}
	})

	t.Run("send", func(t *testing.T) {
		body := `{"jsonrpc":"2.0","method":"tasks/send","id":1,"params":{"id":"t1","message":{"role":"user","parts":[{"kind":"text","text":"hi"}]}}}`
		resp, err := server.Client().Post(server.URL, "application/json", bytes.NewReader([]byte(body)))
		if err != nil {
			t.Fatalf("http.Post() error = %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "application/json" {
			t.Fatalf("response = %d %q, want 200 application/json", resp.StatusCode, resp.Header.Get("Content-Type"))
		}
		var got wireResponse
		if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
			t.Fatalf("json.Decode() error = %v", err)
		}
		if got.Error != nil || got.JSONRPC != "2.0" {
			t.Fatalf("response = %+v, want a result", got)
		}
	})
}
