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
// Package a2aclient provides a client for agents serving the task protocol over JSON-RPC.
package a2aclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/internal/jsonrpc"
	"github.com/a2aproject/a2a-relay/internal/sse"
	"github.com/a2aproject/a2a-relay/log"
)

// Client sends task requests to a single agent endpoint.
type Client struct {
	url        string
	httpClient *http.Client
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the default http.Client, which uses a 3-minute timeout.
// The timeout applies to streams as a whole.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a [Client] sending requests to the JSON-RPC endpoint at url.
func NewClient(url string, opts ...Option) *Client {
	c := &Client{url: url, httpClient: &http.Client{Timeout: 3 * time.Minute}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromCard creates a [Client] for the endpoint advertised in the card.
func NewFromCard(card *a2a.AgentCard, opts ...Option) (*Client, error) {
	if card == nil || card.URL == "" {
		return nil, fmt.Errorf("agent card has no url")
	}
	return NewClient(card.URL, opts...), nil
}

// SendTask sends a message to the task and waits until the agent finished processing it.
func (c *Client) SendTask(ctx context.Context, params *a2a.TaskSendParams) (*a2a.Task, error) {
	return callForTask(ctx, c, jsonrpc.MethodTasksSend, params)
}

// GetTask retrieves the current state of a task.
func (c *Client) GetTask(ctx context.Context, params *a2a.TaskQueryParams) (*a2a.Task, error) {
	return callForTask(ctx, c, jsonrpc.MethodTasksGet, params)
}

// CancelTask requests the cancelation of a task.
func (c *Client) CancelTask(ctx context.Context, params *a2a.TaskIDParams) (*a2a.Task, error) {
	return callForTask(ctx, c, jsonrpc.MethodTasksCancel, params)
}

// SendTaskSubscribe sends a message to the task and streams the updates produced while
// the agent processes it. The sequence ends after the first error.
func (c *Client) SendTaskSubscribe(ctx context.Context, params *a2a.TaskSendParams) iter.Seq2[a2a.Event, error] {
	return func(yield func(a2a.Event, error) bool) {
		httpReq, err := c.newHTTPRequest(ctx, jsonrpc.MethodTasksSendSubscribe, params)
		if err != nil {
			yield(nil, err)
			return
		}
		httpReq.Header.Set("Accept", sse.ContentEventStream)

		httpResp, err := c.httpClient.Do(httpReq)
		if err != nil {
			yield(nil, fmt.Errorf("failed to send HTTP request: %w", err))
			return
		}
		defer closeBody(ctx, httpResp)

		if httpResp.StatusCode != http.StatusOK {
			yield(nil, fmt.Errorf("unexpected HTTP status: %s", httpResp.Status))
			return
		}

		// Validation failures are answered with a single JSON response instead of a stream.
		if httpResp.Header.Get("Content-Type") != sse.ContentEventStream {
			_, err := decodeResponse(json.NewDecoder(httpResp.Body).Decode)
			if err == nil {
				err = fmt.Errorf("expected an event stream, got %s", httpResp.Header.Get("Content-Type"))
			}
			yield(nil, err)
			return
		}

		for data, err := range sse.ParseDataStream(httpResp.Body) {
			if err != nil {
				yield(nil, err)
				return
			}
			result, err := decodeResponse(func(v any) error { return json.Unmarshal(data, v) })
			if err != nil {
				yield(nil, err)
				return
			}
			event, err := a2a.UnmarshalEvent(result)
			if err != nil {
				yield(nil, fmt.Errorf("failed to decode stream event: %w", err))
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

func callForTask(ctx context.Context, c *Client, method string, params any) (*a2a.Task, error) {
	result, err := c.call(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var task a2a.Task
	if err := json.Unmarshal(result, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &task, nil
}

func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	httpReq, err := c.newHTTPRequest(ctx, method, params)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer closeBody(ctx, httpResp)

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected HTTP status: %s", httpResp.Status)
	}
	return decodeResponse(json.NewDecoder(httpResp.Body).Decode)
}

func (c *Client) newHTTPRequest(ctx context.Context, method string, params any) (*http.Request, error) {
	reqBody, err := json.Marshal(jsonrpc.ClientRequest{
		JSONRPC: jsonrpc.Version,
		Method:  method,
		Params:  params,
		ID:      uuid.NewString(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", jsonrpc.ContentJSON)
	return httpReq, nil
}

// decodeResponse decodes a response envelope and converts JSON-RPC errors to a2a errors.
func decodeResponse(decode func(any) error) (json.RawMessage, error) {
	var resp jsonrpc.ClientResponse
	if err := decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error.ToA2AError()
	}
	return resp.Result, nil
}

func closeBody(ctx context.Context, resp *http.Response) {
	if err := resp.Body.Close(); err != nil {
		log.Error(ctx, "failed to close http response body", err)
	}
}
