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

// Package cacheapi is a client for the HTTP API of a hosted cache service which offers
// key/value items with a time-to-live and sequenced pub/sub topics.
package cacheapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned by [Client.Get] when the key has no value.
var ErrNotFound = errors.New("cache item not found")

// StatusError is returned when the API responds with a non-2xx status code.
type StatusError struct {
	Op         string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cache api %s failed: %s", e.Op, e.Status)
}

// Client talks to the cache and topics endpoints of a single cache.
type Client struct {
	baseURL    string
	apiKey     string
	cacheName  string
	httpClient *http.Client
}

// Option is a functional option for configuring a [Client].
type Option func(*Client)

// WithHTTPClient overrides the default http.Client. Timeouts configured on the client
// apply to every call including topic polls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL sets the API base URL instead of deriving it from the API key.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// NewClient creates a [Client] for the named cache. Unless [WithBaseURL] is provided
// the base URL is derived from the API key using [BaseURLFromAPIKey].
func NewClient(cacheName, apiKey string, opts ...Option) (*Client, error) {
	if cacheName == "" {
		return nil, fmt.Errorf("cache name is required")
	}
	c := &Client{cacheName: cacheName, apiKey: apiKey, httpClient: http.DefaultClient}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		baseURL, err := BaseURLFromAPIKey(apiKey)
		if err != nil {
			return nil, err
		}
		c.baseURL = baseURL
	}
	return c, nil
}

// BaseURLFromAPIKey decodes the endpoint embedded into an API key. The key is an
// unpadded base64url encoded JSON object with an "endpoint" field.
func BaseURLFromAPIKey(apiKey string) (string, error) {
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(apiKey, "="))
	if err != nil {
		return "", fmt.Errorf("failed to decode api key: %w", err)
	}
	var token struct {
		Endpoint string `json:"endpoint"`
	}
	if err := json.Unmarshal(decoded, &token); err != nil {
		return "", fmt.Errorf("failed to parse api key: %w", err)
	}
	if token.Endpoint == "" {
		return "", fmt.Errorf("api key does not contain an endpoint")
	}
	return "https://api.cache." + token.Endpoint, nil
}

// Get returns the value stored under the key or [ErrNotFound].
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	query := url.Values{"key": {key}, "token": {c.apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cacheURL(query), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cache get failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "get", StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode cache get response: %w", err)
	}
	if body.Value == "" {
		return nil, ErrNotFound
	}
	return []byte(body.Value), nil
}

// Set stores the value under the key. A positive ttl is sent as ttl_seconds.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	query := url.Values{"key": {key}, "token": {c.apiKey}}
	if ttl > 0 {
		query.Set("ttl_seconds", strconv.Itoa(int(ttl.Seconds())))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cacheURL(query), bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("cache set failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: "set", StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// Publish appends the value to the topic. It returns once the API acknowledged the write.
func (c *Client) Publish(ctx context.Context, topic string, value []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.topicURL(topic, nil), bytes.NewReader(value))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("topic publish failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Op: "publish", StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}

// Cursor is a position in a topic.
type Cursor struct {
	SequenceNumber uint64
	SequencePage   uint64
}

// TopicItem is a value read from a topic.
type TopicItem struct {
	Value          []byte
	SequenceNumber uint64
	SequencePage   uint64
}

// Discontinuity tells a subscriber that its cursor must jump forward.
type Discontinuity struct {
	NewSequence uint64
	NewPage     uint64
}

// PollEntry holds either an Item or a Discontinuity.
type PollEntry struct {
	Item          *TopicItem
	Discontinuity *Discontinuity
}

// Poll long-polls the topic for entries starting at the cursor.
func (c *Client) Poll(ctx context.Context, topic string, cursor Cursor) ([]PollEntry, error) {
	query := url.Values{
		"sequence_number": {strconv.FormatUint(cursor.SequenceNumber, 10)},
		"sequence_page":   {strconv.FormatUint(cursor.SequencePage, 10)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.topicURL(topic, query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("topic poll failed: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: "poll", StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var body pollResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode topic poll response: %w", err)
	}

	entries := make([]PollEntry, 0, len(body.Items))
	for _, raw := range body.Items {
		switch {
		case raw.Item != nil:
			entries = append(entries, PollEntry{Item: &TopicItem{
				Value:          []byte(raw.Item.Value.Text),
				SequenceNumber: raw.Item.TopicSequenceNumber,
				SequencePage:   raw.Item.SequencePage,
			}})
		case raw.Discontinuity != nil:
			entries = append(entries, PollEntry{Discontinuity: &Discontinuity{
				NewSequence: raw.Discontinuity.NewTopicSequence,
				NewPage:     raw.Discontinuity.NewSequencePage,
			}})
		}
	}
	return entries, nil
}

type pollResponse struct {
	Items []struct {
		Item *struct {
			Value struct {
				Text string `json:"text"`
			} `json:"value"`
			TopicSequenceNumber uint64 `json:"topic_sequence_number"`
			SequencePage        uint64 `json:"sequence_page"`
		} `json:"item,omitempty"`
		Discontinuity *struct {
			NewTopicSequence uint64 `json:"new_topic_sequence"`
			NewSequencePage  uint64 `json:"new_sequence_page"`
		} `json:"discontinuity,omitempty"`
	} `json:"items"`
}

func (c *Client) cacheURL(query url.Values) string {
	return c.baseURL + "/cache/" + url.PathEscape(c.cacheName) + "?" + query.Encode()
}

func (c *Client) topicURL(topic string, query url.Values) string {
	u := c.baseURL + "/topics/" + url.PathEscape(c.cacheName) + "/" + url.PathEscape(topic)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
