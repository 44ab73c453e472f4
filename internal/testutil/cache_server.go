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

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"
)

// TestAPIKey is the key FakeCacheServer expects in requests.
const TestAPIKey = "test-api-key"

type topicEntry struct {
	seq           uint64
	page          uint64
	value         string
	discontinuity bool
}

// FakeCacheServer is an in-process implementation of the cache and topics HTTP API.
// Topic sequence numbers start at 1. A poll returns every entry with a sequence number
// not lower than the requested one, or waits up to the long poll timeout for one to appear.
type FakeCacheServer struct {
	*httptest.Server

	mu              sync.Mutex
	longPollTimeout time.Duration
	items           map[string]string
	ttls            map[string]string
	topics          map[string][]topicEntry
	nextSeq         map[string]uint64
	page            map[string]uint64
	polls           map[string]int
	failPolls       int
	failWrites      int
	topicChange     chan struct{}
}

// NewFakeCacheServer starts a FakeCacheServer which is closed when the test ends.
func NewFakeCacheServer(t *testing.T) *FakeCacheServer {
	t.Helper()
	s := &FakeCacheServer{
		longPollTimeout: 50 * time.Millisecond,
		items:           make(map[string]string),
		ttls:            make(map[string]string),
		topics:          make(map[string][]topicEntry),
		nextSeq:         make(map[string]uint64),
		page:            make(map[string]uint64),
		polls:           make(map[string]int),
		topicChange:     make(chan struct{}),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /cache/{cache}", s.handleGet)
	mux.HandleFunc("PUT /cache/{cache}", s.handleSet)
	mux.HandleFunc("POST /topics/{cache}/{topic}", s.handlePublish)
	mux.HandleFunc("GET /topics/{cache}/{topic}", s.handlePoll)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// Item returns the raw value stored under the key.
func (s *FakeCacheServer) Item(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.items[key]
	return v, ok
}

// SetItem stores a raw value under the key.
func (s *FakeCacheServer) SetItem(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// TTL returns the ttl_seconds value sent with the last write of the key.
func (s *FakeCacheServer) TTL(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ttls[key]
}

// Polls returns the number of poll requests received for the topic.
func (s *FakeCacheServer) Polls(topic string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls[topic]
}

// Published returns the values published to the topic.
func (s *FakeCacheServer) Published(topic string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []string
	for _, e := range s.topics[topic] {
		if !e.discontinuity {
			result = append(result, e.value)
		}
	}
	return result
}

// SetLongPollTimeout changes how long an empty poll waits before responding.
func (s *FakeCacheServer) SetLongPollTimeout(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.longPollTimeout = d
}

// FailNextPolls makes the next n poll requests fail with 503.
func (s *FakeCacheServer) FailNextPolls(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failPolls = n
}

// FailNextWrites makes the next n cache writes and topic publishes fail with 503.
func (s *FakeCacheServer) FailNextWrites(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failWrites = n
}

// InjectDiscontinuity makes the topic skip to newSeq on newPage. The next published
// item gets sequence number newSeq+1.
func (s *FakeCacheServer) InjectDiscontinuity(topic string, newSeq, newPage uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.topics[topic] = append(s.topics[topic], topicEntry{
		seq:           s.nextSeqLocked(topic),
		page:          newPage,
		value:         strconv.FormatUint(newSeq, 10),
		discontinuity: true,
	})
	s.nextSeq[topic] = newSeq + 1
	s.page[topic] = newPage
	s.notifyLocked()
}

func (s *FakeCacheServer) nextSeqLocked(topic string) uint64 {
	if seq, ok := s.nextSeq[topic]; ok {
		return seq
	}
	return 1
}

func (s *FakeCacheServer) notifyLocked() {
	close(s.topicChange)
	s.topicChange = make(chan struct{})
}

func (s *FakeCacheServer) handleGet(rw http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("token") != TestAPIKey {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}
	value, ok := s.Item(req.URL.Query().Get("key"))
	if !ok {
		rw.WriteHeader(http.StatusNotFound)
		return
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]string{"value": value})
}

func (s *FakeCacheServer) handleSet(rw http.ResponseWriter, req *http.Request) {
	if req.URL.Query().Get("token") != TestAPIKey {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites > 0 {
		s.failWrites--
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	key := req.URL.Query().Get("key")
	s.items[key] = string(body)
	s.ttls[key] = req.URL.Query().Get("ttl_seconds")
	rw.WriteHeader(http.StatusNoContent)
}

func (s *FakeCacheServer) handlePublish(rw http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Authorization") != TestAPIKey {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}
	body, err := io.ReadAll(req.Body)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites > 0 {
		s.failWrites--
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	topic := req.PathValue("topic")
	seq := s.nextSeqLocked(topic)
	s.topics[topic] = append(s.topics[topic], topicEntry{seq: seq, page: s.page[topic], value: string(body)})
	s.nextSeq[topic] = seq + 1
	s.notifyLocked()
	rw.WriteHeader(http.StatusNoContent)
}

func (s *FakeCacheServer) handlePoll(rw http.ResponseWriter, req *http.Request) {
	if req.Header.Get("Authorization") != TestAPIKey {
		rw.WriteHeader(http.StatusUnauthorized)
		return
	}
	topic := req.PathValue("topic")
	from, err := strconv.ParseUint(req.URL.Query().Get("sequence_number"), 10, 64)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.polls[topic]++
	if s.failPolls > 0 {
		s.failPolls--
		s.mu.Unlock()
		rw.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	longPollTimeout := s.longPollTimeout
	s.mu.Unlock()

	timeout := time.NewTimer(longPollTimeout)
	defer timeout.Stop()
	for {
		s.mu.Lock()
		items := s.entriesFromLocked(topic, from)
		changed := s.topicChange
		s.mu.Unlock()

		if len(items) > 0 {
			writePollResponse(rw, items)
			return
		}
		select {
		case <-changed:
		case <-timeout.C:
			writePollResponse(rw, nil)
			return
		case <-req.Context().Done():
			return
		}
	}
}

func (s *FakeCacheServer) entriesFromLocked(topic string, from uint64) []topicEntry {
	var result []topicEntry
	for _, e := range s.topics[topic] {
		if e.seq >= from {
			result = append(result, e)
		}
	}
	return result
}

func writePollResponse(rw http.ResponseWriter, entries []topicEntry) {
	items := make([]map[string]any, 0, len(entries))
	for _, e := range entries {
		if e.discontinuity {
			newSeq, _ := strconv.ParseUint(e.value, 10, 64)
			items = append(items, map[string]any{
				"discontinuity": map[string]any{"new_topic_sequence": newSeq, "new_sequence_page": e.page},
			})
			continue
		}
		items = append(items, map[string]any{
			"item": map[string]any{
				"value":                 map[string]any{"text": e.value},
				"topic_sequence_number": e.seq,
				"sequence_page":         e.page,
			},
		})
	}
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(map[string]any{"items": items})
}
