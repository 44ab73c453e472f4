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
	"context"
	"encoding/json"
	"net/http"

	"github.com/a2aproject/a2a-relay/a2a"
	"github.com/a2aproject/a2a-relay/log"
)

// WellKnownAgentCardPath is the HTTP path under which agents publish their card.
const WellKnownAgentCardPath = "/.well-known/agent.json"

// AgentCardProducer creates the [a2a.AgentCard] served for agent discovery.
type AgentCardProducer interface {
	Card(ctx context.Context) (*a2a.AgentCard, error)
}

// AgentCardProducerFn is a function type which implements [AgentCardProducer].
type AgentCardProducerFn func(ctx context.Context) (*a2a.AgentCard, error)

// Card implements AgentCardProducer.
func (fn AgentCardProducerFn) Card(ctx context.Context) (*a2a.AgentCard, error) {
	return fn(ctx)
}

// NewStaticAgentCardHandler creates an [http.Handler] serving a card which does not change
// while the program is running. The card is encoded once. The method panics if encoding fails.
func NewStaticAgentCardHandler(card *a2a.AgentCard) http.Handler {
	cardBytes, err := json.Marshal(card)
	if err != nil {
		panic(err.Error())
	}
	return cardHandler(func(context.Context) ([]byte, error) { return cardBytes, nil })
}

// NewAgentCardHandler creates an [http.Handler] serving the card returned by the producer
// on every request.
func NewAgentCardHandler(producer AgentCardProducer) http.Handler {
	return cardHandler(func(ctx context.Context) ([]byte, error) {
		card, err := producer.Card(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(card)
	})
}

// cardHandler serves the card to any origin.
func cardHandler(cardJSON func(context.Context) ([]byte, error)) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		ctx := log.AttachLogger(req.Context(), log.LoggerFrom(req.Context()).With(
			"method", req.Method,
			"remote_addr", req.RemoteAddr,
		))
		writeCORSHeaders(rw, req)

		switch req.Method {
		case http.MethodOptions:
			rw.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			rw.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			rw.WriteHeader(http.StatusOK)
			return
		case http.MethodGet:
		default:
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		cardBytes, err := cardJSON(ctx)
		if err != nil {
			log.Error(ctx, "failed to produce agent card", err)
			rw.WriteHeader(http.StatusInternalServerError)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		if _, err := rw.Write(cardBytes); err != nil {
			log.Error(ctx, "failed to write agent card response", err)
		}
	})
}

func writeCORSHeaders(rw http.ResponseWriter, req *http.Request) {
	if origin := req.Header.Get("Origin"); origin != "" {
		rw.Header().Set("Access-Control-Allow-Origin", origin)
		rw.Header().Set("Vary", "Origin")
		return
	}
	rw.Header().Set("Access-Control-Allow-Origin", "*")
}
