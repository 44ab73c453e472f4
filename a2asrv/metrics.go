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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/a2aproject/a2a-relay/a2a"
)

const metricsNamespace = "a2a_relay"

// Metrics holds the prometheus collectors updated by the request handler. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	TasksStarted     prometheus.Counter
	TasksFinished    *prometheus.CounterVec
	ExecutorFailures prometheus.Counter
	EventsApplied    *prometheus.CounterVec
	RemotePollErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_started_total",
			Help:      "Number of task executions started.",
		}),
		TasksFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_finished_total",
			Help:      "Number of task executions finished, by the state the task ended in.",
		}, []string{"state"}),
		ExecutorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "executor_failures_total",
			Help:      "Number of agent executions which returned an error or panicked.",
		}),
		EventsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_applied_total",
			Help:      "Number of execution events applied to tasks, by event kind.",
		}, []string{"kind"}),
		RemotePollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remote_poll_errors_total",
			Help:      "Number of failed remote topic polls.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.TasksStarted, m.TasksFinished, m.ExecutorFailures, m.EventsApplied, m.RemotePollErrors)
	}
	return m
}

func (m *Metrics) taskStarted() {
	if m != nil {
		m.TasksStarted.Inc()
	}
}

func (m *Metrics) taskFinished(state a2a.TaskState) {
	if m != nil {
		m.TasksFinished.WithLabelValues(string(state)).Inc()
	}
}

func (m *Metrics) executorFailed() {
	if m != nil {
		m.ExecutorFailures.Inc()
	}
}

func (m *Metrics) eventApplied(event a2a.Event) {
	if m != nil {
		m.EventsApplied.WithLabelValues(event.Kind()).Inc()
	}
}
