// Copyright 2026 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package standby

import (
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the supervisor's Prometheus collectors.  Each Supervisor
// has its own registry, so several can live in one process (as in tests).
type Metrics struct {
	registry      *prometheus.Registry
	spawns        prometheus.Counter
	spawnFailures prometheus.Counter
	exits         *prometheus.CounterVec
	requests      *prometheus.CounterVec
	startup       prometheus.Histogram
}

func newMetrics(d *Detector, c *Child) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "standby_child_spawns_total",
			Help: "Child processes started",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "standby_child_spawn_failures_total",
			Help: "Child processes that could not be started",
		}),
		exits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "standby_child_exits_total",
			Help: "Child exits, by whether the exit was clean",
		}, []string{"clean"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "standby_placeholder_requests_total",
			Help: "Requests answered by the placeholder, by response",
		}, []string{"response"}),
		startup: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "standby_child_startup_seconds",
			Help:    "Time from spawn to the first readiness marker",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	ready := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "standby_child_ready",
		Help: "1 if the child has printed a readiness marker",
	}, func() float64 {
		if d.Ready() {
			return 1
		}
		return 0
	})
	running := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "standby_child_running",
		Help: "1 if a child process is live",
	}, func() float64 {
		if c.Info().Running {
			return 1
		}
		return 0
	})
	m.registry.MustRegister(ready, running, m.spawns, m.spawnFailures,
		m.exits, m.requests, m.startup)
	return m
}

func (m *Metrics) childExited(ps *os.ProcessState) {
	clean := "false"
	if ps != nil && ps.Success() {
		clean = "true"
	}
	m.exits.WithLabelValues(clean).Inc()
}

func (m *Metrics) request(redirect bool) {
	if redirect {
		m.requests.WithLabelValues("redirect").Inc()
	} else {
		m.requests.WithLabelValues("page").Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, for tests and embedding.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
