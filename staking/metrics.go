// Copyright 2025 Blink Labs Software
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

package staking

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	planLockWait  prometheus.Histogram
	queryDuration *prometheus.HistogramVec
	transitions   *prometheus.CounterVec
}

func (m *engineMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.planLockWait = promautoFactory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stakeplan_plan_lock_wait_seconds",
			Help:    "time spent waiting for a plan row lock",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		},
	)
	m.queryDuration = promautoFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakeplan_candidate_query_duration_seconds",
			Help:    "duration of scheduler candidate queries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"query"},
	)
	m.transitions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeplan_transitions_total",
			Help: "ledger transitions by outcome",
		},
		[]string{"transition", "result"},
	)
}
