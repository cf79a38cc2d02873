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

package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type runnerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

func (m *runnerMetrics) init(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	m.jobRuns = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stakeplan_scheduler_job_runs_total",
			Help: "scheduled job runs by outcome",
		},
		[]string{"job", "result"},
	)
	m.jobDuration = promautoFactory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stakeplan_scheduler_job_duration_seconds",
			Help:    "duration of scheduled job runs",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	)
}
