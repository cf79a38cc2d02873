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
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestRunnerRunsScheduledJob(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := New()
	ran := make(chan struct{}, 10)
	require.NoError(t, r.Add(Job{
		Name: "tick",
		Spec: "* * * * * *",
		Run: func(context.Context) error {
			ran <- struct{}{}
			return nil
		},
	}))
	r.Start()
	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not run")
	}
	r.Stop()
}

func TestRunnerStopCancelsRunningJob(t *testing.T) {
	defer goleak.VerifyNone(t)
	r := New()
	started := make(chan struct{})
	var cancelled atomic.Bool
	require.NoError(t, r.Add(Job{
		Name: "slow",
		Spec: "* * * * * *",
		Run: func(ctx context.Context) error {
			select {
			case started <- struct{}{}:
			default:
			}
			<-ctx.Done()
			cancelled.Store(true)
			return ctx.Err()
		},
	}))
	r.Start()
	select {
	case <-started:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled job did not start")
	}
	r.Stop()
	assert.True(t, cancelled.Load())
}

func TestRunnerAdd(t *testing.T) {
	r := New()
	noop := func(context.Context) error { return nil }
	require.NoError(t, r.Add(Job{Name: "a", Spec: "0 * * * * *", Run: noop}))
	require.NoError(t, r.Add(Job{Name: "manual", Run: noop}))
	require.ErrorContains(t, r.Add(Job{Name: "a", Run: noop}), "duplicate job")
	require.ErrorContains(t, r.Add(Job{Name: "b", Spec: "every now and then", Run: noop}), "invalid schedule")
	require.Error(t, r.Add(Job{Name: "c"}))
	assert.ElementsMatch(t, []string{"a", "manual"}, r.JobNames())
	r.Stop()
}

func TestRunJobMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	r := New(WithPromRegistry(registry))
	jobErr := errors.New("broken")
	require.NoError(t, r.Add(Job{Name: "ok", Run: func(context.Context) error { return nil }}))
	require.NoError(t, r.Add(Job{Name: "bad", Run: func(context.Context) error { return jobErr }}))

	require.NoError(t, r.RunJob(context.Background(), "ok"))
	require.NoError(t, r.RunJob(context.Background(), "ok"))
	require.ErrorIs(t, r.RunJob(context.Background(), "bad"), jobErr)
	require.ErrorContains(t, r.RunJob(context.Background(), "missing"), "unknown job")

	assert.InDelta(t, 2, testutil.ToFloat64(r.metrics.jobRuns.WithLabelValues("ok", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(r.metrics.jobRuns.WithLabelValues("bad", "error")), 0)
	r.Stop()
}

func TestScheduleSpecFor(t *testing.T) {
	s := Schedule{
		Enabled: true,
		Jobs: map[string]string{
			"stake":           "*/30 * * * * *",
			"pay_rewards":     DisabledSpec,
			"announce_reward": "",
		},
	}
	assert.Equal(t, "*/30 * * * * *", s.SpecFor("stake"))
	assert.Equal(t, "", s.SpecFor("pay_rewards"))
	assert.Equal(t, defaultSpec, s.SpecFor("announce_reward"))
	assert.Equal(t, defaultFetchSpec, s.SpecFor("fetch_rewards"))
	assert.Equal(t, defaultCleanUpSpec, s.SpecFor(JobCleanUpWatches))

	s.Default = "0 */5 * * * *"
	assert.Equal(t, "0 */5 * * * *", s.SpecFor("create_release"))

	s.Enabled = false
	assert.Equal(t, "", s.SpecFor("stake"))
}
