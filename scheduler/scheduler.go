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

// Package scheduler drives the staking engine from cron. Every job lists the
// candidates of one query and runs the matching transition for each of them
// in its own unit of work.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
)

// Job is a named unit of scheduled work
type Job struct {
	Run  func(ctx context.Context) error
	Name string
	Spec string
}

type Runner struct {
	cron         *cron.Cron
	logger       *slog.Logger
	promRegistry prometheus.Registerer
	ctx          context.Context
	cancel       context.CancelFunc
	jobs         map[string]Job
	metrics      runnerMetrics
	mu           sync.Mutex
	started      bool
}

func New(opts ...RunnerOptionFunc) *Runner {
	r := &Runner{
		jobs: make(map[string]Job),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		r.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	r.ctx, r.cancel = context.WithCancel(context.Background())
	cl := cronLogger{logger: r.logger}
	r.cron = cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cl),
		cron.WithChain(
			cron.Recover(cl),
			cron.SkipIfStillRunning(cl),
		),
	)
	r.metrics.init(r.promRegistry)
	return r
}

// Add registers a job. Jobs with an empty spec are kept for RunJob but never
// scheduled.
func (r *Runner) Add(job Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.Name == "" || job.Run == nil {
		return errors.New("job requires a name and a run function")
	}
	if _, ok := r.jobs[job.Name]; ok {
		return fmt.Errorf("duplicate job: %s", job.Name)
	}
	if job.Spec != "" {
		_, err := r.cron.AddFunc(job.Spec, func() {
			_ = r.runJob(r.ctx, job)
		})
		if err != nil {
			return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
		}
	}
	r.jobs[job.Name] = job
	return nil
}

// JobNames returns the registered job names
func (r *Runner) JobNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]string, 0, len(r.jobs))
	for name := range r.jobs {
		ret = append(ret, name)
	}
	return ret
}

// RunJob runs a registered job immediately and waits for it
func (r *Runner) RunJob(ctx context.Context, name string) error {
	r.mu.Lock()
	job, ok := r.jobs[name]
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown job: %s", name)
	}
	return r.runJob(ctx, job)
}

func (r *Runner) runJob(ctx context.Context, job Job) error {
	start := time.Now()
	err := job.Run(ctx)
	r.metrics.jobDuration.WithLabelValues(job.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.jobRuns.WithLabelValues(job.Name, "error").Inc()
		r.logger.Error(
			"scheduled job failed",
			"component", "scheduler",
			"job", job.Name,
			"error", err,
		)
		return err
	}
	r.metrics.jobRuns.WithLabelValues(job.Name, "ok").Inc()
	r.logger.Debug(
		"scheduled job finished",
		"component", "scheduler",
		"job", job.Name,
		"duration", time.Since(start).String(),
	)
	return nil
}

func (r *Runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.cron.Start()
	r.logger.Info(
		"scheduler started",
		"component", "scheduler",
		"jobs", len(r.cron.Entries()),
	)
}

// Stop cancels running jobs and waits for them to return
func (r *Runner) Stop() {
	r.mu.Lock()
	started := r.started
	r.started = false
	r.mu.Unlock()
	r.cancel()
	if !started {
		return
	}
	<-r.cron.Stop().Done()
	r.logger.Info("scheduler stopped", "component", "scheduler")
}

// cronLogger adapts slog to the logger interface used by cron
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(
		"cron: "+msg,
		append([]any{"component", "scheduler"}, keysAndValues...)...,
	)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(
		"cron: "+msg,
		append([]any{"component", "scheduler", "error", err}, keysAndValues...)...,
	)
}
