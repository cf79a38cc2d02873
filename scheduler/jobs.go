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
	"io"
	"log/slog"
	"slices"

	"github.com/blinklabs-io/stakeplan/staking"
)

// Job names other than the candidate queries of the staking package
const (
	JobCleanUpWatches = "cleanup_watches"
	JobExtendWatches  = "extend_watches"
)

// DisabledSpec turns a job off when used as its schedule
const DisabledSpec = "off"

const (
	defaultSpec        = "0 * * * * *"
	defaultFetchSpec   = "0 */10 * * * *"
	defaultCleanUpSpec = "0 0 * * * *"
)

// Schedule holds the cron specs of the engine jobs. Specs use the six field
// format with seconds.
type Schedule struct {
	Jobs    map[string]string `yaml:"jobs"    envconfig:"JOBS"`
	Default string            `yaml:"default" envconfig:"DEFAULT"`
	Enabled bool              `yaml:"enabled" envconfig:"ENABLED"`
}

// SpecFor returns the spec of the named job or an empty string when the job
// is disabled
func (s Schedule) SpecFor(name string) string {
	spec, ok := s.Jobs[name]
	if !ok || spec == "" {
		switch name {
		case staking.QueryFetchRewards:
			spec = defaultFetchSpec
		case JobCleanUpWatches:
			spec = defaultCleanUpSpec
		default:
			spec = s.Default
		}
	}
	if spec == "" {
		spec = defaultSpec
	}
	if spec == DisabledSpec || !s.Enabled {
		return ""
	}
	return spec
}

type jobBuilder struct {
	engine   *staking.Engine
	logger   *slog.Logger
	schedule Schedule
}

// EngineJobs returns one job per candidate query of the engine plus the
// watch maintenance jobs
func EngineJobs(engine *staking.Engine, schedule Schedule, logger *slog.Logger) []Job {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	b := jobBuilder{engine: engine, logger: logger, schedule: schedule}
	e := engine
	return []Job{
		b.planJob(staking.QueryApproveStakeAmount, e.PlanIdsToApproveStakeAmount, e.SystemApproveStakeAmount),
		b.planJob(staking.QueryStake, e.PlanIdsToStake, e.StakeAssets),
		b.userJob(staking.QueryAssignStaking, e.PlanIdsToAssignStaking, e.UserIdsToAssignStaking, e.StakeUserAssets),
		b.contextPlanJob(staking.QueryFetchRewards, e.PlanIdsToFetchRewards, e.FetchReward),
		b.planJob(staking.QueryAnnounceRewards, e.PlanIdsToAnnounceRewards, e.AnnounceReward),
		b.planJob(staking.QueryWithdrawRewards, e.PlanIdsToWithdrawRewards, e.WithdrawUsersRewardFromPlan),
		b.userJob(staking.QueryEndUserStaking, e.PlanIdsToEndUserStaking, e.UserIdsToEndStaking, e.EndUserStaking),
		b.planJob(staking.QueryCreateExtendOut, e.PlanIdsToCreateExtendOut, e.CreateExtendOut),
		b.planJob(staking.QueryExtendStaking, e.PlanIdsToExtendStaking, e.CreateExtendIn),
		b.userJob(staking.QueryExtendUsers, e.PlanIdsToExtendUsers, e.UserIdsToExtend, e.ExtendUserStaking),
		b.planJob(staking.QueryCreateRelease, e.PlanIdsToCreateRelease, e.CreateRelease),
		b.userJob(staking.QueryReleaseUsers, e.PlanIdsToReleaseUserAssets, e.UserIdsToReleaseAssets, e.ReleaseUserAssets),
		b.userJob(staking.QueryPayRewards, e.PlanIdsToPayRewards, e.UserIdsToPayReward, e.PayUserReward),
		b.userJob(staking.QueryInstantEnd, e.PlanIdsToApplyInstantEndRequests, e.UserIdsToApplyInstantEndRequests, e.ApplyInstantEndRequest),
		{
			Name: JobCleanUpWatches,
			Spec: schedule.SpecFor(JobCleanUpWatches),
			Run: func(context.Context) error {
				removed, err := engine.CleanUpWatches()
				if err != nil {
					return err
				}
				if removed > 0 {
					logger.Info(
						"removed watches of ended plans",
						"component", "scheduler",
						"count", removed,
					)
				}
				return nil
			},
		},
		{
			Name: JobExtendWatches,
			Spec: schedule.SpecFor(JobExtendWatches),
			Run: func(context.Context) error {
				return engine.ExtendWatches()
			},
		},
	}
}

func (b jobBuilder) planJob(
	name string,
	candidates func() ([]uint, error),
	transition func(planId uint) error,
) Job {
	return b.contextPlanJob(
		name,
		candidates,
		func(_ context.Context, planId uint) error { return transition(planId) },
	)
}

func (b jobBuilder) contextPlanJob(
	name string,
	candidates func() ([]uint, error),
	transition func(ctx context.Context, planId uint) error,
) Job {
	return Job{
		Name: name,
		Spec: b.schedule.SpecFor(name),
		Run: func(ctx context.Context) error {
			planIds, err := candidates()
			if err != nil {
				return err
			}
			for _, planId := range planIds {
				if err := ctx.Err(); err != nil {
					return err
				}
				b.report(name, transition(ctx, planId), "plan_id", planId)
			}
			return nil
		},
	}
}

func (b jobBuilder) userJob(
	name string,
	candidates func() ([]uint, error),
	users func(planId uint) ([]uint, error),
	transition func(userId, planId uint) error,
) Job {
	return Job{
		Name: name,
		Spec: b.schedule.SpecFor(name),
		Run: func(ctx context.Context) error {
			planIds, err := candidates()
			if err != nil {
				return err
			}
			for _, planId := range planIds {
				userIds, err := users(planId)
				if err != nil {
					b.report(name, err, "plan_id", planId)
					continue
				}
				slices.Sort(userIds)
				for _, userId := range userIds {
					if err := ctx.Err(); err != nil {
						return err
					}
					b.report(
						name,
						transition(userId, planId),
						"plan_id", planId,
						"user_id", userId,
					)
				}
			}
			return nil
		},
	}
}

// report logs the outcome of a single transition. Errors meaning the work
// was already done or cannot happen yet are routine.
func (b jobBuilder) report(job string, err error, args ...any) {
	if err == nil {
		return
	}
	args = append([]any{"component", "scheduler", "job", job, "error", err}, args...)
	if staking.IsIdempotencyError(err) {
		b.logger.Debug("transition skipped", args...)
		return
	}
	b.logger.Error("transition failed", args...)
}
