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

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/blinklabs-io/stakeplan"
	"github.com/blinklabs-io/stakeplan/database/models"
	"github.com/blinklabs-io/stakeplan/internal/config"
	"github.com/blinklabs-io/stakeplan/internal/node"
	"github.com/blinklabs-io/stakeplan/staking"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

type planView struct {
	OpenedAt          time.Time       `json:"opened_at"`
	RequestClosesAt   time.Time       `json:"request_closes_at"`
	StakedAt          time.Time       `json:"staked_at"`
	StakingEndsAt     time.Time       `json:"staking_ends_at"`
	UnstakingEndsAt   time.Time       `json:"unstaking_ends_at"`
	ExtendedFromID    *uint           `json:"extended_from_id,omitempty"`
	Currency          string          `json:"currency"`
	TotalCapacity     decimal.Decimal `json:"total_capacity"`
	FilledCapacity    decimal.Decimal `json:"filled_capacity"`
	FreeCapacity      decimal.Decimal `json:"free_capacity"`
	FilledByExtension decimal.Decimal `json:"filled_by_extension"`
	ReleasedCapacity  decimal.Decimal `json:"released_capacity"`
	ExtendedCapacity  decimal.Decimal `json:"extended_capacity"`
	Fee               decimal.Decimal `json:"fee"`
	RealizedAPR       decimal.Decimal `json:"realized_apr"`
	ID                uint            `json:"id"`
	IsExtendable      bool            `json:"is_extendable"`
	InstantUnstake    bool            `json:"is_instantly_unstakable"`
}

func newPlanView(plan *models.Plan, apr decimal.Decimal) planView {
	return planView{
		ID:                plan.ID,
		Currency:          plan.Currency(),
		OpenedAt:          plan.OpenedAt,
		RequestClosesAt:   plan.RequestClosesAt(),
		StakedAt:          plan.StakedAt,
		StakingEndsAt:     plan.StakingEndsAt(),
		UnstakingEndsAt:   plan.UnstakingEndsAt(),
		ExtendedFromID:    plan.ExtendedFromID,
		TotalCapacity:     plan.TotalCapacity,
		FilledCapacity:    plan.FilledCapacity,
		FreeCapacity:      staking.FreeCapacity(plan),
		FilledByExtension: plan.FilledByExtension,
		ReleasedCapacity:  plan.ReleasedCapacity,
		ExtendedCapacity:  plan.ExtendedCapacity,
		Fee:               plan.Fee,
		RealizedAPR:       apr,
		IsExtendable:      plan.IsExtendable,
		InstantUnstake:    plan.IsInstantlyUnstakable,
	}
}

type candidateQuery struct {
	run  func() ([]uint, error)
	name string
}

func candidateQueries(e *staking.Engine) []candidateQuery {
	return []candidateQuery{
		{e.OpenPlanIds, "open"},
		{e.PlanIdsToApproveStakeAmount, staking.QueryApproveStakeAmount},
		{e.PlanIdsToStake, staking.QueryStake},
		{e.PlanIdsToAssignStaking, staking.QueryAssignStaking},
		{e.PlanIdsToFetchRewards, staking.QueryFetchRewards},
		{e.PlanIdsToAnnounceRewards, staking.QueryAnnounceRewards},
		{e.PlanIdsToWithdrawRewards, staking.QueryWithdrawRewards},
		{e.PlanIdsToEndUserStaking, staking.QueryEndUserStaking},
		{e.PlanIdsToCreateExtendOut, staking.QueryCreateExtendOut},
		{e.PlanIdsToExtendStaking, staking.QueryExtendStaking},
		{e.PlanIdsToExtendUsers, staking.QueryExtendUsers},
		{e.PlanIdsToCreateRelease, staking.QueryCreateRelease},
		{e.PlanIdsToReleaseUserAssets, staking.QueryReleaseUsers},
		{e.PlanIdsToPayRewards, staking.QueryPayRewards},
		{e.PlanIdsToApplyInstantEndRequests, staking.QueryInstantEnd},
	}
}

func writeCandidates(w io.Writer, e *staking.Engine) error {
	for _, q := range candidateQueries(e) {
		ids, err := q.run()
		if err != nil {
			return fmt.Errorf("%s: %w", q.name, err)
		}
		if _, err := fmt.Fprintf(w, "%-22s %v\n", q.name, ids); err != nil {
			return err
		}
	}
	return nil
}

func writePlan(w io.Writer, e *staking.Engine, planId uint) error {
	plan, err := e.GetPlanToRead(planId)
	if err != nil {
		return err
	}
	apr, err := e.RealizedAPR(planId)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(newPlanView(plan, apr))
}

func parsePlanId(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid plan id: %q", arg)
	}
	return uint(id), nil
}

// withNode runs fn against a node opened for a single command. Logs go to
// stderr so command output stays parseable.
func withNode(cmd *cobra.Command, fn func(n *stakeplan.Node) error) error {
	cfg := config.FromContext(cmd.Context())
	if cfg == nil {
		return errors.New("no config found in context")
	}
	logLevel := slog.LevelWarn
	if globalFlags.debug {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}),
	)
	n, err := node.Open(cfg, logger)
	if err != nil {
		return err
	}
	err = fn(n)
	if stopErr := n.Stop(); stopErr != nil && err == nil {
		err = stopErr
	}
	return err
}

func planCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect plans and run ledger jobs by hand",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "inspect <plan-id>",
			Short: "Show the capacity and schedule of a plan",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				planId, err := parsePlanId(args[0])
				if err != nil {
					return err
				}
				return withNode(cmd, func(n *stakeplan.Node) error {
					return writePlan(cmd.OutOrStdout(), n.Engine(), planId)
				})
			},
		},
		&cobra.Command{
			Use:   "candidates",
			Short: "List the plans each scheduler job would process now",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withNode(cmd, func(n *stakeplan.Node) error {
					return writeCandidates(cmd.OutOrStdout(), n.Engine())
				})
			},
		},
		&cobra.Command{
			Use:   "run <job>",
			Short: "Run one scheduler job immediately",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withNode(cmd, func(n *stakeplan.Node) error {
					return n.Scheduler().RunJob(cmd.Context(), args[0])
				})
			},
		},
		&cobra.Command{
			Use:   "approve-reward <plan-id>",
			Short: "Approve the final announced reward of a plan",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				planId, err := parsePlanId(args[0])
				if err != nil {
					return err
				}
				return withNode(cmd, func(n *stakeplan.Node) error {
					return n.Engine().ApproveRewardAmount(planId)
				})
			},
		},
	)
	return cmd
}
