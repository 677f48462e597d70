package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"moff.io/crowdfund/internal/campaign"
	"moff.io/crowdfund/internal/chains"
	"moff.io/crowdfund/internal/config"
	"moff.io/crowdfund/pkg/errors"
)

func campaignsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List, launch and pledge to campaigns",
	}
	cmd.AddCommand(listCmd(), launchCmd(), pledgeCmd())
	return cmd
}

func listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every campaign on the contract",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, config.Global)
			if err != nil {
				return err
			}
			defer a.Close()
			proxy, err := a.connect(ctx)
			if err != nil {
				return err
			}
			list, err := a.workflows.ListCampaigns(ctx, proxy)
			if err != nil {
				pterm.Error.Println(describe(err))
				return err
			}
			if len(list) == 0 {
				pterm.Info.Println("No campaigns yet")
				return nil
			}
			return renderCampaigns(list, chains.Lookup(config.Global.Chain.ChainID), time.Now())
		},
	}
}

func launchCmd() *cobra.Command {
	var (
		goal     string
		duration time.Duration
	)
	cmd := &cobra.Command{
		Use:   "launch NAME",
		Short: "Launch a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wei, err := campaign.ParseEther(goal)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, config.Global)
			if err != nil {
				return err
			}
			defer a.Close()
			proxy, err := a.connect(ctx)
			if err != nil {
				return err
			}
			spinner, _ := pterm.DefaultSpinner.Start("Launching " + args[0])
			txCtx, cancel := context.WithTimeout(ctx, config.Global.Chain.ConfirmationTimeout)
			defer cancel()
			c, err := a.workflows.LaunchCampaign(txCtx, proxy, wei, duration, args[0])
			if err != nil {
				spinner.Fail(describe(err))
				return err
			}
			spinner.Success(fmt.Sprintf("Campaign #%d launched, open until %s", c.ID, c.EndAt.Format(time.RFC822)))
			return nil
		},
	}
	cmd.Flags().StringVar(&goal, "goal", "", "funding goal in ether")
	cmd.Flags().DurationVar(&duration, "duration", 30*24*time.Hour, "funding window")
	_ = cmd.MarkFlagRequired("goal")
	return cmd
}

func pledgeCmd() *cobra.Command {
	var amount string
	cmd := &cobra.Command{
		Use:   "pledge ID",
		Short: "Pledge ether to a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return errors.WithKind(errors.KindInvalidInput, err, "campaign id")
			}
			wei, err := campaign.ParseEther(amount)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := openApp(ctx, config.Global)
			if err != nil {
				return err
			}
			defer a.Close()
			proxy, err := a.connect(ctx)
			if err != nil {
				return err
			}
			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Pledging %s to campaign #%d", amount, id))
			txCtx, cancel := context.WithTimeout(ctx, config.Global.Chain.ConfirmationTimeout)
			defer cancel()
			if err := a.workflows.PledgeToCampaign(txCtx, proxy, id, wei); err != nil {
				spinner.Fail(describe(err))
				return err
			}
			spinner.Success("Pledge confirmed")
			return nil
		},
	}
	cmd.Flags().StringVar(&amount, "amount", "", "amount in ether")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func renderCampaigns(list []*campaign.Campaign, chain *chains.Blockchain, now time.Time) error {
	data := pterm.TableData{{"ID", "Name", "Goal", "Pledged", "Creator", "Ends", "Status"}}
	for _, c := range list {
		data = append(data, []string{
			strconv.FormatUint(c.ID, 10),
			c.Name,
			campaign.FormatEther(c.Goal) + " " + chain.Symbol,
			campaign.FormatEther(c.Pledged) + " " + chain.Symbol,
			c.Creator.Hex(),
			c.EndAt.Format(time.RFC822),
			status(c, now),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func status(c *campaign.Campaign, now time.Time) string {
	switch {
	case c.Claimed:
		return "claimed"
	case c.Open(now):
		return "open"
	case c.GoalReached():
		return "funded"
	default:
		return "ended"
	}
}
