package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/house-points-api/internal/app"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

var insightsFlags struct {
	date    string
	student string
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Manage student insight snapshots",
}

var insightsRecomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute insights for every active student, or one with --student",
	RunE:  runInsightsRecompute,
}

func init() {
	f := insightsRecomputeCmd.Flags()
	f.StringVar(&insightsFlags.date, "date", "", "Evaluation day (YYYY-MM-DD, default today)")
	f.StringVar(&insightsFlags.student, "student", "", "Recompute a single student")
	insightsCmd.AddCommand(insightsRecomputeCmd)
}

func runInsightsRecompute(cmd *cobra.Command, _ []string) error {
	today, err := parseDay("date", insightsFlags.date, timeutil.Today())
	if err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		out := cmd.OutOrStdout()
		if insightsFlags.student != "" {
			result, err := c.Insights.RecomputeStudent(ctx, insightsFlags.student, today)
			if err != nil {
				return err
			}
			return printJSON(out, result)
		}

		started := time.Now()
		result, err := c.Insights.RecomputeActive(ctx, today)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Recomputed %d/%d students for %s in %s\n",
			result.Succeeded, result.Students, timeutil.FormatDate(today), time.Since(started).Round(time.Millisecond))
		for _, id := range result.FailedIDs {
			fmt.Fprintf(out, "  failed: %s\n", id)
		}
		if result.Failed > 0 {
			return fmt.Errorf("%d students failed", result.Failed)
		}
		return nil
	})
}
