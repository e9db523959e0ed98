package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/house-points-api/internal/app"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

var digestFlags struct {
	date  string
	send  bool
	start string
	end   string
}

var snapshotFlags struct {
	month string
}

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build leadership digests",
}

var digestWeeklyCmd = &cobra.Command{
	Use:   "weekly",
	Short: "Build the weekly digest ending on --date and optionally email it",
	RunE:  runDigestWeekly,
}

var digestQuarterlyCmd = &cobra.Command{
	Use:   "quarterly",
	Short: "Build the quarterly report against the prior quarter baseline",
	RunE:  runDigestQuarterly,
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Capture metric snapshots",
}

var snapshotMonthlyCmd = &cobra.Command{
	Use:   "monthly",
	Short: "Capture the monthly snapshot used as a quarterly baseline",
	RunE:  runSnapshotMonthly,
}

func init() {
	f := digestWeeklyCmd.Flags()
	f.StringVar(&digestFlags.date, "date", "", "Last day of the digest week (YYYY-MM-DD, default today)")
	f.BoolVar(&digestFlags.send, "send", false, "Email the digest to DIGEST_RECIPIENTS")

	f = digestQuarterlyCmd.Flags()
	f.StringVar(&digestFlags.start, "start", "", "Quarter start (YYYY-MM-DD, default current quarter)")
	f.StringVar(&digestFlags.end, "end", "", "Quarter end (YYYY-MM-DD, default end of the start quarter)")

	snapshotMonthlyCmd.Flags().StringVar(&snapshotFlags.month, "month", "", "Month to capture (YYYY-MM, default previous month)")

	digestCmd.AddCommand(digestWeeklyCmd, digestQuarterlyCmd)
	snapshotCmd.AddCommand(snapshotMonthlyCmd)
}

func runDigestWeekly(cmd *cobra.Command, _ []string) error {
	end, err := parseDay("date", digestFlags.date, timeutil.Today())
	if err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		digest, err := c.Digest.WeeklyDigest(ctx, end)
		if err != nil {
			return err
		}
		if !digestFlags.send {
			return printJSON(cmd.OutOrStdout(), digest)
		}
		recipients := c.Config.Digest.Recipients
		if len(recipients) == 0 {
			return fmt.Errorf("--send requires DIGEST_RECIPIENTS")
		}
		failed := 0
		for _, d := range c.Digest.SendWeeklyDigest(ctx, digest, recipients) {
			status := "sent"
			if !d.Sent {
				status = "failed"
				failed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-40s %s\n", d.Recipient, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d digests failed", failed, len(recipients))
		}
		return nil
	})
}

func runDigestQuarterly(cmd *cobra.Command, _ []string) error {
	start, end, err := quarterBounds(digestFlags.start, digestFlags.end, time.Now())
	if err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		report, err := c.Digest.QuarterlyReport(ctx, start, end)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), report)
	})
}

func runSnapshotMonthly(cmd *cobra.Command, _ []string) error {
	month, err := parseMonth(snapshotFlags.month, time.Now())
	if err != nil {
		return err
	}
	return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
		snapshot, err := c.Digest.CaptureMonthlySnapshot(ctx, month)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snapshot)
	})
}

// quarterBounds resolves the quarter flags. Without --start the quarter containing now is used;
// without --end the quarter containing start ends the range.
func quarterBounds(startFlag, endFlag string, now time.Time) (time.Time, time.Time, error) {
	start, err := parseDay("start", startFlag, timeutil.StartOfQuarter(now))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end := timeutil.EndOfQuarter(start)
	if endFlag != "" {
		day, err := parseDay("end", endFlag, end)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
		end = timeutil.EndOfDay(day)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("--end must not be before --start")
	}
	return start, end, nil
}
