package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/house-points-api/internal/app"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the analytics cache",
}

var cacheFlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Drop cached dashboards and digests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withContainer(cmd, func(ctx context.Context, c *app.Container) error {
			if err := c.Analytics.InvalidateCache(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "analytics cache flushed")
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheFlushCmd)
}
