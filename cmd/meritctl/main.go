// meritctl runs the scheduled house-points jobs from the command line.
//
// Usage:
//
//	meritctl insights recompute [--date=YYYY-MM-DD] [--student=<id>]
//	meritctl digest weekly [--date=YYYY-MM-DD] [--send]
//	meritctl digest quarterly [--start=YYYY-MM-DD] [--end=YYYY-MM-DD]
//	meritctl snapshot monthly [--month=YYYY-MM]
//	meritctl cache flush
//	meritctl token issue --user=<id> --role=<role> [--ttl=1h]
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "meritctl",
	Short:         "Operator tooling for the house points service",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
