package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/house-points-api/internal/app"
	"github.com/noah-isme/house-points-api/pkg/config"
	"github.com/noah-isme/house-points-api/pkg/logger"
	"github.com/noah-isme/house-points-api/pkg/timeutil"
)

// withContainer loads configuration, connects the stores and hands the services to run.
func withContainer(cmd *cobra.Command, run func(ctx context.Context, c *app.Container) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	c, err := app.New(cfg, logr)
	if err != nil {
		return err
	}
	defer c.Close()
	return run(cmd.Context(), c)
}

// parseDay parses a YYYY-MM-DD flag. An empty value yields fallback.
func parseDay(flag, value string, fallback time.Time) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	t, err := timeutil.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: expected YYYY-MM-DD, got %q", flag, value)
	}
	return t, nil
}

// parseMonth parses a YYYY-MM flag. An empty value yields the month before now.
func parseMonth(value string, now time.Time) (time.Time, error) {
	if value == "" {
		return timeutil.StartOfMonth(now).AddDate(0, -1, 0), nil
	}
	t, err := time.ParseInLocation("2006-01", value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("--month: expected YYYY-MM, got %q", value)
	}
	return t, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
