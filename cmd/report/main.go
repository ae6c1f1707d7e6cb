// The report command prints the weekly operational statistics for the seven
// days ending at midnight today, or at --week-end.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"namereg/internal/platform/config"
	"namereg/internal/platform/database"
	"namereg/internal/report"
)

func main() {
	weekEndFlag := flag.String("week-end", "", "end of the report window, YYYY-MM-DD (default: today)")
	flag.Parse()

	if err := run(*weekEndFlag); err != nil {
		fmt.Fprintln(os.Stderr, "report failed:", err)
		os.Exit(1)
	}
}

func run(weekEndFlag string) error {
	weekEnd := time.Now().UTC().Truncate(24 * time.Hour)
	if weekEndFlag != "" {
		parsed, err := time.Parse("2006-01-02", weekEndFlag)
		if err != nil {
			return fmt.Errorf("parse --week-end: %w", err)
		}
		weekEnd = parsed
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.Open(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := report.Collect(ctx, db, weekEnd)
	if err != nil {
		return err
	}
	return stats.Render(os.Stdout)
}
