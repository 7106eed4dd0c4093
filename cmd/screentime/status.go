package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/history"
	"github.com/goodtune/screentime/internal/timelimits"
	"github.com/spf13/cobra"
)

var reportDays int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show today's screen time",
	Long: `Show today's active time, the daily limit and the time remaining, computed
from the persisted history. An active period that is still open counts up to now.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

var reportCmd = &cobra.Command{
	Use:     "report",
	Short:   "Show daily screen time totals",
	Example: `  screentime report --days 14`,
	Args:    cobra.NoArgs,
	RunE:    runReport,
}

func init() {
	reportCmd.Flags().IntVarP(&reportDays, "days", "n", 7, "Number of days to show, including today")

	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(reportCmd)
}

// offlineHistory loads the configuration and the persisted history.
func offlineHistory(ctx context.Context) (*config.Config, []history.Transition, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	docs, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer docs.Close()

	transitions, err := history.NewStore(docs, cfg.Storage.Key, clock.NewRealClock()).Load(ctx)
	if err != nil {
		return nil, nil, err
	}
	return cfg, transitions, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, transitions, err := offlineHistory(cmd.Context())
	if err != nil {
		return err
	}

	now := time.Now()
	startOfToday, startOfTomorrow := timelimits.DayBounds(now.Unix(), time.Local)
	active := timelimits.ActiveTimeTodaySecs(transitions, now.Unix(), startOfToday)
	userState, _ := history.LastState(transitions)

	printStatus(cfg.Limits, now, startOfToday, startOfTomorrow, active, userState, transitions)
	return nil
}

// printStatus prints the status with colors
func printStatus(limits config.LimitsConfig, now time.Time, startOfToday, startOfTomorrow, active int64, userState history.UserState, transitions []history.Transition) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("SCREEN TIME STATUS")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Day:        %s to %s\n",
		time.Unix(startOfToday, 0).Format("Mon 15:04"), time.Unix(startOfTomorrow, 0).Format("Mon 15:04"))
	fmt.Printf("Now:        %s\n", now.Format("2006-01-02 15:04"))
	fmt.Printf("User:       %s\n", userState)
	fmt.Printf("Active:     %s\n", formatSecs(active))
	fmt.Printf("History:    %d transitions\n", len(transitions))
	fmt.Println()

	cyan.Print("Limit:      ")
	switch {
	case !limits.HistoryEnabled && !limits.DailyLimitEnabled:
		fmt.Println("DISABLED")
	case !limits.DailyLimitEnabled:
		green.Println("NONE")
		fmt.Println("            → Usage is recorded but not limited")
	default:
		limit := limits.DailyLimitSecs()
		remaining := limit - active
		switch {
		case remaining <= 0:
			reachedAt := timelimits.LimitReachedAtSecs(transitions, now.Unix(), startOfToday, limit)
			red.Printf("REACHED (%s)\n", formatSecs(limit))
			fmt.Printf("            → Reached at %s\n", time.Unix(reachedAt, 0).Format("15:04"))
			fmt.Printf("            → Resets at %s\n", time.Unix(startOfTomorrow, 0).Format("Mon 15:04"))
		case remaining <= 15*60:
			yellow.Printf("%s\n", formatSecs(limit))
			yellow.Printf("            → %s remaining\n", formatSecs(remaining))
		default:
			green.Printf("%s\n", formatSecs(limit))
			fmt.Printf("            → %s remaining\n", formatSecs(remaining))
		}
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}

func runReport(cmd *cobra.Command, args []string) error {
	if reportDays < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	cfg, transitions, err := offlineHistory(cmd.Context())
	if err != nil {
		var parseErr *history.ParseError
		if errors.As(err, &parseErr) {
			color.New(color.FgRed).Fprintf(os.Stderr, "History is malformed: %v\n", err)
		}
		return err
	}

	usage := timelimits.DailyUsage(transitions, time.Now().Unix(), time.Local, reportDays)
	limit := int64(0)
	if cfg.Limits.DailyLimitEnabled {
		limit = cfg.Limits.DailyLimitSecs()
	}

	cyan := color.New(color.FgCyan, color.Bold)
	red := color.New(color.FgRed)

	cyan.Printf("%-12s %10s  %s\n", "DAY", "ACTIVE", "")
	var total int64
	for _, day := range usage {
		total += day.ActiveSecs
		line := fmt.Sprintf("%-12s %10s  %s", day.Start.Format("Mon Jan 02"), formatSecs(day.ActiveSecs), bar(day.ActiveSecs))
		if limit > 0 && day.ActiveSecs >= limit {
			red.Println(line)
		} else {
			fmt.Println(line)
		}
	}
	cyan.Printf("%-12s %10s\n", "AVERAGE", formatSecs(total/int64(len(usage))))

	return nil
}

// bar draws one block per half hour.
func bar(secs int64) string {
	return strings.Repeat("▇", int(secs/(30*60)))
}

func formatSecs(secs int64) string {
	if secs < 0 {
		secs = 0
	}
	d := time.Duration(secs) * time.Second
	h := int64(d.Hours())
	m := int64(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh %02dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
