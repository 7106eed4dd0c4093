package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/screentime/internal/clock"
	"github.com/goodtune/screentime/internal/config"
	"github.com/goodtune/screentime/internal/history"
	"github.com/goodtune/screentime/internal/storage"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and maintain the usage history",
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Apply the retention policy to the stored history",
	Long: `Drop transitions older than 14 weeks and any recorded in the future, then
save the result. The daemon does this on every save; use this command while it
is stopped.`,
	Args: cobra.NoArgs,
	RunE: runHistoryPrune,
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the histories held by the configured storage",
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

func init() {
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyPruneCmd)
	rootCmd.AddCommand(historyCmd)
}

// document describes one stored history.
type document struct {
	Key         string
	Transitions int
	Revision    int64 // 0 when the store does not count writes
	Err         error
}

func listDocuments(ctx context.Context, docs storage.DocumentStore) ([]document, error) {
	lister, ok := docs.(storage.Lister)
	if !ok {
		return nil, fmt.Errorf("storage %T cannot list documents", docs)
	}
	keys, err := lister.Keys(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)

	revisioner, _ := docs.(storage.Revisioner)
	result := make([]document, 0, len(keys))
	for _, key := range keys {
		doc := document{Key: key}
		data, err := docs.Get(ctx, key)
		if err == nil {
			var transitions []history.Transition
			transitions, err = history.Decode(data)
			doc.Transitions = len(transitions)
		}
		doc.Err = err
		if revisioner != nil {
			if doc.Revision, err = revisioner.Revision(ctx, key); err != nil && doc.Err == nil {
				doc.Err = err
			}
		}
		result = append(result, doc)
	}
	return result, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	docs, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer docs.Close()

	list, err := listDocuments(cmd.Context(), docs)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No history stored")
		return nil
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, doc := range list {
		marker := " "
		if doc.Key == cfg.Storage.Key {
			marker = "*"
		}
		fmt.Printf("%s %-30s ", marker, doc.Key)
		switch {
		case doc.Err != nil:
			red.Printf("error: %v", doc.Err)
		case doc.Revision > 0:
			green.Printf("%d transitions, revision %d", doc.Transitions, doc.Revision)
		default:
			green.Printf("%d transitions", doc.Transitions)
		}
		fmt.Println()
	}
	return nil
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	docs, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer docs.Close()

	data, err := docs.Get(ctx, cfg.Storage.Key)
	if errors.Is(err, storage.ErrNotFound) {
		fmt.Println("No history stored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read history: %w", err)
	}

	transitions, err := history.Decode(data)
	if err != nil {
		color.New(color.FgRed, color.Bold).Printf("History is malformed and was not changed: %v\n", err)
		return err
	}

	clk := clock.NewRealClock()
	pruned := history.Prune(transitions, clk.RealTimeSecs())
	if err := history.NewStore(docs, cfg.Storage.Key, clk).Save(ctx, pruned); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Kept %d of %d transitions", len(pruned), len(transitions))
	if len(pruned) > 0 {
		fmt.Printf(" (oldest %s)", time.Unix(pruned[0].WallTimeSecs, 0).Format("2006-01-02 15:04"))
	}
	fmt.Println()
	return nil
}
