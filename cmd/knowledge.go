package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/promptab/promptab/core/config"
	"github.com/promptab/promptab/core/knowledge"
	"github.com/spf13/cobra"
)

var (
	knowledgeJSON bool

	addTitle    string
	addCategory string

	ingestDir   string
	ingestForce bool
	ingestWatch bool

	searchLimit    int
	searchCategory string
)

var knowledgeCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Manage the knowledge base",
	Long: `Manage the knowledge base backing retrieval-augmented optimization.

Subcommands:
  add      - Add a single entry
  ingest   - Load entries from YAML/JSON files in a directory
  search   - Search entries by similarity
  reindex  - Recompute every stored embedding
  status   - Show entry count and pool statistics

Examples:
  promptab knowledge add --title "AIDA copywriting" --category marketing < aida.txt
  promptab knowledge ingest --dir ./knowledge
  promptab knowledge search "product description frameworks"
  promptab knowledge reindex`,
	RunE: runKnowledgeStatus,
}

var knowledgeAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a knowledge base entry",
	Long:  `Add a single entry. Content is read from stdin; title and category come from flags.`,
	RunE:  runKnowledgeAdd,
}

var knowledgeIngestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest entries from a directory",
	Long: `Load knowledge entries from YAML and JSON files in a directory.

By default ingestion is skipped when the knowledge base already contains
data; use --force to ingest regardless. Use --watch to keep watching the
directory and ingest files as they change.`,
	RunE: runKnowledgeIngest,
}

var knowledgeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE:  runKnowledgeSearch,
}

var knowledgeReindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Recompute all stored embeddings",
	Long: `Recompute the embedding of every stored record with the configured
model. Run this after changing the embedding model.`,
	RunE: runKnowledgeReindex,
}

var knowledgeStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show knowledge base status",
	RunE:  runKnowledgeStatus,
}

func init() {
	rootCmd.AddCommand(knowledgeCmd)

	knowledgeCmd.AddCommand(knowledgeAddCmd)
	knowledgeCmd.AddCommand(knowledgeIngestCmd)
	knowledgeCmd.AddCommand(knowledgeSearchCmd)
	knowledgeCmd.AddCommand(knowledgeReindexCmd)
	knowledgeCmd.AddCommand(knowledgeStatusCmd)

	knowledgeCmd.PersistentFlags().BoolVar(&knowledgeJSON, "json", false, "Output as JSON")

	knowledgeAddCmd.Flags().StringVar(&addTitle, "title", "", "Entry title (required)")
	knowledgeAddCmd.Flags().StringVar(&addCategory, "category", "", "Entry category")
	knowledgeAddCmd.MarkFlagRequired("title")

	knowledgeIngestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "Directory to ingest (default: configured watch dir)")
	knowledgeIngestCmd.Flags().BoolVarP(&ingestForce, "force", "f", false, "Ingest even when the knowledge base is not empty")
	knowledgeIngestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "Keep watching the directory for changes")

	knowledgeSearchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum results (default: configured limit)")
	knowledgeSearchCmd.Flags().StringVarP(&searchCategory, "category", "c", "", "Restrict to a category")
}

func runKnowledgeAdd(cmd *cobra.Command, args []string) error {
	content, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("read content from stdin: %w", err)
	}
	if strings.TrimSpace(string(content)) == "" {
		return fmt.Errorf("no content given on stdin")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := openKnowledge(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	record, err := app.index.AddToKnowledgeBase(ctx, addTitle, strings.TrimSpace(string(content)), addCategory, nil)
	if err != nil {
		return fmt.Errorf("add entry: %w", err)
	}

	if knowledgeJSON {
		return outputJSON(cmd.OutOrStdout(), record)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%sAdded%s %s (%s)\n", colorGreen, colorReset, record.Title, record.ID)
	return nil
}

func runKnowledgeIngest(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Watch mode is long-running, so it reads the configuration through a
	// reloadable manager rather than a one-shot load.
	var manager *config.Manager
	var cfg *config.Config
	var err error
	if ingestWatch {
		manager, err = config.NewManager(configPath)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = manager.Get()
	} else {
		cfg, err = loadConfig()
		if err != nil {
			return err
		}
	}

	dir := ingestDir
	if dir == "" {
		dir = cfg.Knowledge.WatchDir
	}
	if dir == "" {
		return fmt.Errorf("no directory given: pass --dir or set knowledge.watch_dir")
	}

	app, err := openKnowledge(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	count, err := app.index.IngestDir(ctx, dir, cfg.Knowledge.WatchPatterns, !ingestForce)
	if err != nil {
		return fmt.Errorf("ingest %s: %w", dir, err)
	}

	if knowledgeJSON && !ingestWatch {
		return outputJSON(cmd.OutOrStdout(), map[string]any{"ingested": count, "dir": dir})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%sIngested%s %d entries from %s\n", colorGreen, colorReset, count, dir)

	if !ingestWatch {
		return nil
	}

	watcher, err := knowledge.NewWatcher(app.index, dir, cfg.Knowledge.WatchPatterns)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	manager.OnReload(func(next *config.Config) {
		if err := watcher.SetPatterns(next.Knowledge.WatchPatterns); err != nil {
			slog.Warn("keeping previous ingest patterns",
				slog.String("error", err.Error()))
			return
		}
		slog.Info("configuration reloaded", slog.String("path", configPath))
	})
	go func() {
		if err := manager.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("config watch stopped", slog.String("error", err.Error()))
		}
	}()

	fmt.Fprintf(cmd.OutOrStdout(), "%s%sWatching%s %s - Press Ctrl+C to stop\n", colorBold, colorCyan, colorReset, dir)
	return watcher.Run(ctx)
}

// knowledgeMatchOutput is the JSON shape for one search result.
type knowledgeMatchOutput struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Category   string  `json:"category,omitempty"`
	Similarity float64 `json:"similarity"`
}

func runKnowledgeSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := openKnowledge(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	matches, err := app.index.SearchSimilar(ctx, args[0], knowledge.QueryOptions{
		Limit:    searchLimit,
		Category: searchCategory,
	})
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if knowledgeJSON {
		out := make([]knowledgeMatchOutput, 0, len(matches))
		for _, m := range matches {
			out = append(out, knowledgeMatchOutput{
				ID:         m.Record.ID.String(),
				Title:      m.Record.Title,
				Category:   m.Record.Category,
				Similarity: m.Similarity,
			})
		}
		return outputJSON(cmd.OutOrStdout(), out)
	}

	if len(matches) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "%sNo matches above the similarity threshold.%s\n", colorYellow, colorReset)
		return nil
	}
	for _, m := range matches {
		fmt.Fprintf(cmd.OutOrStdout(), "%s%.3f%s  %s", colorGreen, m.Similarity, colorReset, m.Record.Title)
		if m.Record.Category != "" {
			fmt.Fprintf(cmd.OutOrStdout(), " %s[%s]%s", colorGray, m.Record.Category, colorReset)
		}
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func runKnowledgeReindex(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := openKnowledge(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	start := time.Now()
	total, err := app.index.ReindexAll(ctx)
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	if knowledgeJSON {
		return outputJSON(cmd.OutOrStdout(), map[string]any{
			"reindexed": total,
			"duration":  time.Since(start).String(),
		})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%sReindexed%s %d entries in %s\n",
		colorGreen, colorReset, total, formatDuration(time.Since(start)))
	return nil
}

// knowledgeStatusOutput is the JSON shape for status.
type knowledgeStatusOutput struct {
	DBPath  string `json:"db_path"`
	Entries int    `json:"entries"`
}

func runKnowledgeStatus(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := knowledge.OpenStore(cfg.Knowledge.DBPath)
	if err != nil {
		return fmt.Errorf("open knowledge store: %w", err)
	}
	defer store.Close()

	count, err := store.Count(ctx)
	if err != nil {
		return fmt.Errorf("count entries: %w", err)
	}

	status := knowledgeStatusOutput{DBPath: cfg.Knowledge.DBPath, Entries: count}
	if knowledgeJSON {
		encoder := json.NewEncoder(cmd.OutOrStdout())
		encoder.SetIndent("", "  ")
		return encoder.Encode(status)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s%sKnowledge Base%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(cmd.OutOrStdout(), "%s%s%s\n", colorGray, strings.Repeat("-", 40), colorReset)
	fmt.Fprintf(cmd.OutOrStdout(), "%sDatabase:%s %s\n", colorGray, colorReset, status.DBPath)
	fmt.Fprintf(cmd.OutOrStdout(), "%sEntries:%s  %d\n", colorGray, colorReset, status.Entries)
	return nil
}
