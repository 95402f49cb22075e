// Package cmd provides the PrompTab command line interface.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

var (
	configPath string
	logVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "promptab",
	Short: "PrompTab - retrieval-augmented prompt optimization",
	Long: `PrompTab analyzes raw prompts, selects prompt-engineering techniques,
retrieves matching knowledge-base entries, and rewrites the prompt
through a configured LLM backend.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if logVerbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "promptab.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&logVerbose, "verbose", "v", false, "Enable debug logging")
}

func Execute() error {
	return rootCmd.Execute()
}
