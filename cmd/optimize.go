package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/promptab/promptab/core/optimizer"
	"github.com/promptab/promptab/core/techniques"
	"github.com/spf13/cobra"
)

var (
	optimizeProvider   string
	optimizeLanguage   string
	optimizeTechniques []string
	optimizeNoRAG      bool
	optimizeJSON       bool
)

var optimizeCmd = &cobra.Command{
	Use:   "optimize [prompt]",
	Short: "Optimize a prompt",
	Long: `Optimize a raw prompt using prompt-engineering techniques and
retrieval-augmented context from the knowledge base.

The prompt is read from the first argument, or from stdin when no
argument is given.

Examples:
  promptab optimize "write a product description for wireless headphones"
  promptab optimize --provider ollama --no-rag "explain quantum computing"
  cat prompt.txt | promptab optimize --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOptimize,
}

func init() {
	rootCmd.AddCommand(optimizeCmd)

	optimizeCmd.Flags().StringVarP(&optimizeProvider, "provider", "p", "", "Provider to use (anthropic, openai, gemini, ollama); empty picks the best available")
	optimizeCmd.Flags().StringVarP(&optimizeLanguage, "language", "l", "auto", "Prompt language (en, ru, auto)")
	optimizeCmd.Flags().StringSliceVarP(&optimizeTechniques, "technique", "t", nil, "Techniques to apply (default: selected from analysis)")
	optimizeCmd.Flags().BoolVar(&optimizeNoRAG, "no-rag", false, "Disable knowledge base retrieval")
	optimizeCmd.Flags().BoolVar(&optimizeJSON, "json", false, "Output as JSON")
}

func runOptimize(cmd *cobra.Command, args []string) error {
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := openFull(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	var selected []techniques.Technique
	if len(optimizeTechniques) > 0 {
		selected, err = techniques.ParseList(optimizeTechniques)
		if err != nil {
			return err
		}
	}

	useRAG := !optimizeNoRAG
	start := time.Now()
	result, err := app.opt.Optimize(ctx, optimizer.Request{
		Prompt:     prompt,
		Techniques: selected,
		UseRAG:     &useRAG,
		Provider:   optimizeProvider,
		Language:   optimizeLanguage,
	})
	if err != nil {
		var validationErr *optimizer.ValidationError
		if errors.As(err, &validationErr) {
			return fmt.Errorf("invalid prompt: %s", validationErr.Reason)
		}
		return err
	}

	if optimizeJSON {
		return outputJSON(cmd.OutOrStdout(), result)
	}
	return outputRichResult(cmd.OutOrStdout(), result, time.Since(start))
}

// readPrompt takes the prompt from the argument list or, absent one, stdin.
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", fmt.Errorf("no prompt given: pass it as an argument or on stdin")
	}
	return prompt, nil
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func outputRichResult(w io.Writer, result *optimizer.OptimizedPrompt, elapsed time.Duration) error {
	fmt.Fprintf(w, "%s%sOptimized Prompt%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(w, "%s%s%s\n", colorGray, strings.Repeat("-", 40), colorReset)
	fmt.Fprintln(w, result.Optimized)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%sTechniques:%s %s\n", colorGray, colorReset, strings.Join(result.TechniquesUsed, ", "))

	if provider, ok := result.Metadata[optimizer.MetaProvider].(string); ok {
		fmt.Fprintf(w, "%sProvider:%s   %s\n", colorGray, colorReset, provider)
	}

	if len(result.RAGSources) > 0 {
		fmt.Fprintf(w, "%sSources:%s\n", colorGray, colorReset)
		for _, src := range result.RAGSources {
			fmt.Fprintf(w, "  %s%.3f%s  %s\n", colorGreen, src.Similarity, colorReset, src.Title)
		}
	}

	if len(result.Variables) > 0 {
		fmt.Fprintf(w, "%sVariables:%s\n", colorGray, colorReset)
		for _, v := range result.Variables {
			fmt.Fprintf(w, "  %s{{%s}}%s  %s\n", colorYellow, v.SuggestedName, colorReset, v.Text)
		}
	}

	fmt.Fprintf(w, "%sElapsed:%s    %s\n", colorGray, colorReset, formatDuration(elapsed))
	return nil
}
