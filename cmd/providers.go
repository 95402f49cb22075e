package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var providersJSON bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured generation backends",
	Long: `List the generation backends available with the current configuration.
Backends without credentials are omitted; the local Ollama backend is
always present.`,
	RunE: runProviders,
}

func init() {
	rootCmd.AddCommand(providersCmd)
	providersCmd.Flags().BoolVar(&providersJSON, "json", false, "Output as JSON")
}

// providerOutput is the JSON shape for one backend.
type providerOutput struct {
	Name    string `json:"name"`
	Model   string `json:"model"`
	Default bool   `json:"default"`
}

func runProviders(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	registry, err := buildRegistry(ctx, cfg)
	if err != nil {
		return err
	}

	defaultProvider, err := registry.Default()
	if err != nil {
		return err
	}

	var out []providerOutput
	for _, providerType := range registry.Available() {
		provider, err := registry.Get(providerType)
		if err != nil {
			continue
		}
		out = append(out, providerOutput{
			Name:    provider.Name(),
			Model:   provider.Model(),
			Default: provider.Name() == defaultProvider.Name(),
		})
	}

	if providersJSON {
		return outputJSON(cmd.OutOrStdout(), out)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s%sProviders%s\n", colorBold, colorCyan, colorReset)
	fmt.Fprintf(cmd.OutOrStdout(), "%s%s%s\n", colorGray, strings.Repeat("-", 40), colorReset)
	for _, p := range out {
		marker := " "
		if p.Default {
			marker = fmt.Sprintf("%s*%s", colorGreen, colorReset)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s%-10s%s %s\n", marker, colorBold, p.Name, colorReset, p.Model)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s* default%s\n", colorGray, colorReset)
	return nil
}
