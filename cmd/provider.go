package cmd

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Taichi-iskw/clipquiz/internal/config"
	"github.com/Taichi-iskw/clipquiz/internal/model"
	"github.com/Taichi-iskw/clipquiz/internal/service/ai"
)

// providerCmd represents the provider command
var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "Inspect AI providers",
}

var providerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List providers and whether their credentials are configured",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewConfig()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "PROVIDER\tACTIVE\tCREDENTIALS\tFALLBACK")
		for _, name := range model.KnownProviders {
			active := ""
			if name == cfg.Provider() {
				active = "*"
			}
			fallback := ""
			if name == model.DefaultProvider {
				fallback = "default"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, active, credentialState(cfg, name), fallback)
		}
		return w.Flush()
	},
}

var providerCostCmd = &cobra.Command{
	Use:   "cost [TOKENS]",
	Short: "Estimate the price of a request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := strconv.Atoi(args[0])
		if err != nil || tokens < 0 {
			return fmt.Errorf("invalid token count: %s", args[0])
		}

		name, _ := cmd.Flags().GetString("provider")
		var provider model.ProviderName
		if name == "" {
			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			provider = cfg.Provider()
		} else if provider, err = model.ParseProviderName(name); err != nil {
			return err
		}

		cost := ai.EstimateCostFor(provider, tokens)
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d tokens ≈ %s %.4f\n", cost.Provider, tokens, cost.Currency, cost.Cost)
		return nil
	},
}

func credentialState(cfg *config.Config, name model.ProviderName) string {
	var ok bool
	switch name {
	case model.ProviderQwen:
		ok = cfg.Qwen.APIKey != ""
	case model.ProviderSpark:
		ok = cfg.Spark.AppID != "" && cfg.Spark.APIKey != "" && cfg.Spark.APISecret != ""
	case model.ProviderOpenAI:
		ok = cfg.OpenAI.APIKey != ""
	}
	if ok {
		return "configured"
	}
	return "missing"
}

func init() {
	rootCmd.AddCommand(providerCmd)
	providerCmd.AddCommand(providerListCmd)
	providerCmd.AddCommand(providerCostCmd)
	providerCostCmd.Flags().String("provider", "", "provider to price (defaults to AI_PROVIDER)")
}
