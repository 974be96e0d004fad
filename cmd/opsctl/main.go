// Command opsctl inspects dispatch jobs and transactions and triggers
// reconciliation sweeps against the gateway's stores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kevin07696/payment-gateway/internal/app"
	"github.com/kevin07696/payment-gateway/internal/config"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "opsctl",
		Short:         "Operator tooling for the payment gateway",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().Bool("verbose", false, "Log store and service activity to stderr")

	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(txnCmd())
	rootCmd.AddCommand(reconcileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// connect loads configuration from the environment and opens both stores.
// The caller must Close the returned App.
func connect(cmd *cobra.Command) (*app.App, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := zap.NewNop()
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger, err = app.NewLogger(cfg.Logger)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}

	a, err := app.New(commandContext(cmd), cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect stores: %w", err)
	}
	return a, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
