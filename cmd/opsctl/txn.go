package main

import (
	"github.com/spf13/cobra"
)

func txnCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "txn [reference_id]",
		Short: "Show a transaction across both stores",
		Long: `Show a transaction as the status endpoint reports it: the document,
the ledger status, how far apart the two are, its dispatch job and its
merchant webhook deliveries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			view, err := a.Payments.Status(commandContext(cmd), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, view)
		},
	}
}
