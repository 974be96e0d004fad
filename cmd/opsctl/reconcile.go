package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Repair transactions whose stores disagree",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation sweep now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.Timeouts.CronContext(commandContext(cmd))
			defer cancel()

			report, sweepErr := a.Reconciler.Sweep(ctx)
			if report != nil {
				if err := printJSON(cmd, report); err != nil {
					return err
				}
			}
			if sweepErr != nil {
				return fmt.Errorf("sweep: %w", sweepErr)
			}
			return nil
		},
	})
	return cmd
}
