package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kevin07696/payment-gateway/internal/queue"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect dispatch jobs",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsGetCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs in one state",
		Long: `List jobs in one state, oldest first.

States: waiting, active, completed, failed, stalled`,
		Args: cobra.NoArgs,
		RunE: runJobsList,
	}

	cmd.Flags().StringP("state", "s", string(queue.StateFailed), "Job state")
	cmd.Flags().IntP("limit", "n", 50, "Maximum results")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func runJobsList(cmd *cobra.Command, args []string) error {
	stateFlag, _ := cmd.Flags().GetString("state")
	limit, _ := cmd.Flags().GetInt("limit")
	asJSON, _ := cmd.Flags().GetBool("json")

	state, err := parseState(stateFlag)
	if err != nil {
		return err
	}

	a, err := connect(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	jobs, err := a.Queue.ListByState(commandContext(cmd), state, limit)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if asJSON {
		return printJSON(cmd, jobs)
	}

	if len(jobs) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "No %s jobs\n", state)
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REFERENCE\tKIND\tATTEMPTS\tUPDATED\tLAST ERROR")
	for _, j := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n",
			j.ReferenceID,
			j.Kind,
			j.Attempts, j.MaxAttempts,
			j.UpdatedAt.Format("2006-01-02 15:04:05"),
			truncate(j.LastError, 60),
		)
	}
	return w.Flush()
}

func jobsGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get [reference_id]",
		Short: "Show the dispatch job of a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := connect(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.Queue.Get(commandContext(cmd), queue.KindDispatch, args[0])
			if err != nil {
				return fmt.Errorf("get job %s: %w", args[0], err)
			}
			return printJSON(cmd, job)
		},
	}
}

func parseState(s string) (queue.State, error) {
	state := queue.State(strings.ToLower(strings.TrimSpace(s)))
	switch state {
	case queue.StateWaiting, queue.StateActive, queue.StateCompleted, queue.StateFailed, queue.StateStalled:
		return state, nil
	}
	return "", fmt.Errorf("unknown job state %q", s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
