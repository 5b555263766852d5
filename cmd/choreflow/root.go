package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "choreflow",
		Short: "Choreflow - recurring chores with claims and approvals",
		Long: `Choreflow tracks recurring household chores. Participants claim
chores, approvers approve them, and a scheduler resets and marks
chores overdue as their periods roll over.

Configuration is read from CHOREFLOW_* environment variables; flags
override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newValidateCommand())
	return cmd
}
