package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dukerupert/choreflow/internal/config"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <chores.yaml>",
		Short: "Check a chores file without starting the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := config.LoadChores(args[0])
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), f)
		},
	}
}

func printSummary(w io.Writer, f *config.ChoresFile) error {
	defs, err := f.Definitions()
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHORE\tCRITERIA\tSCHEDULE\tRESET\tASSIGNEES")
	for _, d := range defs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n", d.Name, d.CompletionCriteria, d.Recurrence.Describe(), d.ResetType, len(d.Assignees))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "ok: %d participants, %d chores\n", len(f.Participants), len(defs))
	return err
}
