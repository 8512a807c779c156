package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/featuresync/internal/core"
)

func (a *App) datasetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List registered datasets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL\tID FIELD\tEDITABLE")
			for _, def := range core.All() {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					def.Key, def.Label, def.IdentifierField, strings.Join(def.EditableFields, ","))
			}
			return tw.Flush()
		},
	}
}

func (a *App) reconcileCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "reconcile <dataset> <file.csv>",
		Short: "Submit edited fields from a CSV file",
		Example: `  featuresync reconcile change_requests edits.csv
  featuresync reconcile change_requests edits.csv --dry-run`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}

			f, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer f.Close()

			report, runErr := svc.Reconcile(cmd.Context(), args[0], filepath.Base(args[1]), f, core.RunOptions{
				DryRun: dryRun,
				OnPhase: func(p core.RunPhase, _ time.Time) {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s...\n", p)
				},
			})
			if report != nil {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			}
			if runErr != nil {
				return errors.New(core.FormatUserError(runErr))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "diff only, submit nothing")
	return cmd
}

func (a *App) exportCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "export <dataset>",
		Short: "Write the dataset's records as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			n, err := svc.Export(cmd.Context(), args[0], core.FilterSet{}, w)
			if err != nil {
				return errors.New(core.FormatUserError(err))
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "exported %d records\n", n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (a *App) runsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <dataset>",
		Short: "Show recent reconciliation runs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.openService(cmd.Context())
			if err != nil {
				return err
			}
			runs, err := svc.ListRuns(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tRUN\tFILE\tPHASE\tMATCHED\tSUBMITTED\tAPPLIED\tFAILED")
			for _, r := range runs {
				phase := string(r.Phase)
				if r.DryRun {
					phase += " (dry run)"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
					r.StartedAt.Format(time.RFC3339), r.RunID, r.FileName, phase,
					r.Matched, r.Submitted, r.Applied, r.Failed)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of runs to show (default RECONCILE_HISTORY_LIMIT)")
	return cmd
}
