package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/klokku/ritual/internal/app"
	"github.com/klokku/ritual/internal/utils"
	"github.com/klokku/ritual/pkg/backup"
	"github.com/klokku/ritual/pkg/routine"
	"github.com/spf13/cobra"
)

func parseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Print the phases and items parsed from a routine text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(routine.Parse(string(text)))
		},
	}
}

func backupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import routines, execution states and settings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "export [file]",
		Short: "Write a backup to file, or to stdout without one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				data, err := deps.BackupService.Export(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(args) == 1 {
					f, err := os.Create(args[0])
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(data)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "import [file]",
		Short: "Restore a backup file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			data, err := backup.Decode(f)
			if err != nil {
				return err
			}
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				result, err := deps.BackupService.Import(ctx, data)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d routines, %d execution states, settings: %t\n",
					result.Routines, result.Executions, result.Settings)
				return nil
			})
		},
	})

	return cmd
}

func noteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "note [date]",
		Short: "Print the markdown note of a date, today by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDependencies(cmd, func(ctx context.Context, deps *app.Dependencies) error {
				date := deps.SettingsService.Get(ctx).DateOf(deps.Clock.Now())
				if len(args) == 1 {
					if _, err := utils.ParseDate(args[0]); err != nil {
						return err
					}
					date = args[0]
				}
				text, err := deps.NoteExporter.Export(ctx, date)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), text)
				return nil
			})
		},
	}
}
