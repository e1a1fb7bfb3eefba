package cmd

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cellbook/cellbook/internal/editor"
)

func runCmd() *cobra.Command {
	var runAll bool

	cmd := cobra.Command{
		Use:   "run [index]",
		Short: "Execute one code cell, or the whole notebook with --all.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctrl, cleanup, err := attachEditor(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			if runAll {
				if err := ctrl.ExecuteNotebook(cmd.Context()); err != nil {
					return err
				}
				return printOutputs(cmd, ctrl, -1)
			}

			if len(args) == 0 {
				return errors.New("provide a cell index or --all")
			}
			index, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrapf(err, "invalid cell index %q", args[0])
			}
			if err := ctrl.ExecuteCell(cmd.Context(), index); err != nil {
				return err
			}
			return printOutputs(cmd, ctrl, index)
		},
	}

	cmd.Flags().BoolVar(&runAll, "all", false, "Execute every code cell in document order.")
	return &cmd
}

func printOutputs(cmd *cobra.Command, ctrl *editor.Controller, only int) error {
	for i, c := range ctrl.Document().Cells() {
		if only >= 0 && i != only {
			continue
		}
		for _, out := range c.Outputs {
			for _, item := range out.Items {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s", item.Data)
			}
		}
	}
	return nil
}
