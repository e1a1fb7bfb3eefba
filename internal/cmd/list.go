package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func listCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "list",
		Short: "List the cells of the notebook.",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 2, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "IDX\tKIND\tLANGUAGE\tFIRST LINE")
			for i, c := range doc.Cells() {
				firstLine, _, _ := strings.Cut(c.Value, "\n")
				if len(firstLine) > 60 {
					firstLine = firstLine[:60] + "…"
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", i, c.Kind(), c.LanguageID, firstLine)
			}
			return w.Flush()
		},
	}
	return &cmd
}
