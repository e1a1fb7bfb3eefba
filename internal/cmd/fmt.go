package cmd

import (
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/cellbook/cellbook/internal/storage"
)

func fmtCmd() *cobra.Command {
	var write bool

	cmd := cobra.Command{
		Use:   "fmt",
		Short: "Round-trip the notebook through the serializer.",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := readDocument()
			if err != nil {
				return err
			}
			data, err := storage.Serialize(doc)
			if err != nil {
				return err
			}

			if !write {
				_, err = cmd.OutOrStdout().Write(append(data, '\n'))
				return err
			}
			return errors.Wrap(os.WriteFile(notebookPath(), data, 0o600), "write notebook")
		},
	}

	cmd.Flags().BoolVar(&write, "write", false, "Write the result back to the notebook file.")
	return &cmd
}
