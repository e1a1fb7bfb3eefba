package cmd

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cellbook/cellbook/internal/log"
	"github.com/cellbook/cellbook/internal/storage"
)

func watchCmd() *cobra.Command {
	cmd := cobra.Command{
		Use:   "watch",
		Short: "Re-execute the notebook whenever the file changes on disk.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			runOnce := func() error {
				ctrl, cleanup, err := attachEditor(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				defer cleanup()
				if err := ctrl.ExecuteNotebook(cmd.Context()); err != nil {
					return err
				}
				return printOutputs(cmd, ctrl, -1)
			}

			changes := make(chan struct{}, 1)
			g, gctx := errgroup.WithContext(cmd.Context())

			g.Go(func() error {
				return storage.Watch(gctx, notebookPath(), log.Get(), func() {
					select {
					case changes <- struct{}{}:
					default:
					}
				})
			})

			g.Go(func() error {
				if err := runOnce(); err != nil {
					return err
				}
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-changes:
						if err := runOnce(); err != nil {
							return err
						}
					}
				}
			})

			return g.Wait()
		},
	}
	return &cmd
}
