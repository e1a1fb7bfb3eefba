package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cellbook/cellbook/internal/config"
	"github.com/cellbook/cellbook/internal/log"
)

var (
	chdir      string
	fileName   string
	configPath string
)

func Root() *cobra.Command {
	cmd := cobra.Command{
		Use:           "cellbook",
		Short:         "Edit and execute cell-structured notebook documents",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.LogEnabled {
				log.Set(cfg.LogVerbose)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Flush()
		},
	}

	setGlobalFlags(cmd.PersistentFlags())

	cmd.AddCommand(listCmd())
	cmd.AddCommand(runCmd())
	cmd.AddCommand(fmtCmd())
	cmd.AddCommand(watchCmd())

	return &cmd
}

func setGlobalFlags(pflags *pflag.FlagSet) {
	pflags.StringVar(&chdir, "chdir", ".", "Switch to a different working directory before running the command.")
	pflags.StringVar(&fileName, "filename", "notebook.cbnb", "A name of the notebook file.")
	pflags.StringVar(&configPath, "config", "cellbook.yaml", "Path to the configuration file.")
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}
