package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config profiles for tankobon",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, used, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Loaded config from:\n  %s\n\n", used)
		cfg.Print(cmd.OutOrStdout())

		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a value in the active config",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configStore()

		path, err := store.ActivePath()
		if errors.Is(err, config.ErrNoConfig) {
			return fmt.Errorf("%w, run `tankobon config init` first", err)
		}
		if err != nil {
			return err
		}

		cfg, err := store.Load(path)
		if err != nil {
			return err
		}

		if err := cfg.Set(args[0], args[1]); err != nil {
			return err
		}

		if err := store.Save(cfg, path); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s = %s\n", args[0], args[1])

		return nil
	},
}

func init() {
	configCmd.AddCommand(configSetCmd)
	rootCmd.AddCommand(configCmd)
}
