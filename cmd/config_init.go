package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
)

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the Default config and make it active",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configStore()
		out := cmd.OutOrStdout()
		path := store.PathByLabel(config.DefaultLabel)

		fmt.Fprintln(out, "Configuration file:")
		fmt.Fprintln(out, "  ", path)
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Default configuration:")
		config.DefaultConfig().Print(out)
		fmt.Fprintln(out)

		if !confirm("Create and activate the Default config") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}

		path, created, err := store.Init()
		if err != nil {
			return err
		}

		if created {
			fmt.Fprintln(out, "Config created at:", path)
		} else {
			fmt.Fprintln(out, "Config already exists at:", path)
		}
		fmt.Fprintf(out, "This config is now active (label: %s).\n", config.DefaultLabel)

		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
