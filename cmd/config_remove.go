package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var forceRemove bool

var configRemoveCmd = &cobra.Command{
	Use:   "remove <label>",
	Short: "Remove a config profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configStore()
		label := args[0]

		active, _ := store.CurrentLabel()

		if label == active && !forceRemove {
			if !confirm(fmt.Sprintf("Config %q is currently active. Remove it anyway", label)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		}

		if err := store.Remove(label); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Removed configuration %q\n", label)

		return nil
	},
}

func init() {
	configRemoveCmd.Flags().BoolVarP(&forceRemove, "force", "f", false, "do not ask when removing the active config")
	configCmd.AddCommand(configRemoveCmd)
}
