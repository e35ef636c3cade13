package cmd

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
)

var flagConfigFrom string

var configAddCmd = &cobra.Command{
	Use:   "add <label>",
	Short: "Create a new config with default values, or import one with --from",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store := configStore()
		label := args[0]

		if flagConfigFrom != "" {
			if err := store.Import(label, afero.NewOsFs(), flagConfigFrom); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %s as %q\n", flagConfigFrom, label)
			return nil
		}

		path, err := store.Create(label)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created new config: %s\n", path)

		return nil
	},
}

func init() {
	configAddCmd.Flags().StringVar(&flagConfigFrom, "from", "", "existing YAML file to import")
	configCmd.AddCommand(configAddCmd)
}
