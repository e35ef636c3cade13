package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
)

var removeCmd = &cobra.Command{
	Use:   "remove <shorthash>...",
	Short: "Delete works and their downloaded pages from the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(config.Options{}, func(a *app) error {
			for _, prefix := range args {
				m, err := a.resolve(prefix)
				if err != nil {
					return err
				}

				if err := a.cache.Delete(m.Meta.Hash()); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "removed %s  %s\n", m.Meta.ShortHash(), m.Meta.Title)
			}

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(removeCmd)
}
