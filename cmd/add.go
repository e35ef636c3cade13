package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
	"github.com/brogergvhs/tankobon/internal/sources"
)

var addCmd = &cobra.Command{
	Use:   "add <url>...",
	Short: "Parse works by url and add them to the cache",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(config.Options{}, func(a *app) error {
			for _, url := range args {
				if hash, ok := a.cache.Alias(url); ok {
					a.log.WithFields(logrus.Fields{"url": url, "hash": hash[:8]}).Info("already in cache, use refresh to update")
					continue
				}

				p, err := a.registry.ByURL(url)
				if err != nil {
					return err
				}

				m, err := sources.Create(cmd.Context(), p, url)
				if err != nil {
					return err
				}

				if err := sources.Refresh(cmd.Context(), p, m, false); err != nil {
					return err
				}

				if err := a.cache.Dump(m); err != nil {
					return err
				}

				info := m.Info()
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (%d chapters)\n", m.Meta.ShortHash(), m.Meta.Title, info.Chapters)
			}

			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
}
