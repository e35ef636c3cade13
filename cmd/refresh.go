package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/sources"
)

var flagRefreshPages bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [shorthash]...",
	Short: "Re-parse cached works, or every work when no hash is given",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(config.Options{}, func(a *app) error {
			var works []*manga.Manga

			if len(args) == 0 {
				metas, err := a.cache.List()
				if err != nil {
					return err
				}
				for _, meta := range metas {
					m, err := a.cache.Load(meta.Hash())
					if err != nil {
						return err
					}
					works = append(works, m)
				}
			}

			for _, prefix := range args {
				m, err := a.resolve(prefix)
				if err != nil {
					return err
				}
				works = append(works, m)
			}

			for _, m := range works {
				p, err := a.registry.ByURL(m.Meta.URL)
				if err != nil {
					return err
				}

				before := m.Info().Chapters
				if err := sources.Refresh(cmd.Context(), p, m, flagRefreshPages); err != nil {
					return err
				}

				if err := a.cache.Dump(m); err != nil {
					return err
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s (+%d chapters)\n",
					m.Meta.ShortHash(), m.Meta.Title, m.Info().Chapters-before)
			}

			return nil
		})
	},
}

func init() {
	refreshCmd.Flags().BoolVar(&flagRefreshPages, "pages", false, "also parse pages of chapters that have none yet")
	rootCmd.AddCommand(refreshCmd)
}
