package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
	"github.com/brogergvhs/tankobon/internal/manga"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List supported sites and cached works",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(config.Options{}, func(a *app) error {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Supported sites:")
			for _, p := range a.registry.Patterns() {
				fmt.Fprintln(out, "  "+p)
			}
			fmt.Fprintln(out)

			metas, err := a.cache.List()
			if err != nil {
				return err
			}
			if len(metas) == 0 {
				fmt.Fprintln(out, "Cache is empty. Add a work with `tankobon add <url>`.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 4, ' ', 0)
			_, _ = fmt.Fprintln(w, "HASH\tTITLE\tURL")

			rows := lo.Map(metas, func(m manga.Metadata, _ int) string {
				return fmt.Sprintf("%s\t%s\t%s", m.ShortHash(), m.Title, m.URL)
			})
			for _, r := range rows {
				_, _ = fmt.Fprintln(w, r)
			}

			return w.Flush()
		})
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
}
