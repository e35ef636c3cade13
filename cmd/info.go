package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
)

var (
	flagInfoChapters string
	flagInfoLang     string
)

var infoCmd = &cobra.Command{
	Use:   "info <shorthash>",
	Short: "Show metadata and chapters of a cached work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(config.Options{Language: flagInfoLang}, func(a *app) error {
			m, err := a.resolve(args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			lang := a.cfg.Language

			if flagInfoChapters != "" {
				selected := m.Select(flagInfoChapters, lang)
				if len(selected) == 0 {
					return fmt.Errorf("no chapters match %q in language %q", flagInfoChapters, lang)
				}

				for _, c := range selected {
					pages := "not parsed"
					if c.Parsed() {
						pages = fmt.Sprintf("%d", len(c.Pages))
					}

					fmt.Fprintf(out, "chapter %s (%s)\n", c.ID, c.Lang)
					fmt.Fprintf(out, "  title:  %s\n", c.Title)
					fmt.Fprintf(out, "  volume: %s\n", c.Volume)
					fmt.Fprintf(out, "  url:    %s\n", c.URL)
					fmt.Fprintf(out, "  pages:  %s\n", pages)
				}

				return nil
			}

			meta := m.Meta
			info := m.Info()

			fmt.Fprintf(out, "%s  %s\n", meta.ShortHash(), meta.Title)
			if len(meta.AltTitles) > 0 {
				fmt.Fprintf(out, "also known as: %s\n", strings.Join(meta.AltTitles, "; "))
			}
			fmt.Fprintf(out, "url:       %s\n", meta.URL)
			fmt.Fprintf(out, "authors:   %s\n", strings.Join(meta.Authors, ", "))
			fmt.Fprintf(out, "genres:    %s\n", strings.Join(meta.Genres, ", "))
			fmt.Fprintf(out, "languages: %s\n", strings.Join(info.Languages, ", "))
			if meta.Cover != "" {
				fmt.Fprintf(out, "cover:     %s\n", meta.Cover)
			}

			if desc := meta.Desc(lang); desc != "" {
				fmt.Fprintf(out, "\n%s\n", desc)
			}

			fmt.Fprintf(out, "\n%s\n\n", m.PlainSummary(lang))
			fmt.Fprintf(out, "%d volumes, %d chapters\n", len(info.Volumes), info.Chapters)

			return nil
		})
	},
}

func init() {
	infoCmd.Flags().StringVarP(&flagInfoChapters, "chapters", "c", "", "show details of chapters, e.g. \"1,3,5-8\"")
	infoCmd.Flags().StringVar(&flagInfoLang, "lang", "", "chapter language (default from config)")
	rootCmd.AddCommand(infoCmd)
}
