package cmd

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brogergvhs/tankobon/internal/config"
	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/util"
)

var (
	flagPackChapters string
	flagPackLang     string
	flagPackOutput   string
)

var packCmd = &cobra.Command{
	Use:   "pack <shorthash>",
	Short: "Zip downloaded chapters into one CBZ file in page order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(config.Options{Language: flagPackLang}, func(a *app) error {
			m, err := a.resolve(args[0])
			if err != nil {
				return err
			}

			lang := a.cfg.Language

			var selected []*manga.Chapter
			if flagPackChapters == "" {
				selected = m.All(lang)
			} else {
				selected = m.Select(flagPackChapters, lang)
			}
			if len(selected) == 0 {
				return fmt.Errorf("no chapters selected in language %q", lang)
			}

			output := flagPackOutput
			if output == "" {
				output = selected[0].OutputCBZ()
			}

			ctx, cancel := util.SetupInterruptHandler(cmd.Context(), a.log)
			defer cancel()

			if err := a.parsePages(ctx, m, selected); err != nil {
				return err
			}

			d, err := a.downloader(m)
			if err != nil {
				return err
			}
			defer func() { _ = d.Close() }()

			pages, err := d.Paginate(ctx, selected, func(done, total int) {
				a.log.WithFields(logrus.Fields{"done": done, "total": total}).Debug("chapter ready")
			})
			if err != nil {
				return err
			}

			if err := util.CreateCBZ(a.fs, pages, output); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Packed %d chapters (%d pages) into %s\n", len(selected), len(pages), output)

			return nil
		})
	},
}

func init() {
	packCmd.Flags().StringVarP(&flagPackChapters, "chapters", "c", "", "chapters to pack, e.g. \"1-5\" (default all)")
	packCmd.Flags().StringVar(&flagPackLang, "lang", "", "chapter language (default from config)")
	packCmd.Flags().StringVarP(&flagPackOutput, "output", "o", "", "output CBZ file (default named after the first chapter)")
	rootCmd.AddCommand(packCmd)
}
