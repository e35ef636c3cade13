package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/brogergvhs/tankobon/internal/config"
	"github.com/brogergvhs/tankobon/internal/downloader"
	"github.com/brogergvhs/tankobon/internal/manga"
	"github.com/brogergvhs/tankobon/internal/ui"
	"github.com/brogergvhs/tankobon/internal/util"
)

var (
	flagChapters       string
	flagLang           string
	flagForce          bool
	flagCover          bool
	flagYes            bool
	flagWorkers        int
	flagChapterWorkers int
	flagTimeout        int
	flagUserAgent      string
	flagCookie         string
	flagCookieFile     string
)

func init() {
	downloadCmd := &cobra.Command{
		Use:   "download <shorthash>",
		Short: "Download chapters of a cached work. Uses the defaults from the selected config, overwritten by CLI flags",
		Args:  cobra.ExactArgs(1),
		RunE:  runDownload,
	}

	// selection
	downloadCmd.Flags().StringVarP(&flagChapters, "chapters", "c", "", "chapters to download, e.g. \"1,3,5-8\" (default all)")
	downloadCmd.Flags().StringVar(&flagLang, "lang", "", "chapter language (default from config)")
	downloadCmd.Flags().BoolVar(&flagForce, "force", false, "download again even if already on disk")
	downloadCmd.Flags().BoolVar(&flagCover, "cover", false, "also download the cover image")
	downloadCmd.Flags().BoolVarP(&flagYes, "yes", "y", false, "do not ask before downloading every chapter")

	// runtime
	downloadCmd.Flags().IntVar(&flagWorkers, "workers", 0, "parallel page downloads per chapter")
	downloadCmd.Flags().IntVar(&flagChapterWorkers, "chapter-workers", 0, "parallel chapter downloads")
	downloadCmd.Flags().IntVar(&flagTimeout, "timeout", 0, "seconds per page request")

	// headers/auth
	downloadCmd.Flags().StringVar(&flagCookie, "cookie", "", "cookie string, e.g. \"key=value; other=123\"")
	downloadCmd.Flags().StringVar(&flagCookieFile, "cookie-file", "", "path to a text file with cookies (one header line)")
	downloadCmd.Flags().StringVar(&flagUserAgent, "user-agent", "", "override User-Agent")

	rootCmd.AddCommand(downloadCmd)
}

func runDownload(cmd *cobra.Command, args []string) error {
	opts := config.Options{
		Language:       flagLang,
		Workers:        flagWorkers,
		ChapterWorkers: flagChapterWorkers,
		Timeout:        flagTimeout,
		UserAgent:      flagUserAgent,
		Cookie:         flagCookie,
		CookieFile:     flagCookieFile,
	}

	return withApp(opts, func(a *app) error {
		m, err := a.resolve(args[0])
		if err != nil {
			return err
		}

		lang := a.cfg.Language

		var selected []*manga.Chapter
		if flagChapters == "" {
			selected = m.All(lang)
			if len(selected) > 0 && !flagYes && !confirm(fmt.Sprintf("Download ALL %d chapters of %s", len(selected), m.Meta.Title)) {
				fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
				return nil
			}
		} else {
			selected = m.Select(flagChapters, lang)
		}

		if len(selected) == 0 {
			return fmt.Errorf("no chapters selected in language %q", lang)
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
		defer func() {
			if err := d.Close(); err != nil {
				a.log.WithError(err).Error("failed to save manifest")
			}
		}()

		if removed, err := d.Prune(); err != nil {
			return err
		} else if len(removed) > 0 {
			a.log.WithField("dirs", len(removed)).Warn("removed unfinished chapter directories")
		}

		if flagCover && m.Meta.Cover != "" {
			if _, err := d.DownloadCover(ctx, m.Meta.Cover, flagForce); err != nil {
				a.log.WithError(err).Error("cover download failed")
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Downloading %d chapters of %s\n\n", len(selected), m.Meta.Title)

		stats := ui.NewStats()
		err = downloadChapters(ctx, d, selected, a.cfg.ChapterWorkers, a.log, stats)

		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprintln(cmd.OutOrStdout(), "Download Summary:", stats)
		fmt.Fprintln(cmd.OutOrStdout(), "Stored in:", a.cache.Dir(m.Meta.Hash()))

		return err
	})
}

// parsePages fetches page lists for the selected chapters that have none and
// persists the work once if anything changed.
func (a *app) parsePages(ctx context.Context, m *manga.Manga, selected []*manga.Chapter) error {
	var missing []*manga.Chapter
	for _, c := range selected {
		if !c.Parsed() {
			missing = append(missing, c)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	p, err := a.registry.ByURL(m.Meta.URL)
	if err != nil {
		return err
	}

	for _, c := range missing {
		a.log.WithFields(logrus.Fields{"chapter": c.ID, "lang": c.Lang}).Debug("parsing pages")

		if err := p.AddPages(ctx, c); err != nil {
			return fmt.Errorf("pages of chapter %s: %w", c.ID, err)
		}
	}

	return a.cache.Dump(m)
}

// downloadChapters runs up to workers chapters at once. A failed chapter does
// not stop the others; all failures are joined into the returned error.
func downloadChapters(
	ctx context.Context,
	d *downloader.Downloader,
	chapters []*manga.Chapter,
	workers int,
	log logrus.FieldLogger,
	stats *ui.Stats,
) error {
	pm := ui.NewProgressManager(os.Stderr)

	var g errgroup.Group
	g.SetLimit(max(1, workers))

	errs := make([]error, len(chapters))

	for i, c := range chapters {
		i, c := i, c

		if ctx.Err() != nil {
			break
		}

		bar := pm.Chapter(c.ID, c.Lang)

		if d.Downloaded(c) && !flagForce {
			bar.Skip()
			stats.Skipped.Add(1)
			continue
		}

		g.Go(func() error {
			var written int64
			err := d.Download(ctx, c, flagForce, func(done, total int, bytes int64) {
				written = bytes
				bar.Update(done, total, bytes)
			})

			if err != nil {
				bar.Fail()
				stats.Failed.Add(1)
				log.WithFields(logrus.Fields{"chapter": c.ID, "lang": c.Lang}).WithError(err).Error("chapter aborted")
				errs[i] = fmt.Errorf("chapter %s (%s): %w", c.ID, c.Lang, err)

				return nil
			}

			bar.Done()
			stats.Chapters.Add(1)
			stats.Pages.Add(int64(len(c.Pages)))
			stats.Bytes.Add(written)

			return nil
		})
	}

	_ = g.Wait()
	pm.Close()

	if err := ctx.Err(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

func confirm(label string) bool {
	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
	}

	_, err := prompt.Run()

	return err == nil
}
