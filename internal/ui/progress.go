package ui

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/brogergvhs/tankobon/internal/util"
)

// ProgressManager renders one bar per chapter download.
type ProgressManager struct {
	p *mpb.Progress
}

// NewProgressManager writes bars to w, or discards them when w is nil.
func NewProgressManager(w io.Writer) *ProgressManager {
	if w == nil {
		w = io.Discard
	}

	return &ProgressManager{p: mpb.New(
		mpb.WithWidth(52),
		mpb.WithOutput(w),
		mpb.WithRefreshRate(120*time.Millisecond),
	)}
}

// Close waits for every bar to finish rendering.
func (pm *ProgressManager) Close() {
	pm.p.Wait()
}

// ChapterBar tracks the pages of one chapter language.
type ChapterBar struct {
	bar   *mpb.Bar
	total atomic.Int64
	bytes atomic.Int64
	start time.Time
	took  atomic.Int64
	state atomic.Value
	final atomic.Bool
}

func (pm *ProgressManager) Chapter(id, lang string) *ChapterBar {
	b := &ChapterBar{start: time.Now()}
	b.state.Store("")

	b.bar = pm.p.New(0,
		mpb.BarStyle().Rbound("]"),
		mpb.PrependDecorators(decor.Name(fmt.Sprintf("%-8s %-3s ", id, lang))),
		mpb.AppendDecorators(
			decor.Percentage(decor.WCSyncWidth),
			decor.CountersNoUnit(" | %d/%d pages", decor.WCSyncWidth),
			decor.Any(b.sizeAndTime),
		),
	)

	return b
}

func (b *ChapterBar) sizeAndTime(_ decor.Statistics) string {
	secs := int64(time.Since(b.start).Seconds())
	if b.final.Load() {
		secs = b.took.Load()
	}

	out := fmt.Sprintf(" | %s | %ds", util.Human(b.bytes.Load()), secs)
	if s := b.state.Load().(string); s != "" {
		out += " | " + s
	}

	return out
}

// Update has the shape of downloader.ProgressFunc.
func (b *ChapterBar) Update(done, total int, bytes int64) {
	if b.final.Load() {
		return
	}

	if total > 0 && int64(total) != b.total.Swap(int64(total)) {
		b.bar.SetTotal(int64(total), false)
	}

	b.bytes.Store(bytes)
	b.bar.SetCurrent(int64(done))
}

func (b *ChapterBar) finish(state string) bool {
	if b.final.Swap(true) {
		return false
	}

	b.took.Store(int64(time.Since(b.start).Seconds()))
	b.state.Store(state)

	return true
}

// Done completes the bar.
func (b *ChapterBar) Done() {
	if !b.finish("") {
		return
	}

	total := max(b.total.Load(), 1)
	b.bar.SetTotal(total, false)
	b.bar.SetCurrent(total)
	b.bar.SetTotal(total, true)
}

// Skip completes the bar for a chapter that was already on disk.
func (b *ChapterBar) Skip() {
	if !b.finish("cached") {
		return
	}

	b.bar.SetTotal(1, false)
	b.bar.SetCurrent(1)
	b.bar.SetTotal(1, true)
}

// Fail stops the bar where it is.
func (b *ChapterBar) Fail() {
	if b.finish("failed") {
		b.bar.Abort(false)
	}
}
