package ui

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/brogergvhs/tankobon/internal/util"
)

// Stats counts what a download run did. Safe for concurrent use.
type Stats struct {
	Pages    atomic.Int64
	Bytes    atomic.Int64
	Chapters atomic.Int64
	Skipped  atomic.Int64
	Failed   atomic.Int64

	start time.Time
}

func NewStats() *Stats {
	return &Stats{start: time.Now()}
}

func (s *Stats) String() string {
	return fmt.Sprintf("%d chapters (%d skipped, %d failed), %d pages, %s in %s",
		s.Chapters.Load(), s.Skipped.Load(), s.Failed.Load(),
		s.Pages.Load(), util.Human(s.Bytes.Load()),
		time.Since(s.start).Round(time.Second))
}
