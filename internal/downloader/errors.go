package downloader

import (
	"errors"
	"fmt"
)

var (
	ErrInFlight = errors.New("chapter is already being downloaded")

	// ErrUnsafeName is returned for chapter ids or languages that cannot be
	// used as a single directory name.
	ErrUnsafeName = errors.New("unsafe chapter directory name")
)

type NoPagesError struct {
	ChapterID string
	Lang      string
}

func (e NoPagesError) Error() string {
	return fmt.Sprintf("chapter %s (%s) has no pages, parse it first", e.ChapterID, e.Lang)
}

// FetchError is a failed page or cover request. Status is set when the
// server answered with something other than 200.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.Status)
	}

	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e FetchError) Unwrap() error {
	return e.Err
}
