package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/brogergvhs/tankobon/internal/util"
)

const (
	retryAttempts = 3
	retryBackoff  = 500 * time.Millisecond
)

func get(ctx context.Context, c *http.Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := util.DoWithRetry(ctx, c, req, retryAttempts, retryBackoff)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", url, resp.StatusCode)
	}

	return resp, nil
}

// Document fetches url and parses it as HTML.
func Document(ctx context.Context, c *http.Client, url string) (*goquery.Document, error) {
	resp, err := get(ctx, c, url)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	return goquery.NewDocumentFromReader(resp.Body)
}

// Body fetches url and returns the raw response body.
func Body(ctx context.Context, c *http.Client, url string) (string, error) {
	resp, err := get(ctx, c, url)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(resp.Body)

	return string(b), err
}

// JSON fetches url and decodes the response into v.
func JSON(ctx context.Context, c *http.Client, url string, v any) error {
	resp, err := get(ctx, c, url)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("GET %s: %w", url, err)
	}

	return nil
}
