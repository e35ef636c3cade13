package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"strings"
	"time"

	browser "github.com/EDDYCJY/fake-useragent"
	"github.com/sirupsen/logrus"
)

type HTTPClientOptions struct {
	Timeout    time.Duration
	UserAgent  string
	Cookie     string
	CookieFile string
	Transport  http.RoundTripper
	Logger     logrus.FieldLogger
}

// NewHTTPClient returns a client shared by parsers and the downloader. Every
// request carries the configured user agent and cookie header.
func NewHTTPClient(opts HTTPClientOptions) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	base := opts.Transport
	if base == nil {
		base = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 32,
			ForceAttemptHTTP2:   true,
		}
	}

	cookie, err := joinCookies(opts.Cookie, opts.CookieFile)
	if err != nil {
		return nil, err
	}

	rt := headerTransport{
		base:   base,
		ua:     PickUserAgent(opts.UserAgent),
		cookie: cookie,
		log:    opts.Logger,
	}

	if opts.Logger != nil {
		opts.Logger.WithFields(logrus.Fields{
			"timeout":     opts.Timeout,
			"user_agent":  rt.ua,
			"cookie_file": opts.CookieFile,
		}).Debug("http client ready")
	}

	return &http.Client{Timeout: opts.Timeout, Transport: rt, Jar: jar}, nil
}

type headerTransport struct {
	base   http.RoundTripper
	ua     string
	cookie string
	log    logrus.FieldLogger
}

func (t headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())

	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", t.ua)
	}
	if t.cookie != "" && req.Header.Get("Cookie") == "" {
		req.Header.Set("Cookie", t.cookie)
	}

	if t.log != nil {
		t.log.WithField("url", req.URL.String()).Debugf("HTTP %s", req.Method)
	}

	return t.base.RoundTrip(req)
}

// joinCookies appends the first non-empty line of file to the inline cookie.
func joinCookies(inline, file string) (string, error) {
	cookie := strings.TrimSpace(inline)
	if file == "" {
		return cookie, nil
	}

	b, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("cookie file: %w", err)
	}

	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if cookie == "" {
			return line, nil
		}
		return cookie + "; " + line, nil
	}

	return cookie, nil
}

// DoWithRetry retries transport errors and 5xx answers with a linear backoff.
// Other answers, including 4xx, are returned to the caller as they are.
func DoWithRetry(ctx context.Context, c *http.Client, req *http.Request, attempts int, backoff time.Duration) (*http.Response, error) {
	var lastErr error

	for i := 1; i <= attempts; i++ {
		resp, err := c.Do(req.Clone(ctx))
		if err == nil && resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
			_ = resp.Body.Close()
		}

		if i == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff * time.Duration(i)):
		}
	}

	return nil, fmt.Errorf("%s %s: %w after %d attempts", req.Method, req.URL, lastErr, attempts)
}

// PickUserAgent returns override, or a random desktop browser user agent.
func PickUserAgent(override string) string {
	if override != "" {
		return override
	}

	return browser.Computer()
}
