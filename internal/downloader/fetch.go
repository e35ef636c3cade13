package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

// sniffLen is how much of a body is read before its type is detected.
const sniffLen = 3072

// fetch downloads url into dir/name+ext, where ext comes from the sniffed
// content type. It returns the file name written. The body goes to a hidden
// part file that is renamed only once complete, so a failed fetch leaves
// nothing behind.
func (d *Downloader) fetch(ctx context.Context, url, dir, name string, progress func(delta int64)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", FetchError{URL: url, Err: err}
	}

	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if d.opts.Referer != "" {
		req.Header.Set("Referer", d.opts.Referer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", FetchError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", FetchError{URL: url, Status: resp.StatusCode}
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", FetchError{URL: url, Err: err}
	}
	head = head[:n]

	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", FetchError{URL: url, Err: fmt.Errorf("unexpected content type %s", mt.String())}
	}

	file := name + mt.Extension()
	final := filepath.Join(dir, file)
	part := filepath.Join(dir, "."+file+".part")

	f, err := d.fs.Create(part)
	if err != nil {
		return "", err
	}

	written, err := writePage(f, head, resp.Body, progress)
	if err == nil && resp.ContentLength >= 0 && written != resp.ContentLength {
		err = fmt.Errorf("short body: %d of %d bytes", written, resp.ContentLength)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = d.fs.Remove(part)
		return "", FetchError{URL: url, Err: err}
	}

	if err := d.fs.Rename(part, final); err != nil {
		_ = d.fs.Remove(part)
		return "", err
	}

	return file, nil
}

// writePage writes head then the rest of body and returns the total written.
func writePage(f afero.File, head []byte, body io.Reader, progress func(delta int64)) (int64, error) {
	if _, err := f.Write(head); err != nil {
		return 0, err
	}
	if progress != nil {
		progress(int64(len(head)))
	}

	n, err := copyWithProgress(f, body, progress)

	return int64(len(head)) + n, err
}

// copyWithProgress reports every written chunk to progress as a delta.
func copyWithProgress(dst io.Writer, src io.Reader, progress func(delta int64)) (int64, error) {
	buf := make([]byte, 32*1024)
	var total int64
	for {
		nr, er := src.Read(buf)

		if nr > 0 {
			nw, ew := dst.Write(buf[0:nr])

			if nw > 0 {
				total += int64(nw)
				if progress != nil {
					progress(int64(nw))
				}
			}

			if ew != nil {
				return total, ew
			}

			if nr != nw {
				return total, io.ErrShortWrite
			}
		}

		if er != nil {
			if er == io.EOF {
				break
			}
			return total, er
		}
	}

	return total, nil
}
