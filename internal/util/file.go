package util

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/afero"
)

// CreateCBZ zips files into output, keeping the given order. Entries are
// numbered so readers that sort by name see the same order.
func CreateCBZ(fs afero.Fs, files []string, output string) (err error) {
	if dir := filepath.Dir(output); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cbz: %w", err)
		}
	}

	out, err := fs.Create(output)
	if err != nil {
		return fmt.Errorf("cbz: %w", err)
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("cbz: %w", cerr)
		}
	}()

	z := zip.NewWriter(out)
	width := len(fmt.Sprint(len(files)))

	for i, file := range files {
		name := fmt.Sprintf("%0*d%s", width, i, filepath.Ext(file))
		if err := addToZip(fs, z, file, name); err != nil {
			_ = z.Close()
			return fmt.Errorf("cbz: %s: %w", file, err)
		}
	}

	if err := z.Close(); err != nil {
		return fmt.Errorf("cbz: %w", err)
	}

	return nil
}

func addToZip(fs afero.Fs, z *zip.Writer, file, name string) error {
	f, err := fs.Open(file)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := z.CreateHeader(header)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, f)

	return err
}
