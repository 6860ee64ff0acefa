// Package archive packs directory trees into tar streams.
package archive

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// WriteTar writes every regular file below root to w as an uncompressed tar
// stream. Paths inside the archive are relative to root and use forward
// slashes. Directories, symlinks and other special files are skipped.
func WriteTar(w io.Writer, root string) error {
	tw := tar.NewWriter(w)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("relative path for %q: %w", path, err)
		}

		return addFile(tw, path, filepath.ToSlash(rel))
	})
	if err != nil {
		return fmt.Errorf("walk %q: %w", root, err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	return nil
}

// WriteTarGz is [WriteTar] wrapped in gzip compression.
func WriteTarGz(w io.Writer, root string) error {
	gw := gzip.NewWriter(w)

	if err := WriteTar(gw, root); err != nil {
		return err
	}

	if err := gw.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}

	return nil
}

// EncodeDirectory returns the gzip-compressed tar of root as standard base64
// text.
func EncodeDirectory(root string) (string, error) {
	var buf bytes.Buffer

	if err := WriteTarGz(&buf, root); err != nil {
		return "", err
	}

	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func addFile(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header for %q: %w", path, err)
	}

	hdr.Name = name

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header for %q: %w", name, err)
	}

	f, err := os.Open(path) //nolint:gosec // G304: Paths come from walking root.
	if err != nil {
		return fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close() //nolint:errcheck // Read-only file.

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy %q: %w", path, err)
	}

	return nil
}
