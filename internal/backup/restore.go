package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// maxEntrySize caps each extracted file.
const maxEntrySize = 10 << 30

// Restore extracts archivePath into targetDir. Existing files are only
// overwritten when force is set. The archive must contain a database.
func Restore(ctx context.Context, archivePath, targetDir string, force bool) error {
	f, err := os.Open(archivePath) //nolint:gosec // G304: operator-supplied archive path
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("decompressing archive: %w", err)
	}
	defer gr.Close()

	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return fmt.Errorf("creating target directory: %w", err)
	}

	tr := tar.NewReader(gr)
	hasDB := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive entry: %w", err)
		}

		dest, err := entryPath(targetDir, hdr.Name)
		if err != nil {
			return err
		}
		if strings.HasSuffix(hdr.Name, ".db") {
			hasDB = true
		}
		if !force {
			if _, err := os.Stat(dest); err == nil {
				return fmt.Errorf("file already exists (use -force to overwrite): %s", dest)
			}
		}
		if err := extract(tr, hdr, dest); err != nil {
			return fmt.Errorf("extracting %s: %w", hdr.Name, err)
		}
	}

	if !hasDB {
		return errors.New("invalid backup: archive does not contain a .db file")
	}
	return nil
}

// entryPath resolves an archive entry under targetDir, rejecting names that
// would land outside it.
func entryPath(targetDir, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("path traversal detected: absolute path %q", name)
	}
	root, err := filepath.Abs(targetDir)
	if err != nil {
		return "", fmt.Errorf("resolving target directory: %w", err)
	}
	dest := filepath.Join(root, filepath.Clean(name)) //nolint:gosec // G305: checked below
	if dest != root && !strings.HasPrefix(dest, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected: %q", name)
	}
	return dest, nil
}

func extract(tr *tar.Reader, hdr *tar.Header, dest string) error {
	mode := os.FileMode(hdr.Mode & 0o777) //nolint:gosec // G115: permission bits only
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dest, mode)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return err
		}
		out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, io.LimitReader(tr, maxEntrySize)); err != nil {
			_ = out.Close()
			return err
		}
		return out.Close()
	default:
		// Links and devices are skipped.
		return nil
	}
}
