// Package backup archives the netsweep database and configuration as a
// tar.gz and restores them.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// DatabaseEntry is the archive name of the database file.
const DatabaseEntry = "netsweep.db"

// Backup writes a gzipped tar containing a consistent copy of the database
// at dbPath and, when configPath is non-empty, the configuration file.
// The database may be open by a running server.
func Backup(ctx context.Context, dbPath, configPath, archivePath string) error {
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("database file not found: %s", dbPath)
	}

	tmpDir, err := os.MkdirTemp("", "netsweep-backup-*")
	if err != nil {
		return fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	copyPath := filepath.Join(tmpDir, DatabaseEntry)
	if err := vacuumInto(ctx, dbPath, copyPath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o750); err != nil {
		return fmt.Errorf("creating archive directory: %w", err)
	}
	out, err := os.Create(archivePath) //nolint:gosec // G304: operator-supplied output path
	if err != nil {
		return fmt.Errorf("creating archive: %w", err)
	}

	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)
	werr := addFile(tw, copyPath, DatabaseEntry)
	if werr == nil && configPath != "" {
		werr = addFile(tw, configPath, filepath.Base(configPath))
	}
	werr = errors.Join(werr, tw.Close(), gw.Close(), out.Close())
	if werr != nil {
		_ = os.Remove(archivePath)
		return fmt.Errorf("writing archive: %w", werr)
	}
	return nil
}

// vacuumInto copies the database with VACUUM INTO, which yields a
// transactionally consistent file even while writers are active.
func vacuumInto(ctx context.Context, src, dst string) error {
	db, err := sql.Open("sqlite", src)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", dst); err != nil {
		return fmt.Errorf("copying database: %w", err)
	}
	return nil
}

func addFile(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path) //nolint:gosec // G304: paths come from configuration
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
