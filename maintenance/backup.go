package maintenance

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// backupPrefix and backupSuffix frame the timestamped archive name
// uploads_backup_YYYYMMDD_HHMMSS.tar.gz.
const (
	backupPrefix = "uploads_backup_"
	backupSuffix = ".tar.gz"
)

// Backupper creates tar.gz archives of the upload directory and prunes old
// ones.
type Backupper struct {
	uploadDir     string
	backupDir     string
	retentionDays int
	logger        *slog.Logger
	now           func() time.Time
}

// NewBackupper creates a Backupper.
func NewBackupper(uploadDir, backupDir string, retentionDays int, logger *slog.Logger) *Backupper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backupper{
		uploadDir:     uploadDir,
		backupDir:     backupDir,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}
}

// BackupResult summarizes a backup run.
type BackupResult struct {
	ArchivePath    string
	ArchiveBytes   int64
	BackupsRemoved int
	BytesFreed     int64
}

// Run archives the upload directory and removes backups past retention.
// An empty upload directory is not an error; no archive is written.
func (b *Backupper) Run() (*BackupResult, error) {
	b.logger.Info("Starting backup",
		slog.String("uploads", b.uploadDir),
		slog.String("backups", b.backupDir),
		slog.Int("retention_days", b.retentionDays))

	result := &BackupResult{}

	empty, err := isEmptyDir(b.uploadDir)
	if err != nil {
		return nil, err
	}
	if empty {
		b.logger.Info("Upload directory empty, skipping archive")
	} else {
		path, size, err := b.createArchive()
		if err != nil {
			return nil, err
		}
		result.ArchivePath = path
		result.ArchiveBytes = size
		b.logger.Info("Backup created",
			slog.String("path", path),
			slog.String("size", FormatSize(size)))
	}

	removed, freed, err := b.pruneOldBackups()
	if err != nil {
		return nil, err
	}
	result.BackupsRemoved = removed
	result.BytesFreed = freed

	return result, nil
}

// createArchive writes a timestamped tar.gz of the upload directory.
func (b *Backupper) createArchive() (string, int64, error) {
	if err := os.MkdirAll(b.backupDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("creating backup dir: %w", err)
	}

	name := backupPrefix + b.now().Format("20060102_150405") + backupSuffix
	path := filepath.Join(b.backupDir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("creating archive: %w", err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	tw := tar.NewWriter(gw)

	err = filepath.WalkDir(b.uploadDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(b.uploadDir, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join("uploads", rel))

		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		src, err := os.Open(p)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(tw, src)
		return err
	})
	if err != nil {
		return "", 0, fmt.Errorf("archiving uploads: %w", err)
	}

	if err := tw.Close(); err != nil {
		return "", 0, err
	}
	if err := gw.Close(); err != nil {
		return "", 0, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", 0, err
	}
	return path, info.Size(), nil
}

// pruneOldBackups removes backup archives older than the retention period.
func (b *Backupper) pruneOldBackups() (removed int, freed int64, err error) {
	cutoff := b.now().AddDate(0, 0, -b.retentionDays)

	entries, err := os.ReadDir(b.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading backup dir: %w", err)
	}

	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || len(name) <= len(backupPrefix)+len(backupSuffix) ||
			name[:len(backupPrefix)] != backupPrefix ||
			name[len(name)-len(backupSuffix):] != backupSuffix {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(b.backupDir, name)
		if err := os.Remove(path); err != nil {
			b.logger.Warn("Could not remove old backup",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		removed++
		freed += info.Size()
		b.logger.Debug("Removed old backup", slog.String("path", path))
	}

	if removed > 0 {
		b.logger.Info("Pruned old backups",
			slog.Int("removed", removed),
			slog.String("freed", FormatSize(freed)))
	}
	return removed, freed, nil
}

// VerifyArchive checks that a backup archive is a readable tar.gz with at
// least one member.
func VerifyArchive(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gr, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a gzip archive: %w", err)
	}
	defer gr.Close()

	tr := tar.NewReader(gr)
	count := 0
	for {
		_, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading archive: %w", err)
		}
		count++
	}
	if count == 0 {
		return fmt.Errorf("archive is empty")
	}
	return nil
}

func isEmptyDir(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return true, nil
		}
		return false, fmt.Errorf("reading upload dir: %w", err)
	}
	return len(entries) == 0, nil
}
