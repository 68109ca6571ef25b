// Package maintenance handles retention of uploaded data: age-based cleanup
// of the upload directory and compressed backups with their own retention.
package maintenance

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// defaultCleanupPatterns matches the data artifacts cleanup may remove.
// Anything else in the upload tree is left alone.
var defaultCleanupPatterns = []string{"**/*.csv", "**/*.zip"}

// Cleaner removes upload artifacts past their retention period.
type Cleaner struct {
	uploadDir     string
	retentionDays int
	patterns      []string
	logger        *slog.Logger
	now           func() time.Time
}

// NewCleaner creates a Cleaner for the upload directory. Empty patterns use
// the defaults.
func NewCleaner(uploadDir string, retentionDays int, patterns []string, logger *slog.Logger) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	if len(patterns) == 0 {
		patterns = defaultCleanupPatterns
	}
	return &Cleaner{
		uploadDir:     uploadDir,
		retentionDays: retentionDays,
		patterns:      patterns,
		logger:        logger,
		now:           time.Now,
	}
}

// CleanupResult summarizes a cleanup run.
type CleanupResult struct {
	FilesRemoved int
	BytesFreed   int64
	DirsPruned   int
}

// Run removes matching files older than the retention period and prunes
// directories left empty. Individual removal failures are logged and
// skipped.
func (c *Cleaner) Run() (*CleanupResult, error) {
	cutoff := c.now().AddDate(0, 0, -c.retentionDays)
	c.logger.Info("Starting upload cleanup",
		slog.String("dir", c.uploadDir),
		slog.Int("retention_days", c.retentionDays))

	old, err := c.findOldFiles(cutoff)
	if err != nil {
		return nil, err
	}
	c.logger.Info("Found files past retention", slog.Int("count", len(old)))

	result := &CleanupResult{}
	for _, path := range old {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Warn("Could not remove file",
				slog.String("path", path),
				slog.String("error", err.Error()))
			continue
		}
		result.FilesRemoved++
		result.BytesFreed += info.Size()
		c.logger.Debug("Removed file", slog.String("path", path))
	}

	result.DirsPruned = c.pruneEmptyDirs()

	c.logger.Info("Cleanup finished",
		slog.Int("files_removed", result.FilesRemoved),
		slog.String("freed", FormatSize(result.BytesFreed)),
		slog.Int("dirs_pruned", result.DirsPruned))
	return result, nil
}

// findOldFiles walks the upload tree collecting pattern-matched files with a
// modification time before the cutoff.
func (c *Cleaner) findOldFiles(cutoff time.Time) ([]string, error) {
	var old []string
	err := filepath.WalkDir(c.uploadDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(c.uploadDir, path)
		if err != nil {
			return nil
		}
		if !c.matchesAny(filepath.ToSlash(rel)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			old = append(old, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning upload dir: %w", err)
	}
	return old, nil
}

func (c *Cleaner) matchesAny(rel string) bool {
	for _, pattern := range c.patterns {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return true
		}
	}
	return false
}

// pruneEmptyDirs removes directories left empty under the upload dir,
// deepest first. The upload dir itself stays.
func (c *Cleaner) pruneEmptyDirs() int {
	var dirs []string
	filepath.WalkDir(c.uploadDir, func(path string, d fs.DirEntry, err error) error {
		if err == nil && d.IsDir() && path != c.uploadDir {
			dirs = append(dirs, path)
		}
		return nil
	})

	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })

	pruned := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			pruned++
			c.logger.Debug("Pruned empty directory", slog.String("path", dir))
		}
	}
	return pruned
}

// FormatSize renders a byte count in human-readable units.
func FormatSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGT"[exp])
}
