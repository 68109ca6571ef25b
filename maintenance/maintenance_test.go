package maintenance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	when := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, when, when))
}

func TestCleanerRemovesOldFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.csv"), 10*24*time.Hour)
	touch(t, filepath.Join(dir, "fresh.csv"), time.Hour)
	touch(t, filepath.Join(dir, "nested", "old.zip"), 10*24*time.Hour)
	touch(t, filepath.Join(dir, "keep.txt"), 10*24*time.Hour) // not a data artifact

	c := NewCleaner(dir, 7, nil, nil)
	result, err := c.Run()
	require.NoError(t, err)

	assert.Equal(t, 2, result.FilesRemoved)
	assert.Greater(t, result.BytesFreed, int64(0))
	assert.Equal(t, 1, result.DirsPruned)

	assert.NoFileExists(t, filepath.Join(dir, "old.csv"))
	assert.FileExists(t, filepath.Join(dir, "fresh.csv"))
	assert.FileExists(t, filepath.Join(dir, "keep.txt"))
	assert.NoDirExists(t, filepath.Join(dir, "nested"))
}

func TestCleanerCustomPatterns(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "old.log"), 10*24*time.Hour)
	touch(t, filepath.Join(dir, "old.csv"), 10*24*time.Hour)

	c := NewCleaner(dir, 7, []string{"**/*.log"}, nil)
	result, err := c.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.FilesRemoved)
	assert.FileExists(t, filepath.Join(dir, "old.csv"))
}

func TestCleanerMissingDir(t *testing.T) {
	c := NewCleaner(filepath.Join(t.TempDir(), "nope"), 7, nil, nil)
	result, err := c.Run()
	require.NoError(t, err)
	assert.Equal(t, 0, result.FilesRemoved)
}

func TestBackupRoundTrip(t *testing.T) {
	uploads := t.TempDir()
	backups := t.TempDir()
	touch(t, filepath.Join(uploads, "a.csv"), time.Hour)
	touch(t, filepath.Join(uploads, "sub", "b.csv"), time.Hour)

	b := NewBackupper(uploads, backups, 30, nil)
	result, err := b.Run()
	require.NoError(t, err)

	require.NotEmpty(t, result.ArchivePath)
	assert.Greater(t, result.ArchiveBytes, int64(0))
	assert.Contains(t, filepath.Base(result.ArchivePath), "uploads_backup_")
	require.NoError(t, VerifyArchive(result.ArchivePath))
}

func TestBackupEmptyUploadDir(t *testing.T) {
	b := NewBackupper(t.TempDir(), t.TempDir(), 30, nil)
	result, err := b.Run()
	require.NoError(t, err)
	assert.Empty(t, result.ArchivePath)
}

func TestBackupPrunesOldArchives(t *testing.T) {
	uploads := t.TempDir()
	backups := t.TempDir()
	touch(t, filepath.Join(uploads, "a.csv"), time.Hour)

	stale := filepath.Join(backups, "uploads_backup_20200101_000000.tar.gz")
	touch(t, stale, 60*24*time.Hour)
	unrelated := filepath.Join(backups, "notes.txt")
	touch(t, unrelated, 60*24*time.Hour)

	b := NewBackupper(uploads, backups, 30, nil)
	result, err := b.Run()
	require.NoError(t, err)

	assert.Equal(t, 1, result.BackupsRemoved)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, unrelated)
}

func TestVerifyArchiveRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.tar.gz")
	require.NoError(t, os.WriteFile(path, []byte("not a tarball"), 0o644))
	assert.Error(t, VerifyArchive(path))
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{3 * 1024 * 1024 * 1024, "3.0 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in))
	}
}

func TestSchedulerRejectsBadExpression(t *testing.T) {
	s := NewScheduler(nil)
	assert.Error(t, s.AddJob("not a cron expr", "x", func() error { return nil }))
	assert.NoError(t, s.AddJob("0 3 * * *", "cleanup", func() error { return nil }))
}
