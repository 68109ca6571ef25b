package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "Month,Sales\nJan,100\n")
	b := writeFile(t, dir, "b.csv", "Month,Sales\nFeb,80\n")

	tables, err := LoadFiles(context.Background(), []string{a, b})
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if len(tables) != 2 {
		t.Fatalf("got %d tables", len(tables))
	}

	// Result order matches input order even though loads run concurrently.
	if v, _ := tables[0].Value(0, "Month"); v != "Jan" {
		t.Errorf("tables[0] Month = %q", v)
	}
	if v, _ := tables[1].Value(0, "Month"); v != "Feb" {
		t.Errorf("tables[1] Month = %q", v)
	}
}

func TestLoadFilesMissingFile(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "A\n1\n")

	if _, err := LoadFiles(context.Background(), []string{a, filepath.Join(dir, "nope.csv")}); err == nil {
		t.Error("expected error for missing file")
	}
}
