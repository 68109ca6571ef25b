// Package bundle processes zipped slide bundles: archives holding one
// directory per slide, each with CSV data files, named "Slide-<num>-<title>".
// Every slide is classified by its title keywords and turned into chart data.
package bundle

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/plotlinehq/plotline/chart"
	"github.com/plotlinehq/plotline/dataset"
)

// slideDirPattern matches slide directory names and captures number and title.
var slideDirPattern = regexp.MustCompile(`^Slide-(\d+)-(.*)$`)

// maxSlideWorkers bounds concurrent slide processing.
const maxSlideWorkers = 4

// SlideResult is the outcome of processing one slide directory.
type SlideResult struct {
	SlideNum  int         `json:"slide_num"`
	Title     string      `json:"title"`
	ChartType string      `json:"chart_type"`
	MainFile  string      `json:"main_file"`
	Rows      int         `json:"rows"`
	Chart     *chart.Data `json:"chart"`
}

// Processor turns slide bundles into chart data.
type Processor struct {
	logger *slog.Logger
}

// NewProcessor creates a Processor. A nil logger falls back to slog.Default().
func NewProcessor(logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger}
}

// ProcessZip extracts the archive and processes every slide directory.
// Slides run concurrently; results come back ordered by slide number.
// Slides without usable data are skipped with a log line, not an error.
func (p *Processor) ProcessZip(ctx context.Context, zipPath string) ([]SlideResult, error) {
	tmpDir, err := os.MkdirTemp("", "plotline-bundle-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	if err := extractZip(zipPath, tmpDir); err != nil {
		return nil, fmt.Errorf("extracting bundle: %w", err)
	}

	slides, err := findSlideDirs(tmpDir)
	if err != nil {
		return nil, err
	}

	results := make([]*SlideResult, len(slides))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxSlideWorkers)
	for i, sl := range slides {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := p.processSlide(sl)
			if err != nil {
				p.logger.Warn("Slide skipped",
					slog.Int("slide", sl.num),
					slog.String("title", sl.title),
					slog.String("error", err.Error()))
				return nil
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]SlideResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

type slideDir struct {
	num   int
	title string
	path  string
}

// findSlideDirs collects Slide-<num>-<title> directories sorted by number.
func findSlideDirs(root string) ([]slideDir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("reading bundle root: %w", err)
	}

	var slides []slideDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		m := slideDirPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		num, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		slides = append(slides, slideDir{num: num, title: m[2], path: filepath.Join(root, e.Name())})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })
	return slides, nil
}

// processSlide loads and merges the slide's CSV files and builds its chart.
func (p *Processor) processSlide(sl slideDir) (*SlideResult, error) {
	tables, names, err := loadSlideData(sl.path)
	if err != nil {
		return nil, err
	}

	merged := dataset.MergeOnCommon(tables)
	chartType := chart.ClassifyTitle(sl.title)

	data, err := buildSlideChart(merged, chartType)
	if err != nil {
		return nil, err
	}

	p.logger.Info("Slide processed",
		slog.Int("slide", sl.num),
		slog.String("title", sl.title),
		slog.String("chart_type", chartType),
		slog.String("main_file", names[0]),
		slog.Int("rows", merged.NumRows()))

	return &SlideResult{
		SlideNum:  sl.num,
		Title:     sl.title,
		ChartType: chartType,
		MainFile:  names[0],
		Rows:      merged.NumRows(),
		Chart:     data,
	}, nil
}

// loadSlideData reads every CSV file directly inside the slide directory.
func loadSlideData(dir string) ([]*dataset.Table, []string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("reading slide dir: %w", err)
	}

	var (
		tables []*dataset.Table
		names  []string
	)
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		tbl, err := dataset.LoadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, nil, fmt.Errorf("loading %s: %w", e.Name(), err)
		}
		tables = append(tables, tbl)
		names = append(names, e.Name())
	}
	if len(tables) == 0 {
		return nil, nil, fmt.Errorf("no supported data files found")
	}
	return tables, names, nil
}

// extractZip unpacks the archive into destDir, rejecting entries that would
// escape it.
func extractZip(zipPath, destDir string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, f := range r.File {
		dest := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := extractFile(f, dest); err != nil {
			return fmt.Errorf("extracting %s: %w", f.Name, err)
		}
	}
	return nil
}

func extractFile(f *zip.File, dest string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := io.Copy(out, io.LimitReader(src, dataset.MaxFileSize+1))
	if err != nil {
		return err
	}
	if n > dataset.MaxFileSize {
		return fmt.Errorf("file exceeds size limit")
	}
	return nil
}
