// Package source parses the dashboard's raw dataset files into domain records.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Files names the dataset files inside the loader's file system.
// An empty name disables that dataset.
type Files struct {
	Obesity   string
	Hospitals string
	Coverage  string
	Education string
}

// Loader reads every configured dataset from a file system.
// It implements snapshot.Loader.
type Loader struct {
	fsys   fs.FS
	files  Files
	logger *slog.Logger
}

// NewLoader creates a Loader over fsys, typically os.DirFS(DATA_DIR).
func NewLoader(fsys fs.FS, files Files, logger *slog.Logger) *Loader {
	return &Loader{fsys: fsys, files: files, logger: logger}
}

type datasetParser func(io.Reader) ([]domain.Record, error)

// LoadAll loads the configured datasets concurrently. A missing file yields
// an empty dataset and a warning; any other failure aborts the load so the
// caller keeps its previous data.
func (l *Loader) LoadAll(ctx context.Context) (map[domain.Dataset][]domain.Record, error) {
	jobs := []struct {
		dataset domain.Dataset
		file    string
		parse   datasetParser
	}{
		{domain.DatasetObesity, l.files.Obesity, adapted(ParseObesityCSV)},
		{domain.DatasetHospitals, l.files.Hospitals, adapted(ParseHospitalCSV)},
		{domain.DatasetCoverage, l.files.Coverage, adapted(ParseCoverageJSON)},
		{domain.DatasetEducation, l.files.Education, adapted(ParseEducationJSON)},
	}

	results := make([][]domain.Record, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		if job.file == "" {
			continue
		}
		g.Go(func() error {
			records, err := l.loadFile(gctx, job.file, job.parse)
			if err != nil {
				return fmt.Errorf("load %s dataset: %w", job.dataset, err)
			}
			results[i] = records
			l.logger.Debug("dataset loaded", "dataset", job.dataset, "file", job.file, "records", len(records))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[domain.Dataset][]domain.Record, len(jobs))
	for i, job := range jobs {
		if results[i] == nil {
			results[i] = []domain.Record{}
		}
		out[job.dataset] = results[i]
	}
	return out, nil
}

func (l *Loader) loadFile(ctx context.Context, name string, parse datasetParser) ([]domain.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := l.fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn("dataset file missing, serving empty dataset", "file", name)
		return []domain.Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()

	return parse(f)
}

// adapted wraps a variant parser with the explicit adapter step.
func adapted[T domain.Adaptable](parse func(io.Reader) ([]T, error)) datasetParser {
	return func(r io.Reader) ([]domain.Record, error) {
		rows, err := parse(r)
		if err != nil {
			return nil, err
		}
		return domain.Adapt(rows), nil
	}
}
