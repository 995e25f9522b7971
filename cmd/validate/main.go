// Command validate checks a data directory before it is served: the region
// reconciliation table must be consistent, every configured dataset must
// load, and each dataset's malformed values and unresolved identifiers are
// reported.
//
// Usage:
//
//	go run ./cmd/validate -data-dir data
//	go run ./cmd/validate -data-dir data -regions regions.json -strict
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/source"
	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/couchcryptid/health-dashboard-etl/internal/pipeline"
	"github.com/couchcryptid/health-dashboard-etl/internal/snapshot"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

type options struct {
	dataDir     string
	regionsPath string
	files       source.Files
	strict      bool
}

func main() {
	var opts options
	flag.StringVar(&opts.dataDir, "data-dir", "", "directory containing the dataset files")
	flag.StringVar(&opts.regionsPath, "regions", "", "alternative region table JSON (default: embedded table)")
	flag.StringVar(&opts.files.Obesity, "obesity", "strat_Total_Total.csv", "obesity CSV file name")
	flag.StringVar(&opts.files.Hospitals, "hospitals", "chsp-hospital-linkage-2022-rev.csv", "hospital CSV file name")
	flag.StringVar(&opts.files.Coverage, "coverage", "public_coverage_by_state.json", "coverage JSON file name")
	flag.StringVar(&opts.files.Education, "education", "education_by_state_years.json", "education JSON file name")
	flag.BoolVar(&opts.strict, "strict", false, "fail when a dataset has unresolved identifiers")
	flag.Parse()

	if opts.dataDir == "" {
		flag.Usage()
		os.Exit(1)
	}

	if code := run(opts, os.Stdout); code != 0 {
		os.Exit(code)
	}
}

func run(opts options, out io.Writer) int {
	fmt.Fprintln(out, "=== Health Dataset Validation ===")
	fmt.Fprintln(out)

	tablePhase, table := validateRegionTable(opts.regionsPath)
	phases := []*phase{tablePhase}

	var snap *snapshot.Snapshot
	if table != nil {
		loadPhase, s := validateLoad(opts)
		phases = append(phases, loadPhase)
		snap = s
	}

	var views []pipeline.View
	if snap != nil {
		agg := pipeline.NewAggregator(table, domain.DefaultFallbackDomain())
		for _, d := range domain.Datasets() {
			views = append(views, agg.DefaultViews(snap, d)...)
		}
		phases = append(phases, validateQuality(views, opts.strict))
	}

	// ── Report results ──
	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	if len(views) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "  %-30s %8s %8s %10s %10s  %s\n", "dataset", "records", "regions", "malformed", "unresolved", "domain")
		for _, v := range views {
			fmt.Fprintf(out, "  %-30s %8d %8d %10d %10d  [%g, %g]\n",
				viewLabel(v), v.Records, resolvedSeries(v), v.Malformed, v.Unresolved, v.Domain.Min, v.Domain.Max)
		}
	}

	// Print detailed errors.
	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll validations passed.")
		return 0
	}
	fmt.Fprintln(out, "\nValidation FAILED.")
	return 1
}

// ── Phase 1: Region Table ──
// Every row must reconcile back to itself from each of its identifiers.

func validateRegionTable(path string) (*phase, *domain.RegionTable) {
	p := &phase{name: "Phase 1: Region Table"}

	table := domain.DefaultRegions()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			p.errorf("open region table: %v", err)
			return p, nil
		}
		defer f.Close()
		if table, err = domain.LoadRegionTable(f); err != nil {
			p.errorf("%v", err)
			return p, nil
		}
	}

	for _, r := range table.Regions() {
		want := domain.CanonicalRegion(r.Postal)
		checks := []struct {
			raw    string
			scheme domain.Scheme
		}{
			{r.Postal, domain.SchemePostal},
			{r.NumericCode, domain.SchemeNumeric},
			{r.Name, domain.SchemeName},
			{r.Postal, domain.SchemeAny},
			{r.NumericCode, domain.SchemeAny},
			{r.Name, domain.SchemeAny},
		}
		for _, c := range checks {
			if got := table.Reconcile(c.raw, c.scheme); got != want {
				p.errorf("%s: %q via %s reconciled to %s", r.Postal, c.raw, c.scheme, got)
			}
		}
	}
	return p, table
}

// ── Phase 2: Dataset Load ──

func validateLoad(opts options) (*phase, *snapshot.Snapshot) {
	p := &phase{name: "Phase 2: Dataset Load"}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	loader := source.NewLoader(os.DirFS(opts.dataDir), opts.files, logger)
	store := snapshot.NewStore(loader, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	snap, err := store.Reload(context.Background())
	if err != nil {
		p.errorf("%v", err)
		return p, nil
	}
	if snap.Size() == 0 {
		p.errorf("no records loaded from %s", opts.dataDir)
	}
	return p, snap
}

// ── Phase 3: Data Quality ──
// Malformed values are reported only; unresolved identifiers fail in strict mode.

func validateQuality(views []pipeline.View, strict bool) *phase {
	p := &phase{name: "Phase 3: Data Quality"}

	for _, v := range views {
		if v.Records > 0 && resolvedSeries(v) == 0 {
			p.errorf("%s: %d records but no region reconciled", v.Dataset, v.Records)
		}
		if strict && v.Unresolved > 0 {
			p.errorf("%s: %d records with unresolved identifiers", v.Dataset, v.Unresolved)
		}
	}
	return p
}

func viewLabel(v pipeline.View) string {
	if v.Filter.Category == "" {
		return string(v.Dataset)
	}
	return string(v.Dataset) + "/" + v.Filter.Category
}

func resolvedSeries(v pipeline.View) int {
	n := 0
	for _, s := range v.Series {
		if s.Key.IsResolved() {
			n++
		}
	}
	return n
}
