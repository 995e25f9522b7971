// Command genmock writes a deterministic mock public coverage dataset for
// local development. The output has the shape the coverage source adapter
// reads, with one row per state and year.
//
// Usage:
//
//	go run ./cmd/genmock -out data/public_coverage_by_state.json
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
)

const defaultSeed = 12345

// mockYears skips 2020, which the survey did not publish.
var mockYears = []int{2018, 2019, 2021, 2022, 2023}

// pinnedValues fixes Kentucky so demos have a known reference state.
var pinnedValues = map[string]map[int]float64{
	"KY": {2018: 46.2, 2019: 46.8, 2021: 47.1, 2022: 47.5, 2023: 47.8},
}

type coverageRow struct {
	State               string  `json:"State"`
	Region              string  `json:"Region"`
	Year                int     `json:"Year"`
	EstimateTotal       int64   `json:"Estimate_Total"`
	EstimateNoPublic    int64   `json:"Estimate_No_Public_Coverage"`
	NoPublicCoveragePct float64 `json:"No_Public_Coverage_Percent"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the mock coverage JSON")
	seed := flag.Int64("seed", defaultSeed, "generator seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	rows := generate(domain.DefaultRegions().Regions(), *seed)
	if err := writeJSON(*out, rows); err != nil {
		return fmt.Errorf("writing mock coverage: %w", err)
	}
	log.Printf("wrote %d rows for %d years: %s", len(rows), len(mockYears), *out)
	return nil
}

// lcg is the seeded linear congruential generator of the dashboard mock.
type lcg struct{ state int64 }

func (g *lcg) next() float64 {
	g.state = (g.state*9301 + 49297) % 233280
	return float64(g.state) / 233280
}

// generate draws a base percentage of 20-70 per state, then varies it per
// year along a shared wave. Values are clamped to 5-75 and rounded to one
// decimal place.
func generate(regions []domain.Region, seed int64) []coverageRow {
	regions = slices.Clone(regions)
	slices.SortFunc(regions, func(a, b domain.Region) int { return strings.Compare(a.NumericCode, b.NumericCode) })

	rng := &lcg{state: seed}
	base := make(map[string]float64, len(regions))
	for _, r := range regions {
		base[r.Postal] = 20 + rng.next()*50
	}

	rows := make([]coverageRow, 0, len(regions)*len(mockYears))
	for _, year := range mockYears {
		yearFactor := math.Sin(float64(year-2018)*0.8) * 15
		for _, r := range regions {
			response := (rng.next() - 0.5) * 20

			pct, pinned := pinnedValues[r.Postal][year]
			if !pinned {
				pct = base[r.Postal] + yearFactor*(response/10) + (rng.next()-0.5)*10
			}
			pct = math.Max(5, math.Min(75, pct))

			rows = append(rows, coverageRow{
				State:               r.NumericCode,
				Region:              r.Postal,
				Year:                year,
				EstimateTotal:       int64(math.Round(1_000_000 + rng.next()*10_000_000)),
				EstimateNoPublic:    int64(math.Round(300_000 + rng.next()*3_000_000)),
				NoPublicCoveragePct: math.Round(pct*10) / 10,
			})
		}
	}
	return rows
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}
