package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/health-dashboard-etl/internal/adapter/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const coverageJSON = `[
  {"State": "21", "Year": 2021, "No_Public_Coverage_Percent": 47.1},
  {"State": "06", "Year": 2021, "No_Public_Coverage_Percent": "n/a"},
  {"State": "99", "Year": 2021, "No_Public_Coverage_Percent": 10}
]`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func testOptions(dir string) options {
	return options{dataDir: dir, files: source.Files{Coverage: "coverage.json"}}
}

func TestRun_Passes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coverage.json", coverageJSON)

	var out bytes.Buffer
	code := run(testOptions(dir), &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "All validations passed.")
	assert.Contains(t, out.String(), "coverage")
}

func TestRun_ReportsEachEducationLevel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "education.json", `{"Kentucky": {"2021": {"High school graduate": 33.1, "Some college": 20}}}`)

	var out bytes.Buffer
	code := run(options{dataDir: dir, files: source.Files{Education: "education.json"}}, &out)

	assert.Equal(t, 0, code, out.String())
	assert.Contains(t, out.String(), "education/High school graduate")
	assert.Contains(t, out.String(), "education/Some college")
	assert.Contains(t, out.String(), "[33.1, 33.1]")
	assert.Contains(t, out.String(), "[20, 20]")
}

func TestRun_StrictFailsOnUnresolved(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coverage.json", coverageJSON)

	opts := testOptions(dir)
	opts.strict = true

	var out bytes.Buffer
	assert.Equal(t, 1, run(opts, &out))
	assert.Contains(t, out.String(), "coverage: 1 records with unresolved identifiers")
}

func TestRun_MalformedDatasetFails(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "coverage.json", `{"not": "an array"}`)

	var out bytes.Buffer
	assert.Equal(t, 1, run(testOptions(dir), &out))
	assert.Contains(t, out.String(), "Phase 2: Dataset Load")
	assert.Contains(t, out.String(), "Validation FAILED.")
}

func TestRun_EmptyDirectoryFails(t *testing.T) {
	var out bytes.Buffer
	assert.Equal(t, 1, run(testOptions(t.TempDir()), &out))
	assert.Contains(t, out.String(), "no records loaded")
}

func TestRun_InvalidRegionTable(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "regions.json", `[{"numericCode": "6", "postal": "CA", "name": "California"}]`)

	opts := testOptions(dir)
	opts.regionsPath = filepath.Join(dir, "regions.json")

	var out bytes.Buffer
	assert.Equal(t, 1, run(opts, &out))
	assert.Contains(t, out.String(), "invalid region table")
}
