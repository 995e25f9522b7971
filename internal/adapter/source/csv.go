package source

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/couchcryptid/health-dashboard-etl/internal/domain"
	"github.com/jszwec/csvutil"
)

const (
	obesityTopic    = "Obesity / Weight Status"
	obesityQuestion = "Percent of adults aged 18 years and older who have obesity"

	// HospitalLinkageYear is the reference year of the CHSP hospital linkage file.
	HospitalLinkageYear = 2022
)

var utf8BOM = []byte("\xef\xbb\xbf")

// obesityRow holds the CDC nutrition survey columns the dashboard uses.
type obesityRow struct {
	YearStart               string `csv:"YearStart"`
	LocationAbbr            string `csv:"LocationAbbr"`
	LocationDesc            string `csv:"LocationDesc"`
	Topic                   string `csv:"Topic"`
	Question                string `csv:"Question"`
	DataValue               string `csv:"Data_Value"`
	StratificationCategory1 string `csv:"StratificationCategory1"`
	Stratification1         string `csv:"Stratification1"`
}

// hospitalRow holds the CHSP hospital linkage columns.
type hospitalRow struct {
	ID       string `csv:"compendium_hospital_id"`
	Name     string `csv:"hospital_name"`
	State    string `csv:"hospital_state"`
	City     string `csv:"hospital_city"`
	Beds     string `csv:"hos_beds"`
	AcuteRaw string `csv:"acutehosp_flag"`
	Lat      string `csv:"lat"`
	Lon      string `csv:"lon"`
}

// ParseObesityCSV decodes the CDC nutrition survey CSV, keeping only the
// overall adult obesity prevalence rows. Age, sex and other stratifications
// are dropped. Rows with an unparseable year keep period 0 rather than being
// dropped.
func ParseObesityCSV(r io.Reader) ([]domain.ObesityRecord, error) {
	rows, err := decodeCSV[obesityRow](r)
	if err != nil {
		return nil, fmt.Errorf("parse obesity csv: %w", err)
	}

	out := make([]domain.ObesityRecord, 0, len(rows))
	for _, row := range rows {
		if strings.TrimSpace(row.Topic) != obesityTopic || strings.TrimSpace(row.Question) != obesityQuestion {
			continue
		}
		if strings.TrimSpace(row.StratificationCategory1) != domain.StratificationTotal {
			continue
		}
		out = append(out, domain.ObesityRecord{
			State:          strings.TrimSpace(row.LocationAbbr),
			StateName:      strings.TrimSpace(row.LocationDesc),
			Year:           parseIntOrZero(row.YearStart),
			Stratification: strings.TrimSpace(row.Stratification1),
			Percent:        row.DataValue,
		})
	}
	return out, nil
}

// ParseHospitalCSV decodes the CHSP hospital linkage CSV.
func ParseHospitalCSV(r io.Reader) ([]domain.HospitalRecord, error) {
	rows, err := decodeCSV[hospitalRow](r)
	if err != nil {
		return nil, fmt.Errorf("parse hospital csv: %w", err)
	}

	out := make([]domain.HospitalRecord, 0, len(rows))
	for _, row := range rows {
		name := strings.TrimSpace(row.Name)
		if name == "" {
			name = "Unknown Hospital"
		}
		out = append(out, domain.HospitalRecord{
			ID:    strings.TrimSpace(row.ID),
			Name:  name,
			State: strings.TrimSpace(row.State),
			City:  strings.TrimSpace(row.City),
			Beds:  row.Beds,
			Acute: strings.TrimSpace(row.AcuteRaw) == "1",
			Lat:   parseFloatOrZero(row.Lat),
			Lon:   parseFloatOrZero(row.Lon),
			Year:  HospitalLinkageYear,
		})
	}
	return out, nil
}

// decodeCSV reads every row of a headed CSV into T. An empty input yields no rows.
func decodeCSV[T any](r io.Reader) ([]T, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	cr := csv.NewReader(bytes.NewReader(data))
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	dec, err := csvutil.NewDecoder(cr)
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	var rows []T //nolint:prealloc // row count unknown until EOF
	for {
		var row T
		if err := dec.Decode(&row); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode csv row %d: %w", len(rows)+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// parseFloatOrZero parses a string as float64, returning 0 on failure.
func parseFloatOrZero(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// parseIntOrZero parses a string as int, returning 0 on failure.
func parseIntOrZero(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return v
}
