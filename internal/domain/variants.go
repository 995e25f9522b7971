package domain

// Adaptable is implemented by every source record variant.
type Adaptable interface {
	Record() Record
}

// Adapt converts typed source rows into engine records.
func Adapt[T Adaptable](rows []T) []Record {
	out := make([]Record, len(rows))
	for i, row := range rows {
		out[i] = row.Record()
	}
	return out
}

// StratificationTotal is the obesity stratification covering all adults.
const StratificationTotal = "Total"

// ObesityRecord is one row of the CDC nutrition survey: the percentage of
// adults with obesity in a state for one year and stratification.
type ObesityRecord struct {
	State          string // postal code, e.g. "KY"
	StateName      string
	Year           int
	Stratification string // "Total", "18 - 24", ...
	Percent        string
}

func (r ObesityRecord) Record() Record {
	return Record{Region: r.State, Period: r.Year, Value: r.Percent, Category: r.Stratification}
}

// Hospital acuity categories.
const (
	CategoryAcute    = "acute"
	CategoryNonAcute = "non-acute"
)

// HospitalRecord is one hospital from the CHSP hospital linkage file.
type HospitalRecord struct {
	ID    string
	Name  string
	State string // postal code
	City  string
	Beds  string
	Acute bool
	Lon   float64
	Lat   float64
	Year  int
}

func (r HospitalRecord) Record() Record {
	category := CategoryNonAcute
	if r.Acute {
		category = CategoryAcute
	}
	return Record{Region: r.State, Period: r.Year, Value: r.Beds, Category: category}
}

// CoverageRecord is the share of a state's population without public health
// coverage in one year.
type CoverageRecord struct {
	StateCode string // two-digit numeric code, e.g. "21"
	Year      int
	Percent   string
}

func (r CoverageRecord) Record() Record {
	return Record{Region: r.StateCode, Period: r.Year, Value: r.Percent}
}

// Education attainment levels reported per state.
const (
	LevelHighSchool  = "High school graduate"
	LevelSomeCollege = "Some college"
	LevelBachelors   = "Bachelor's degree or higher"
)

// EducationRecord is the share of adults at one attainment level.
type EducationRecord struct {
	State   string // full name, e.g. "Kentucky"
	Year    int
	Level   string
	Percent string
}

func (r EducationRecord) Record() Record {
	return Record{Region: r.State, Period: r.Year, Value: r.Percent, Category: r.Level}
}
