// Package domain models the public-health datasets behind the dashboard and
// the stateless engine that aggregates them for charts and choropleth maps.
//
// # Data Sources
//
// Four datasets feed the dashboard, each keyed by US state but each using a
// different identifier scheme:
//
//	obesity    CDC nutrition survey CSV       postal code   "KY"
//	hospitals  CHSP hospital linkage CSV      postal code   "PA"
//	coverage   ACS public coverage JSON       numeric code  "21"
//	education  ACS attainment JSON            full name     "Kentucky"
//
// Source adapters parse each file into a tagged record variant
// ([ObesityRecord], [HospitalRecord], [CoverageRecord], [EducationRecord]) and
// [Adapt] converts the variants into flat [Record] values. The engine only
// ever sees Records.
//
// # Region Identifiers
//
// Numeric codes are the two-digit state codes used by the census and by the
// us-atlas topology files. Single-digit codes are zero-padded before lookup:
//
//	"6"  →  "06"  →  CA
//
// Without a scheme hint, [ReconcileRegionIdentifier] tries, in order:
//
//  1. postal code exact match ("KY")
//  2. numeric code lookup ("21", "6")
//  3. case-insensitive full name match ("kentucky", "District of Columbia")
//
// Anything else is [Unresolved]. The reconciliation table is embedded from
// regions.json in the exchange format
//
//	{"numericCode":"21","postal":"KY","name":"Kentucky"}
//
// and covers the 50 states plus the District of Columbia.
//
// # Values
//
// Record values arrive as raw text. Surrounding whitespace and thousands
// separators are stripped ("1,204" → 1204). Values that still fail to parse,
// or parse to NaN or ±Inf, are excluded from averaging. Zero and negative
// values are treated as "no data" when computing color domains, never as a
// measured zero; an all-missing dataset falls back to the caller's domain,
// conventionally [DefaultFallbackDomain].
//
// # Output Ordering
//
// [GroupByRegionAndPeriod] and [CountByRegion] return results ordered by
// canonical region with the Unresolved bucket last. A region whose every
// value was unparseable still yields a series, with an empty points list.
package domain
