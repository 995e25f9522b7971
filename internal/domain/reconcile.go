package domain

import (
	"fmt"
	"strings"
)

// Scheme hints which identifier system a raw region id is encoded in.
type Scheme int

const (
	SchemeAny Scheme = iota
	SchemePostal
	SchemeNumeric
	SchemeName
)

func (s Scheme) String() string {
	switch s {
	case SchemePostal:
		return "postal"
	case SchemeNumeric:
		return "numeric"
	case SchemeName:
		return "name"
	default:
		return "any"
	}
}

// ParseScheme parses a scheme hint. The empty string means SchemeAny.
func ParseScheme(s string) (Scheme, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return SchemeAny, true
	case "postal":
		return SchemePostal, true
	case "numeric", "fips":
		return SchemeNumeric, true
	case "name":
		return SchemeName, true
	default:
		return SchemeAny, false
	}
}

// ReconcileRegionIdentifier resolves a raw id against the embedded table.
func ReconcileRegionIdentifier(raw string, scheme Scheme) CanonicalRegion {
	return DefaultRegions().Reconcile(raw, scheme)
}

// ReconcileNumericCode resolves an integer state code, e.g. 6 for California.
func ReconcileNumericCode(code int) CanonicalRegion {
	if code < 0 || code > 99 {
		return Unresolved
	}
	return DefaultRegions().Reconcile(fmt.Sprintf("%02d", code), SchemeNumeric)
}

// Reconcile maps raw to its canonical postal code, or Unresolved. With
// SchemeAny it tries postal, then numeric, then full name.
func (t *RegionTable) Reconcile(raw string, scheme Scheme) CanonicalRegion {
	id := strings.TrimSpace(raw)
	if id == "" {
		return Unresolved
	}

	switch scheme {
	case SchemePostal:
		return t.byPostalCode(id)
	case SchemeNumeric:
		return t.byNumericCode(id)
	case SchemeName:
		return t.byFullName(id)
	}

	if r := t.byPostalCode(id); r.IsResolved() {
		return r
	}
	if r := t.byNumericCode(id); r.IsResolved() {
		return r
	}
	return t.byFullName(id)
}

func (t *RegionTable) byPostalCode(id string) CanonicalRegion {
	if r, ok := t.byPostal[id]; ok {
		return CanonicalRegion(r.Postal)
	}
	return Unresolved
}

// byNumericCode zero-pads single-digit codes ("6" -> "06").
func (t *RegionTable) byNumericCode(id string) CanonicalRegion {
	if len(id) == 1 {
		id = "0" + id
	}
	if !numericCodeRe.MatchString(id) {
		return Unresolved
	}
	if r, ok := t.byNumeric[id]; ok {
		return CanonicalRegion(r.Postal)
	}
	return Unresolved
}

func (t *RegionTable) byFullName(id string) CanonicalRegion {
	if r, ok := t.byName[foldName(id)]; ok {
		return CanonicalRegion(r.Postal)
	}
	return Unresolved
}
