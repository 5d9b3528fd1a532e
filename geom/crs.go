// Package geom handles coordinate reference system identity and reprojection.
package geom

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// WGS84 is the geographic longitude/latitude reference system.
	WGS84 = "EPSG:4326"
	// WebMercator is the spherical mercator reference system.
	WebMercator = "EPSG:3857"
)

// aliases maps deprecated or vendor codes to their canonical code.
var aliases = map[int]int{
	900913: 3857,
	3785:   3857,
	102100: 3857,
	102113: 3857,
}

var (
	codeSuffix     = regexp.MustCompile(`(?i)epsg(?:\.xml#|::|:|/0/|/)(\d+)$`)
	authorityCode  = regexp.MustCompile(`AUTHORITY\s*\[\s*"EPSG"\s*,\s*"?(\d+)"?\s*\]\s*\]\s*$`)
	wktWhitespaces = regexp.MustCompile(`\s+`)
)

// CRS identifies a coordinate reference system either by code or by well known text.
type CRS struct {
	// Code is an identifier such as EPSG:4326.
	Code string
	// WKT is the raw well known text used when no code is known.
	WKT string
}

// Code returns a CRS with the given identifier.
func Code(code string) CRS {
	return CRS{Code: code}
}

// Parse returns a CRS from either a code or well known text.
func Parse(s string) CRS {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "[") {
		return CRS{WKT: s}
	}
	return CRS{Code: s}
}

// IsZero returns true if the CRS is not set.
func (c CRS) IsZero() bool {
	return c.Code == "" && c.WKT == ""
}

// String returns the code or the well known text of the CRS.
func (c CRS) String() string {
	if c.Code != "" {
		return c.Code
	}
	return c.WKT
}

// Identity returns the canonical identity of the CRS.
//
// Codes are normalized to EPSG:<n> with aliases resolved. Well known text is
// reduced to its EPSG authority when present, otherwise whitespace is collapsed.
func (c CRS) Identity() string {
	if c.Code != "" {
		return normalizeCode(c.Code)
	}
	if m := authorityCode.FindStringSubmatch(c.WKT); m != nil {
		return canonicalEPSG(m[1])
	}
	return wktWhitespaces.ReplaceAllString(strings.TrimSpace(c.WKT), " ")
}

// Equal returns true if both reference systems describe the same CRS, ignoring metadata
// such as naming variants of the same code.
func Equal(a, b CRS) bool {
	return a.Identity() == b.Identity()
}

func normalizeCode(code string) string {
	code = strings.TrimSpace(code)
	switch strings.ToUpper(code) {
	case "CRS:84", "OGC:CRS84", "URN:OGC:DEF:CRS:OGC:1.3:CRS84", "URN:OGC:DEF:CRS:OGC::CRS84":
		return WGS84
	}
	if m := codeSuffix.FindStringSubmatch(code); m != nil {
		return canonicalEPSG(m[1])
	}
	return strings.ToUpper(code)
}

func canonicalEPSG(digits string) string {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return "EPSG:" + digits
	}
	if alias, ok := aliases[n]; ok {
		n = alias
	}
	return "EPSG:" + strconv.Itoa(n)
}
