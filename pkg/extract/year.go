package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// yearRE accepts a single 4-digit year with common decorations: "FY2023",
// "FY 2023", "2023A", "2023E", "2023.0", "Year 2023". No other digits may appear.
var yearRE = regexp.MustCompile(`(?i)^(?:fy|cy|year|fiscal\s+year)?\s*'?(\d{4})(?:\.0+)?\s*(?:a|e|f|p|actual|est|estimate|forecast|restated|\*)?$`)

// parseYear returns the year in cell when it is a year token inside [lo, hi].
func parseYear(cell string, lo, hi int) (int, bool) {
	m := yearRE.FindStringSubmatch(strings.TrimSpace(cell))
	if m == nil {
		return 0, false
	}
	y, err := strconv.Atoi(m[1])
	if err != nil || y < lo || y > hi {
		return 0, false
	}
	return y, true
}
