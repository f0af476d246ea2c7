package ota

import (
	"strconv"
	"strings"
)

// CompareVersions compares two dotted version strings.
//
// Each dot-separated component is compared numerically when both sides
// parse as integers, otherwise as strings. Missing components compare as
// zero, so "1.2" equals "1.2.0".
//
// Returns:
//   - -1 if a < b
//   - 0 if a == b
//   - +1 if a > b
func CompareVersions(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")

	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}

	for i := 0; i < n; i++ {
		av, bv := component(as, i), component(bs, i)
		if av == bv {
			continue
		}

		an, aerr := strconv.Atoi(av)
		bn, berr := strconv.Atoi(bv)
		if aerr == nil && berr == nil {
			if an < bn {
				return -1
			}
			return 1
		}

		// Non-numeric component on either side: string comparison.
		if av < bv {
			return -1
		}
		return 1
	}

	return 0
}

// component returns the i-th version component, or "0" past the end.
func component(parts []string, i int) string {
	if i >= len(parts) || parts[i] == "" {
		return "0"
	}
	return parts[i]
}
