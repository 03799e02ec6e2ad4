package service

import (
	"strconv"
	"strings"
)

// ParseVersion accepts dotted numeric versions such as "1.2.10".
func ParseVersion(v string) ([]int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, ErrVersionRequired
	}
	parts := strings.Split(v, ".")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return nil, ErrVersionInvalid
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, ErrVersionInvalid
		}
		out = append(out, n)
	}
	return out, nil
}

// CompareVersions returns 1 if a is newer than b, -1 if older and 0 if
// equal. Missing components count as zero and malformed ones as zero too,
// so "1.0" equals "1.0.0".
func CompareVersions(a, b string) int {
	pa, pb := lenientParts(a), lenientParts(b)
	n := len(pa)
	if len(pb) > n {
		n = len(pb)
	}
	for i := 0; i < n; i++ {
		var x, y int
		if i < len(pa) {
			x = pa[i]
		}
		if i < len(pb) {
			y = pb[i]
		}
		switch {
		case x > y:
			return 1
		case x < y:
			return -1
		}
	}
	return 0
}

func lenientParts(v string) []int {
	parts := strings.Split(strings.TrimSpace(v), ".")
	out := make([]int, len(parts))
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err == nil && n > 0 {
			out[i] = n
		}
	}
	return out
}
