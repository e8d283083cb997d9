// Package code validates and orders chart-of-accounts codes such as "1000" or "1100.10".
package code

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxLen bounds the length of an account code.
const MaxLen = 32

var reCode = regexp.MustCompile(`^[0-9]+([.-][0-9]+)*$`)

// Valid returns true if s is a numeric-like code: digit groups optionally separated by '.' or '-'.
func Valid(s string) bool {
	return len(s) <= MaxLen && reCode.MatchString(s)
}

// Normalize trims surrounding whitespace. Codes are otherwise stored as given.
func Normalize(s string) string {
	return strings.TrimSpace(s)
}

// Less orders codes group by group numerically, so "900" sorts before "1000"
// and "1100.2" before "1100.10". Codes that are not Valid fall back to string order.
func Less(a, b string) bool {
	if !Valid(a) || !Valid(b) {
		return a < b
	}
	ga, gb := groups(a), groups(b)
	for i := 0; i < len(ga) && i < len(gb); i++ {
		if ga[i] != gb[i] {
			return ga[i] < gb[i]
		}
	}
	if len(ga) != len(gb) {
		return len(ga) < len(gb)
	}
	return a < b
}

func groups(s string) []uint64 {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '.' || r == '-' })
	out := make([]uint64, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			// overlong digit runs saturate; ties are broken by string order in Less
			n = ^uint64(0)
		}
		out = append(out, n)
	}
	return out
}
