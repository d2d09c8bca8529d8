// Package version implements ordering over dotted numeric game versions
// such as "1.105.332.1020".
package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed reports a version string with a non-numeric component.
var ErrMalformed = errors.New("malformed version")

// Version is an immutable parsed dotted numeric version.
type Version struct {
	parts []uint64
	raw   string
}

// Parse parses a dot-delimited numeric version string.
func Parse(s string) (Version, error) {
	if s == "" {
		return Version{}, fmt.Errorf("%w: empty string", ErrMalformed)
	}
	fields := strings.Split(s, ".")
	parts := make([]uint64, len(fields))
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 10, 64)
		if err != nil {
			return Version{}, fmt.Errorf("%w: component %q in %q", ErrMalformed, f, s)
		}
		parts[i] = n
	}
	return Version{parts: parts, raw: s}, nil
}

// MustParse is Parse for known-good literals; it panics on error.
// Intended for tests and compiled-in constants.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func (v Version) String() string { return v.raw }

// IsZero reports whether v is the zero Version (never produced by Parse).
func (v Version) IsZero() bool { return v.parts == nil }

// Compare returns -1, 0 or 1 ordering v against o. Components are compared
// left to right; length breaks the tie only when every overlapping component
// is equal, in which case the version with more components is greater.
func Compare(v, o Version) int {
	n := len(v.parts)
	if len(o.parts) < n {
		n = len(o.parts)
	}
	for i := 0; i < n; i++ {
		switch {
		case v.parts[i] < o.parts[i]:
			return -1
		case v.parts[i] > o.parts[i]:
			return 1
		}
	}
	switch {
	case len(v.parts) < len(o.parts):
		return -1
	case len(v.parts) > len(o.parts):
		return 1
	}
	return 0
}

// Less reports whether v orders strictly before o.
func (v Version) Less(o Version) bool { return Compare(v, o) < 0 }

// AtMost reports whether v orders at or before o.
func (v Version) AtMost(o Version) bool { return Compare(v, o) <= 0 }

// Latest returns the greatest version in vs, or the zero Version when vs is
// empty.
func Latest(vs []Version) Version {
	var max Version
	for _, v := range vs {
		if max.IsZero() || Compare(v, max) > 0 {
			max = v
		}
	}
	return max
}
