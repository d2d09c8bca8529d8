package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRejectsNonNumericComponents(t *testing.T) {
	for _, s := range []string{"", "1.a.0", "1..2", "v1.2", "1.2-beta"} {
		_, err := Parse(s)
		require.ErrorIs(t, err, ErrMalformed, "input %q", s)
	}
}

func TestParseKeepsRawString(t *testing.T) {
	v, err := Parse("1.105.332.1020")
	require.NoError(t, err)
	assert.Equal(t, "1.105.332.1020", v.String())
}

func TestCompareReflexive(t *testing.T) {
	for _, s := range []string{"1", "1.2", "1.2.0.0", "0.0.0", "10.0.1.5000"} {
		v := MustParse(s)
		assert.Equal(t, 0, Compare(v, v), "compare(%s,%s)", s, s)
	}
}

func TestCompareAntisymmetric(t *testing.T) {
	pairs := [][2]string{
		{"1.0", "1.1"},
		{"1.2", "1.2.0"},
		{"1.9.0", "1.10.0"},
		{"2", "1.99.99"},
		{"1.2.3", "1.2.3"},
	}
	for _, p := range pairs {
		a, b := MustParse(p[0]), MustParse(p[1])
		assert.Equal(t, -Compare(b, a), Compare(a, b), "%s vs %s", p[0], p[1])
	}
}

func TestCompareOrdering(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"1.0.0.0", "1.1.0.0", -1},
		{"1.10", "1.9", 1},
		{"1.2", "1.2.0", -1}, // length decides only when components tie
		{"1.2.1", "1.2.0.5", 1},
		{"0.0.1", "0.0.1", 0},
	}
	for _, c := range cases {
		got := Compare(MustParse(c.a), MustParse(c.b))
		assert.Equal(t, c.want, got, "compare(%s,%s)", c.a, c.b)
	}
}

func TestLatestPicksMaximum(t *testing.T) {
	vs := []Version{
		MustParse("1.3.0.0"),
		MustParse("1.10.0.0"),
		MustParse("1.9.9.9"),
	}
	assert.Equal(t, "1.10.0.0", Latest(vs).String())
	assert.True(t, Latest(nil).IsZero())
}
