package decimal

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromStringRoundTrip(t *testing.T) {
	cases := []struct {
		in    string
		scale int
		want  string
	}{
		{"0.1", 1, "0.1"},
		{"12.30", 2, "12.30"},
		{"100", 0, "100"},
		{"3", 2, "3.00"},
		{"-5.5", 1, "-5.5"},
	}
	for _, c := range cases {
		d, err := FromString(c.in, c.scale)
		require.NoError(t, err)
		require.Equal(t, c.want, d.String(), "input %q scale %d", c.in, c.scale)
	}
}

func TestAdd(t *testing.T) {
	a, err := FromString("12.30", 3)
	require.NoError(t, err)
	b, err := FromString("0.045", 3)
	require.NoError(t, err)
	sum := Add(a, b, 3)
	require.Equal(t, "12.345", sum.String())
}

func TestDivide(t *testing.T) {
	a, err := FromString("10", 0)
	require.NoError(t, err)
	b, err := FromString("3", 0)
	require.NoError(t, err)
	q := Divide(a, b, 6)
	require.Equal(t, "3.333333", q.String())
}

func TestScaleBoundaries(t *testing.T) {
	// scale 0
	d, err := FromString("42", 0)
	require.NoError(t, err)
	require.Equal(t, "42", d.String())

	// scale equal to digit count
	d, err = FromString("12", 2)
	require.NoError(t, err)
	require.Equal(t, "12.00", d.String())

	// scale greater than digit count -> fraction zero-padded to scale
	d, err = FromString("1", 4)
	require.NoError(t, err)
	require.Equal(t, "1.0000", d.String())
}

func TestInvalidDecimal(t *testing.T) {
	_, err := FromString("12.3.4", 2)
	require.Error(t, err)
	_, err = FromString("abc", 2)
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	a, _ := FromString("1.5", 2)
	b, _ := FromString("1.50", 3)
	require.Equal(t, 0, Compare(a, b))

	c, _ := FromString("1.49", 2)
	require.Equal(t, 1, Compare(a, c))
}
