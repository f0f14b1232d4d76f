package skdate

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToISO(t *testing.T) {
	cases := []struct {
		in     string
		expect string
	}{
		{"27. 9. 2010", "2010-09-27"},
		{"4.7.2006", "2006-07-04"},
		{"13. 6. 2010 11:38:00", "2010-06-13 11:38:00"},
		{"13. 6. 2010 11:38", "2010-06-13 11:38:00"},
	}
	for _, test := range cases {
		got, err := ToISO(test.in)
		require.NoError(t, err, test.in)
		require.Equal(t, test.expect, got)
	}

	_, err := ToISO("not a date")
	require.Error(t, err)
}

func TestAddDays(t *testing.T) {
	got, err := AddDays("2012-03-01", -1)
	require.NoError(t, err)
	require.Equal(t, "2012-02-29", got)

	got, err = AddDays("2010-12-31", 1)
	require.NoError(t, err)
	require.Equal(t, "2011-01-01", got)

	_, err = AddDays("31. 12. 2010", 1)
	require.Error(t, err)
}

func TestParseRoundTrip(t *testing.T) {
	tm, err := Parse("2012-03-10 14:05:00")
	require.NoError(t, err)
	require.Equal(t, 14, tm.Hour())

	tm, err = Parse("2012-03-10")
	require.NoError(t, err)
	require.Equal(t, 10, tm.Day())
}
