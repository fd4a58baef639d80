package money

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCents(t *testing.T) {
	t.Parallel()

	cases := map[string]int64{
		"12.34":    1234,
		"-5":       -500,
		"1,250.00": 125000,
		"$3.1":     310,
		"0.01":     1,
	}
	for in, want := range cases {
		got, err := ParseCents(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got, in)
	}

	_, err := ParseCents("1.005")
	require.Error(t, err)
	_, err = ParseCents("abc")
	require.Error(t, err)
	_, err = ParseCents("")
	require.Error(t, err)
}

func TestFormatCents(t *testing.T) {
	t.Parallel()

	require.Equal(t, "$12.30", FormatCents(1230, "$"))
	require.Equal(t, "-$0.05", FormatCents(-5, "$"))
	require.Equal(t, "$0.00", FormatCents(0, "$"))
}
