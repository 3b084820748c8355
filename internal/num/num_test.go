package num

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/litledger/internal/errs"
)

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"$1,234.50", "1234.50"},
		{"Infinity", "0"},
		{"NaN", "0"},
		{"abc", "0"},
		{"", "0"},
		{"+5%", "5"},
		{"-12 gold", "-12"},
		{"about 50 coins", "50"},
		{"1,000,000", "1000000"},
		{"3.", "3"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestParse_RejectsNonFinite(t *testing.T) {
	_, err := Parse("Infinity")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeConversion))

	_, err = Parse("twelve")
	assert.True(t, errs.Is(err, errs.CodeConversion))

	d, err := Parse(" 42.5 ")
	require.NoError(t, err)
	assert.Equal(t, "42.5", String(d))
}

func TestCoerce(t *testing.T) {
	for _, v := range []any{"110", 110, int64(110), uint(110), 110.0, MustParse("110")} {
		d, err := Coerce(v)
		require.NoError(t, err, "%T", v)
		assert.Equal(t, 0, d.Cmp(FromInt(110)), "%T", v)
	}

	_, err := Coerce(nil)
	assert.True(t, errs.Is(err, errs.CodeConversion))

	_, err = Coerce([]int{1})
	assert.True(t, errs.Is(err, errs.CodeConversion))
}

func TestString_Normalizes(t *testing.T) {
	assert.Equal(t, "1000", String(MustParse("1E+3")))
	assert.Equal(t, "12.5", String(MustParse("12.50")))
	assert.Equal(t, "0", String(MustParse("0.000")))
	assert.Equal(t, "0", String(nil))
}

func TestQuo_DivisionByZero(t *testing.T) {
	_, err := Quo(FromInt(1), Zero())
	assert.True(t, errs.Is(err, errs.CodeDivisionByZero))

	_, err = QuoInteger(FromInt(1), Zero())
	assert.True(t, errs.Is(err, errs.CodeDivisionByZero))

	q, err := Quo(FromInt(100), FromInt(5))
	require.NoError(t, err)
	assert.Equal(t, "20", String(q))
}

func TestQuoInteger_TruncatesTowardZero(t *testing.T) {
	q, err := QuoInteger(FromInt(-7), FromInt(2))
	require.NoError(t, err)
	assert.Equal(t, "-3", String(q))
}

func TestTruncate(t *testing.T) {
	d, err := Truncate(MustParse("-3.9"))
	require.NoError(t, err)
	assert.Equal(t, "-3", String(d))
}

func TestIsIndeterminate(t *testing.T) {
	assert.True(t, IsIndeterminate(""))
	assert.True(t, IsIndeterminate("TBD"))
	assert.True(t, IsIndeterminate("tbd"))
	assert.False(t, IsIndeterminate("0"))
}

func TestCleanOK(t *testing.T) {
	tok, ok := CleanOK("+5 strength")
	assert.True(t, ok)
	assert.Equal(t, "5", tok)

	tok, ok = CleanOK("strong")
	assert.False(t, ok)
	assert.Equal(t, "0", tok)
}
