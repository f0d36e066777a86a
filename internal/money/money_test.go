package money

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridline-energy/gridline/internal/shared"
)

func TestFromFloatRounding(t *testing.T) {
	require.Equal(t, int64(1005), FromFloat(10.045, DKK).Cents())
	require.Equal(t, int64(-1005), FromFloat(-10.045, DKK).Cents())
	require.Equal(t, int64(0), FromFloat(0.004, DKK).Cents())
	require.Equal(t, "10.05 DKK", FromFloat(10.045, DKK).String())
}

func TestAddCurrencyMismatch(t *testing.T) {
	_, err := FromFloat(1, DKK).Add(FromFloat(1, "EUR"))
	require.Error(t, err)
	require.True(t, errors.Is(err, shared.ErrValidation))
}

func TestSub(t *testing.T) {
	diff, err := FromFloat(10.00, DKK).Sub(FromFloat(12.50, DKK))
	require.NoError(t, err)
	require.Equal(t, int64(-250), diff.Cents())
}

func TestQuantityMilliExact(t *testing.T) {
	q := QuantityFromMilli(1001, KWh)
	require.Equal(t, int64(1001), q.Milli())
	require.Equal(t, "1.001 kWh", q.String())
	// 1.001 has no exact float64 representation; converting through
	// Float()*1000 truncates to 1000, so the integer accessor is the only
	// safe way to persist a quantity.
	require.NotEqual(t, q.Milli(), int64(q.Float()*1000))

	require.Equal(t, int64(1001), QuantityFromFloat(1.001, KWh).Milli())
}

func TestQuantityRounding(t *testing.T) {
	q := QuantityFromFloat(1.23456, KWh)
	require.InDelta(t, 1.235, q.Float(), 1e-9)

	sum, err := q.Add(QuantityFromFloat(0.765, KWh))
	require.NoError(t, err)
	require.InDelta(t, 2.0, sum.Float(), 1e-9)

	_, err = q.Add(QuantityFromFloat(1, "MWh"))
	require.True(t, errors.Is(err, shared.ErrValidation))
}
