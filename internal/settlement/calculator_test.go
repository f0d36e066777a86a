package settlement

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridline-energy/gridline/internal/money"
)

func hoursIn(start, end time.Time) int {
	return int(end.Sub(start) / time.Hour)
}

// uniformInput spreads totalKWh evenly across every hour of the period at
// a constant spot price.
func uniformInput(start, end time.Time, totalKWh, spotPrice float64) CalculationInput {
	n := hoursIn(start, end)
	perHour := totalKWh / float64(n)
	var points []ConsumptionPoint
	var prices []SpotPrice
	for i := 0; i < n; i++ {
		hour := start.Add(time.Duration(i) * time.Hour)
		points = append(points, ConsumptionPoint{Hour: hour, KWh: perHour})
		prices = append(prices, SpotPrice{Hour: hour, PricePerKWh: spotPrice})
	}
	return CalculationInput{
		MeteringPointID: "571313100000012345",
		SupplyID:        "SUP-001",
		PeriodStart:     start,
		PeriodEnd:       end,
		Consumption:     ConsumptionSeries{MeteringPointID: "571313100000012345", Points: points},
		SpotPrices:      SpotPriceSeries{PriceArea: "DK1", Prices: prices},
		CalculatedAt:    time.Date(2026, 11, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestCalculateFullMonthScenario(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 500, 0.30)
	input.Margins = []MarginRate{{Product: "Standard margin", RatePerKWh: 0.05, ValidFrom: start}}
	input.Charges = []HubCharge{{
		ChargeID: "40010", Owner: "5790000000001", Name: "Subscription",
		Kind: ChargeFlat, FlatAmount: 50.00, CadenceMonths: 1,
	}}

	s, err := Calculate(input)
	require.NoError(t, err)
	require.Len(t, s.Lines, 3)

	spot, margin, charge := s.Lines[0], s.Lines[1], s.Lines[2]
	require.Equal(t, SourceSpot, spot.Source)
	require.Equal(t, 150.00, spot.Amount.Float())
	require.InDelta(t, 500.0, spot.Quantity.Float(), 1e-9)

	require.Equal(t, SourceMargin, margin.Source)
	require.Equal(t, 25.00, margin.Amount.Float())
	require.Equal(t, 0.05, margin.UnitPrice)

	require.Equal(t, SourceHubCharge, charge.Source)
	require.Equal(t, 50.00, charge.Amount.Float())
	require.Equal(t, "40010", charge.ExternalID)

	require.Equal(t, 225.00, s.NetTotal.Float())
}

func TestCalculateHalfPeriodMargin(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 300, 0.25)
	half := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)
	input.Margins = []MarginRate{{Product: "Intro margin", RatePerKWh: 0.05, ValidFrom: start, ValidTo: &half}}

	s, err := Calculate(input)
	require.NoError(t, err)
	require.Len(t, s.Lines, 2)

	margin := s.Lines[1]
	// Only the 150 kWh consumed while the margin was active accrue.
	require.Equal(t, 7.50, margin.Amount.Float())
	require.InDelta(t, 150.0, margin.Quantity.Float(), 1e-9)
}

func TestCalculateKeepsSimultaneousMarginsItemised(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 100, 0.30)
	input.Margins = []MarginRate{
		{Product: "Base margin", RatePerKWh: 0.04, ValidFrom: start},
		{Product: "Green add-on", RatePerKWh: 0.02, ValidFrom: start},
	}

	s, err := Calculate(input)
	require.NoError(t, err)
	require.Len(t, s.Lines, 3)
	require.Equal(t, "Base margin", s.Lines[1].Description)
	require.Equal(t, 4.00, s.Lines[1].Amount.Float())
	require.Equal(t, "Green add-on", s.Lines[2].Description)
	require.Equal(t, 2.00, s.Lines[2].Amount.Float())
}

func TestCalculateMarginRateChangePartitionsPeriod(t *testing.T) {
	start := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 720, 0.20) // 1 kWh per hour
	cut := time.Date(2026, 6, 16, 0, 0, 0, 0, time.UTC)
	input.Margins = []MarginRate{
		{Product: "Standard margin", RatePerKWh: 0.04, ValidFrom: start, ValidTo: &cut},
		{Product: "Standard margin", RatePerKWh: 0.06, ValidFrom: cut},
	}

	s, err := Calculate(input)
	require.NoError(t, err)
	require.Len(t, s.Lines, 2)
	// 360h * 0.04 + 360h * 0.06, one line for the product.
	require.Equal(t, 36.00, s.Lines[1].Amount.Float())
	require.InDelta(t, 720.0, s.Lines[1].Quantity.Float(), 1e-9)
}

func TestCalculatePerKWhHubCharge(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 200, 0.30)
	input.Charges = []HubCharge{{
		ChargeID: "40000", Owner: "5790000000002", Name: "Grid tariff",
		Kind: ChargePerKWh, Rates: []ChargeRate{{RatePerKWh: 0.10, ValidFrom: start}},
	}}

	s, err := Calculate(input)
	require.NoError(t, err)
	require.Equal(t, 20.00, s.Lines[1].Amount.Float())
}

func TestCalculateTotalsInvariant(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 437.123, 0.31337)
	input.Margins = []MarginRate{{Product: "Standard margin", RatePerKWh: 0.049, ValidFrom: start}}
	input.Charges = []HubCharge{{ChargeID: "40010", Name: "Subscription", Kind: ChargeFlat, FlatAmount: 23.75}}

	s, err := Calculate(input)
	require.NoError(t, err)

	sum := money.Zero(money.DKK)
	taxSum := money.Zero(money.DKK)
	for _, line := range s.Lines {
		var addErr error
		sum, addErr = sum.Add(line.Amount)
		require.NoError(t, addErr)
		taxSum, addErr = taxSum.Add(line.TaxAmount)
		require.NoError(t, addErr)
	}
	require.Equal(t, s.NetTotal.Cents(), sum.Cents())
	require.Equal(t, s.TaxTotal.Cents(), taxSum.Cents())
	require.Equal(t, s.GrossTotal.Cents(), s.NetTotal.Cents()+s.TaxTotal.Cents())
}

func TestCalculateDeterministic(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 512.345, 0.287)
	input.Margins = []MarginRate{
		{Product: "Base margin", RatePerKWh: 0.04, ValidFrom: start},
		{Product: "Green add-on", RatePerKWh: 0.02, ValidFrom: start},
	}

	first, err := Calculate(input)
	require.NoError(t, err)
	second, err := Calculate(input)
	require.NoError(t, err)

	require.Equal(t, first.Lines, second.Lines)
	require.Equal(t, first.NetTotal, second.NetTotal)
	require.Equal(t, first.TaxTotal, second.TaxTotal)
	require.Equal(t, first.GrossTotal, second.GrossTotal)
	require.Equal(t, first.TaxSummary, second.TaxSummary)
}

func TestCalculateInvalidPeriod(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	_, err := Calculate(CalculationInput{PeriodStart: start, PeriodEnd: start})
	require.ErrorIs(t, err, ErrInvalidPeriod)

	_, err = Calculate(CalculationInput{PeriodStart: start, PeriodEnd: start.Add(-time.Hour)})
	require.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestCalculateMissingSpotPriceFails(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 24, 0.30)
	// Drop one hour of price coverage.
	input.SpotPrices.Prices = input.SpotPrices.Prices[1:]

	_, err := Calculate(input)
	require.ErrorIs(t, err, ErrIncompleteRateCoverage)
}

func TestCalculateMissingMarginIsFine(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 24, 0.30)

	s, err := Calculate(input)
	require.NoError(t, err)
	require.Len(t, s.Lines, 1)
	require.Equal(t, SourceSpot, s.Lines[0].Source)
}
