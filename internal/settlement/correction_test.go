package settlement

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gridline-energy/gridline/internal/money"
)

func testLine(number int, source LineSource, desc string, qty, amount float64, externalID string) Line {
	return Line{
		Number:      number,
		Source:      source,
		Description: desc,
		Quantity:    money.QuantityFromFloat(qty, money.KWh),
		Amount:      money.FromFloat(amount, money.DKK),
		ExternalID:  externalID,
		TaxCategory: "VAT",
		TaxPercent:  25,
		TaxAmount:   money.FromFloat(amount*0.25, money.DKK),
	}
}

func testSettlement(lines ...Line) Settlement {
	s := Settlement{
		ID:              uuid.New(),
		MeteringPointID: "571313100000012345",
		SupplyID:        "SUP-001",
		PeriodStart:     time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:       time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		Currency:        money.DKK,
		Lines:           lines,
		Status:          StatusCalculated,
	}
	if err := finalizeTotals(&s); err != nil {
		panic(err)
	}
	return s
}

func TestCorrectEmitsDeltas(t *testing.T) {
	original := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceHubCharge, "Grid tariff", 500, 50.00, "40000"),
	)
	// Corrected meter data: 520 kWh.
	recalculated := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 520, 156.00, "DK1"),
		testLine(2, SourceHubCharge, "Grid tariff", 520, 52.00, "40000"),
	)

	correction, err := Correct(original, recalculated)
	require.NoError(t, err)
	require.True(t, correction.IsCorrection)
	require.NotNil(t, correction.CorrectsID)
	require.Equal(t, original.ID, *correction.CorrectsID)
	require.Equal(t, StatusCalculated, correction.Status)

	require.Len(t, correction.Lines, 2)
	require.Equal(t, 6.00, correction.Lines[0].Amount.Float())
	require.InDelta(t, 20.0, correction.Lines[0].Quantity.Float(), 1e-9)
	require.Equal(t, 2.00, correction.Lines[1].Amount.Float())
	require.Equal(t, 8.00, correction.NetTotal.Float())
}

func TestCorrectIdenticalRecalculationIsAllZero(t *testing.T) {
	original := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceMargin, "Standard margin", 500, 25.00, ""),
		testLine(3, SourceHubCharge, "Subscription", 1, 50.00, "40010"),
	)
	recalculated := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceMargin, "Standard margin", 500, 25.00, ""),
		testLine(3, SourceHubCharge, "Subscription", 1, 50.00, "40010"),
	)

	correction, err := Correct(original, recalculated)
	require.NoError(t, err)
	require.Len(t, correction.Lines, 3)
	for _, line := range correction.Lines {
		require.True(t, line.Amount.IsZero(), "line %d should be zero, got %s", line.Number, line.Amount)
		require.True(t, line.TaxAmount.IsZero())
	}
	require.True(t, correction.NetTotal.IsZero())
	require.True(t, correction.GrossTotal.IsZero())
}

func TestCorrectMatchesMarginsByDescription(t *testing.T) {
	// Two margin products, neither with a hub identifier. The composite
	// key must pair each with its namesake, not first-match by source.
	original := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceMargin, "Base margin", 500, 20.00, ""),
		testLine(3, SourceMargin, "Green add-on", 500, 10.00, ""),
	)
	recalculated := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceMargin, "Base margin", 500, 22.00, ""),
		testLine(3, SourceMargin, "Green add-on", 500, 9.00, ""),
	)

	correction, err := Correct(original, recalculated)
	require.NoError(t, err)
	require.Len(t, correction.Lines, 3)

	byDesc := map[string]Line{}
	for _, line := range correction.Lines {
		byDesc[line.Description] = line
	}
	require.Equal(t, 2.00, byDesc["Base margin"].Amount.Float())
	require.Equal(t, -1.00, byDesc["Green add-on"].Amount.Float())
}

func TestCorrectRejectsAmbiguousMatch(t *testing.T) {
	// Same source, no identifier, identical description: no secondary key
	// can split these, so the match must be rejected, not guessed.
	original := testSettlement(
		testLine(1, SourceMargin, "Margin", 500, 20.00, ""),
		testLine(2, SourceMargin, "Margin", 500, 10.00, ""),
	)
	recalculated := testSettlement(
		testLine(1, SourceMargin, "Margin", 500, 25.00, ""),
	)

	_, err := Correct(original, recalculated)
	require.ErrorIs(t, err, ErrAmbiguousLineMatch)
}

func TestCorrectNewChargeCarriedInFull(t *testing.T) {
	original := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
	)
	recalculated := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceHubCharge, "New grid fee", 500, 15.00, "40099"),
	)

	correction, err := Correct(original, recalculated)
	require.NoError(t, err)
	require.Len(t, correction.Lines, 2)
	require.Equal(t, 15.00, correction.Lines[1].Amount.Float())
}

func TestCorrectVanishedChargeReversed(t *testing.T) {
	original := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
		testLine(2, SourceHubCharge, "Legacy fee", 1, 12.00, "40050"),
	)
	recalculated := testSettlement(
		testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"),
	)

	correction, err := Correct(original, recalculated)
	require.NoError(t, err)
	require.Len(t, correction.Lines, 2)
	reversed := correction.Lines[1]
	require.Equal(t, -12.00, reversed.Amount.Float())
	require.Equal(t, "40050", reversed.ExternalID)
}

func TestCorrectCurrencyMismatch(t *testing.T) {
	original := testSettlement(testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"))
	recalculated := testSettlement(testLine(1, SourceSpot, "Wholesale spot DK1", 500, 150.00, "DK1"))
	recalculated.Currency = "EUR"

	_, err := Correct(original, recalculated)
	require.Error(t, err)
}

func TestCorrectSelfCorrectionOfCalculatorOutput(t *testing.T) {
	start := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	input := uniformInput(start, end, 500, 0.30)
	input.Margins = []MarginRate{{Product: "Standard margin", RatePerKWh: 0.05, ValidFrom: start}}

	original, err := Calculate(input)
	require.NoError(t, err)
	recalculated, err := Calculate(input)
	require.NoError(t, err)

	correction, err := Correct(original, recalculated)
	require.NoError(t, err)
	for _, line := range correction.Lines {
		require.True(t, line.Amount.IsZero())
	}
	require.True(t, correction.NetTotal.IsZero())
}
