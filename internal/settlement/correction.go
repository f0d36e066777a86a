package settlement

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/money"
	"github.com/gridline-energy/gridline/internal/shared"
)

// Correct compares a freshly recalculated settlement against a previously
// issued original for the same scope and produces a linked correction.
//
// Lines are matched by (source, external id); margin products carry no
// hub identifier, so the key falls back to (source, description). The
// source system matched first-by-source only, which silently paired every
// same-source line against one original; the composite key fixes the
// per-line deltas. If two lines still collide on the composite key the
// match is rejected rather than guessed.
func Correct(original, recalculated Settlement) (Settlement, error) {
	if original.Currency != recalculated.Currency {
		return Settlement{}, fmt.Errorf("%w: correction currency %s does not match original %s",
			shared.ErrValidation, recalculated.Currency, original.Currency)
	}

	origByKey, err := indexLines(original.Lines)
	if err != nil {
		return Settlement{}, err
	}
	if _, err := indexLines(recalculated.Lines); err != nil {
		return Settlement{}, err
	}

	var lines []Line
	matched := make(map[string]bool)
	for _, newLine := range recalculated.Lines {
		key := matchKey(newLine)
		origLine, found := origByKey[key]
		if !found {
			// Wholly new charge: carried at full amount.
			lines = append(lines, newLine)
			continue
		}
		matched[key] = true
		deltaAmount, err := newLine.Amount.Sub(origLine.Amount)
		if err != nil {
			return Settlement{}, err
		}
		deltaTax, err := newLine.TaxAmount.Sub(origLine.TaxAmount)
		if err != nil {
			return Settlement{}, err
		}
		deltaQty := newLine.Quantity.Float() - origLine.Quantity.Float()
		lines = append(lines, Line{
			Source:      newLine.Source,
			Description: newLine.Description,
			Quantity:    money.QuantityFromFloat(deltaQty, money.KWh),
			UnitPrice:   newLine.UnitPrice,
			Amount:      deltaAmount,
			ExternalID:  newLine.ExternalID,
			TaxCategory: newLine.TaxCategory,
			TaxPercent:  newLine.TaxPercent,
			TaxAmount:   deltaTax,
		})
	}
	// Charges that vanished from the recalculation are reversed in full.
	for _, origLine := range original.Lines {
		if matched[matchKey(origLine)] {
			continue
		}
		reversed := origLine
		reversed.Quantity = money.QuantityFromFloat(-origLine.Quantity.Float(), money.KWh)
		reversed.Amount = origLine.Amount.Neg()
		reversed.TaxAmount = origLine.TaxAmount.Neg()
		lines = append(lines, reversed)
	}

	for i := range lines {
		lines[i].Number = i + 1
	}

	correction := Settlement{
		ID:              uuid.New(),
		MeteringPointID: recalculated.MeteringPointID,
		SupplyID:        recalculated.SupplyID,
		PeriodStart:     recalculated.PeriodStart,
		PeriodEnd:       recalculated.PeriodEnd,
		Currency:        recalculated.Currency,
		Lines:           lines,
		Status:          StatusCalculated,
		IsCorrection:    true,
		CorrectsID:      &original.ID,
		CalculatedAt:    recalculated.CalculatedAt,
	}
	if err := finalizeTotals(&correction); err != nil {
		return Settlement{}, err
	}
	return correction, nil
}

// matchKey builds the composite matching key for a line: the external
// charge/price identifier when present, the description otherwise.
func matchKey(line Line) string {
	if line.ExternalID != "" {
		return string(line.Source) + "|id:" + line.ExternalID
	}
	return string(line.Source) + "|desc:" + line.Description
}

func indexLines(lines []Line) (map[string]Line, error) {
	index := make(map[string]Line, len(lines))
	for _, line := range lines {
		key := matchKey(line)
		if _, dup := index[key]; dup {
			return nil, fmt.Errorf("%w (key %q)", ErrAmbiguousLineMatch, key)
		}
		index[key] = line
	}
	return index, nil
}
