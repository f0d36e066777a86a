package settlement

import (
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/money"
)

// Calculate produces a settlement from metered consumption, spot prices,
// margin products and hub charges. It is a pure function of its input:
// running it twice on the same input yields identical lines and totals.
//
// Intermediate sums stay in float64; quantities and amounts are rounded
// (3 and 2 decimals) exactly once, when a line is emitted, so rounding
// error never compounds across thousands of hourly terms.
func Calculate(input CalculationInput) (Settlement, error) {
	if !input.PeriodEnd.After(input.PeriodStart) {
		return Settlement{}, ErrInvalidPeriod
	}
	currency := input.Currency
	if currency == "" {
		currency = money.DKK
	}

	points := consumptionWithin(input.Consumption, input.PeriodStart, input.PeriodEnd)

	var lines []Line

	spotLine, err := spotLine(points, input.SpotPrices, currency)
	if err != nil {
		return Settlement{}, err
	}
	lines = append(lines, spotLine)

	lines = append(lines, marginLines(points, input.Margins, input.PeriodStart, input.PeriodEnd, currency)...)
	lines = append(lines, chargeLines(points, input.Charges, input.PeriodStart, input.PeriodEnd, currency)...)

	for i := range lines {
		lines[i].Number = i + 1
	}

	s := Settlement{
		ID:              uuid.New(),
		MeteringPointID: input.MeteringPointID,
		SupplyID:        input.SupplyID,
		PeriodStart:     input.PeriodStart,
		PeriodEnd:       input.PeriodEnd,
		Currency:        currency,
		Lines:           lines,
		Status:          StatusCalculated,
		CalculatedAt:    input.CalculatedAt,
	}
	if err := finalizeTotals(&s); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// finalizeTotals computes the tax summary and net/tax/gross totals from
// the settlement's lines. Totals are exact sums of the already-rounded
// line values, so sum(lines) == net and net+tax == gross hold by
// construction.
func finalizeTotals(s *Settlement) error {
	net := money.Zero(s.Currency)
	tax := money.Zero(s.Currency)
	type taxKey struct {
		Category string
		Percent  float64
	}
	groups := make(map[taxKey]*TaxSummaryEntry)
	var order []taxKey
	var err error
	for _, line := range s.Lines {
		if net, err = net.Add(line.Amount); err != nil {
			return err
		}
		if tax, err = tax.Add(line.TaxAmount); err != nil {
			return err
		}
		key := taxKey{line.TaxCategory, line.TaxPercent}
		entry, ok := groups[key]
		if !ok {
			entry = &TaxSummaryEntry{
				Category: line.TaxCategory,
				Percent:  line.TaxPercent,
				Base:     money.Zero(s.Currency),
				Tax:      money.Zero(s.Currency),
			}
			groups[key] = entry
			order = append(order, key)
		}
		if entry.Base, err = entry.Base.Add(line.Amount); err != nil {
			return err
		}
		if entry.Tax, err = entry.Tax.Add(line.TaxAmount); err != nil {
			return err
		}
	}
	sort.Slice(order, func(i, j int) bool {
		if order[i].Category != order[j].Category {
			return order[i].Category < order[j].Category
		}
		return order[i].Percent < order[j].Percent
	})
	summary := make([]TaxSummaryEntry, len(order))
	for i, key := range order {
		summary[i] = *groups[key]
	}
	s.TaxSummary = summary
	s.NetTotal = net
	s.TaxTotal = tax
	if s.GrossTotal, err = net.Add(tax); err != nil {
		return err
	}
	return nil
}

func consumptionWithin(series ConsumptionSeries, start, end time.Time) []ConsumptionPoint {
	var points []ConsumptionPoint
	for _, p := range series.Points {
		if p.Hour.Before(start) || !p.Hour.Before(end) {
			continue
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Hour.Before(points[j].Hour) })
	return points
}

// spotLine sums quantity times the hourly wholesale price. Spot coverage
// is mandatory: a consumed hour without a price aborts the calculation.
func spotLine(points []ConsumptionPoint, prices SpotPriceSeries, currency string) (Line, error) {
	byHour := make(map[time.Time]float64, len(prices.Prices))
	for _, p := range prices.Prices {
		byHour[p.Hour.Truncate(time.Hour)] = p.PricePerKWh
	}
	var qty, amount float64
	rates := map[float64]bool{}
	for _, p := range points {
		rate, ok := byHour[p.Hour.Truncate(time.Hour)]
		if !ok {
			return Line{}, ErrIncompleteRateCoverage
		}
		qty += p.KWh
		amount += p.KWh * rate
		rates[rate] = true
	}
	return Line{
		Source:      SourceSpot,
		Description: "Wholesale spot " + prices.PriceArea,
		Quantity:    money.QuantityFromFloat(qty, money.KWh),
		UnitPrice:   effectiveRate(rates, amount, qty),
		Amount:      money.FromFloat(amount, currency),
		ExternalID:  prices.PriceArea,
		TaxCategory: "VAT",
		TaxPercent:  25,
		TaxAmount:   taxOn(amount, 25, currency),
	}, nil
}

// marginLines emits one line per distinct margin product active at any
// point in the period. Multiple simultaneous products stay separately
// itemised; a product active for only part of the period accrues only
// over its active hours.
func marginLines(points []ConsumptionPoint, margins []MarginRate, start, end time.Time, currency string) []Line {
	byProduct := make(map[string][]MarginRate)
	var products []string
	for _, m := range margins {
		if !overlaps(m.ValidFrom, m.ValidTo, start, end) {
			continue
		}
		if _, seen := byProduct[m.Product]; !seen {
			products = append(products, m.Product)
		}
		byProduct[m.Product] = append(byProduct[m.Product], m)
	}
	sort.Strings(products)

	var lines []Line
	for _, product := range products {
		rates := byProduct[product]
		sort.Slice(rates, func(i, j int) bool { return rates[i].ValidFrom.Before(rates[j].ValidFrom) })
		var qty, amount float64
		seen := map[float64]bool{}
		for _, p := range points {
			rate, ok := marginRateAt(rates, p.Hour)
			if !ok {
				continue
			}
			qty += p.KWh
			amount += p.KWh * rate
			seen[rate] = true
		}
		lines = append(lines, Line{
			Source:      SourceMargin,
			Description: product,
			Quantity:    money.QuantityFromFloat(qty, money.KWh),
			UnitPrice:   effectiveRate(seen, amount, qty),
			Amount:      money.FromFloat(amount, currency),
			TaxCategory: taxCategoryOr(rates[0].TaxCategory),
			TaxPercent:  taxPercentOr(rates[0].TaxPercent),
			TaxAmount:   taxOn(amount, taxPercentOr(rates[0].TaxPercent), currency),
		})
	}
	return lines
}

// chargeLines emits one line per hub charge: per-kWh charges accrue like
// margins over their rate schedule, flat charges are prorated by the
// fraction of the billing cadence the period covers.
func chargeLines(points []ConsumptionPoint, charges []HubCharge, start, end time.Time, currency string) []Line {
	sorted := append([]HubCharge(nil), charges...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChargeID < sorted[j].ChargeID })

	var lines []Line
	for _, charge := range sorted {
		switch charge.Kind {
		case ChargeFlat:
			cadence := charge.CadenceMonths
			if cadence <= 0 {
				cadence = 1
			}
			cadenceDur := start.AddDate(0, cadence, 0).Sub(start)
			fraction := float64(end.Sub(start)) / float64(cadenceDur)
			amount := charge.FlatAmount * fraction
			lines = append(lines, Line{
				Source:      SourceHubCharge,
				Description: charge.Name,
				Quantity:    money.QuantityFromFloat(1, money.KWh),
				UnitPrice:   amount,
				Amount:      money.FromFloat(amount, currency),
				ExternalID:  charge.ChargeID,
				TaxCategory: taxCategoryOr(charge.TaxCategory),
				TaxPercent:  taxPercentOr(charge.TaxPercent),
				TaxAmount:   taxOn(amount, taxPercentOr(charge.TaxPercent), currency),
			})
		default:
			rates := append([]ChargeRate(nil), charge.Rates...)
			sort.Slice(rates, func(i, j int) bool { return rates[i].ValidFrom.Before(rates[j].ValidFrom) })
			var qty, amount float64
			seen := map[float64]bool{}
			for _, p := range points {
				rate, ok := chargeRateAt(rates, p.Hour)
				if !ok {
					continue
				}
				qty += p.KWh
				amount += p.KWh * rate
				seen[rate] = true
			}
			lines = append(lines, Line{
				Source:      SourceHubCharge,
				Description: charge.Name,
				Quantity:    money.QuantityFromFloat(qty, money.KWh),
				UnitPrice:   effectiveRate(seen, amount, qty),
				Amount:      money.FromFloat(amount, currency),
				ExternalID:  charge.ChargeID,
				TaxCategory: taxCategoryOr(charge.TaxCategory),
				TaxPercent:  taxPercentOr(charge.TaxPercent),
				TaxAmount:   taxOn(amount, taxPercentOr(charge.TaxPercent), currency),
			})
		}
	}
	return lines
}

// marginRateAt picks the applicable rate for an hour. Rates are sorted by
// ValidFrom; the latest window covering the hour wins, so a rate change
// mid-period partitions the period exactly at the window boundary.
func marginRateAt(rates []MarginRate, hour time.Time) (float64, bool) {
	for i := len(rates) - 1; i >= 0; i-- {
		if covers(rates[i].ValidFrom, rates[i].ValidTo, hour) {
			return rates[i].RatePerKWh, true
		}
	}
	return 0, false
}

func chargeRateAt(rates []ChargeRate, hour time.Time) (float64, bool) {
	for i := len(rates) - 1; i >= 0; i-- {
		if covers(rates[i].ValidFrom, rates[i].ValidTo, hour) {
			return rates[i].RatePerKWh, true
		}
	}
	return 0, false
}

func covers(from time.Time, to *time.Time, hour time.Time) bool {
	if hour.Before(from) {
		return false
	}
	return to == nil || hour.Before(*to)
}

func overlaps(from time.Time, to *time.Time, start, end time.Time) bool {
	if !from.Before(end) {
		return false
	}
	return to == nil || to.After(start)
}

// effectiveRate reports the single applied rate when there was exactly
// one, otherwise the volume-weighted average.
func effectiveRate(seen map[float64]bool, amount, qty float64) float64 {
	if len(seen) == 1 {
		for rate := range seen {
			return rate
		}
	}
	if qty == 0 {
		return 0
	}
	return amount / qty
}

// taxOn computes line tax from the rounded line amount so that the tax
// summary reconciles against the printed lines.
func taxOn(amount, percent float64, currency string) money.Money {
	rounded := math.Round(amount*100) / 100
	return money.FromFloat(rounded*percent/100, currency)
}

func taxCategoryOr(category string) string {
	if category == "" {
		return "VAT"
	}
	return category
}

func taxPercentOr(percent float64) float64 {
	if percent == 0 {
		return 25
	}
	return percent
}
