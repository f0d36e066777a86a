package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridline-energy/gridline/internal/shared"
)

// PgInputSource loads calculation inputs from the market data tables kept
// in sync by the inbound document handlers.
type PgInputSource struct {
	pool *pgxpool.Pool
}

// NewPgInputSource constructs the source.
func NewPgInputSource(pool *pgxpool.Pool) *PgInputSource {
	return &PgInputSource{pool: pool}
}

// ConsumptionFor loads the hourly readings inside the period.
func (s *PgInputSource) ConsumptionFor(ctx context.Context, meteringPointID string, start, end time.Time) (ConsumptionSeries, error) {
	rows, err := s.pool.Query(ctx, `
SELECT hour, kwh FROM consumption_readings
WHERE metering_point_id=$1 AND hour >= $2 AND hour < $3
ORDER BY hour ASC`, meteringPointID, start, end)
	if err != nil {
		return ConsumptionSeries{}, err
	}
	defer rows.Close()
	series := ConsumptionSeries{MeteringPointID: meteringPointID}
	for rows.Next() {
		var point ConsumptionPoint
		if err := rows.Scan(&point.Hour, &point.KWh); err != nil {
			return ConsumptionSeries{}, err
		}
		series.Points = append(series.Points, point)
	}
	return series, rows.Err()
}

// MarginsFor loads margin products whose validity overlaps the period.
func (s *PgInputSource) MarginsFor(ctx context.Context, supplyID string, start, end time.Time) ([]MarginRate, error) {
	rows, err := s.pool.Query(ctx, `
SELECT product, rate_per_kwh, valid_from, valid_to, tax_category, tax_percent
FROM margin_rates
WHERE supply_id=$1 AND valid_from < $3 AND (valid_to IS NULL OR valid_to > $2)
ORDER BY product, valid_from`, supplyID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MarginRate
	for rows.Next() {
		var rate MarginRate
		if err := rows.Scan(&rate.Product, &rate.RatePerKWh, &rate.ValidFrom, &rate.ValidTo,
			&rate.TaxCategory, &rate.TaxPercent); err != nil {
			return nil, err
		}
		out = append(out, rate)
	}
	return out, rows.Err()
}

// ChargesFor loads hub charges attached to the metering point, with their
// rate schedules.
func (s *PgInputSource) ChargesFor(ctx context.Context, meteringPointID string, start, end time.Time) ([]HubCharge, error) {
	rows, err := s.pool.Query(ctx, `
SELECT charge_id, owner, name, kind, flat_amount, cadence_months, tax_category, tax_percent
FROM hub_charges
WHERE metering_point_id=$1 AND valid_from < $3 AND (valid_to IS NULL OR valid_to > $2)
ORDER BY charge_id`, meteringPointID, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var charges []HubCharge
	for rows.Next() {
		var charge HubCharge
		var kind string
		if err := rows.Scan(&charge.ChargeID, &charge.Owner, &charge.Name, &kind,
			&charge.FlatAmount, &charge.CadenceMonths, &charge.TaxCategory, &charge.TaxPercent); err != nil {
			return nil, err
		}
		charge.Kind = ChargeKind(kind)
		charges = append(charges, charge)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range charges {
		if charges[i].Kind != ChargePerKWh {
			continue
		}
		rateRows, err := s.pool.Query(ctx, `
SELECT rate_per_kwh, valid_from, valid_to
FROM hub_charge_rates WHERE charge_id=$1 ORDER BY valid_from`, charges[i].ChargeID)
		if err != nil {
			return nil, err
		}
		for rateRows.Next() {
			var rate ChargeRate
			if err := rateRows.Scan(&rate.RatePerKWh, &rate.ValidFrom, &rate.ValidTo); err != nil {
				rateRows.Close()
				return nil, err
			}
			charges[i].Rates = append(charges[i].Rates, rate)
		}
		if err := rateRows.Err(); err != nil {
			rateRows.Close()
			return nil, err
		}
		rateRows.Close()
	}
	return charges, nil
}

// PriceAreaFor resolves the price area of a metering point.
func (s *PgInputSource) PriceAreaFor(ctx context.Context, meteringPointID string) (string, error) {
	var area string
	err := s.pool.QueryRow(ctx, `
SELECT price_area FROM metering_points WHERE id=$1`, meteringPointID).Scan(&area)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("metering point %s: %w", meteringPointID, shared.ErrNotFound)
		}
		return "", err
	}
	return area, nil
}

// PgPriceSource loads stored spot prices; it sits behind the PriceCache.
type PgPriceSource struct {
	pool *pgxpool.Pool
}

// NewPgPriceSource constructs the source.
func NewPgPriceSource(pool *pgxpool.Pool) *PgPriceSource {
	return &PgPriceSource{pool: pool}
}

// SpotPricesFor loads the hourly prices for a price area inside the period.
func (s *PgPriceSource) SpotPricesFor(ctx context.Context, priceArea string, start, end time.Time) (SpotPriceSeries, error) {
	rows, err := s.pool.Query(ctx, `
SELECT hour, price_per_kwh FROM spot_prices
WHERE price_area=$1 AND hour >= $2 AND hour < $3
ORDER BY hour ASC`, priceArea, start, end)
	if err != nil {
		return SpotPriceSeries{}, err
	}
	defer rows.Close()
	series := SpotPriceSeries{PriceArea: priceArea}
	for rows.Next() {
		var price SpotPrice
		if err := rows.Scan(&price.Hour, &price.PricePerKWh); err != nil {
			return SpotPriceSeries{}, err
		}
		series.Prices = append(series.Prices, price)
	}
	return series, rows.Err()
}
