package settlement

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gridline-energy/gridline/internal/money"
	"github.com/gridline-energy/gridline/internal/platform/db"
)

// PgRepository is the pgx-backed settlement store.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the repository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Insert persists a settlement and its lines atomically.
func (r *PgRepository) Insert(ctx context.Context, s Settlement) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO settlements
  (id, metering_point_id, supply_id, period_start, period_end, currency,
   net_total_cents, tax_total_cents, gross_total_cents, status, is_correction,
   corrects_id, invoice_ref, calculated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
			s.ID, s.MeteringPointID, s.SupplyID, s.PeriodStart, s.PeriodEnd, s.Currency,
			s.NetTotal.Cents(), s.TaxTotal.Cents(), s.GrossTotal.Cents(), string(s.Status),
			s.IsCorrection, s.CorrectsID, s.InvoiceRef, s.CalculatedAt); err != nil {
			return err
		}
		for _, line := range s.Lines {
			if _, err := tx.Exec(ctx, `
INSERT INTO settlement_lines
  (settlement_id, line_no, source, description, quantity_milli, unit_price,
   amount_cents, external_id, tax_category, tax_percent, tax_cents)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
				s.ID, line.Number, string(line.Source), line.Description,
				line.Quantity.Milli(), line.UnitPrice, line.Amount.Cents(),
				line.ExternalID, line.TaxCategory, line.TaxPercent, line.TaxAmount.Cents()); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get loads one settlement with its lines.
func (r *PgRepository) Get(ctx context.Context, id uuid.UUID) (Settlement, error) {
	var s Settlement
	var status string
	var netCents, taxCents, grossCents int64
	err := r.pool.QueryRow(ctx, `
SELECT id, metering_point_id, supply_id, period_start, period_end, currency,
       net_total_cents, tax_total_cents, gross_total_cents, status, is_correction,
       corrects_id, invoice_ref, calculated_at
FROM settlements WHERE id=$1`, id).Scan(
		&s.ID, &s.MeteringPointID, &s.SupplyID, &s.PeriodStart, &s.PeriodEnd, &s.Currency,
		&netCents, &taxCents, &grossCents, &status, &s.IsCorrection,
		&s.CorrectsID, &s.InvoiceRef, &s.CalculatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Settlement{}, ErrSettlementNotFound
		}
		return Settlement{}, err
	}
	s.Status = Status(status)
	s.NetTotal = money.FromCents(netCents, s.Currency)
	s.TaxTotal = money.FromCents(taxCents, s.Currency)
	s.GrossTotal = money.FromCents(grossCents, s.Currency)

	rows, err := r.pool.Query(ctx, `
SELECT line_no, source, description, quantity_milli, unit_price, amount_cents,
       external_id, tax_category, tax_percent, tax_cents
FROM settlement_lines WHERE settlement_id=$1 ORDER BY line_no ASC`, id)
	if err != nil {
		return Settlement{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		var source string
		var qtyMilli, amountCents, lineTaxCents int64
		if err := rows.Scan(&line.Number, &source, &line.Description, &qtyMilli,
			&line.UnitPrice, &amountCents, &line.ExternalID, &line.TaxCategory,
			&line.TaxPercent, &lineTaxCents); err != nil {
			return Settlement{}, err
		}
		line.Source = LineSource(source)
		line.Quantity = money.QuantityFromMilli(qtyMilli, money.KWh)
		line.Amount = money.FromCents(amountCents, s.Currency)
		line.TaxAmount = money.FromCents(lineTaxCents, s.Currency)
		s.Lines = append(s.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return Settlement{}, err
	}
	// The tax summary is derived from lines on read; lines and totals are
	// exact fixed-point values so this reproduces the stored totals.
	if err := finalizeTotals(&s); err != nil {
		return Settlement{}, err
	}
	return s, nil
}

// MarkInvoiced attaches the external invoice reference. Only a Calculated
// settlement can become Invoiced; the conditional update enforces that
// against concurrent writers.
func (r *PgRepository) MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceRef string) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE settlements SET status=$1, invoice_ref=$2
WHERE id=$3 AND status=$4`,
		string(StatusInvoiced), invoiceRef, id, string(StatusCalculated))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM settlements WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSettlementNotFound
		}
		return ErrNotInvoiceable
	}
	return nil
}

// MarkCorrected flips an original to Corrected once its correction is
// stored. Already-corrected originals are left untouched.
func (r *PgRepository) MarkCorrected(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
UPDATE settlements SET status=$1 WHERE id=$2 AND status<>$1`,
		string(StatusCorrected), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM settlements WHERE id=$1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSettlementNotFound
		}
	}
	return nil
}

// ListByMeteringPoint returns settlement headers for a metering point,
// newest first, with a total count.
func (r *PgRepository) ListByMeteringPoint(ctx context.Context, meteringPointID string, page, perPage int) ([]Settlement, int, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM settlements WHERE metering_point_id=$1`, meteringPointID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, metering_point_id, supply_id, period_start, period_end, currency,
       net_total_cents, tax_total_cents, gross_total_cents, status, is_correction,
       corrects_id, invoice_ref, calculated_at
FROM settlements WHERE metering_point_id=$1
ORDER BY calculated_at DESC LIMIT $2 OFFSET $3`,
		meteringPointID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Settlement
	for rows.Next() {
		var s Settlement
		var status string
		var netCents, taxCents, grossCents int64
		if err := rows.Scan(&s.ID, &s.MeteringPointID, &s.SupplyID, &s.PeriodStart, &s.PeriodEnd,
			&s.Currency, &netCents, &taxCents, &grossCents, &status, &s.IsCorrection,
			&s.CorrectsID, &s.InvoiceRef, &s.CalculatedAt); err != nil {
			return nil, 0, err
		}
		s.Status = Status(status)
		s.NetTotal = money.FromCents(netCents, s.Currency)
		s.TaxTotal = money.FromCents(taxCents, s.Currency)
		s.GrossTotal = money.FromCents(grossCents, s.Currency)
		out = append(out, s)
	}
	return out, total, rows.Err()
}
