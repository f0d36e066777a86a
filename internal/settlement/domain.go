package settlement

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gridline-energy/gridline/internal/money"
	"github.com/gridline-energy/gridline/internal/shared"
)

// Status enumerates settlement lifecycle states.
type Status string

const (
	StatusCalculated Status = "CALCULATED"
	StatusInvoiced   Status = "INVOICED"
	StatusAdjusted   Status = "ADJUSTED"
	StatusMigrated   Status = "MIGRATED"
	StatusCorrected  Status = "CORRECTED"
)

// LineSource identifies where a settlement line's charge originates.
type LineSource string

const (
	SourceSpot      LineSource = "SPOT"
	SourceMargin    LineSource = "MARGIN"
	SourceHubCharge LineSource = "HUB_CHARGE"
)

// Line is one itemised charge on a settlement. Line numbers are 1-based
// and stable; amounts are rounded exactly once, when the line is emitted.
type Line struct {
	Number      int
	Source      LineSource
	Description string
	Quantity    money.Quantity
	UnitPrice   float64
	Amount      money.Money
	ExternalID  string
	TaxCategory string
	TaxPercent  float64
	TaxAmount   money.Money
}

// TaxSummaryEntry aggregates tax per category.
type TaxSummaryEntry struct {
	Category string
	Percent  float64
	Base     money.Money
	Tax      money.Money
}

// Settlement is a financial statement for a metering point's supply over
// a period (start inclusive, end exclusive). Originals are never mutated:
// a correction is a new linked settlement.
type Settlement struct {
	ID              uuid.UUID
	MeteringPointID string
	SupplyID        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Currency        string
	Lines           []Line
	TaxSummary      []TaxSummaryEntry
	NetTotal        money.Money
	TaxTotal        money.Money
	GrossTotal      money.Money
	Status          Status
	IsCorrection    bool
	CorrectsID      *uuid.UUID
	InvoiceRef      string
	CalculatedAt    time.Time
}

var (
	ErrInvalidPeriod          = fmt.Errorf("settlement period end must be after start: %w", shared.ErrValidation)
	ErrIncompleteRateCoverage = fmt.Errorf("spot price missing for part of the period: %w", shared.ErrValidation)
	ErrAmbiguousLineMatch     = fmt.Errorf("correction line match is ambiguous: %w", shared.ErrValidation)
	ErrSettlementNotFound     = fmt.Errorf("settlement: %w", shared.ErrNotFound)
	ErrNotInvoiceable         = fmt.Errorf("settlement is not in a state that can be invoiced: %w", shared.ErrValidation)
)
