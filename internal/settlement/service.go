package settlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Repository persists settlements.
type Repository interface {
	Insert(ctx context.Context, s Settlement) error
	Get(ctx context.Context, id uuid.UUID) (Settlement, error)
	MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceRef string) error
	MarkCorrected(ctx context.Context, id uuid.UUID) error
	ListByMeteringPoint(ctx context.Context, meteringPointID string, page, perPage int) ([]Settlement, int, error)
}

// InputSource loads the non-price calculation inputs for a supply.
type InputSource interface {
	ConsumptionFor(ctx context.Context, meteringPointID string, start, end time.Time) (ConsumptionSeries, error)
	MarginsFor(ctx context.Context, supplyID string, start, end time.Time) ([]MarginRate, error)
	ChargesFor(ctx context.Context, meteringPointID string, start, end time.Time) ([]HubCharge, error)
	PriceAreaFor(ctx context.Context, meteringPointID string) (string, error)
}

// Service orchestrates settlement calculation, invoicing and correction.
type Service struct {
	repo   Repository
	inputs InputSource
	prices PriceSource
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs the service.
func NewService(repo Repository, inputs InputSource, prices PriceSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, inputs: inputs, prices: prices, logger: logger, now: time.Now}
}

// CalculateRequest scopes one settlement run.
type CalculateRequest struct {
	MeteringPointID string
	SupplyID        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
}

// CalculateForPeriod loads inputs, runs the calculator and persists the
// result.
func (s *Service) CalculateForPeriod(ctx context.Context, req CalculateRequest) (Settlement, error) {
	input, err := s.loadInput(ctx, req)
	if err != nil {
		return Settlement{}, err
	}
	result, err := Calculate(input)
	if err != nil {
		return Settlement{}, err
	}
	if err := s.repo.Insert(ctx, result); err != nil {
		return Settlement{}, err
	}
	s.logger.Info("settlement calculated",
		slog.String("settlement_id", result.ID.String()),
		slog.String("metering_point", req.MeteringPointID),
		slog.String("net_total", result.NetTotal.String()),
		slog.Int("lines", len(result.Lines)))
	return result, nil
}

// MarkInvoiced attaches the external invoice reference, moving the
// settlement from Calculated to Invoiced.
func (s *Service) MarkInvoiced(ctx context.Context, id uuid.UUID, invoiceRef string) error {
	return s.repo.MarkInvoiced(ctx, id, invoiceRef)
}

// CorrectSettlement recalculates the original's scope from current inputs
// and stores the delta settlement linked to the original. The original's
// lines are never touched; only its status flips to Corrected.
func (s *Service) CorrectSettlement(ctx context.Context, originalID uuid.UUID) (Settlement, error) {
	original, err := s.repo.Get(ctx, originalID)
	if err != nil {
		return Settlement{}, err
	}
	input, err := s.loadInput(ctx, CalculateRequest{
		MeteringPointID: original.MeteringPointID,
		SupplyID:        original.SupplyID,
		PeriodStart:     original.PeriodStart,
		PeriodEnd:       original.PeriodEnd,
	})
	if err != nil {
		return Settlement{}, err
	}
	recalculated, err := Calculate(input)
	if err != nil {
		return Settlement{}, err
	}
	correction, err := Correct(original, recalculated)
	if err != nil {
		return Settlement{}, err
	}
	if err := s.repo.Insert(ctx, correction); err != nil {
		return Settlement{}, err
	}
	if err := s.repo.MarkCorrected(ctx, originalID); err != nil {
		return Settlement{}, err
	}
	s.logger.Info("correction issued",
		slog.String("settlement_id", correction.ID.String()),
		slog.String("corrects", originalID.String()),
		slog.String("net_delta", correction.NetTotal.String()))
	return correction, nil
}

// Get returns a settlement with lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Settlement, error) {
	return s.repo.Get(ctx, id)
}

// ListByMeteringPoint pages through a metering point's settlements.
func (s *Service) ListByMeteringPoint(ctx context.Context, meteringPointID string, page, perPage int) ([]Settlement, int, error) {
	return s.repo.ListByMeteringPoint(ctx, meteringPointID, page, perPage)
}

func (s *Service) loadInput(ctx context.Context, req CalculateRequest) (CalculationInput, error) {
	if !req.PeriodEnd.After(req.PeriodStart) {
		return CalculationInput{}, ErrInvalidPeriod
	}
	consumption, err := s.inputs.ConsumptionFor(ctx, req.MeteringPointID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return CalculationInput{}, err
	}
	area, err := s.inputs.PriceAreaFor(ctx, req.MeteringPointID)
	if err != nil {
		return CalculationInput{}, err
	}
	prices, err := s.prices.SpotPricesFor(ctx, area, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return CalculationInput{}, err
	}
	margins, err := s.inputs.MarginsFor(ctx, req.SupplyID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return CalculationInput{}, err
	}
	charges, err := s.inputs.ChargesFor(ctx, req.MeteringPointID, req.PeriodStart, req.PeriodEnd)
	if err != nil {
		return CalculationInput{}, err
	}
	return CalculationInput{
		MeteringPointID: req.MeteringPointID,
		SupplyID:        req.SupplyID,
		PeriodStart:     req.PeriodStart,
		PeriodEnd:       req.PeriodEnd,
		Consumption:     consumption,
		SpotPrices:      prices,
		Margins:         margins,
		Charges:         charges,
		CalculatedAt:    s.now(),
	}, nil
}
