package settlement

import "time"

// ConsumptionPoint is one metered hour. Sub-hourly meters are pre-aggregated
// to hours by the metering data feed.
type ConsumptionPoint struct {
	Hour time.Time
	KWh  float64
}

// ConsumptionSeries is the metered volume for one metering point.
type ConsumptionSeries struct {
	MeteringPointID string
	Points          []ConsumptionPoint
}

// SpotPrice is the wholesale price for one hour in one price area.
type SpotPrice struct {
	Hour        time.Time
	PricePerKWh float64
}

// SpotPriceSeries holds hourly wholesale prices for a price area.
type SpotPriceSeries struct {
	PriceArea string
	Prices    []SpotPrice
}

// MarginRate is a named supplier margin product with a validity window.
// ValidTo nil means open-ended. Margin products carry no hub identifier;
// the product name is their only stable key.
type MarginRate struct {
	Product     string
	RatePerKWh  float64
	ValidFrom   time.Time
	ValidTo     *time.Time
	TaxCategory string
	TaxPercent  float64
}

// ChargeKind distinguishes per-kWh from flat recurring hub charges.
type ChargeKind string

const (
	ChargePerKWh ChargeKind = "PER_KWH"
	ChargeFlat   ChargeKind = "FLAT"
)

// ChargeRate is one validity window of a per-kWh charge schedule.
type ChargeRate struct {
	RatePerKWh float64
	ValidFrom  time.Time
	ValidTo    *time.Time
}

// HubCharge is a tariff or fee billed through the hub on behalf of a grid
// company or the TSO. Flat charges recur per CadenceMonths and are
// prorated by period coverage.
type HubCharge struct {
	ChargeID      string
	Owner         string
	Name          string
	Kind          ChargeKind
	Rates         []ChargeRate
	FlatAmount    float64
	CadenceMonths int
	TaxCategory   string
	TaxPercent    float64
}

// CalculationInput is everything the calculator needs. Calculation is a
// pure function of this struct; identical inputs produce identical output.
type CalculationInput struct {
	MeteringPointID string
	SupplyID        string
	PeriodStart     time.Time
	PeriodEnd       time.Time
	Currency        string
	Consumption     ConsumptionSeries
	SpotPrices      SpotPriceSeries
	Margins         []MarginRate
	Charges         []HubCharge
	CalculatedAt    time.Time
}
