// Package fee implements the deterministic fee computation of the fee
// engine. It is a pure function over decimal.Decimal: no I/O, no shared
// state, fully reproducible for a given (amount, method, corridor, mode).
//
// Grounded on the clamp/round shape of
// accounting-service/internal/pkg/fee_calculator.go (calculate → apply
// min/max → round to two decimals), reduced to the spec's fixed corridor
// table instead of a rule lookup.
package fee

import (
	"github.com/shopspring/decimal"

	"github.com/suncoastpay/orchestrator/internal/apperr"
)

// Method is the funding method used on the onramp leg.
type Method string

const (
	MethodACH  Method = "ach"
	MethodCard Method = "card"
)

// Corridor is a supported USD → destination-currency pair.
type Corridor string

const (
	CorridorMXN Corridor = "MXN"
	CorridorNGN Corridor = "NGN"
	CorridorPHP Corridor = "PHP"
	CorridorINR Corridor = "INR"
	CorridorBRL Corridor = "BRL"
)

// HandlingMode controls whether the fee is deducted from the sent amount
// (inclusive) or charged on top of it (additive).
type HandlingMode string

const (
	ModeInclusive HandlingMode = "inclusive"
	ModeAdditive  HandlingMode = "additive"
)

var corridorRates = map[Corridor]decimal.Decimal{
	CorridorMXN: decimal.NewFromFloat(0.010),
	CorridorNGN: decimal.NewFromFloat(0.020),
	CorridorPHP: decimal.NewFromFloat(0.015),
	CorridorINR: decimal.NewFromFloat(0.012),
	CorridorBRL: decimal.NewFromFloat(0.018),
}

// SupportedCorridors lists the corridors usable by quote/initiate.
func SupportedCorridors() []Corridor {
	return []Corridor{CorridorMXN, CorridorNGN, CorridorPHP, CorridorINR, CorridorBRL}
}

func IsSupportedCorridor(c Corridor) bool {
	_, ok := corridorRates[c]
	return ok
}

var (
	minAmount     = decimal.NewFromInt(10)
	maxAmount     = decimal.NewFromInt(10000)
	onrampCardFee = decimal.NewFromFloat(0.029)
	platformBase  = decimal.NewFromFloat(2.99)
	platformRate  = decimal.NewFromFloat(0.005)
	platformMin   = decimal.NewFromFloat(0.99)
	platformMax   = decimal.NewFromFloat(50.00)
	networkGas    = decimal.NewFromFloat(0.05)
	two           = int32(2)
)

// Breakdown is the fee snapshot computed for a single payment.
type Breakdown struct {
	Onramp        decimal.Decimal
	Corridor      decimal.Decimal
	Platform      decimal.Decimal
	NetworkGas    decimal.Decimal
	Total         decimal.Decimal
	UsdcSent      decimal.Decimal
	TotalCharged  decimal.Decimal
}

// Compute runs the fee engine. amount must be within [10, 10000]; method
// and corridor must be known enum values; mode must be inclusive or
// additive. No I/O is performed and no error is returned other than
// apperr.KindInvalidInput.
func Compute(amount decimal.Decimal, method Method, corridor Corridor, mode HandlingMode) (Breakdown, error) {
	if amount.LessThan(minAmount) || amount.GreaterThan(maxAmount) {
		return Breakdown{}, apperr.New(apperr.KindInvalidInput, "amount must be between 10.00 and 10000.00 USD")
	}

	var onrampRate decimal.Decimal
	switch method {
	case MethodACH:
		onrampRate = decimal.Zero
	case MethodCard:
		onrampRate = onrampCardFee
	default:
		return Breakdown{}, apperr.New(apperr.KindInvalidInput, "unknown payment method: "+string(method))
	}

	corridorRate, ok := corridorRates[corridor]
	if !ok {
		return Breakdown{}, apperr.New(apperr.KindInvalidInput, "unsupported destination currency: "+string(corridor))
	}

	switch mode {
	case ModeInclusive, ModeAdditive:
	default:
		return Breakdown{}, apperr.New(apperr.KindInvalidInput, "unknown fee handling mode: "+string(mode))
	}

	onramp := amount.Mul(onrampRate).Round(two)
	corridorFee := amount.Mul(corridorRate).Round(two)

	platformRaw := platformBase.Add(amount.Mul(platformRate))
	platform := clamp(platformRaw, platformMin, platformMax).Round(two)

	total := onramp.Add(corridorFee).Add(platform).Add(networkGas)

	var usdcSent, totalCharged decimal.Decimal
	if mode == ModeInclusive {
		usdcSent = amount.Sub(total)
		totalCharged = amount
	} else {
		usdcSent = amount
		totalCharged = amount.Add(total)
	}

	return Breakdown{
		Onramp:       onramp,
		Corridor:     corridorFee,
		Platform:     platform,
		NetworkGas:   networkGas,
		Total:        total,
		UsdcSent:     usdcSent,
		TotalCharged: totalCharged,
	}, nil
}

func clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// DestinationAmount rounds usdcSent × rate to two decimals, as mandated
// for Payment.destination_amount and the quote response.
func DestinationAmount(usdcSent, rate decimal.Decimal) decimal.Decimal {
	return usdcSent.Mul(rate).Round(two)
}

// EffectiveRate returns destinationAmount / inputAmount rounded to six
// decimal places, as required by the Quote Service.
func EffectiveRate(destinationAmount, inputAmount decimal.Decimal) decimal.Decimal {
	if inputAmount.IsZero() {
		return decimal.Zero
	}
	return destinationAmount.DivRound(inputAmount, 6)
}
