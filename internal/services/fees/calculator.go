package fees

import (
	"errors"
	"math"
)

const (
	// Card processor pre-authorization estimate: 2.9% + 30c flat. The actual
	// fee reported by the processor after a successful charge replaces this.
	processorRate     = 0.029
	processorFlatCents = 30

	DefaultPlatformPercent = 10.0
)

var (
	ErrInvalidAmount  = errors.New("gross amount must be positive")
	ErrInvalidPercent = errors.New("platform fee percent must be within [0,100]")
)

type Split struct {
	PlatformFeeCents  int64
	ProcessorFeeCents int64
	OwnerNetCents     int64
}

type Calculator struct{}

func NewCalculator() *Calculator {
	return &Calculator{}
}

// Split divides a gross amount between the platform, the card processor and
// the owner. Owner net may go negative for tiny amounts where the flat
// processor fee dominates; callers decide whether to accept such purchases.
func (c *Calculator) Split(grossCents int64, platformFeePercent float64) (Split, error) {
	if grossCents <= 0 {
		return Split{}, ErrInvalidAmount
	}
	if platformFeePercent < 0 || platformFeePercent > 100 || math.IsNaN(platformFeePercent) {
		return Split{}, ErrInvalidPercent
	}

	platform := roundHalfUp(float64(grossCents) * platformFeePercent / 100)
	processor := EstimateProcessorFee(grossCents)

	return Split{
		PlatformFeeCents:  platform,
		ProcessorFeeCents: processor,
		OwnerNetCents:     grossCents - platform - processor,
	}, nil
}

// Rebalance recomputes the owner net after the processor reported its actual
// fee for a charge. Gross and platform fee are fixed at checkout.
func Rebalance(grossCents, platformFeeCents, actualProcessorFeeCents int64) int64 {
	return grossCents - platformFeeCents - actualProcessorFeeCents
}

func EstimateProcessorFee(grossCents int64) int64 {
	return roundHalfUp(float64(grossCents)*processorRate) + processorFlatCents
}

func roundHalfUp(v float64) int64 {
	return int64(math.Floor(v + 0.5))
}
