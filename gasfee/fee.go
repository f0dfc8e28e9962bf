// Package gasfee turns raw fee-history samples into per-speed-tier fee
// suggestions and carries the fee parameters of outgoing transactions from
// estimation all the way to the signed-request builder. Both fee models
// (legacy gasPrice and dynamic maxFeePerGas/maxPriorityFeePerGas) live behind
// one tagged union so call sites never branch on response shapes.
package gasfee

import "math/big"

// Speed is the confirmation speed tier a consumer picks fees for.
type Speed int

const (
	SpeedNormal Speed = iota
	SpeedFast
	SpeedUrgent
)

func (s Speed) String() string {
	switch s {
	case SpeedNormal:
		return "normal"
	case SpeedFast:
		return "fast"
	case SpeedUrgent:
		return "urgent"
	default:
		return "unknown"
	}
}

// Tiered holds one value per speed tier.
type Tiered struct {
	Normal *big.Int
	Fast   *big.Int
	Urgent *big.Int
}

// For returns the value for the given speed tier.
func (t Tiered) For(speed Speed) *big.Int {
	switch speed {
	case SpeedFast:
		return t.Fast
	case SpeedUrgent:
		return t.Urgent
	default:
		return t.Normal
	}
}

// FeeParams is the discriminated union over the two fee models. Exactly
// LegacyFee and DynamicFee implement it.
type FeeParams interface {
	// GasLimit returns the gas limit shared by all tiers.
	GasLimit() uint64

	// MaxCostWei returns the worst-case fee in wei at the given speed
	// (gas limit times the highest per-gas price of the model).
	MaxCostWei(speed Speed) *big.Int

	isFeeParams()
}

// LegacyFee is the single-gasPrice fee model.
type LegacyFee struct {
	GasPrice Tiered
	Limit    uint64
}

func (f LegacyFee) GasLimit() uint64 { return f.Limit }

func (f LegacyFee) MaxCostWei(speed Speed) *big.Int {
	price := f.GasPrice.For(speed)
	if price == nil {
		return nil
	}
	return new(big.Int).Mul(price, new(big.Int).SetUint64(f.Limit))
}

func (f LegacyFee) isFeeParams() {}

// DynamicFee is the EIP-1559-style fee model.
type DynamicFee struct {
	MaxFeePerGas         Tiered
	MaxPriorityFeePerGas Tiered
	Limit                uint64
}

func (f DynamicFee) GasLimit() uint64 { return f.Limit }

func (f DynamicFee) MaxCostWei(speed Speed) *big.Int {
	feeCap := f.MaxFeePerGas.For(speed)
	if feeCap == nil {
		return nil
	}
	return new(big.Int).Mul(feeCap, new(big.Int).SetUint64(f.Limit))
}

func (f DynamicFee) isFeeParams() {}
