package intent

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	SOLDecimals  = 9
	USDCDecimals = 6
)

func (a Asset) Decimals() int32 {
	if a == AssetUSDC {
		return USDCDecimals
	}
	return SOLDecimals
}

// ToBaseUnits converts a human amount into integer base units (lamports or micro-USDC).
// Values finer than the asset's precision are rejected rather than rounded.
func ToBaseUnits(a Amount) (uint64, error) {
	if !a.Unit.Valid() {
		return 0, fmt.Errorf("unsupported unit %q", a.Unit)
	}
	if !a.Value.IsPositive() {
		return 0, fmt.Errorf("amount must be positive")
	}
	shifted := a.Value.Shift(a.Unit.Decimals())
	if !shifted.Equal(shifted.Truncate(0)) {
		return 0, fmt.Errorf("amount %s has more than %d decimals", a.Value.String(), a.Unit.Decimals())
	}
	bi := shifted.BigInt()
	if !bi.IsUint64() {
		return 0, fmt.Errorf("amount %s out of range", a.Value.String())
	}
	return bi.Uint64(), nil
}

// FromBaseUnits is the inverse of ToBaseUnits.
func FromBaseUnits(units uint64, unit Asset) Amount {
	v := decimal.NewFromBigInt(new(big.Int).SetUint64(units), -unit.Decimals())
	return Amount{Value: v, Unit: unit}
}

// HumanString formats base units with the asset's display precision.
func HumanString(units uint64, unit Asset) string {
	places := int32(6)
	if unit == AssetUSDC {
		places = 2
	}
	return FromBaseUnits(units, unit).Value.Truncate(places).String() + " " + string(unit)
}
