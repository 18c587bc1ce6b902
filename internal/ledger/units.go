package ledger

import (
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
)

// NativeDecimals is the number of decimals of the native asset.
const NativeDecimals = 9

// ParseAmount converts a decimal string in whole units ("0.2") to the smallest
// unit for the given number of decimals.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	d, err := sdkmath.LegacyNewDecFromStr(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: negative", s)
	}
	scaled := d.Mul(sdkmath.LegacyNewDec(10).Power(uint64(decimals)))
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than %d decimals", s, decimals)
	}
	i := scaled.TruncateInt()
	if !i.IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: out of range", s)
	}
	return i.Uint64(), nil
}

// FormatAmount renders a smallest-unit amount in whole units without trailing zeros.
func FormatAmount(v uint64, decimals uint8) string {
	d := sdkmath.LegacyNewDecFromInt(sdkmath.NewIntFromUint64(v)).
		Quo(sdkmath.LegacyNewDec(10).Power(uint64(decimals)))
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	return s
}
