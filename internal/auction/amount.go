package auction

import (
	"fmt"
	"math/big"
)

// maxTokenAmount is 2^128 - 1, the largest representable token amount.
var maxTokenAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// CheckAmount rejects nil, negative and beyond-128-bit values. All
// amounts entering the engine pass through here.
func CheckAmount(name string, v *big.Int) error {
	if v == nil {
		return preconditionf("%s: amount missing", name)
	}
	if v.Sign() < 0 {
		return preconditionf("%s: amount %s is negative", name, v)
	}
	if v.Cmp(maxTokenAmount) > 0 {
		return preconditionf("%s: amount %s exceeds 128 bits", name, v)
	}
	return nil
}

// addAmount returns a+b, failing when the sum leaves the 128-bit range.
func addAmount(name string, a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(a, b)
	if sum.Cmp(maxTokenAmount) > 0 {
		return nil, fmt.Errorf("%w: %s: %s + %s overflows 128 bits", ErrPreconditionViolation, name, a, b)
	}
	return sum, nil
}

// ParseAmount decodes a decimal string into a checked token amount.
func ParseAmount(name, s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, preconditionf("%s: %q is not a decimal amount", name, s)
	}
	if err := CheckAmount(name, v); err != nil {
		return nil, err
	}
	return v, nil
}
