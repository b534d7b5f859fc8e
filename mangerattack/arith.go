package mangerattack

import (
	"fmt"
	"math/big"
	"strings"
)

// A few useful big.Int, never modified:
var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// FromBase16 returns a new big.Int from an hexadecimal string, as found in the
// go crypto tests suite. It panics on malformed input, use ParseHex otherwise.
func FromBase16(base16 string) *big.Int {
	i, err := ParseHex(base16)
	if err != nil {
		panic(err)
	}
	return i
}

// ParseHex parses a non-negative hexadecimal integer, with or without a 0x prefix.
func ParseHex(s string) (*big.Int, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	i, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("bad number: %q", s)
	}
	if i.Sign() < 0 {
		return nil, fmt.Errorf("bad number %q: %w", s, ErrNegativeOperand)
	}
	return i, nil
}

// BitLen returns the number of bits needed to represent x, 0 for x == 0.
// x is expected to be non-negative; the sign is ignored otherwise.
func BitLen(x *big.Int) int {
	return x.BitLen()
}

// PowerMod computes base^exponent mod modulus by square-and-multiply, going
// through the bits of exponent from the least to the most significant one.
// The result is always in [0, modulus).
func PowerMod(base, exponent, modulus *big.Int) (*big.Int, error) {
	if modulus == nil || modulus.Sign() <= 0 {
		return nil, ErrInvalidModulus
	}
	if base == nil || exponent == nil {
		return nil, ErrNilOperand
	}
	if base.Sign() < 0 || exponent.Sign() < 0 {
		return nil, ErrNegativeOperand
	}

	result := new(big.Int).Mod(one, modulus)
	b := new(big.Int).Mod(base, modulus)
	for i := 0; i < exponent.BitLen(); i++ {
		if exponent.Bit(i) == 1 {
			result.Mul(result, b)
			result.Mod(result, modulus)
		}
		b.Mul(b, b)
		b.Mod(b, modulus)
	}
	return result, nil
}

// floorDiv rounds the quotient towards negative infinity whatever the signs,
// unlike big.Int's Quo (truncated) and Div (Euclidean).
func floorDiv(c, d *big.Int) *big.Int {
	r := new(big.Int)
	q, _ := new(big.Int).QuoRem(c, d, r)
	if r.Sign() != 0 && r.Sign() != d.Sign() {
		q.Sub(q, one)
	}
	return q
}

// FloorDiv returns floor(c/d).
func FloorDiv(c, d *big.Int) (*big.Int, error) {
	if c == nil || d == nil {
		return nil, ErrNilOperand
	}
	// we want to avoid the runtime panic caused by QuoRem in case of 0
	if d.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	return floorDiv(c, d), nil
}

// CeilDiv returns ceil(c/d): FloorDiv(c, d) when d divides c, FloorDiv(c, d)+1 otherwise.
func CeilDiv(c, d *big.Int) (*big.Int, error) {
	if c == nil || d == nil {
		return nil, ErrNilOperand
	}
	if d.Sign() == 0 {
		return nil, ErrDivisionByZero
	}
	r := new(big.Int)
	q, _ := new(big.Int).QuoRem(c, d, r)
	if r.Sign() != 0 && r.Sign() == d.Sign() {
		// we have to ceil it
		q.Add(q, one)
	}
	return q, nil
}

// ExtendedEuclid returns (g, r, s) such that g = r*u + s*v and g = gcd(u, v).
// The quotients are floor divisions, so the Bezout coefficients do not
// depend on how the platform rounds.
func ExtendedEuclid(u, v *big.Int) (g, r, s *big.Int, err error) {
	if u == nil || v == nil {
		return nil, nil, nil, ErrNilOperand
	}
	if u.Sign() < 0 || v.Sign() < 0 {
		return nil, nil, nil, ErrNegativeOperand
	}

	r, s, g = big.NewInt(1), big.NewInt(0), new(big.Int).Set(u)
	v1, v2, v3 := big.NewInt(0), big.NewInt(1), new(big.Int).Set(v)
	for v3.Sign() != 0 {
		q := floorDiv(g, v3)
		t1 := new(big.Int).Sub(r, new(big.Int).Mul(q, v1))
		t2 := new(big.Int).Sub(s, new(big.Int).Mul(q, v2))
		t3 := new(big.Int).Sub(g, new(big.Int).Mul(q, v3))
		r, s, g = v1, v2, v3
		v1, v2, v3 = t1, t2, t3
	}
	return g, r, s, nil
}

// InverseMod returns b in [0, p) such that a*b = 1 mod p.
func InverseMod(a, p *big.Int) (*big.Int, error) {
	if p == nil || p.Cmp(one) <= 0 {
		return nil, ErrInvalidModulus
	}
	if a == nil {
		return nil, ErrNilOperand
	}
	reduced := new(big.Int).Mod(a, p)
	g, b, _, err := ExtendedEuclid(reduced, p)
	if err != nil {
		return nil, err
	}
	if g.Cmp(one) != 0 {
		return nil, fmt.Errorf("%s mod %s: %w", a, p, ErrNotInvertible)
	}
	// Mod is Euclidean, this brings negative coefficients back into [0, p)
	return b.Mod(b, p), nil
}

// Threshold returns B = 2^(bitlen(N) - 8).
func Threshold(N *big.Int) (*big.Int, error) {
	if N == nil || N.Sign() <= 0 {
		return nil, ErrInvalidModulus
	}
	if N.BitLen() <= 8 {
		return nil, ErrModulusTooSmall
	}
	return new(big.Int).Lsh(one, uint(N.BitLen()-8)), nil
}
