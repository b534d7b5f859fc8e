package mangerattack

import "errors"

var (
	// ErrDivisionByZero is returned by the division helpers on a zero divisor.
	ErrDivisionByZero = errors.New("division by zero")
	// ErrNegativeOperand is returned when a primitive requiring non-negative
	// integers is handed a negative one.
	ErrNegativeOperand = errors.New("negative operand")
	// ErrNilOperand is returned when a primitive is handed a nil *big.Int.
	ErrNilOperand = errors.New("nil operand")
	// ErrInvalidModulus is returned for a nil, zero or negative modulus.
	ErrInvalidModulus = errors.New("invalid modulus")
	// ErrNotInvertible is returned by InverseMod when gcd(a, p) != 1.
	ErrNotInvertible = errors.New("not invertible")

	ErrModulusTooSmall = errors.New("modulus too small, need bitlen(N) > 8")
	ErrInvalidExponent = errors.New("public exponent must be positive")
	ErrCiphertextRange = errors.New("ciphertext not in [0, N)")

	// ErrNoProgress means a phase 3 iteration failed to shrink [mmin, mmax].
	ErrNoProgress = errors.New("interval did not shrink")
	// ErrInconsistentOracle means the oracle answers contradict each other,
	// typically because it does not implement the "< B" predicate.
	ErrInconsistentOracle = errors.New("inconsistent oracle answers")
	// ErrVerificationFailed means the recovered plaintext does not
	// re-encrypt to the target ciphertext.
	ErrVerificationFailed = errors.New("re-encryption does not match ciphertext")
)
