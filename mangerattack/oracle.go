package mangerattack

import "math/big"

// Oracle is an interface to allow anyone to easily provide its own oracle.
// Query is given the modified ciphertext we want the oracle to be fed with
// and must report whether it decrypts to a value below the threshold
// B = 2^(bitlen(N)-8), i.e. whether the decrypted plaintext has a leading
// zero byte when N is a whole number of bytes long.
//
// The attack assumes the answer is deterministic for a given ciphertext
// during one run. Errors, retries and timeouts are the oracle's business.
type Oracle interface {
	Query(ciphertext *big.Int) bool
}

// OracleFunc adapts an ordinary function to the Oracle interface.
type OracleFunc func(ciphertext *big.Int) bool

// Query calls f(ciphertext).
func (f OracleFunc) Query(ciphertext *big.Int) bool {
	return f(ciphertext)
}
