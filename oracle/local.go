// Package oracle provides oracles answering the "decrypts below B" question
// by decrypting locally with a known private key, for tests and demos.
package oracle

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/cronokirby/safenum"

	"git.kudelski.com/go-manger-attack/mangerattack"
	"git.kudelski.com/go-manger-attack/oaep"
)

// Local simulates the oracle with the private exponent: Query(x) reports
// whether x^d mod N < B. Decryption is constant time.
type Local struct {
	mod  *big.Int
	n    *safenum.Modulus
	d    *safenum.Nat
	size int
	b    *big.Int
}

// NewLocal returns an oracle decrypting with d modulo N.
func NewLocal(N, d *big.Int) (*Local, error) {
	B, err := mangerattack.Threshold(N)
	if err != nil {
		return nil, err
	}
	if d == nil || d.Sign() <= 0 {
		return nil, errors.New("oracle: private exponent must be positive")
	}
	return &Local{
		mod:  new(big.Int).Set(N),
		n:    safenum.ModulusFromNat(new(safenum.Nat).SetBig(N, N.BitLen())),
		d:    new(safenum.Nat).SetBig(d, d.BitLen()),
		size: N.BitLen(),
		b:    B,
	}, nil
}

// NewLocalFromKey is NewLocal(priv.N, priv.D).
func NewLocalFromKey(priv *rsa.PrivateKey) (*Local, error) {
	return NewLocal(priv.N, priv.D)
}

// decrypt reduces c with math/big first, SetBig keeps only the low size bits.
func (l *Local) decrypt(c *big.Int) *safenum.Nat {
	x := new(safenum.Nat).SetBig(new(big.Int).Mod(c, l.mod), l.size)
	return new(safenum.Nat).Exp(x, l.d, l.n)
}

// Decrypt returns c^d mod N, for any non-negative c.
func (l *Local) Decrypt(c *big.Int) *big.Int {
	return l.decrypt(c).Big()
}

// Query reports whether c decrypts to a value below B.
func (l *Local) Query(c *big.Int) bool {
	return l.decrypt(c).Big().Cmp(l.b) < 0
}

// OAEP is the oracle of Manger's article: a decryptor that lets us know
// whether the first byte of the k-byte encoded message is zero before it
// goes on checking the rest of the padding.
// For N a whole number of bytes, em[0] == 0 is exactly m < B.
type OAEP struct {
	local *Local
	k     int
}

// NewOAEP returns the leading zero byte oracle for priv.
func NewOAEP(priv *rsa.PrivateKey) (*OAEP, error) {
	if priv.N.BitLen()%8 != 0 {
		return nil, fmt.Errorf("oracle: modulus of %d bits is not a whole number of bytes", priv.N.BitLen())
	}
	local, err := NewLocalFromKey(priv)
	if err != nil {
		return nil, err
	}
	return &OAEP{local: local, k: priv.Size()}, nil
}

// Query reports whether the encoded message behind c starts with a zero byte.
func (o *OAEP) Query(c *big.Int) bool {
	em := oaep.LeftPad(o.local.Decrypt(c).Bytes(), o.k)
	return em[0] == 0
}
