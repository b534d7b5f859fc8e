// This contains modified copies of some of the code from the Go crypto package
// all credits goes to The Go Authors, it follows a BSD-style licence that can
// be found in the GO_LICENSE file

// Package oaep turns an encoded message recovered by the attack back into
// the RSAES-OAEP payload it carries.
package oaep

import (
	"crypto/subtle"
	"errors"
	"hash"
	"math/big"
)

// ErrDecoding is returned when an encoded message is not valid OAEP.
var ErrDecoding = errors.New("oaep: decoding error")

// LeftPad returns a new slice of length size. The contents of input are right
// aligned in the new slice.
func LeftPad(input []byte, size int) (out []byte) {
	n := len(input)
	if n > size {
		n = size
	}
	out = make([]byte, size)
	copy(out[len(out)-n:], input)
	return
}

// incCounter increments a four byte, big-endian counter.
func incCounter(c *[4]byte) {
	if c[3]++; c[3] != 0 {
		return
	}
	if c[2]++; c[2] != 0 {
		return
	}
	if c[1]++; c[1] != 0 {
		return
	}
	c[0]++
}

// mgf1XOR XORs the bytes in out with a mask generated using the MGF1 function
// specified in PKCS #1 v2.1.
func mgf1XOR(out []byte, hash hash.Hash, seed []byte) {
	var counter [4]byte
	var digest []byte

	done := 0
	for done < len(out) {
		hash.Write(seed)
		hash.Write(counter[0:4])
		digest = hash.Sum(digest[:0])
		hash.Reset()

		for i := 0; i < len(digest) && done < len(out); i++ {
			out[done] ^= digest[i]
			done++
		}
		incCounter(&counter)
	}
}

// Unpad is the last part of the DecryptOAEP function, as it stands in the Go
// crypto/rsa package: we feed it with the integer value of an encoded message
// of k bytes and it strips the OAEP padding off it.
func Unpad(k int, paddedText *big.Int, hash hash.Hash, label []byte) ([]byte, error) {
	hash.Reset()
	if k < 2*hash.Size()+2 || paddedText.Sign() < 0 || (paddedText.BitLen()+7)/8 > k {
		return nil, ErrDecoding
	}
	hash.Write(label)
	lHash := hash.Sum(nil)
	hash.Reset()

	em := LeftPad(paddedText.Bytes(), k)
	firstByteIsZero := subtle.ConstantTimeByteEq(em[0], 0)
	seed := em[1 : hash.Size()+1]
	db := em[hash.Size()+1:]
	mgf1XOR(seed, hash, db)
	mgf1XOR(db, hash, seed)
	lHash2 := db[0:hash.Size()]
	lHash2Good := subtle.ConstantTimeCompare(lHash, lHash2)

	// The remainder of the plaintext must be zero or more 0x00, followed
	// by 0x01, followed by the message.
	var lookingForIndex, index, invalid int
	lookingForIndex = 1
	rest := db[hash.Size():]
	for i := 0; i < len(rest); i++ {
		equals0 := subtle.ConstantTimeByteEq(rest[i], 0)
		equals1 := subtle.ConstantTimeByteEq(rest[i], 1)
		index = subtle.ConstantTimeSelect(lookingForIndex&equals1, i, index)
		lookingForIndex = subtle.ConstantTimeSelect(equals1, 0, lookingForIndex)
		invalid = subtle.ConstantTimeSelect(lookingForIndex&^equals0, 1, invalid)
	}
	if firstByteIsZero&lHash2Good&^invalid&^lookingForIndex != 1 {
		return nil, ErrDecoding
	}

	return rest[index+1:], nil
}
