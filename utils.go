package main

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"math/big"

	"git.kudelski.com/go-manger-attack/oaep"
	"git.kudelski.com/go-manger-attack/oracle"
)

const demoMessage = "Very secret message nobody can decrypt? At least without the private key?"

// runDemo generates a key, encrypts demoMessage with OAEP under it and
// recovers it through the leading zero byte oracle.
func runDemo(ctx context.Context, logger *slog.Logger, bits int, every uint64) error {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return err
	}
	logger.Info("key generated", "bits", key.N.BitLen(), "n", fmt.Sprintf("%x", key.N), "e", key.E)

	label := []byte("")
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &key.PublicKey, []byte(demoMessage), label)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}
	// Since encryption is a randomized function, ciphertext will be
	// different each time.
	logger.Info("message encrypted", "ciphertext", fmt.Sprintf("%x", ciphertext))

	o, err := oracle.NewOAEP(key)
	if err != nil {
		return err
	}
	res, err := attack(ctx, logger, key.N, big.NewInt(int64(key.E)), new(big.Int).SetBytes(ciphertext), o, every)
	if err != nil {
		return err
	}

	// We now have found the encoded message, we can unpad it:
	recovered, err := oaep.Unpad(key.Size(), res.Plaintext, sha256.New(), label)
	if err != nil {
		return err
	}
	fmt.Printf("And we have recovered:\n\t\t%q\n", recovered)
	return nil
}
