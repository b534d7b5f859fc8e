package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"time"

	"git.kudelski.com/go-manger-attack/mangerattack"
	"git.kudelski.com/go-manger-attack/oracle"
)

func main() {
	var (
		nHex    = flag.String("n", "", "RSA modulus N, hexadecimal")
		eHex    = flag.String("e", "10001", "RSA public exponent e, hexadecimal")
		cHex    = flag.String("c", "", "ciphertext to decrypt, hexadecimal")
		dHex    = flag.String("d", "", "private exponent d, hexadecimal, used to simulate the oracle locally")
		demo    = flag.Int("demo", 0, "generate a key of this many bits, OAEP encrypt a message and attack it")
		every   = flag.Uint64("every", 100, "log progress every that many queries with -v")
		timeout = flag.Duration("timeout", 0, "abort the attack after this long, 0 for no limit")
		verbose = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx := context.Background()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	var err error
	if *demo > 0 {
		err = runDemo(ctx, logger, *demo, *every)
	} else {
		err = run(ctx, logger, *nHex, *eHex, *cHex, *dHex, *every)
	}
	if err != nil {
		logger.Error("attack failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, nHex, eHex, cHex, dHex string, every uint64) error {
	if nHex == "" || cHex == "" || dHex == "" {
		flag.Usage()
		return errors.New("-n, -c and -d are required outside of -demo")
	}
	N, err := mangerattack.ParseHex(nHex)
	if err != nil {
		return fmt.Errorf("-n: %w", err)
	}
	e, err := mangerattack.ParseHex(eHex)
	if err != nil {
		return fmt.Errorf("-e: %w", err)
	}
	c, err := mangerattack.ParseHex(cHex)
	if err != nil {
		return fmt.Errorf("-c: %w", err)
	}
	d, err := mangerattack.ParseHex(dHex)
	if err != nil {
		return fmt.Errorf("-d: %w", err)
	}

	o, err := oracle.NewLocal(N, d)
	if err != nil {
		return err
	}
	res, err := attack(ctx, logger, N, e, c, o, every)
	if res != nil {
		fmt.Printf("plaintext: %x\n", res.Plaintext)
	}
	return err
}

// attack runs the attack, logging progress every that many queries or
// whenever the narrowing interval loses a bit.
func attack(ctx context.Context, logger *slog.Logger, N, e, c *big.Int, o mangerattack.Oracle, every uint64) (*mangerattack.Result, error) {
	lastBits := -1
	progress := func(p mangerattack.Progress) {
		if (every > 0 && p.Queries%every == 0) || (p.Phase == mangerattack.PhaseNarrowing && p.IntervalBits() != lastBits) {
			logger.Debug("progress", "phase", p.Phase, "queries", p.Queries,
				"valid_queries", p.ValidQueries, "interval_bits", p.IntervalBits())
			lastBits = p.IntervalBits()
		}
	}

	start := time.Now()
	res, err := mangerattack.Attack(ctx, N, e, c, o,
		mangerattack.WithLogger(logger), mangerattack.WithProgress(progress))
	if res != nil {
		logger.Info("done", "verified", res.Verified, "queries", res.Queries,
			"valid_queries", res.ValidQueries, "blinding_factor", res.BlindingFactor,
			"elapsed", time.Since(start))
	}
	return res, err
}
