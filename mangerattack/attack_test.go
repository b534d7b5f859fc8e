package mangerattack_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "git.kudelski.com/go-manger-attack/mangerattack"
	"git.kudelski.com/go-manger-attack/oaep"
	"git.kudelski.com/go-manger-attack/oracle"
)

// The textbook toy key: N = 61*53, e*d = 1 mod 3120.
var (
	toyN = big.NewInt(3233)
	toyE = big.NewInt(17)
	toyD = big.NewInt(2753)
)

func encrypt(t *testing.T, m, e, N *big.Int) *big.Int {
	t.Helper()
	c, err := PowerMod(m, e, N)
	require.NoError(t, err)
	return c
}

// newKey generates an RSA triple whose modulus is the product of two bits/2 primes.
func newKey(t *testing.T, bits int) (N, e, d *big.Int) {
	t.Helper()
	e = big.NewInt(65537)
	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		require.NoError(t, err)
		q, err := rand.Prime(rand.Reader, bits/2)
		require.NoError(t, err)
		if p.Cmp(q) == 0 {
			continue
		}
		phi := new(big.Int).Mul(new(big.Int).Sub(p, big.NewInt(1)), new(big.Int).Sub(q, big.NewInt(1)))
		d, err = InverseMod(e, phi)
		if err != nil {
			continue
		}
		return new(big.Int).Mul(p, q), e, d
	}
}

func localOracle(t *testing.T, N, d *big.Int) *oracle.Counting {
	t.Helper()
	o, err := oracle.NewLocal(N, d)
	require.NoError(t, err)
	return &oracle.Counting{Oracle: o}
}

func TestToyModulus(t *testing.T) {
	c := encrypt(t, big.NewInt(5), toyE, toyN)
	o := localOracle(t, toyN, toyD)

	res, err := Attack(context.Background(), toyN, toyE, c, o)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Plaintext.Int64())
	assert.True(t, res.Verified)
	assert.Equal(t, int64(1), res.BlindingFactor.Int64())
	// 1 query to see 5 < 16, 2 for step 1 and f2 going from 406 to 648 by 2
	assert.Equal(t, uint64(125), res.Queries)
	assert.Equal(t, uint64(3), res.ValidQueries)
	assert.Equal(t, [4]int{1, 2, 122, 0}, res.Steps)
	assert.Equal(t, res.Queries, o.Calls())
}

func TestToyModulusWithBlinding(t *testing.T) {
	c := encrypt(t, big.NewInt(100), toyE, toyN)
	o := localOracle(t, toyN, toyD)

	res, err := Attack(context.Background(), toyN, toyE, c, o)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.Plaintext.Int64())
	assert.True(t, res.Verified)
	// 97*100 = 3*3233 + 1 is the first multiple landing below 16,
	// fx = 53 and fx = 61 are skipped without a query
	assert.Equal(t, int64(97), res.BlindingFactor.Int64())
	assert.Equal(t, 95, res.Steps[PhaseBlinding])
	assert.Equal(t, uint64(302), res.Queries)
	assert.Equal(t, uint64(5), res.ValidQueries)
}

// Plaintexts that are multiples of 61 or 53 share a factor with N, and so
// does their ciphertext.
func TestSharedFactorPlaintexts(t *testing.T) {
	for _, m := range []int64{61, 53, 122, 106, 52 * 61, 60 * 53} {
		c := encrypt(t, big.NewInt(m), toyE, toyN)
		o := localOracle(t, toyN, toyD)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		res, err := Attack(ctx, toyN, toyE, c, o)
		cancel()
		require.NoError(t, err, "m = %d", m)
		assert.Equal(t, m, res.Plaintext.Int64())
		assert.True(t, res.Verified)
		assert.Equal(t, uint64(0), res.Queries)
		assert.Equal(t, uint64(0), o.Calls())
	}
}

func TestToyModulusEveryPlaintext(t *testing.T) {
	o := localOracle(t, toyN, toyD)
	s, err := NewSession(toyN, toyE, o)
	require.NoError(t, err)

	for m := int64(0); m < toyN.Int64(); m++ {
		res, err := s.Attack(context.Background(), encrypt(t, big.NewInt(m), toyE, toyN))
		require.NoError(t, err, "m = %d", m)
		require.Equal(t, m, res.Plaintext.Int64())
		inv, err := InverseMod(res.BlindingFactor, toyN)
		require.NoError(t, err, "m = %d, fx = %s", m, res.BlindingFactor)
		require.NotNil(t, inv)
	}
}

// N = 251*241: for m = 3264 the first fx landing below B is 241, a factor
// of N, and the next coprime one is 278.
func TestBlindingSkipsFactorsOfN(t *testing.T) {
	N := big.NewInt(60491)
	e := big.NewInt(7)
	d, err := InverseMod(e, big.NewInt(250*240))
	require.NoError(t, err)

	for _, m := range []int64{3264, 703, 1951} {
		res, err := Attack(context.Background(), N, e, encrypt(t, big.NewInt(m), e, N), localOracle(t, N, d))
		require.NoError(t, err, "m = %d", m)
		assert.Equal(t, m, res.Plaintext.Int64())
		assert.True(t, res.Verified)
		assert.Equal(t, int64(1), new(big.Int).GCD(nil, nil, res.BlindingFactor, N).Int64())
		if m == 3264 {
			assert.Equal(t, int64(278), res.BlindingFactor.Int64())
		}
	}

	if testing.Short() {
		t.Skip("skipping plaintext sweep in short mode")
	}
	s, err := NewSession(N, e, localOracle(t, N, d))
	require.NoError(t, err)
	for m := int64(0); m < N.Int64(); m += 13 {
		res, err := s.Attack(context.Background(), encrypt(t, big.NewInt(m), e, N))
		require.NoError(t, err, "m = %d", m)
		require.Equal(t, m, res.Plaintext.Int64())
	}
}

func TestOracleAlwaysAnswering(t *testing.T) {
	c := encrypt(t, big.NewInt(100), toyE, toyN)

	// never below B: every fx coprime to 3233 is tried once, 60*52 of them
	never := &oracle.Counting{Oracle: OracleFunc(func(*big.Int) bool { return false })}
	_, err := Attack(context.Background(), toyN, toyE, c, never)
	assert.ErrorIs(t, err, ErrInconsistentOracle)
	assert.Equal(t, uint64(3120), never.Calls())

	// always below B: step 1 would double f1 forever
	always := &oracle.Counting{Oracle: OracleFunc(func(*big.Int) bool { return true })}
	_, err = Attack(context.Background(), toyN, toyE, c, always)
	assert.ErrorIs(t, err, ErrInconsistentOracle)
	// fx = 1, then f1 = 2, 4, ..., 2048
	assert.Equal(t, uint64(12), always.Calls())
}

func TestZeroCiphertext(t *testing.T) {
	o := localOracle(t, toyN, toyD)
	res, err := Attack(context.Background(), toyN, toyE, new(big.Int), o)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Plaintext.Sign())
	assert.True(t, res.Verified)
	assert.Equal(t, uint64(0), o.Calls())
}

func TestAttackRandomKeys(t *testing.T) {
	for k := 0; k < 2; k++ {
		N, e, d := newKey(t, 256)
		B, err := Threshold(N)
		require.NoError(t, err)

		messages := []*big.Int{big.NewInt(1), big.NewInt(2), new(big.Int).Sub(B, big.NewInt(1)), B}
		for n := 0; n < 4; n++ {
			m, err := rand.Int(rand.Reader, N)
			require.NoError(t, err)
			messages = append(messages, m)
		}

		for _, m := range messages {
			o := localOracle(t, N, d)
			s, err := NewSession(N, e, o)
			require.NoError(t, err)

			res, err := s.Attack(context.Background(), encrypt(t, m, e, N))
			require.NoError(t, err, "N=%s m=%s", N, m)
			assert.Equal(t, 0, m.Cmp(res.Plaintext), "N=%s: expected %s, got %s", N, m, res.Plaintext)
			assert.True(t, res.Verified)

			// Query-count invariant: k calls to the oracle, k counted.
			assert.Equal(t, o.Calls(), res.Queries)
			assert.Equal(t, o.Trues(), res.ValidQueries)
			assert.Equal(t, o.Calls(), s.Queries())
			sum := 0
			for _, steps := range res.Steps {
				sum += steps
			}
			assert.Equal(t, uint64(sum), res.Queries)
		}
	}
}

func TestNarrowingIntervalShrinks(t *testing.T) {
	N, e, d := newKey(t, 256)
	m, err := rand.Int(rand.Reader, N)
	require.NoError(t, err)

	var widths []*big.Int
	var last Progress
	progress := func(p Progress) {
		assert.Equal(t, last.Queries+1, p.Queries)
		assert.True(t, p.Phase >= last.Phase, "phase went back from %s to %s", last.Phase, p.Phase)
		last = p
		if p.Phase == PhaseNarrowing {
			require.NotNil(t, p.Interval)
			widths = append(widths, p.Interval)
		} else {
			assert.Nil(t, p.Interval)
			assert.Equal(t, 0, p.IntervalBits())
		}
	}

	res, err := Attack(context.Background(), N, e, encrypt(t, m, e, N), localOracle(t, N, d), WithProgress(progress))
	require.NoError(t, err)
	assert.Equal(t, 0, m.Cmp(res.Plaintext))

	require.NotEmpty(t, widths)
	assert.Len(t, widths, res.Steps[PhaseNarrowing])
	for i := 1; i < len(widths); i++ {
		assert.Equal(t, -1, widths[i].Cmp(widths[i-1]), "width %d did not shrink: %s -> %s", i, widths[i-1], widths[i])
	}
	assert.Equal(t, 0, widths[len(widths)-1].Sign())
	assert.Equal(t, res.Queries, last.Queries)
}

func TestAttackCancelled(t *testing.T) {
	N, e, d := newKey(t, 256)
	c := encrypt(t, big.NewInt(42), e, N)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	o := localOracle(t, N, d)
	_, err := Attack(ctx, N, e, c, o)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(0), o.Calls())

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	o = localOracle(t, N, d)
	stopAfter := func(p Progress) {
		if p.Queries == 10 {
			cancel()
		}
	}
	_, err = Attack(ctx, N, e, c, o, WithProgress(stopAfter))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, uint64(10), o.Calls())
}

// An oracle answering for another ciphertext makes the attack recover the
// other plaintext, which must be caught by the re-encryption check.
func TestVerificationFailure(t *testing.T) {
	c := encrypt(t, big.NewInt(5), toyE, toyN)
	other := encrypt(t, big.NewInt(100), toyE, toyN)
	cInv, err := InverseMod(c, toyN)
	require.NoError(t, err)
	shift := new(big.Int).Mul(cInv, other)

	local, err := oracle.NewLocal(toyN, toyD)
	require.NoError(t, err)
	lying := OracleFunc(func(x *big.Int) bool {
		y := new(big.Int).Mul(x, shift)
		return local.Query(y.Mod(y, toyN))
	})

	res, err := Attack(context.Background(), toyN, toyE, c, lying)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	require.NotNil(t, res)
	assert.False(t, res.Verified)
	assert.Equal(t, int64(100), res.Plaintext.Int64())
}

func TestInvalidInputs(t *testing.T) {
	o := OracleFunc(func(*big.Int) bool { return true })

	_, err := NewSession(big.NewInt(255), toyE, o)
	assert.ErrorIs(t, err, ErrModulusTooSmall)
	_, err = NewSession(new(big.Int), toyE, o)
	assert.ErrorIs(t, err, ErrInvalidModulus)
	_, err = NewSession(toyN, new(big.Int), o)
	assert.ErrorIs(t, err, ErrInvalidExponent)
	_, err = NewSession(toyN, toyE, nil)
	assert.Error(t, err)

	s, err := NewSession(toyN, toyE, o)
	require.NoError(t, err)
	assert.Equal(t, int64(16), s.B.Int64())
	_, err = s.Attack(context.Background(), toyN)
	assert.ErrorIs(t, err, ErrCiphertextRange)
	_, err = s.Attack(context.Background(), big.NewInt(-1))
	assert.ErrorIs(t, err, ErrCiphertextRange)
}

// This is Manger's original setting: an OAEP decryptor telling whether the
// first byte of the encoded message was zero.
func TestOAEPDecryptor(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping 1024 bit attack in short mode")
	}
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	secretMessage := []byte("Very secret message nobody can decrypt? At least without the private key?")
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &key.PublicKey, secretMessage, nil)
	require.NoError(t, err)

	o, err := oracle.NewOAEP(key)
	require.NoError(t, err)
	res, err := Attack(context.Background(), key.N, big.NewInt(int64(key.E)), new(big.Int).SetBytes(ciphertext), o)
	require.NoError(t, err)
	// an OAEP encoded message is always below B
	assert.Equal(t, int64(1), res.BlindingFactor.Int64())

	recovered, err := oaep.Unpad(key.Size(), res.Plaintext, sha256.New(), nil)
	require.NoError(t, err)
	assert.Equal(t, string(secretMessage), string(recovered))
}
