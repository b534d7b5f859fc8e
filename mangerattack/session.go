package mangerattack

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync/atomic"
)

// Phase identifies a step of the attack, numbered as in Manger's article,
// with the blinding done before step 1 being phase 0.
type Phase int

const (
	PhaseBlinding Phase = iota
	PhaseExponentialSearch
	PhaseBisection
	PhaseNarrowing
)

func (p Phase) String() string {
	switch p {
	case PhaseBlinding:
		return "blinding"
	case PhaseExponentialSearch:
		return "exponential-search"
	case PhaseBisection:
		return "bisection"
	case PhaseNarrowing:
		return "narrowing"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Progress is a snapshot handed to the progress callback after every oracle query.
type Progress struct {
	Phase        Phase
	Queries      uint64
	ValidQueries uint64
	// Interval is mmax-mmin, only set during PhaseNarrowing.
	Interval *big.Int
}

// IntervalBits is the bit length of the current interval width, 0 outside
// of the narrowing phase.
func (p Progress) IntervalBits() int {
	if p.Interval == nil {
		return 0
	}
	return p.Interval.BitLen()
}

// Session holds everything one attack run needs: the public key, the
// threshold B derived from it, the oracle and the query counters.
// A Session runs one attack at a time; create one per concurrent run.
type Session struct {
	N *big.Int
	E *big.Int
	B *big.Int

	oracle   Oracle
	logger   *slog.Logger
	progress func(Progress)

	// written by the attack only, readable from any goroutine
	queries      atomic.Uint64
	validQueries atomic.Uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger receiving per-phase records. The default
// logger discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithProgress registers fn to be called synchronously after each oracle query.
func WithProgress(fn func(Progress)) Option {
	return func(s *Session) {
		s.progress = fn
	}
}

// NewSession validates the public key and prepares an attack against it.
func NewSession(N, e *big.Int, oracle Oracle, opts ...Option) (*Session, error) {
	B, err := Threshold(N)
	if err != nil {
		return nil, err
	}
	if e == nil || e.Sign() <= 0 {
		return nil, ErrInvalidExponent
	}
	if oracle == nil {
		return nil, fmt.Errorf("nil oracle")
	}
	// Sanity check: we assume that 2B < N
	if new(big.Int).Mul(two, B).Cmp(N) >= 0 {
		return nil, fmt.Errorf("unsupported case 2B >= N: %w", ErrModulusTooSmall)
	}

	s := &Session{
		N:      new(big.Int).Set(N),
		E:      new(big.Int).Set(e),
		B:      B,
		oracle: oracle,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Queries returns how many times the oracle has been queried so far.
func (s *Session) Queries() uint64 {
	return s.queries.Load()
}

// ValidQueries returns how many oracle queries answered true so far.
func (s *Session) ValidQueries() uint64 {
	return s.validQueries.Load()
}

func (s *Session) resetCounters() {
	s.queries.Store(0)
	s.validQueries.Store(0)
}

func (s *Session) report(phase Phase, interval *big.Int) {
	if s.progress == nil {
		return
	}
	p := Progress{
		Phase:        phase,
		Queries:      s.Queries(),
		ValidQueries: s.ValidQueries(),
	}
	if interval != nil {
		p.Interval = new(big.Int).Set(interval)
	}
	s.progress(p)
}
