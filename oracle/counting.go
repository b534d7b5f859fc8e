package oracle

import (
	"math/big"
	"sync/atomic"

	"git.kudelski.com/go-manger-attack/mangerattack"
)

// Counting wraps an oracle and counts the calls made to it, independently
// of the attack's own counters.
type Counting struct {
	Oracle mangerattack.Oracle

	calls atomic.Uint64
	trues atomic.Uint64
}

// Query forwards to the wrapped oracle.
func (c *Counting) Query(ciphertext *big.Int) bool {
	c.calls.Add(1)
	ok := c.Oracle.Query(ciphertext)
	if ok {
		c.trues.Add(1)
	}
	return ok
}

// Calls is the number of queries seen.
func (c *Counting) Calls() uint64 { return c.calls.Load() }

// Trues is the number of queries answered true.
func (c *Counting) Trues() uint64 { return c.trues.Load() }
