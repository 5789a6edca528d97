package classify

import (
	"math/rand/v2"

	"github.com/rotisserie/eris"

	"github.com/TobiSchelling/reviewguard/internal/records"
)

// Sample picks min(n, len(rows)-start) rows from rows[start:] without
// replacement. The same seed always yields the same rows in the same order.
func Sample(rows []records.Row, start, n int, seed int64) ([]records.Row, error) {
	if start < 0 {
		start = 0
	}
	if len(rows) <= start {
		return nil, eris.Errorf("data has only %d rows; cannot start at %d", len(rows), start)
	}
	pool := rows[start:]
	if n > len(pool) {
		n = len(pool)
	}
	if n <= 0 {
		return nil, nil
	}

	r := rand.New(rand.NewPCG(uint64(seed), 0))
	perm := r.Perm(len(pool))
	out := make([]records.Row, n)
	for i := range n {
		out[i] = pool[perm[i]]
	}
	return out, nil
}
