package transport

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// nextBackoff returns a full-jitter delay for the given attempt:
// random in [0, min(cap, base*2^attempt)].
func nextBackoff(attempt int) time.Duration {
	ceiling := backoffCap
	if attempt < 10 {
		exp := backoffBase << uint(attempt)
		if exp < ceiling {
			ceiling = exp
		}
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
