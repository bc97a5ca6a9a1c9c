package loop

import "time"

// retryDelays is the fixed backoff progression from spec §4.8, applied
// between successive transport attempts. Only agenterr.KindTransport
// failures where no SSE byte was ever delivered are retried (see
// streamOnce); everything else aborts the turn on the first failure.
//
// Grounded on original_source/ai/client/request_builder.rs's retry
// schedule; the teacher's own internal/retry package (a generic
// exponential-backoff-with-jitter helper) was dropped in favor of this
// fixed table because the schedule here is specified exactly, not derived
// from a base/multiplier/jitter triple.
var retryDelays = []time.Duration{
	50 * time.Millisecond,
	100 * time.Millisecond,
	200 * time.Millisecond,
	400 * time.Millisecond,
	800 * time.Millisecond,
	1000 * time.Millisecond,
	1000 * time.Millisecond,
	1000 * time.Millisecond,
	1000 * time.Millisecond,
	1000 * time.Millisecond,
}

// maxTransportAttempts bounds the total number of HTTP attempts for one
// provider call (the initial attempt plus retries).
const maxTransportAttempts = 10

// retryDelay returns the backoff to wait after the given attempt has failed,
// before the next one (1-indexed: the delay waited before attempt 2 is
// retryDelay(1)).
func retryDelay(priorAttempt int) time.Duration {
	idx := priorAttempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(retryDelays) {
		idx = len(retryDelays) - 1
	}
	return retryDelays[idx]
}
