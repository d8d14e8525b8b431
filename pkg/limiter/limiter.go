// Package limiter provides token-bucket rate limiting and concurrency
// caps for LLM API calls.
package limiter

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrRateLimit is returned when the per-minute token bucket is empty.
	ErrRateLimit = errors.New("rate limit exceeded")
	// ErrConcurrency is returned when too many calls are already in flight.
	ErrConcurrency = errors.New("concurrent call limit exceeded")
)

// Limiter enforces a tokens-per-minute bucket and an in-flight call cap
// for one model. A zero limit disables the corresponding check.
type Limiter struct {
	mu sync.Mutex

	maxTokensPerMinute int
	currentTokens      int
	lastRefill         time.Time

	maxConcurrent int
	inFlight      int
}

// New creates a limiter. The bucket starts full.
func New(maxTokensPerMinute, maxConcurrent int) *Limiter {
	return &Limiter{
		maxTokensPerMinute: maxTokensPerMinute,
		currentTokens:      maxTokensPerMinute,
		lastRefill:         time.Now(),
		maxConcurrent:      maxConcurrent,
	}
}

// Reserve takes tokens from the bucket, refilling for elapsed minutes
// first. Callers should reserve their estimated request size before
// issuing the call.
func (l *Limiter) Reserve(tokens int) error {
	if l.maxTokensPerMinute <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillTokens()
	if l.currentTokens < tokens {
		return ErrRateLimit
	}
	l.currentTokens -= tokens
	return nil
}

// Acquire claims an in-flight call slot. Pair with Release.
func (l *Limiter) Acquire() error {
	if l.maxConcurrent <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight >= l.maxConcurrent {
		return ErrConcurrency
	}
	l.inFlight++
	return nil
}

// Release frees an in-flight call slot.
func (l *Limiter) Release() {
	if l.maxConcurrent <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inFlight > 0 {
		l.inFlight--
	}
}

// Status reports the remaining bucket tokens and in-flight calls.
func (l *Limiter) Status() (tokens, inFlight int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refillTokens()
	return l.currentTokens, l.inFlight
}

func (l *Limiter) refillTokens() {
	now := time.Now()
	elapsed := now.Sub(l.lastRefill)
	if elapsed < time.Minute {
		return
	}

	minutes := int(elapsed / time.Minute)
	l.currentTokens += minutes * l.maxTokensPerMinute
	if l.currentTokens > l.maxTokensPerMinute {
		l.currentTokens = l.maxTokensPerMinute
	}
	// Advance by whole minutes so partial intervals keep accruing.
	l.lastRefill = l.lastRefill.Add(time.Duration(minutes) * time.Minute)
}
