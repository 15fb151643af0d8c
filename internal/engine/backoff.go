package engine

import (
	"sync"
	"time"

	"github.com/takuyadev/amazon-price-watcher/internal/models"
)

const (
	defaultBackoffBase = 30 * time.Second
	defaultBackoffCap  = 30 * time.Minute
)

type backoffState struct {
	strikes int
	until   time.Time
}

// Backoff keeps per-ASIN escalation state for blocked products. Each
// blocked cycle doubles the wait up to the cap; any successful fetch
// resets the ASIN. Timeouts and other failures do not escalate.
type Backoff struct {
	mu    sync.Mutex
	state map[models.ASIN]*backoffState

	base time.Duration
	cap  time.Duration
	now  func() time.Time
}

func NewBackoff() *Backoff {
	return &Backoff{
		state: make(map[models.ASIN]*backoffState),
		base:  defaultBackoffBase,
		cap:   defaultBackoffCap,
		now:   time.Now,
	}
}

// Ready reports whether the ASIN may be fetched now.
func (b *Backoff) Ready(asin models.ASIN) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[asin]
	if !ok {
		return true
	}
	return !b.now().Before(st.until)
}

// RecordBlocked escalates the ASIN's wait: base on the first strike,
// doubling per strike, capped.
func (b *Backoff) RecordBlocked(asin models.ASIN) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.state[asin]
	if !ok {
		st = &backoffState{}
		b.state[asin] = st
	}

	delay := b.base << st.strikes
	if delay > b.cap || delay <= 0 {
		delay = b.cap
	}
	st.strikes++
	st.until = b.now().Add(delay)
	return delay
}

// RecordSuccess clears any escalation for the ASIN.
func (b *Backoff) RecordSuccess(asin models.ASIN) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, asin)
}
