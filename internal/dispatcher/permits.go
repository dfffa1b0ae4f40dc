package dispatcher

import (
	"context"
	"sync"
)

// permitPool is a counting semaphore whose limit can change while waiters are
// blocked. A resize or release closes the current wait channel, waking every
// waiter to re-check the limit.
type permitPool struct {
	mu     sync.Mutex
	limit  int
	active int
	waitCh chan struct{}
}

func newPermitPool(limit int) *permitPool {
	if limit < 1 {
		limit = 1
	}
	return &permitPool{limit: limit}
}

// Acquire blocks until a permit is available or the context ends.
func (p *permitPool) Acquire(ctx context.Context) error {
	for {
		p.mu.Lock()
		if p.active < p.limit {
			p.active++
			p.mu.Unlock()
			return nil
		}
		if p.waitCh == nil {
			p.waitCh = make(chan struct{})
		}
		wait := p.waitCh
		p.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// Release returns a permit and wakes blocked waiters.
func (p *permitPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active > 0 {
		p.active--
	}
	p.wakeLocked()
}

// Resize changes the limit. Shrinking never interrupts holders; the pool just
// stops admitting until enough permits are returned.
func (p *permitPool) Resize(limit int) {
	if limit < 1 {
		limit = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = limit
	p.wakeLocked()
}

// Limit reports the current permit ceiling.
func (p *permitPool) Limit() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.limit
}

// Active reports how many permits are held.
func (p *permitPool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *permitPool) wakeLocked() {
	if p.waitCh != nil {
		close(p.waitCh)
		p.waitCh = nil
	}
}
