package unsub

import (
	"context"
	"sync"
	"time"
)

// MinRateDelay is the smallest allowed gap between two external requests.
const MinRateDelay = 2 * time.Second

// Pacer spaces out external requests. Every HTTP request and page load of a
// batch calls Wait before it starts and Done once it has finished, so the
// interval is kept between the end of one request and the start of the next.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewPacer returns a pacer with the given interval, raised to MinRateDelay
// when lower.
func NewPacer(interval time.Duration) *Pacer {
	if interval < MinRateDelay {
		interval = MinRateDelay
	}
	return newPacer(interval)
}

func newPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, now: time.Now, sleep: sleepCtx}
}

// Interval returns the enforced gap.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Wait blocks until interval has passed since the previous request, or ctx
// is done. A request still in flight counts from its start until Done is
// called.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.last.IsZero() {
		if wait := p.interval - p.now().Sub(p.last); wait > 0 {
			if err := p.sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
	p.last = p.now()
	return nil
}

// Done marks the end of the request admitted by the last Wait.
func (p *Pacer) Done() {
	p.mu.Lock()
	p.last = p.now()
	p.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
