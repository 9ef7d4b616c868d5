package limiter

import (
	"context"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DomainLimiter keeps one token bucket per host.
type DomainLimiter struct {
	m     sync.Map // host -> *rate.Limiter
	rps   rate.Limit
	burst int
}

// NewDomainLimiter builds a limiter allowing rps requests per second per host.
// A negative rps disables limiting.
func NewDomainLimiter(rps float64, burst int) *DomainLimiter {
	if rps == 0 {
		rps = 2
	}
	if burst <= 0 {
		burst = 5
	}
	limit := rate.Limit(rps)
	if rps < 0 {
		limit = rate.Inf
	}
	return &DomainLimiter{
		rps:   limit,
		burst: burst,
	}
}

func (d *DomainLimiter) getLimiter(host string) *rate.Limiter {
	if v, ok := d.m.Load(host); ok {
		return v.(*rate.Limiter)
	}
	l := rate.NewLimiter(d.rps, d.burst)
	actual, _ := d.m.LoadOrStore(host, l)
	return actual.(*rate.Limiter)
}

// Wait blocks until a request to rawURL's host is allowed or ctx ends.
func (d *DomainLimiter) Wait(ctx context.Context, rawURL string) error {
	return d.getLimiter(hostOf(rawURL)).Wait(ctx)
}

func (d *DomainLimiter) Allow(rawURL string) bool {
	return d.getLimiter(hostOf(rawURL)).Allow()
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}
	return u.Hostname()
}

// Jitter yields random delays in [Min, Max].
type Jitter struct {
	Min time.Duration
	Max time.Duration
}

func (j Jitter) Next() time.Duration {
	if j.Max <= j.Min {
		return j.Min
	}
	return j.Min + rand.N(j.Max-j.Min+1)
}

// Sleep suspends for the next jittered delay. It returns ctx.Err() if the
// context ends first.
func (j Jitter) Sleep(ctx context.Context) (time.Duration, error) {
	d := j.Next()
	if d <= 0 {
		return 0, ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return d, nil
	case <-ctx.Done():
		return d, ctx.Err()
	}
}
