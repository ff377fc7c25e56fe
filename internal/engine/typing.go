package engine

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// limiterPool holds one typing limiter per conversation.
type limiterPool struct {
	mu       sync.Mutex
	m        map[string]*rate.Limiter
	interval time.Duration
}

func newLimiterPool(interval time.Duration) *limiterPool {
	return &limiterPool{m: make(map[string]*rate.Limiter), interval: interval}
}

func (p *limiterPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(p.interval), 1)
	p.m[key] = l
	return l
}

func (p *limiterPool) Allow(key string) bool {
	return p.get(key).Allow()
}

// Reset lets the next Allow for key through immediately.
func (p *limiterPool) Reset(key string) {
	p.mu.Lock()
	delete(p.m, key)
	p.mu.Unlock()
}
