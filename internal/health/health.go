package health

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type Checker interface {
	Check(ctx context.Context) CheckResult
}

// CheckerFunc adapts a named ping function to Checker.
type CheckerFunc struct {
	Name string
	Fn   func(ctx context.Context) error
}

func (c CheckerFunc) Check(ctx context.Context) CheckResult {
	if err := c.Fn(ctx); err != nil {
		return CheckResult{Name: c.Name, Healthy: false, Error: err.Error()}
	}
	return CheckResult{Name: c.Name, Healthy: true}
}

// ProbeRunner runs readiness checks concurrently, each bounded by timeout.
// Results are reused for cacheTTL so probe storms do not hammer the stores.
type ProbeRunner struct {
	timeout  time.Duration
	cacheTTL time.Duration
	checkers []Checker
	draining atomic.Bool

	mu       sync.Mutex
	cachedAt time.Time
	cached   []CheckResult
}

func NewProbeRunner(timeout, cacheTTL time.Duration, checkers ...Checker) *ProbeRunner {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ProbeRunner{timeout: timeout, cacheTTL: cacheTTL, checkers: checkers}
}

// MarkDraining makes every later Ready call fail so load balancers stop
// routing before the server shuts down.
func (p *ProbeRunner) MarkDraining() {
	p.draining.Store(true)
}

func (p *ProbeRunner) Ready(ctx context.Context) (bool, []CheckResult) {
	if p.draining.Load() {
		return false, []CheckResult{{Name: "server", Healthy: false, Error: "draining"}}
	}
	results := p.run(ctx)
	for _, r := range results {
		if !r.Healthy {
			return false, results
		}
	}
	return true, results
}

func (p *ProbeRunner) run(ctx context.Context) []CheckResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cacheTTL > 0 && p.cached != nil && time.Since(p.cachedAt) < p.cacheTTL {
		return append([]CheckResult(nil), p.cached...)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	results := make([]CheckResult, len(p.checkers))
	var wg sync.WaitGroup
	for i, c := range p.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = c.Check(ctx)
		}()
	}
	wg.Wait()

	p.cached = results
	p.cachedAt = time.Now()
	return append([]CheckResult(nil), results...)
}
