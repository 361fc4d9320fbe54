package observability

import (
	"context"
	"sync"
	"time"
)

type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck is a named dependency probe. A failing non-critical check
// degrades the report without making the service unready.
type HealthCheck struct {
	Name      string
	CheckFunc func(context.Context) error
	Timeout   time.Duration
	Critical  bool
}

type CheckResult struct {
	Name     string
	Status   HealthStatus
	Critical bool
	Message  string
	Duration time.Duration
}

type HealthReport struct {
	Status HealthStatus
	Checks []CheckResult
}

// Ready reports whether every critical check passed.
func (r HealthReport) Ready() bool {
	return r.Status != HealthStatusUnhealthy
}

type HealthChecker struct {
	mu     sync.RWMutex
	checks []*HealthCheck
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// RegisterCheck adds a check; registering a name twice replaces the first.
func (hc *HealthChecker) RegisterCheck(check *HealthCheck) {
	if check.Timeout == 0 {
		check.Timeout = 2 * time.Second
	}
	hc.mu.Lock()
	defer hc.mu.Unlock()
	for i, existing := range hc.checks {
		if existing.Name == check.Name {
			hc.checks[i] = check
			return
		}
	}
	hc.checks = append(hc.checks, check)
}

// Check runs all checks concurrently and reports them in registration order.
func (hc *HealthChecker) Check(ctx context.Context) HealthReport {
	hc.mu.RLock()
	checks := append([]*HealthCheck(nil), hc.checks...)
	hc.mu.RUnlock()

	results := make([]CheckResult, len(checks))
	var wg sync.WaitGroup
	for i, check := range checks {
		wg.Add(1)
		go func(i int, check *HealthCheck) {
			defer wg.Done()
			results[i] = performCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	overall := HealthStatusHealthy
	for _, r := range results {
		switch {
		case r.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case r.Status == HealthStatusDegraded && overall == HealthStatusHealthy:
			overall = HealthStatusDegraded
		}
	}
	return HealthReport{Status: overall, Checks: results}
}

func performCheck(ctx context.Context, check *HealthCheck) CheckResult {
	start := time.Now()

	checkCtx, cancel := context.WithTimeout(ctx, check.Timeout)
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		errChan <- check.CheckFunc(checkCtx)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-checkCtx.Done():
		err = checkCtx.Err()
	}

	result := CheckResult{
		Name:     check.Name,
		Status:   HealthStatusHealthy,
		Critical: check.Critical,
		Message:  "OK",
		Duration: time.Since(start),
	}
	if err != nil {
		result.Status = HealthStatusDegraded
		if check.Critical {
			result.Status = HealthStatusUnhealthy
		}
		result.Message = err.Error()
	}
	return result
}
