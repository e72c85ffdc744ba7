// Package metrics keeps lightweight in-process counters exposed on an
// operator endpoint. Nothing here is persisted.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

type Registry struct {
	startedAt time.Time

	requestsTotal   atomic.Int64
	responses2xx    atomic.Int64
	responses4xx    atomic.Int64
	responses5xx    atomic.Int64
	authFailures    atomic.Int64
	rateLimited     atomic.Int64
	panicsRecovered atomic.Int64

	mu      sync.Mutex
	byRoute map[string]int64
}

func New() *Registry {
	return &Registry{
		startedAt: time.Now(),
		byRoute:   map[string]int64{},
	}
}

func (r *Registry) ObserveRequest(route string, status int) {
	r.requestsTotal.Add(1)
	switch {
	case status >= 500:
		r.responses5xx.Add(1)
	case status >= 400:
		r.responses4xx.Add(1)
	default:
		r.responses2xx.Add(1)
	}

	r.mu.Lock()
	r.byRoute[route]++
	r.mu.Unlock()
}

func (r *Registry) AuthFailure()    { r.authFailures.Add(1) }
func (r *Registry) RateLimited()    { r.rateLimited.Add(1) }
func (r *Registry) PanicRecovered() { r.panicsRecovered.Add(1) }

type Snapshot struct {
	UptimeSeconds   int64            `json:"uptimeSeconds"`
	RequestsTotal   int64            `json:"requestsTotal"`
	Responses2xx    int64            `json:"responses2xx"`
	Responses4xx    int64            `json:"responses4xx"`
	Responses5xx    int64            `json:"responses5xx"`
	AuthFailures    int64            `json:"authFailures"`
	RateLimited     int64            `json:"rateLimited"`
	PanicsRecovered int64            `json:"panicsRecovered"`
	ByRoute         map[string]int64 `json:"byRoute"`
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	byRoute := make(map[string]int64, len(r.byRoute))
	for route, count := range r.byRoute {
		byRoute[route] = count
	}
	r.mu.Unlock()

	return Snapshot{
		UptimeSeconds:   int64(time.Since(r.startedAt).Seconds()),
		RequestsTotal:   r.requestsTotal.Load(),
		Responses2xx:    r.responses2xx.Load(),
		Responses4xx:    r.responses4xx.Load(),
		Responses5xx:    r.responses5xx.Load(),
		AuthFailures:    r.authFailures.Load(),
		RateLimited:     r.rateLimited.Load(),
		PanicsRecovered: r.panicsRecovered.Load(),
		ByRoute:         byRoute,
	}
}
