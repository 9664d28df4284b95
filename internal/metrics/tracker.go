// internal/metrics/tracker.go
package metrics

import (
	"math/big"
	"sync"
	"time"
)

// DefaultWindow is the number of samples retained for averages.
const DefaultWindow = 1000

// Snapshot is a point-in-time view of execution metrics.
type Snapshot struct {
	AvgExecutionTime time.Duration `json:"avg_execution_time"`
	SuccessRate      float64       `json:"success_rate"`
	TotalExecutions  int           `json:"total_executions"`
	Successful       int           `json:"successful"`
	Failed           int           `json:"failed"`
	AvgGasUsed       *big.Int      `json:"avg_gas_used"`
	LastUpdate       time.Time     `json:"last_update"`
}

// Observer receives every recorded execution, e.g. a Prometheus collector.
type Observer interface {
	ObserveExecution(latency time.Duration, success bool, gasUsed *big.Int)
	ResetExecutions()
}

// Tracker keeps rolling execution metrics. Latency and gas averages cover
// the most recent window samples; counters cover every execution.
type Tracker struct {
	mu         sync.Mutex
	latencies  *ring[time.Duration]
	gas        *ring[*big.Int]
	total      int
	successful int
	lastUpdate time.Time
	observer   Observer
	now        func() time.Time
}

// NewTracker creates a tracker with the given window. A nil observer is allowed.
func NewTracker(window int, observer Observer) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		latencies: newRing[time.Duration](window),
		gas:       newRing[*big.Int](window),
		observer:  observer,
		now:       time.Now,
	}
}

// Record adds one execution sample. gasUsed may be nil when the execution
// never reached a receipt.
func (t *Tracker) Record(latency time.Duration, success bool, gasUsed *big.Int) {
	t.mu.Lock()
	t.total++
	if success {
		t.successful++
	}
	t.latencies.push(latency)
	if gasUsed != nil {
		t.gas.push(new(big.Int).Set(gasUsed))
	}
	t.lastUpdate = t.now()
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.ObserveExecution(latency, success, gasUsed)
	}
}

// Snapshot returns the current metrics.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Snapshot{
		TotalExecutions: t.total,
		Successful:      t.successful,
		Failed:          t.total - t.successful,
		AvgGasUsed:      new(big.Int),
		LastUpdate:      t.lastUpdate,
	}
	if t.total > 0 {
		s.SuccessRate = float64(t.successful) / float64(t.total) * 100
	}

	if n := t.latencies.len(); n > 0 {
		var sum time.Duration
		t.latencies.each(func(d time.Duration) { sum += d })
		s.AvgExecutionTime = sum / time.Duration(n)
	}

	if n := t.gas.len(); n > 0 {
		sum := new(big.Int)
		t.gas.each(func(g *big.Int) { sum.Add(sum, g) })
		s.AvgGasUsed = sum.Div(sum, big.NewInt(int64(n)))
	}
	return s
}

// Reset clears all samples and counters.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.latencies.clear()
	t.gas.clear()
	t.total = 0
	t.successful = 0
	t.lastUpdate = t.now()
	t.mu.Unlock()

	if t.observer != nil {
		t.observer.ResetExecutions()
	}
}

// ring is a fixed-capacity FIFO that overwrites its oldest element.
type ring[T any] struct {
	buf   []T
	start int
	size  int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring[T]) len() int { return r.size }

func (r *ring[T]) each(fn func(T)) {
	for i := 0; i < r.size; i++ {
		fn(r.buf[(r.start+i)%len(r.buf)])
	}
}

func (r *ring[T]) clear() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.start, r.size = 0, 0
}
