// Package stats provides a goroutine-safe metrics collector that aggregates
// performance data from many load test workers and prints a summary report
// with percentile distributions.
package stats

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Collector aggregates request results from multiple workers. All methods
// are goroutine-safe.
type Collector struct {
	mu        sync.Mutex
	latencies map[string][]time.Duration // by operation
	statuses  map[int]int
	requests  int
	errors    int
	startTime time.Time
	scraper   *Scraper
}

// NewCollector creates a new Collector with the start time set to now.
func NewCollector() *Collector {
	return &Collector{
		latencies: make(map[string][]time.Duration),
		statuses:  make(map[int]int),
		startTime: time.Now(),
	}
}

// SetScraper attaches a Prometheus metrics scraper to this collector. When set,
// Report() will also print server-side metrics collected by the scraper.
func (c *Collector) SetScraper(s *Scraper) {
	c.mu.Lock()
	c.scraper = s
	c.mu.Unlock()
}

// AddRequest records one completed request. Statuses of 500 and above also
// count as errors.
func (c *Collector) AddRequest(op string, d time.Duration, status int) {
	c.mu.Lock()
	c.latencies[op] = append(c.latencies[op], d)
	c.statuses[status]++
	c.requests++
	if status >= 500 {
		c.errors++
	}
	c.mu.Unlock()
}

// AddError records a request that failed before a response arrived.
func (c *Collector) AddError() {
	c.mu.Lock()
	c.requests++
	c.errors++
	c.mu.Unlock()
}

// RequestCount returns the number of recorded requests.
func (c *Collector) RequestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requests
}

// ErrorCount returns the current number of recorded errors.
func (c *Collector) ErrorCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errors
}

// Report prints a formatted summary: duration, throughput, status counts
// and per-operation latency percentiles.
func (c *Collector) Report() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.startTime)

	fmt.Println("\n=== Load Test Results ===")
	fmt.Printf("Duration:     %s\n", elapsed.Round(time.Second))
	fmt.Printf("Requests:     %d\n", c.requests)
	fmt.Printf("Errors:       %d\n", c.errors)
	if elapsed > 0 {
		fmt.Printf("Throughput:   %.1f req/s\n", float64(c.requests)/elapsed.Seconds())
	}
	if c.requests > 0 {
		fmt.Printf("Error rate:   %.2f%%\n", float64(c.errors)/float64(c.requests)*100)
	}

	if len(c.statuses) > 0 {
		codes := make([]int, 0, len(c.statuses))
		for code := range c.statuses {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		fmt.Println("\n--- Status Codes ---")
		for _, code := range codes {
			fmt.Printf("  %d: %d\n", code, c.statuses[code])
		}
	}

	ops := make([]string, 0, len(c.latencies))
	for op := range c.latencies {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		fmt.Printf("\n--- %s Latency ---\n", op)
		printPercentiles(c.latencies[op])
	}

	if c.scraper != nil {
		c.scraper.Report()
	}

	fmt.Println()
}

// Summary holds the latency distribution of one operation.
type Summary struct {
	N                       int
	Avg, P50, P95, P99, Max time.Duration
}

// Summarize sorts durations in place and computes their distribution.
func Summarize(durations []time.Duration) Summary {
	n := len(durations)
	if n == 0 {
		return Summary{}
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}
	return Summary{
		N:   n,
		Avg: sum / time.Duration(n),
		P50: durations[n/2],
		P95: durations[int(math.Ceil(float64(n)*0.95))-1],
		P99: durations[int(math.Ceil(float64(n)*0.99))-1],
		Max: durations[n-1],
	}
}

func printPercentiles(durations []time.Duration) {
	s := Summarize(durations)
	fmt.Printf("  avg: %v  p50: %v  p95: %v  p99: %v  max: %v  (n=%d)\n",
		s.Avg.Round(time.Microsecond),
		s.P50.Round(time.Microsecond),
		s.P95.Round(time.Microsecond),
		s.P99.Round(time.Microsecond),
		s.Max.Round(time.Microsecond),
		s.N,
	)
}
