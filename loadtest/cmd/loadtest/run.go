package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/nestmate/roommates/loadtest/client"
	"github.com/nestmate/roommates/loadtest/stats"
)

// options are the flags shared by every scenario.
type options struct {
	url            string
	users          []string
	owner          string
	workers        int
	duration       time.Duration
	timeout        time.Duration
	metricsURL     string
	scrapeInterval time.Duration
	seed           int64
}

func parseOptions(name string, args []string) options {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	url := fs.String("url", "http://localhost:8080", "API base URL")
	users := fs.String("users", "maya,jonas,priya,leo,sam,ines", "Comma-separated tenant ids to act as")
	owner := fs.String("owner", "olga", "Owner id for group queries")
	workers := fs.Int("workers", 32, "Concurrent workers")
	duration := fs.Duration("duration", 30*time.Second, "Test duration")
	timeout := fs.Duration("timeout", 5*time.Second, "Per-request timeout")
	metricsURL := fs.String("metrics-url", "http://localhost:9091/metrics", "Matcher Prometheus endpoint")
	scrapeInterval := fs.Duration("scrape-interval", 2*time.Second, "Interval between metrics scrapes")
	seed := fs.Int64("seed", 42, "RNG seed (deterministic)")
	fs.Parse(args)

	var ids []string
	for _, id := range strings.Split(*users, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) < 2 {
		fmt.Println("need at least two -users")
		ids = []string{"maya", "jonas"}
	}

	return options{
		url:            strings.TrimRight(*url, "/"),
		users:          ids,
		owner:          *owner,
		workers:        max(*workers, 1),
		duration:       *duration,
		timeout:        *timeout,
		metricsURL:     *metricsURL,
		scrapeInterval: *scrapeInterval,
		seed:           *seed,
	}
}

// operation performs one request and returns its label and HTTP status.
type operation func(ctx context.Context, c *client.Client, r *rand.Rand) (string, int, error)

func runQuery(args []string) {
	opts := parseOptions("query", args)
	run("query", opts, func(ctx context.Context, c *client.Client, r *rand.Rand) (string, int, error) {
		switch n := r.Intn(10); {
		case n < 5:
			status, err := c.Feed(ctx, pick(r, opts.users), 20)
			return "feed", status, err
		case n < 8:
			a, b := pickPair(r, opts.users)
			status, err := c.Score(ctx, a, b)
			return "score", status, err
		default:
			status, err := c.Groups(ctx, opts.owner)
			return "groups", status, err
		}
	})
}

func runInterest(args []string) {
	opts := parseOptions("interest", args)
	run("interest", opts, func(ctx context.Context, c *client.Client, r *rand.Rand) (string, int, error) {
		a, b := pickPair(r, opts.users)
		status, err := c.Interest(ctx, a, b)
		return "interest", status, err
	})
}

// run drives op from opts.workers goroutines until opts.duration elapses
// or the process is interrupted, then prints the report.
func run(name string, opts options, op operation) {
	fmt.Printf("%s test: %d workers for %s against %s (users=%d)\n",
		name, opts.workers, opts.duration, opts.url, len(opts.users))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.duration)
	defer cancel()

	collector := stats.NewCollector()
	scraper := stats.NewScraper(opts.metricsURL, opts.scrapeInterval)
	collector.SetScraper(scraper)
	scraper.Start(ctx)

	c := client.New(opts.url, opts.timeout)

	var wg sync.WaitGroup
	for w := 0; w < opts.workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(opts.seed + int64(w)))
			for ctx.Err() == nil {
				start := time.Now()
				label, status, err := op(ctx, c, r)
				if err != nil {
					if ctx.Err() == nil {
						collector.AddError()
					}
					continue
				}
				collector.AddRequest(label, time.Since(start), status)
			}
		}(w)
	}

	// Progress reporting every 2 seconds.
	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		last, lastTime := 0, time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				n := collector.RequestCount()
				fmt.Printf("  [%s] requests: %d  errors: %d  rate: %.1f req/s\n",
					name, n, collector.ErrorCount(), float64(n-last)/now.Sub(lastTime).Seconds())
				last, lastTime = n, now
			}
		}
	}()

	wg.Wait()
	scraper.Stop()
	collector.Report()
}

func pick(r *rand.Rand, ids []string) string {
	return ids[r.Intn(len(ids))]
}

// pickPair returns two distinct ids.
func pickPair(r *rand.Rand, ids []string) (string, string) {
	i := r.Intn(len(ids))
	j := r.Intn(len(ids) - 1)
	if j >= i {
		j++
	}
	return ids[i], ids[j]
}
