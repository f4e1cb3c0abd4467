package stats

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// sample is one line of the Prometheus text format.
type sample struct {
	name   string
	labels map[string]string
	value  float64
}

// subjectStats accumulates the matcher's per-subject series.
type subjectStats struct {
	ok, errors, limited float64
	latencySum          float64
	latencyCount        float64
}

func (s subjectStats) total() float64 { return s.ok + s.errors + s.limited }

// matcherSnapshot is the matcher's state at one scrape.
type matcherSnapshot struct {
	at            time.Time
	rosterSize    float64
	graphSize     float64
	mutualMatches float64
	subjects      map[string]subjectStats // by NATS subject
	groups        map[string]float64      // by group size
	invites       map[string]float64      // by action
	discoverySum  float64
	discoveryN    float64
}

func newMatcherSnapshot(at time.Time) matcherSnapshot {
	return matcherSnapshot{
		at:       at,
		subjects: make(map[string]subjectStats),
		groups:   make(map[string]float64),
		invites:  make(map[string]float64),
	}
}

// add folds one sample into the snapshot. Unknown series are ignored.
func (m *matcherSnapshot) add(s sample) {
	switch s.name {
	case "roommates_roster_size":
		m.rosterSize = s.value
	case "roommates_interest_graph_size":
		m.graphSize = s.value
	case "roommates_mutual_matches_total":
		m.mutualMatches = s.value
	case "roommates_groups_discovered_total":
		m.groups[s.labels["size"]] += s.value
	case "roommates_invites_total":
		m.invites[s.labels["action"]] += s.value
	case "roommates_discovery_duration_seconds_sum":
		m.discoverySum = s.value
	case "roommates_discovery_duration_seconds_count":
		m.discoveryN = s.value
	case "roommates_requests_total":
		st := m.subjects[s.labels["subject"]]
		switch s.labels["result"] {
		case "ok":
			st.ok += s.value
		case "limited":
			st.limited += s.value
		default:
			st.errors += s.value
		}
		m.subjects[s.labels["subject"]] = st
	case "roommates_request_latency_seconds_sum":
		st := m.subjects[s.labels["subject"]]
		st.latencySum += s.value
		m.subjects[s.labels["subject"]] = st
	case "roommates_request_latency_seconds_count":
		st := m.subjects[s.labels["subject"]]
		st.latencyCount += s.value
		m.subjects[s.labels["subject"]] = st
	}
}

// Scraper polls the matcher's /metrics endpoint during a run so the report
// can show what the matcher saw per subject.
type Scraper struct {
	url      string
	interval time.Duration
	http     *http.Client

	mu    sync.Mutex
	snaps []matcherSnapshot

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScraper creates a Scraper for the metrics endpoint at url.
func NewScraper(url string, interval time.Duration) *Scraper {
	return &Scraper{
		url:      url,
		interval: interval,
		http:     &http.Client{Timeout: 5 * time.Second},
		done:     make(chan struct{}),
	}
}

// Start records a baseline and keeps scraping until Stop or ctx ends.
func (s *Scraper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.record()
	go s.run(ctx)
}

func (s *Scraper) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.record()
		case <-ctx.Done():
			s.record()
			return
		}
	}
}

// Stop ends scraping after one last snapshot.
func (s *Scraper) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

// record appends a snapshot; a failed scrape is dropped, since the matcher
// may still be starting.
func (s *Scraper) record() {
	snap, err := s.scrape()
	if err != nil {
		return
	}
	s.mu.Lock()
	s.snaps = append(s.snaps, snap)
	s.mu.Unlock()
}

func (s *Scraper) scrape() (matcherSnapshot, error) {
	resp, err := s.http.Get(s.url)
	if err != nil {
		return matcherSnapshot{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return matcherSnapshot{}, fmt.Errorf("stats: metrics endpoint returned %s", resp.Status)
	}

	snap := newMatcherSnapshot(time.Now())
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		if smp, ok := parseSample(sc.Text()); ok {
			snap.add(smp)
		}
	}
	return snap, sc.Err()
}

var errBadLabels = errors.New("malformed label set")

// parseSample parses `name{k="v",...} value [timestamp]`. Comments, blank
// lines and malformed lines report ok=false.
func parseSample(line string) (sample, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] == '#' {
		return sample{}, false
	}

	smp := sample{labels: map[string]string{}}
	rest := line
	if i := strings.IndexAny(line, "{ \t"); i > 0 && line[i] == '{' {
		smp.name = line[:i]
		n, err := parseLabels(line[i+1:], smp.labels)
		if err != nil {
			return sample{}, false
		}
		rest = line[i+1+n:]
	} else {
		fields := strings.Fields(line)
		smp.name = fields[0]
		rest = strings.TrimPrefix(line, smp.name)
	}

	fields := strings.Fields(rest)
	if smp.name == "" || len(fields) == 0 || len(fields) > 2 {
		return sample{}, false
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return sample{}, false
	}
	smp.value = v
	return smp, true
}

// parseLabels reads `k="v",...}` into dst and returns how many bytes it
// consumed, including the closing brace.
func parseLabels(s string, dst map[string]string) (int, error) {
	i := 0
	for {
		if i < len(s) && s[i] == '}' {
			return i + 1, nil
		}
		eq := strings.IndexByte(s[i:], '=')
		if eq <= 0 || i+eq+1 >= len(s) || s[i+eq+1] != '"' {
			return 0, errBadLabels
		}
		key := strings.TrimSpace(s[i : i+eq])
		i += eq + 2

		var val strings.Builder
		for ; i < len(s) && s[i] != '"'; i++ {
			if s[i] == '\\' && i+1 < len(s) {
				i++
				if s[i] == 'n' {
					val.WriteByte('\n')
					continue
				}
			}
			val.WriteByte(s[i])
		}
		if i >= len(s) {
			return 0, errBadLabels
		}
		dst[key] = val.String()
		i++ // closing quote
		if i < len(s) && s[i] == ',' {
			i++
		}
	}
}

// Report prints what changed on the matcher between the first and last
// snapshot.
func (s *Scraper) Report() {
	s.mu.Lock()
	snaps := append([]matcherSnapshot(nil), s.snaps...)
	s.mu.Unlock()

	if len(snaps) == 0 {
		fmt.Println("\n--- Matcher Metrics (no data collected) ---")
		return
	}
	first, last := snaps[0], snaps[len(snaps)-1]

	fmt.Println("\n--- Matcher Metrics ---")
	fmt.Printf("  Scrapes:        %d over %s\n", len(snaps), last.at.Sub(first.at).Round(time.Second))
	fmt.Printf("  Roster:         %.0f profiles (peak %.0f)\n", last.rosterSize,
		peak(snaps, func(m matcherSnapshot) float64 { return m.rosterSize }))
	fmt.Printf("  Interest graph: %.0f users (%+.0f)\n", last.graphSize, last.graphSize-first.graphSize)
	fmt.Printf("  Mutual matches: %+.0f\n", last.mutualMatches-first.mutualMatches)

	fmt.Println()
	fmt.Printf("  %-22s %9s %9s %9s %12s\n", "Subject", "Requests", "Errors", "Limited", "Avg latency")
	for _, subject := range sortedKeys(last.subjects) {
		d := subjectDelta(first.subjects[subject], last.subjects[subject])
		if d.total() == 0 {
			continue
		}
		fmt.Printf("  %-22s %9.0f %9.0f %8.1f%% %12s\n",
			subject, d.total(), d.errors, 100*d.limited/d.total(), average(d.latencySum, d.latencyCount))
	}

	fmt.Println()
	fmt.Printf("  Groups by size:  %s\n", formatDeltas(first.groups, last.groups))
	fmt.Printf("  Invites:         %s\n", formatDeltas(first.invites, last.invites))
	fmt.Printf("  Discovery avg:   %s\n",
		average(last.discoverySum-first.discoverySum, last.discoveryN-first.discoveryN))
}

func subjectDelta(a, b subjectStats) subjectStats {
	return subjectStats{
		ok:           b.ok - a.ok,
		errors:       b.errors - a.errors,
		limited:      b.limited - a.limited,
		latencySum:   b.latencySum - a.latencySum,
		latencyCount: b.latencyCount - a.latencyCount,
	}
}

func average(sum, count float64) string {
	if count <= 0 {
		return "n/a"
	}
	return time.Duration(sum / count * float64(time.Second)).Round(time.Microsecond).String()
}

// formatDeltas renders per-label increases as "k=+n k2=+m".
func formatDeltas(first, last map[string]float64) string {
	keys := sortedKeys(last)
	if len(keys) == 0 {
		return "none"
	}
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%+.0f", k, last[k]-first[k]))
	}
	return strings.Join(parts, " ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func peak(snaps []matcherSnapshot, f func(matcherSnapshot) float64) float64 {
	var p float64
	for i, m := range snaps {
		if v := f(m); i == 0 || v > p {
			p = v
		}
	}
	return p
}
