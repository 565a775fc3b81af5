package main

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/loadtest/client"
	"github.com/MEDVONJOSON/GOVCHATBOT-sub000/loadtest/stats"
)

// fleet is the set of sessions held open by a saturate run.
type fleet struct {
	mu      sync.Mutex
	clients []*client.Client
}

func (f *fleet) add(c *client.Client) {
	f.mu.Lock()
	f.clients = append(f.clients, c)
	f.mu.Unlock()
}

// alive counts sessions whose read loop has not failed.
func (f *fleet) alive() (alive, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.GetMetrics().Errors == 0 {
			alive++
		}
	}
	return alive, len(f.clients)
}

func (f *fleet) closeAll() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		c.Close()
	}
	return len(f.clients)
}

// runSaturate opens idle web chat sessions until the target count, the
// connect throttle or MAX_CONNECTIONS stops it, then holds them open.
// Connects refused with 429 are reported apart from failures because from
// one source address the per-IP connect rule is hit long before capacity.
func runSaturate(args []string) {
	fs := flag.NewFlagSet("saturate", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8081/ws", "Web chat WebSocket URL")
	connections := fs.Int("connections", 1000, "Sessions to open")
	rampUp := fs.Duration("ramp", 10*time.Second, "Ramp-up duration")
	hold := fs.Duration("hold", 30*time.Second, "How long to hold the sessions once open")
	concurrency := fs.Int("concurrency", 50, "Concurrent dial attempts")
	metricsURL := fs.String("metrics", "", "Prometheus endpoint to scrape, e.g. http://localhost:8080/metrics")
	fs.Parse(args)

	fmt.Printf("Saturate: %d sessions on %s (ramp=%s, hold=%s, concurrency=%d)\n",
		*connections, *url, *rampUp, *hold, *concurrency)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 2*time.Second)
		scraper.Start(ctx)
		defer scraper.Stop()
		collector.SetScraper(scraper)
	}

	var sessions fleet
	if rampSessions(ctx, *url, *connections, *rampUp, *concurrency, collector, &sessions) {
		holdSessions(ctx, *hold, &sessions)
	}

	fmt.Printf("\nClosed %d sessions.\n", sessions.closeAll())
	collector.Report()
}

// rampSessions dials n sessions spread over rampUp. It returns false when
// interrupted.
func rampSessions(ctx context.Context, url string, n int, rampUp time.Duration,
	concurrency int, collector *stats.Collector, sessions *fleet) bool {
	interval := rampUp / time.Duration(n)
	if interval <= 0 {
		interval = time.Millisecond
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	progressDone := make(chan struct{})
	go reportRamp(collector, n, progressDone)

	start := time.Now()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	completed := true
	for launched := 0; launched < n && completed; {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during ramp-up.")
			completed = false
		case <-ticker.C:
			launched++
			wg.Add(1)
			sem <- struct{}{}
			go func() {
				defer wg.Done()
				defer func() { <-sem }()
				openSession(ctx, url, collector, sessions)
			}()
		}
	}
	wg.Wait()
	close(progressDone)

	fmt.Printf("\nRamp-up: %d/%d sessions in %s (throttled=%d errors=%d)\n",
		collector.ConnectionCount(), n, time.Since(start).Round(time.Millisecond),
		collector.ThrottledCount(), collector.ErrorCount())
	return completed
}

func openSession(ctx context.Context, url string, collector *stats.Collector, sessions *fleet) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c, err := client.New(dialCtx, url)
	if err != nil {
		if client.Throttled(err) {
			collector.AddThrottled()
		} else {
			collector.AddError()
		}
		return
	}
	if err := c.WaitForSession(dialCtx); err != nil {
		collector.AddError()
		c.Close()
		return
	}

	m := c.GetMetrics()
	collector.AddConnect(m.ConnectLatency)
	collector.AddSessionLatency(m.SessionLatency)
	sessions.add(c)
}

func reportRamp(collector *stats.Collector, target int, done <-chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	last, lastAt := 0, time.Now()
	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			n := collector.ConnectionCount()
			fmt.Printf("  [ramp] sessions: %d/%d  throttled: %d  errors: %d  rate: %.1f/s\n",
				n, target, collector.ThrottledCount(), collector.ErrorCount(),
				float64(n-last)/now.Sub(lastAt).Seconds())
			last, lastAt = n, now
		}
	}
}

// holdSessions keeps the fleet open for d and prints how many the server
// dropped, typically through the heartbeat deadline.
func holdSessions(ctx context.Context, d time.Duration, sessions *fleet) {
	_, total := sessions.alive()
	fmt.Printf("\nHolding %d sessions for %s...\n", total, d)

	timer := time.NewTimer(d)
	defer timer.Stop()
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			fmt.Println("\nInterrupted during hold.")
			return
		case <-timer.C:
			alive, total := sessions.alive()
			fmt.Printf("Hold complete: %d/%d alive, %d dropped\n", alive, total, total-alive)
			return
		case <-ticker.C:
			alive, total := sessions.alive()
			fmt.Printf("  [hold] alive: %d/%d  dropped: %d\n", alive, total, total-alive)
		}
	}
}
