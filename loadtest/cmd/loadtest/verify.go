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

// sampleMessages mixes auto-replied scams, escalated health claims and
// trusted-source links so every routing path is exercised.
var sampleMessages = []string{
	"Government is giving Le500,000 to all citizens. Click here to register now",
	"URGENT: your Orange Money account will be blocked today. Send your PIN to claim your bonus",
	"No confirmed Ebola cases in Sierra Leone",
	"Drinking salt water cures cholera, share with your family",
	"Read the official update at https://statehouse.gov.sl/news",
	"Ministry of Finance says act now before midnight to receive your relief payment",
	"Good morning, see you at church on Sunday",
}

// runVerify opens the requested number of web chat sessions and has each one
// submit messages back to back, recording round-trip latency and the type of
// every reply.
func runVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	url := fs.String("url", "ws://localhost:8081/ws", "WebSocket server URL")
	clients := fs.Int("clients", 100, "Number of concurrent sessions")
	perClient := fs.Int("messages", 5, "Messages per session")
	think := fs.Duration("think", 200*time.Millisecond, "Pause between messages of one session")
	timeout := fs.Duration("timeout", 30*time.Second, "Per-message reply timeout")
	metricsURL := fs.String("metrics", "", "Prometheus endpoint to scrape, e.g. http://localhost:8080/metrics")
	fs.Parse(args)

	fmt.Printf("Verify test: %d sessions x %d messages to %s\n", *clients, *perClient, *url)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	if *metricsURL != "" {
		scraper := stats.NewScraper(*metricsURL, 2*time.Second)
		scraper.Start(ctx)
		defer scraper.Stop()
		collector.SetScraper(scraper)
	}

	var wg sync.WaitGroup
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runSession(ctx, n, *url, *perClient, *think, *timeout, collector)
		}(i)
	}
	wg.Wait()

	collector.Report()
}

func runSession(ctx context.Context, n int, url string, messages int, think, timeout time.Duration, collector *stats.Collector) {
	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	c, err := client.New(connCtx, url)
	if err == nil {
		err = c.WaitForSession(connCtx)
	}
	cancel()
	if err != nil {
		collector.AddError()
		if c != nil {
			c.Close()
		}
		return
	}
	defer c.Close()
	collector.AddConnect(c.GetMetrics().ConnectLatency)

	for i := 0; i < messages; i++ {
		text := sampleMessages[(n+i)%len(sampleMessages)]

		msgCtx, cancel := context.WithTimeout(ctx, timeout)
		reply, err := c.Verify(msgCtx, text)
		cancel()
		if err != nil {
			collector.AddError()
			return
		}
		collector.AddOutcome(reply.Type)
		collector.AddMsgLatency(reply.Latency)

		select {
		case <-ctx.Done():
			return
		case <-time.After(think):
		}
	}
}
