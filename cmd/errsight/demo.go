package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/errsight/errsight/internal/logging"
	"github.com/errsight/errsight/internal/queue"
)

var (
	demoRounds      int
	demoMetricsAddr string
)

// demoErrors is the synthetic storm: a handful of distinct failures, each
// repeating, so deduplication and caching are visible in the output.
var demoErrors = []struct {
	err     error
	context string
}{
	{errors.New("nil pointer dereference in checkout handler"), "POST /checkout"},
	{errors.New("timeout waiting for payments service"), "POST /checkout"},
	{errors.New("connection refused to redis:6379"), "GET /cart"},
	{errors.New("unauthorized: token expired"), "GET /account"},
	{errors.New("order 48123 not found"), "GET /orders/48123"},
}

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Replay a synthetic error storm through the pipeline",
	Long: `Feed a repeating set of synthetic application errors into the analysis
pipeline and print the advice as it appears. Repeated errors show the
fingerprint cache and the dedup window at work: each distinct error is
analyzed once no matter how often it recurs.`,
	Run: func(cmd *cobra.Command, args []string) {
		sched, err := buildPipeline(true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer sched.Close()

		if demoMetricsAddr != "" {
			startMetricsServer(sched.Queue(), demoMetricsAddr)
		}

		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== errsight demo ==="))

		// Storm phase: every error occurs demoRounds times.
		for round := 1; round <= demoRounds; round++ {
			for _, d := range demoErrors {
				sched.ScheduleAnalysis(d.err, d.context)
			}
			fmt.Printf("%s\n", gray(fmt.Sprintf("round %d: %d errors scheduled (queue=%d rejected=%d)",
				round, len(demoErrors), sched.GetQueueLength(), sched.GetQueueRejectCount())))
			time.Sleep(50 * time.Millisecond)
		}

		// Drain phase: poll until every fingerprint has advice or we
		// give up.
		fmt.Printf("\n%s\n", cyan("Waiting for analyses..."))
		deadline := time.Now().Add(30 * time.Second)
		remaining := make(map[string]error, len(demoErrors))
		for _, d := range demoErrors {
			remaining[d.err.Error()] = d.err
		}
		for len(remaining) > 0 && time.Now().Before(deadline) {
			for msg, e := range remaining {
				adv, ok := sched.AdviceFor(e)
				if !ok {
					continue
				}
				delete(remaining, msg)
				fmt.Printf("\n%s %s\n", green("✓"), msg)
				fmt.Printf("  %s\n", adv.Summary)
				fmt.Printf("  %s\n", gray(fmt.Sprintf("provider=%s model=%s", adv.Provider, adv.Model)))
			}
			time.Sleep(100 * time.Millisecond)
		}
		for msg := range remaining {
			fmt.Printf("\n%s %s\n", color.RedString("✗"), msg)
			fmt.Printf("  %s\n", gray("no advice (analysis failed or timed out)"))
		}

		stats := sched.BreakerStats()
		fmt.Printf("\n%s\n", cyan("=== summary ==="))
		fmt.Printf("  provider calls: %d ok, %d failed\n", stats.Successes, stats.Failures)
		fmt.Printf("  breaker state:  %s\n", stats.State)
		fmt.Printf("  queue rejects:  %d\n", sched.GetQueueRejectCount())
		fmt.Println()
	},
}

// startMetricsServer exposes the queue gauges on a Prometheus endpoint for
// the duration of the demo.
func startMetricsServer(q *queue.Queue, addr string) {
	reg := prometheus.NewRegistry()
	if err := q.RegisterMetrics(reg); err != nil {
		logging.New("metrics").Warn("metrics registration failed", "error", err)
		return
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	log := logging.New("metrics")
	go func() {
		log.Info("metrics endpoint listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Warn("metrics endpoint stopped", "error", err)
		}
	}()
}

func init() {
	demoCmd.Flags().IntVar(&demoRounds, "rounds", 3, "how many times each synthetic error recurs")
	demoCmd.Flags().StringVar(&demoMetricsAddr, "metrics-addr", "", "expose Prometheus queue metrics on this address (e.g. :9090)")
	rootCmd.AddCommand(demoCmd)
}
