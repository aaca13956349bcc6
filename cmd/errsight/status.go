package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pipeline configuration and provider readiness",
	Long: `Display the limits the pipeline would run with and which analysis
provider would serve it. State is in-memory per process, so this reports
configuration and credential readiness rather than live counters; use the
REPL's :status for a running pipeline.`,
	Run: func(cmd *cobra.Command, args []string) {
		cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		green := color.New(color.FgGreen).SprintFunc()
		gray := color.New(color.FgHiBlack).SprintFunc()

		fmt.Printf("\n%s\n\n", cyan("=== errsight status ==="))

		fmt.Printf("%s\n", yellow("Provider:"))
		name, ready := providerReadiness()
		if ready {
			fmt.Printf("  %s %s (API key present)\n", green("●"), name)
		} else {
			fmt.Printf("  %s %s configured, no API key; the offline analyzer would be used\n", gray("○"), name)
		}
		if cfg.Model != "" {
			fmt.Printf("  model: %s\n", cfg.Model)
		}
		fmt.Println()

		fmt.Printf("%s\n", yellow("Admission:"))
		fmt.Printf("  max concurrency: %d\n", cfg.MaxConcurrency)
		fmt.Printf("  max queue:       %d\n", cfg.MaxQueueLength)
		fmt.Printf("  rate limit:      %s\n", formatRate(cfg.CallRateLimitRPS, cfg.CallRateLimitBurst))
		fmt.Println()

		fmt.Printf("%s\n", yellow("Advice cache:"))
		if cfg.CacheLimit == 0 {
			fmt.Printf("  %s\n", gray("disabled (cache_limit=0)"))
		} else {
			fmt.Printf("  limit: %d entries, ttl %s, purge every %s\n",
				cfg.CacheLimit, cfg.CacheTTL(), cfg.CachePurgeInterval())
		}
		fmt.Printf("  dedup window: %s\n", cfg.DedupWindow())
		fmt.Println()

		fmt.Printf("%s\n", yellow("Resilience:"))
		fmt.Printf("  retries: %d attempts, backoff %s..%s, jitter %v\n",
			cfg.RetryMaxAttempts, cfg.RetryBaseDelay(), cfg.RetryMaxDelay(), cfg.RetryJitter)
		fmt.Printf("  breaker: opens after %d failures, recovery %s\n",
			cfg.BreakerFailureThreshold, cfg.BreakerRecoveryTimeout())
		fmt.Printf("  call timeout: %s\n", cfg.CallTimeout())
		fmt.Println()
	},
}

func providerReadiness() (string, bool) {
	if cfg.Provider == "openai" {
		return "openai", os.Getenv("OPENAI_API_KEY") != ""
	}
	return "anthropic", os.Getenv("ANTHROPIC_API_KEY") != ""
}

func formatRate(rps float64, burst int) string {
	if rps <= 0 {
		return "none"
	}
	return fmt.Sprintf("%.1f req/s (burst %d)", rps, burst)
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
