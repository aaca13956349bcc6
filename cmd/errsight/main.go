// Command errsight exercises the background error-analysis pipeline from a
// terminal: a demo that replays a synthetic error storm and an interactive
// shell for feeding errors by hand. The pipeline itself ships as a library;
// this binary exists for operators and development.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/errsight/errsight/internal/config"
	"github.com/errsight/errsight/internal/logging"
	"github.com/errsight/errsight/internal/provider"
	"github.com/errsight/errsight/internal/scheduler"
)

var (
	cfgPath   string
	logLevel  string
	logFormat string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "errsight",
	Short: "Background AI error analysis pipeline",
	Long: `errsight captures application errors, fingerprints them, and asks an AI
provider for debugging advice in the background. Advice is cached per
error fingerprint so repeated failures surface it without repeated calls.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		logging.Init(logging.ParseLevel(logLevel), logFormat)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

// buildAnalyzer picks the provider adapter from configuration and available
// credentials. Without a key it falls back to the offline analyzer so the
// demo and REPL work anywhere.
func buildAnalyzer(latencyForCanned bool) (provider.Analyzer, error) {
	switch cfg.Provider {
	case "openai":
		if os.Getenv("OPENAI_API_KEY") == "" {
			break
		}
		return provider.NewOpenAI(os.Getenv("OPENAI_API_KEY"), cfg.Model)
	default:
		if os.Getenv("ANTHROPIC_API_KEY") == "" {
			break
		}
		return provider.NewAnthropic(os.Getenv("ANTHROPIC_API_KEY"), cfg.Model)
	}

	fmt.Fprintln(os.Stderr, "No API key found; using the offline analyzer.")
	var latency time.Duration
	if latencyForCanned {
		latency = 150 * time.Millisecond
	}
	return provider.NewCanned(latency), nil
}

func buildPipeline(latencyForCanned bool) (*scheduler.Scheduler, error) {
	analyzer, err := buildAnalyzer(latencyForCanned)
	if err != nil {
		return nil, err
	}
	return scheduler.Build(cfg, analyzer, logging.New("errsight"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
