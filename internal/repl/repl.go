// Package repl implements the interactive shell used to exercise the
// analysis pipeline by hand. Plain lines are treated as error messages and
// scheduled for analysis; lines starting with ':' are control commands.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/errsight/errsight/internal/breaker"
	"github.com/errsight/errsight/internal/scheduler"
)

// CommandHandler handles one control command.
type CommandHandler func(args []string) error

// Config holds REPL configuration.
type Config struct {
	Scheduler *scheduler.Scheduler
	// Out receives all REPL output. Defaults to os.Stdout.
	Out io.Writer
}

// REPL is the interactive shell.
type REPL struct {
	sched    *scheduler.Scheduler
	out      io.Writer
	commands map[string]CommandHandler
}

// New creates a REPL around an assembled pipeline.
func New(cfg *Config) (*REPL, error) {
	if cfg.Scheduler == nil {
		return nil, errors.New("scheduler is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	r := &REPL{
		sched:    cfg.Scheduler,
		out:      out,
		commands: make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

func (r *REPL) registerCommands() {
	r.commands["status"] = r.cmdStatus
	r.commands["purge"] = r.cmdPurge
	r.commands["clear"] = r.cmdClear
	r.commands["breaker"] = r.cmdBreaker
	r.commands["advice"] = r.cmdAdvice
	r.commands["help"] = r.cmdHelp
}

// Run starts the readline loop and blocks until exit or EOF.
func (r *REPL) Run() error {
	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("errsight> "),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(r.out, "bye")
				return nil
			}
			return err
		}

		quit, err := r.HandleLine(line)
		if err != nil {
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("error:"), err)
		}
		if quit {
			return nil
		}
	}
}

// HandleLine processes one input line. It returns true when the REPL
// should exit.
func (r *REPL) HandleLine(line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if line == ":exit" || line == ":quit" || line == "exit" || line == "quit" {
		fmt.Fprintln(r.out, "bye")
		return true, nil
	}

	if strings.HasPrefix(line, ":") {
		fields := strings.Fields(line[1:])
		if len(fields) == 0 {
			return false, errors.New("empty command")
		}
		handler, ok := r.commands[fields[0]]
		if !ok {
			return false, fmt.Errorf("unknown command %q (try :help)", fields[0])
		}
		return false, handler(fields[1:])
	}

	// Anything else is an error message to analyze.
	r.sched.ScheduleAnalysis(errors.New(line), "repl session")
	gray := color.New(color.FgHiBlack).SprintFunc()
	fmt.Fprintf(r.out, "%s\n", gray("scheduled (check :advice "+firstWord(line)+"... or :status)"))
	return false, nil
}

func (r *REPL) cmdStatus(_ []string) error {
	yellow := color.New(color.FgYellow).SprintFunc()
	stats := r.sched.BreakerStats()

	fmt.Fprintf(r.out, "%s\n", yellow("Queue:"))
	fmt.Fprintf(r.out, "  waiting:  %d\n", r.sched.GetQueueLength())
	fmt.Fprintf(r.out, "  rejected: %d\n", r.sched.GetQueueRejectCount())

	fmt.Fprintf(r.out, "%s\n", yellow("Breaker:"))
	fmt.Fprintf(r.out, "  state:      %s\n", stats.State)
	fmt.Fprintf(r.out, "  successes:  %d\n", stats.Successes)
	fmt.Fprintf(r.out, "  failures:   %d\n", stats.Failures)
	fmt.Fprintf(r.out, "  rejections: %d\n", stats.Rejections)

	fmt.Fprintf(r.out, "%s\n", yellow("Advice cache:"))
	fmt.Fprintf(r.out, "  limit: %d\n", r.sched.GetAdviceCacheLimit())
	return nil
}

func (r *REPL) cmdPurge(_ []string) error {
	n := r.sched.PurgeExpiredAdvice()
	fmt.Fprintf(r.out, "purged %d expired entries\n", n)
	return nil
}

func (r *REPL) cmdClear(_ []string) error {
	r.sched.ClearAdviceCache()
	fmt.Fprintln(r.out, "advice cache cleared")
	return nil
}

func (r *REPL) cmdBreaker(args []string) error {
	if len(args) == 0 {
		fmt.Fprintf(r.out, "breaker state: %s\n", r.sched.BreakerState())
		return nil
	}
	switch strings.ToUpper(args[0]) {
	case "OPEN":
		r.sched.ForceBreakerState(breaker.StateOpen)
	case "CLOSED":
		r.sched.ForceBreakerState(breaker.StateClosed)
	case "HALF_OPEN", "HALF-OPEN":
		r.sched.ForceBreakerState(breaker.StateHalfOpen)
	default:
		return fmt.Errorf("unknown breaker state %q (want open, closed, or half_open)", args[0])
	}
	fmt.Fprintf(r.out, "breaker forced to %s\n", r.sched.BreakerState())
	return nil
}

func (r *REPL) cmdAdvice(args []string) error {
	if len(args) == 0 {
		return errors.New("usage: :advice <error message>")
	}
	msg := strings.Join(args, " ")
	adv, ok := r.sched.AdviceFor(errors.New(msg))
	if !ok {
		gray := color.New(color.FgHiBlack).SprintFunc()
		fmt.Fprintf(r.out, "%s\n", gray("no advice yet (analysis may still be running)"))
		return nil
	}
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "%s %s\n", green("advice:"), adv.Summary)
	if adv.Detail != "" && adv.Detail != adv.Summary {
		fmt.Fprintf(r.out, "%s\n", adv.Detail)
	}
	fmt.Fprintf(r.out, "(provider=%s model=%s)\n", adv.Provider, adv.Model)
	return nil
}

func (r *REPL) cmdHelp(_ []string) error {
	fmt.Fprint(r.out, `Type any error message to schedule it for analysis.

Commands:
  :advice <message>   show cached advice for an error message
  :status             queue, breaker, and cache state
  :purge              drop expired advice entries
  :clear              drop all advice entries
  :breaker [state]    show or force the breaker state
  :help               this help
  :exit               leave the shell
`)
	return nil
}

func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "%s\n", cyan("errsight interactive shell"))
	fmt.Fprintln(r.out, "Type an error message to analyze it, or :help for commands.")
	fmt.Fprintln(r.out)
}

func firstWord(s string) string {
	if i := strings.IndexByte(s, ' '); i > 0 {
		return s[:i]
	}
	return s
}
