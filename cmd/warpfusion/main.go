// main.go — warpfusion daemon entry point. Flag handling and the
// testable run(args) split are grounded on cmd/gasoline-cmd/main.go's
// "os.Exit(run(os.Args[1:]))" shape; graceful shutdown is grounded on
// cmd/dev-console/main_connection_mcp.go's awaitShutdownSignal (signal
// channel raced against a "the thing I'm watching died" channel).
//
// The WFL/WFS rule-plan parser/compiler is out of core scope, so this
// entrypoint wires a fixed example window/rule set
// alongside whatever RuntimeConfig.toml supplies, enough to exercise the
// engine end-to-end; a real deployment would replace buildExampleRules
// with the output of that external compiler.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/expr"
	"github.com/warpfusion/warpfusion/internal/sink"
	"github.com/warpfusion/warpfusion/internal/supervisor"
	"github.com/warpfusion/warpfusion/internal/wfvalue"
	"github.com/warpfusion/warpfusion/internal/window"
)

// defaultAlertLogPath is where alerts land absent any sink configuration
// beyond a bare RuntimeConfig (concrete sink backends are non-goals; this
// exists only so the binary produces durable, inspectable output).
const defaultAlertLogPath = "warpfusion-alerts.jsonl"

var version = "0.1.0"

const usageText = `warpfusion — real-time correlation (CEP) detection engine

Usage:
  warpfusion [--config path/to/config.toml]

Flags:
  --config <path>   RuntimeConfig TOML file (default: unset, uses built-in defaults)
  --version         Show version
  --help            Show this help
`

func main() {
	os.Exit(run(os.Args[1:]))
}

// run is the entry point proper, separated from main for testability.
func run(args []string) int {
	var configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--version", "-v":
			fmt.Printf("warpfusion %s\n", version)
			return 0
		case "--help", "-h":
			fmt.Print(usageText)
			return 0
		case "--config":
			if i+1 >= len(args) {
				fmt.Fprintf(os.Stderr, "Error: --config requires a path\n\n")
				fmt.Fprint(os.Stderr, usageText)
				return 2
			}
			configPath = args[i+1]
			i++
		default:
			fmt.Fprintf(os.Stderr, "Error: unrecognized argument %q\n\n", args[i])
			fmt.Fprint(os.Stderr, usageText)
			return 2
		}
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: building logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	rt := config.Defaults()
	if configPath != "" {
		rt, err = config.Load(configPath)
		if err != nil {
			log.Error("config load failed", zap.Error(err))
			return 1
		}
	}

	fileSink, err := sink.NewFileSink(defaultAlertLogPath)
	if err != nil {
		log.Error("default alert sink construction failed", zap.Error(err))
		return 1
	}

	eng, err := supervisor.New(supervisor.Config{
		Runtime:   rt,
		WindowDef: buildExampleWindows(),
		RulePlans: buildExampleRules(),
		Sinks:     alert.DispatcherConfig{DefaultGroup: []alert.Sink{fileSink}},
		Log:       log,
	})
	if err != nil {
		log.Error("supervisor construction failed", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go awaitShutdownSignal(log, cancel)

	if err := eng.Run(ctx); err != nil {
		log.Error("engine exited with error", zap.Error(err))
		return 1
	}
	return 0
}

// awaitShutdownSignal blocks until a termination signal arrives, then
// cancels ctx so Engine.Run begins its LIFO teardown.
func awaitShutdownSignal(log *zap.Logger, cancel context.CancelFunc) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	s := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", s.String()), zap.Time("at", time.Now()))
	cancel()
}

// buildExampleWindows returns a minimal window set exercising the engine
// absent an external WFL compiler.
func buildExampleWindows() []window.Def {
	return []window.Def{
		{
			Name:      "auth_failures",
			Streams:   []string{"auth_events"},
			TimeField: "event_time",
			Over:      10 * time.Minute,
		},
	}
}

// buildExampleRules mirrors a brute-force scenario: five or more failed
// logins from the same source IP within the window.
func buildExampleRules() []cep.RulePlan {
	return []cep.RulePlan{
		{
			RuleName: "brute_force_login",
			Binds: map[string]cep.Bind{
				"a": {WindowName: "auth_failures"},
			},
			MatchPlan: cep.MatchPlan{
				Keys: []expr.Expr{expr.FieldRef{Name: "src_ip"}},
				EventSteps: []cep.Step{
					{Branches: []cep.Branch{
						{
							Source: "a",
							Pipe:   cep.Pipe{Measure: cep.MeasureCount, CompareOp: expr.OpGte, Threshold: 5},
						},
					}},
				},
			},
			ScoreExpr:   expr.Literal{Value: wfvalue.Number(80)},
			EntityExpr:  expr.FieldRef{Name: "src_ip"},
			YieldTarget: "security.brute_force",
		},
	}
}
