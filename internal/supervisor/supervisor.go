// supervisor.go — Engine: wires C1–C7 from a RuntimeConfig, a list of
// window definitions, and a list of compiled rule plans, and drives the
// two-token LIFO shutdown sequence. The signal-driven shutdown wait is
// grounded on the teacher's awaitShutdownSignal
// (cmd/dev-console/main_connection_mcp.go), generalized from one HTTP
// listener to four component groups with an ordered teardown instead of a
// single best-effort Shutdown call. Run waits on the shutdown signal
// alone: a component that exits early is noticed only when the teardown
// joins it.
package supervisor

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/warpfusion/warpfusion/internal/alert"
	"github.com/warpfusion/warpfusion/internal/cep"
	"github.com/warpfusion/warpfusion/internal/config"
	"github.com/warpfusion/warpfusion/internal/evictor"
	"github.com/warpfusion/warpfusion/internal/ingest"
	"github.com/warpfusion/warpfusion/internal/metrics"
	"github.com/warpfusion/warpfusion/internal/registry"
	"github.com/warpfusion/warpfusion/internal/router"
	"github.com/warpfusion/warpfusion/internal/ruleexec"
	"github.com/warpfusion/warpfusion/internal/ruletask"
	"github.com/warpfusion/warpfusion/internal/window"
)

// AlertChannelBuffer is the recommended buffer size for the multi-producer
// alert channel.
const AlertChannelBuffer = 64

// Config is everything needed to build and run one engine instance.
type Config struct {
	Runtime   config.RuntimeConfig
	WindowDef []window.Def // logical window definitions, pre-merge (ResolveWindowDef is applied per-window here)
	RulePlans []cep.RulePlan
	Sinks     alert.DispatcherConfig
	Decoder   ingest.Decoder // defaults to ingest.ArrowIPCDecoder{}

	Log *zap.Logger
}

// Engine owns every C1–C7 component and the contexts that sequence their
// shutdown.
type Engine struct {
	cfg     Config
	log     *zap.Logger
	metrics metrics.Recorder

	reg        *registry.Registry
	rt         *router.Router
	ev         *evictor.Evictor
	receiver   *ingest.Receiver
	dispatcher *alert.Dispatcher
	tasks      []*ruletask.Task
	alerts     chan alert.Record
}

// New builds every component from cfg but starts nothing; window-build
// and config errors are fatal at startup, so New can fail.
func New(cfg Config) (*Engine, error) {
	log := cfg.Log
	if log == nil {
		log = zap.NewNop()
	}
	decoder := cfg.Decoder
	if decoder == nil {
		decoder = ingest.ArrowIPCDecoder{}
	}

	resolved := make([]window.Def, len(cfg.WindowDef))
	for i, def := range cfg.WindowDef {
		resolved[i] = cfg.Runtime.ResolveWindowDef(def)
		if oc := resolved[i].OverCap; oc > 0 && resolved[i].Over > oc {
			return nil, fmt.Errorf("supervisor: window %q: over %s exceeds over_cap %s", def.Name, resolved[i].Over, oc)
		}
	}

	reg, err := registry.Build(resolved)
	if err != nil {
		return nil, fmt.Errorf("supervisor: building registry: %w", err)
	}

	rec := metrics.NewRecorder()

	ln, err := listen(cfg.Runtime.Listen)
	if err != nil {
		return nil, fmt.Errorf("supervisor: binding listen address %q: %w", cfg.Runtime.Listen, err)
	}

	rt := router.New(reg)
	ev := evictor.New(reg, evictor.Config{
		Interval:      cfg.Runtime.WindowDefaults.EvictInterval,
		MaxTotalBytes: cfg.Runtime.WindowDefaults.MaxTotalBytes,
		Policy:        evictPolicy(cfg.Runtime.WindowDefaults.EvictPolicy),
	}, log)

	alerts := make(chan alert.Record, AlertChannelBuffer)
	dispatcher := alert.New(alerts, cfg.Sinks, log, rec)

	receiver := ingest.New(ln, ingest.Config{
		Decoder:  decoder,
		Router:   rt,
		Log:      log,
		Failures: rec,
	})

	tasks := make([]*ruletask.Task, 0, len(cfg.RulePlans))
	for _, plan := range cfg.RulePlans {
		sources, err := buildWindowSources(plan, reg)
		if err != nil {
			return nil, fmt.Errorf("supervisor: rule %q: %w", plan.RuleName, err)
		}
		executor := ruleexec.New(plan, log, rec)
		tasks = append(tasks, ruletask.New(ruletask.Config{
			Plan:            plan,
			Executor:        executor,
			Sources:         sources,
			Alerts:          alerts,
			RuleExecTimeout: cfg.Runtime.RuleExecTimeout,
			Log:             log,
			Timeouts:        rec,
		}))
	}

	return &Engine{
		cfg:        cfg,
		log:        log.Named("supervisor"),
		metrics:    rec,
		reg:        reg,
		rt:         rt,
		ev:         ev,
		receiver:   receiver,
		dispatcher: dispatcher,
		tasks:      tasks,
		alerts:     alerts,
	}, nil
}

// buildWindowSources groups one rule plan's Binds by window name (see
// DESIGN.md's internal/ruletask entry for why this collapses the
// stream_name -> alias -> window double indirection into a single
// alias -> window map).
func buildWindowSources(plan cep.RulePlan, reg *registry.Registry) ([]ruletask.WindowSource, error) {
	aliasesByWindow := make(map[string][]string)
	for alias, bind := range plan.Binds {
		aliasesByWindow[bind.WindowName] = append(aliasesByWindow[bind.WindowName], alias)
	}

	names := make([]string, 0, len(aliasesByWindow))
	for name := range aliasesByWindow {
		names = append(names, name)
	}
	sort.Strings(names) // deterministic source order for tests/logging

	sources := make([]ruletask.WindowSource, 0, len(names))
	for _, name := range names {
		w, ok := reg.GetWindow(name)
		if !ok {
			return nil, fmt.Errorf("rule binds unknown window %q", name)
		}
		n, ok := reg.GetNotifier(name)
		if !ok {
			return nil, fmt.Errorf("rule binds window %q with no notifier", name)
		}
		aliases := aliasesByWindow[name]
		sort.Strings(aliases)
		sources = append(sources, ruletask.WindowSource{
			WindowName: name,
			Handle:     w,
			Notifier:   n,
			Aliases:    aliases,
		})
	}
	return sources, nil
}

func evictPolicy(p config.EvictPolicy) evictor.MemoryPolicy {
	if p == config.EvictMemoryFirst {
		return evictor.MemoryFirst
	}
	return evictor.TimeFirst
}

// listen parses a scheme://address listen string (e.g.
// `tcp://127.0.0.1:9800`) and binds it. Only the network portion after
// "://" is meaningful to net.Listen; net/url's scheme split is the
// ordinary stdlib tool for this and no pack library specializes in
// parsing a bespoke scheme-prefixed address string (see DESIGN.md).
func listen(addr string) (net.Listener, error) {
	u, err := url.Parse(addr)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid listen address %q (want scheme://host:port)", addr)
	}
	return net.Listen(u.Scheme, u.Host)
}

// Run starts every component in reverse shutdown order (dispatcher,
// evictor, rule tasks, receiver) and blocks until ctx is cancelled, then
// drives the two-token teardown: cancel -> wait receiver -> trigger
// rule_cancel -> wait rule tasks -> wait dispatcher (channel close) ->
// wait evictor.
func (e *Engine) Run(ctx context.Context) error {
	dispatcherDone := make(chan struct{})
	go func() {
		e.dispatcher.Run(context.Background())
		close(dispatcherDone)
	}()

	globalCtx, cancelGlobal := context.WithCancel(context.Background())
	defer cancelGlobal()

	evictorDone := make(chan struct{})
	go func() {
		e.ev.Run(globalCtx)
		close(evictorDone)
	}()

	// ruleCtx drives only the rule tasks' cancellation; it is deliberately
	// separate from globalCtx since rule_cancel must not fire until the
	// receiver has already joined. errgroup.Group (not WithContext) fans
	// the per-task goroutines in and collects the first non-nil error
	// without introducing any cross-task cancellation of its own.
	ruleCtx, cancelRules := context.WithCancel(context.Background())
	defer cancelRules()

	var ruleGroup errgroup.Group
	for _, task := range e.tasks {
		task := task
		ruleGroup.Go(func() error {
			return task.Run(ruleCtx)
		})
	}

	receiverDone := make(chan struct{})
	go func() {
		e.receiver.Run(globalCtx)
		close(receiverDone)
	}()

	<-ctx.Done()
	e.log.Info("shutdown signal received; beginning LIFO teardown")

	cancelGlobal() // stops Receiver and Evictor
	<-receiverDone
	e.log.Debug("receiver joined")

	cancelRules() // rule_cancel: triggered only after Receiver has joined
	ruleErr := ruleGroup.Wait()
	e.log.Debug("rule tasks joined")

	close(e.alerts) // dispatcher exits on channel close, never on a token
	<-dispatcherDone
	e.log.Debug("alert dispatcher joined")

	<-evictorDone
	e.log.Debug("evictor joined")

	if ruleErr != nil {
		return fmt.Errorf("supervisor: rule task failed: %w", ruleErr)
	}
	return nil
}
