package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pkg/browser"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sarchlab/fifosim/config"
	"github.com/sarchlab/fifosim/datarecording"
	"github.com/sarchlab/fifosim/monitoring"
	"github.com/sarchlab/fifosim/perfmodel"
	"github.com/sarchlab/fifosim/sim/bottleneckanalysis"
	"github.com/sarchlab/fifosim/sim/hooking"
	"github.com/sarchlab/fifosim/sim/id"
	"github.com/sarchlab/fifosim/sim/queueing"
	"github.com/sarchlab/fifosim/sim/timing"
	"github.com/sarchlab/fifosim/tracing"
)

type runOptions struct {
	configPath  string
	envPath     string
	record      bool
	recordPath  string
	monitor     bool
	monitorPort int
	openBrowser bool
	analyze     bool
	trace       bool

	overrides config.Config
	noStop    bool
}

var runOpts runOptions

var runCmd = &cobra.Command{
	Use:   "run [capacity]",
	Short: "Run the producer/consumer model",
	Long: `Run the producer/consumer model. Parameters come from the defaults, ` +
		`then the config file, then FIFOSIM_* environment variables, then flags, ` +
		`then the capacity argument. The capacity is clamped to [1, 100000].`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}

		cfg, err := resolveConfig(cmd.Flags(), args, runOpts)
		if err != nil {
			return err
		}

		_, err = simulate(cfg, runOpts, cmd.OutOrStdout(), logger)

		return err
	},
}

func init() {
	defaults := config.Default()
	o := &runOpts.overrides
	f := runCmd.Flags()

	f.StringVar(&runOpts.configPath, "config", "", "JSON config file")
	f.StringVar(&runOpts.envPath, "env", "", "dotenv file with FIFOSIM_* variables")
	f.BoolVar(&runOpts.record, "record", false, "record channel activity into SQLite")
	f.StringVar(&runOpts.recordPath, "record-path", "",
		"database path without the .sqlite3 suffix, a unique name if empty")
	f.BoolVar(&runOpts.monitor, "monitor", false, "serve the web monitor")
	f.IntVar(&runOpts.monitorPort, "monitor-port", 0, "web monitor port, random if 0")
	f.BoolVar(&runOpts.openBrowser, "open-browser", false, "open the web monitor in a browser")
	f.BoolVar(&runOpts.analyze, "analyze", false, "log time-weighted FIFO occupancy at exit")
	f.BoolVar(&runOpts.trace, "trace", false, "log every process dispatch at debug level")

	f.IntVar(&o.Budget, "budget", defaults.Budget, "total number of items")
	f.IntVar(&o.BurstMin, "burst-min", defaults.BurstMin, "shortest burst")
	f.IntVar(&o.BurstMax, "burst-max", defaults.BurstMax, "longest burst")
	f.Uint64Var(&o.Seed, "seed", defaults.Seed, "burst length seed")
	f.Int64Var(&o.ProducerIntervalNS, "producer-interval-ns",
		defaults.ProducerIntervalNS, "delay between bursts")
	f.Int64Var(&o.ConsumerIntervalNS, "consumer-interval-ns",
		defaults.ConsumerIntervalNS, "delay after each read")
	f.Int64Var(&o.PollIntervalNS, "poll-interval-ns",
		defaults.PollIntervalNS, "drain monitor poll interval")
	f.BoolVar(&runOpts.noStop, "no-stop-on-drain", false,
		"keep running after the drain until nothing can progress")
	f.BoolVar(&o.ContinuousPayload, "continuous-payload", false,
		"number items with one sequence across bursts")

	rootCmd.AddCommand(runCmd)
}

func resolveConfig(
	flags *pflag.FlagSet,
	args []string,
	opts runOptions,
) (*config.Config, error) {
	cfg := config.Default()

	if opts.configPath != "" {
		loaded, err := config.LoadFile(opts.configPath)
		if err != nil {
			return nil, err
		}

		cfg = loaded
	}

	if err := cfg.ApplyEnv(opts.envPath); err != nil {
		return nil, err
	}

	o := opts.overrides
	overrides := map[string]func(){
		"budget":               func() { cfg.Budget = o.Budget },
		"burst-min":            func() { cfg.BurstMin = o.BurstMin },
		"burst-max":            func() { cfg.BurstMax = o.BurstMax },
		"seed":                 func() { cfg.Seed = o.Seed },
		"producer-interval-ns": func() { cfg.ProducerIntervalNS = o.ProducerIntervalNS },
		"consumer-interval-ns": func() { cfg.ConsumerIntervalNS = o.ConsumerIntervalNS },
		"poll-interval-ns":     func() { cfg.PollIntervalNS = o.PollIntervalNS },
		"no-stop-on-drain":     func() { cfg.StopOnDrain = !opts.noStop },
		"continuous-payload":   func() { cfg.ContinuousPayload = o.ContinuousPayload },
	}

	flags.Visit(func(f *pflag.Flag) {
		if apply, ok := overrides[f.Name]; ok {
			apply()
		}
	})

	if len(args) > 0 {
		capacity, err := strconv.Atoi(args[0])
		if err != nil {
			return nil, fmt.Errorf("invalid capacity %q: %w", args[0], err)
		}

		cfg.Capacity = capacity
	}

	cfg.Clamp()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func simulate(
	cfg *config.Config,
	opts runOptions,
	out io.Writer,
	logger zerolog.Logger,
) (perfmodel.Result, error) {
	runID := id.RunID()
	logger = logger.With().Str("run", runID).Logger()

	counter := hooking.NewPosCounter()
	b := cfg.Builder().
		WithSchedulerHook(counter).
		WithChannelHook(counter).
		WithMonitorHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			fmt.Fprintln(out, ctx.Item.(perfmodel.DrainReport))
		}))

	if opts.trace {
		b = b.WithSchedulerHook(timing.NewProcessLogger(logger))
	}

	model, err := b.Build("top")
	if err != nil {
		return perfmodel.Result{}, err
	}
	defer model.Close()

	logger.Info().
		Int("capacity", cfg.Capacity).
		Int("budget", cfg.Budget).
		Uint64("seed", cfg.Seed).
		Msg("simulation starting")

	if opts.analyze {
		analyzer := bottleneckanalysis.MakeOccupancyAnalyzerBuilder().
			WithTimeTeller(model.Scheduler).
			WithLogger(logger).
			WithReportAtExit().
			Build()
		analyzer.Watch(model.Channel)
	}

	var (
		recorder datarecording.DataRecorder
		tracer   *tracing.ChannelTracer
	)
	if opts.record {
		recorder = datarecording.New(opts.recordPath)
		tracer = tracing.NewChannelTracer(model.Scheduler, recorder)
		model.Channel.AcceptHook(tracer)
	}

	var (
		monitor *monitoring.Monitor
		bar     *monitoring.ProgressBar
	)
	if opts.monitor {
		monitor, bar, _ = attachMonitor(model, cfg, opts, logger)
		defer monitor.StopServer()
	}

	res, err := model.Run()
	if err != nil {
		return res, err
	}

	if monitor != nil {
		monitor.CompleteProgressBar(bar)
	}

	if tracer != nil {
		tracer.RecordReport(res.Channel)
		recorder.Flush()
	}

	if !res.Drained {
		logger.Warn().
			Stringer("time", res.EndTime).
			Strs("pending", res.Pending).
			Msg("simulation stalled before draining")
	}

	fmt.Fprint(out, res.Channel)

	events := zerolog.Dict()
	for name, n := range counter.Counts() {
		events.Uint64(name, n)
	}

	logger.Info().
		Stringer("end", res.EndTime).
		Dict("events", events).
		Uint64("delta_cycles", model.Scheduler.DeltaCycles()).
		Msg("simulation finished")

	return res, nil
}

func attachMonitor(
	model *perfmodel.Model,
	cfg *config.Config,
	opts runOptions,
	logger zerolog.Logger,
) (*monitoring.Monitor, *monitoring.ProgressBar, string) {
	monitor := monitoring.NewMonitor().WithPortNumber(opts.monitorPort)
	monitor.RegisterScheduler(model.Scheduler)
	monitor.RegisterChannel(model.Channel)

	bar := monitor.CreateProgressBar("Items transferred", uint64(cfg.Budget))
	model.Channel.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
		switch ctx.Pos {
		case queueing.HookPosChannelWrite:
			bar.IncrementInProgress(1)
		case queueing.HookPosChannelRead:
			bar.MoveInProgressToFinished(1)
		}
	}))

	url := monitor.StartServer()

	if opts.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			logger.Warn().Err(err).Msg("cannot open browser")
		}
	}

	return monitor, bar, url
}
