// Command cpphy talks to a Profibus DP communication processor.
//
// Usage:
//
//	cpphy [flags] reset
//	cpphy [flags] config <baud>
//	cpphy [flags] sdn <hex>
//	cpphy [flags] sdr <hex>
//	cpphy [flags] poll
//	cpphy [flags] replay <file>
//	cpphy baudrates
//	cpphy ports
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/moffa90/go-cpphy/config"
	"github.com/moffa90/go-cpphy/logging"
	"github.com/moffa90/go-cpphy/phy"
	"github.com/moffa90/go-cpphy/script"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := run(ctx, os.Args[1:], os.Stdout)
	stop()

	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "cpphy:", err)
		os.Exit(1)
	}
}

type cliOptions struct {
	configPath   string
	driver       string
	bus          int
	device       int
	serialPort   string
	replyTimeout time.Duration
	logLevel     string
	output       string
	async        bool
	advisory     bool
	repeat       int
}

func newFlagSet(opts *cliOptions) *pflag.FlagSet {
	fs := pflag.NewFlagSet("cpphy", pflag.ContinueOnError)
	fs.StringVarP(&opts.configPath, "config", "c", "", "configuration file (default $CPPHY_CONFIG or ./cpphy.yaml)")
	fs.StringVar(&opts.driver, "driver", "", "link driver: periph, serial or sim")
	fs.IntVar(&opts.bus, "bus", 0, "SPI bus number")
	fs.IntVar(&opts.device, "device", 0, "SPI chip select")
	fs.StringVar(&opts.serialPort, "serial-port", "", "serial port of the UART bridge")
	fs.DurationVar(&opts.replyTimeout, "reply-timeout", 0, "bound for synchronous commands (0 disables)")
	fs.StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	fs.StringVarP(&opts.output, "output", "o", "text", "output format: text or yaml")
	fs.BoolVar(&opts.async, "async", false, "sdn/sdr: return without waiting for the reply")
	fs.BoolVar(&opts.advisory, "advisory-config", false, "config: accept any reply")
	fs.IntVar(&opts.repeat, "repeat", 1, "replay: run the script this many times")
	fs.SortFlags = false

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: cpphy [flags] <reset|config|sdn|sdr|poll|replay|baudrates|ports> [args]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	return fs
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	var opts cliOptions
	fs := newFlagSet(&opts)
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	command, commandArgs := rest[0], rest[1:]

	if opts.output != "text" && opts.output != "yaml" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	switch command {
	case "baudrates":
		return printBaudRates(stdout, opts.output)
	case "ports":
		return printPorts(stdout, opts.output)
	}

	s, err := buildScript(command, commandArgs, opts)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(fs, &opts, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.InitLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	engineOpts := []phy.Option{
		phy.WithLogger(logging.ForEngine(logger)),
		phy.WithClockHz(cfg.Link.ClockHz),
		phy.WithResetTiming(cfg.Timing.ResetHold, cfg.Timing.Boot),
		phy.WithPollInterval(cfg.Timing.PollInterval),
		phy.WithReplyTimeout(cfg.Timing.ReplyTimeout),
		phy.WithTraceCallback(func(t phy.Trace) {
			logger.Debug("frame", zap.String("dir", t.Direction), zap.String("raw", fmt.Sprintf("% 02X", t.Raw)))
		}),
	}
	if opts.advisory {
		engineOpts = append(engineOpts, phy.WithAdvisoryConfigReply())
	}

	if cfg.Metrics.Enable {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		engineOpts = append(engineOpts, phy.WithMetrics(phy.NewMetrics(reg)))

		shutdown := serveMetrics(cfg.Metrics, reg, logger)
		defer shutdown()
	}

	hw, err := openHardware(cfg)
	if err != nil {
		return err
	}

	addr := phy.Address{Bus: cfg.Link.Bus, Device: cfg.Link.Device}
	engine, err := phy.Open(ctx, hw, addr, engineOpts...)
	if err != nil {
		return fmt.Errorf("open link: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Error("close link", zap.Error(err))
		}
	}()

	out := newPrinter(stdout, opts.output)
	runErr := script.Run(ctx, engine, s, out.Print)
	if err := out.Flush(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// buildScript turns a command line into script steps so one-shot commands
// and replays share parsing and execution.
func buildScript(command string, args []string, opts cliOptions) (*script.Script, error) {
	switch command {
	case "replay":
		if len(args) != 1 {
			return nil, errors.New("replay takes one script file")
		}
		s, err := script.Parse(args[0])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", args[0], err)
		}
		steps := s.Steps
		for i := 1; i < opts.repeat; i++ {
			s.Steps = append(s.Steps, steps...)
		}
		return s, nil

	case "reset", "config", "sdn", "sdr", "poll":
		keyword := command
		if opts.async && (command == "sdn" || command == "sdr") {
			keyword += "!"
		}
		line := strings.Join(append([]string{keyword}, args...), " ")
		return script.ParseReader(strings.NewReader(line))

	default:
		return nil, fmt.Errorf("unknown command %q", command)
	}
}

// applyFlags lets explicitly set flags win over file and environment.
func applyFlags(fs *pflag.FlagSet, opts *cliOptions, cfg *config.Config) {
	if fs.Changed("driver") {
		cfg.Link.Driver = opts.driver
	}
	if fs.Changed("bus") {
		cfg.Link.Bus = opts.bus
	}
	if fs.Changed("device") {
		cfg.Link.Device = opts.device
	}
	if fs.Changed("serial-port") {
		cfg.Link.SerialPort = opts.serialPort
	}
	if fs.Changed("reply-timeout") {
		cfg.Timing.ReplyTimeout = opts.replyTimeout
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
}

func serveMetrics(cfg config.MetricsConfig, reg *prometheus.Registry, logger *zap.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: cfg.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", cfg.Addr), zap.String("path", cfg.Path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
