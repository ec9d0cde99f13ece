// Command ffevents is a demo consumer of the ffmpegevents module: it
// builds an ffmpeg invocation, spawns it through the child supervisor,
// and prints the resulting event stream as JSON lines, or renders it
// live in a terminal dashboard with -tui.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kestrelio/ffmpegevents/internal/command"
	"github.com/kestrelio/ffmpegevents/internal/config"
	"github.com/kestrelio/ffmpegevents/internal/event"
	"github.com/kestrelio/ffmpegevents/internal/logging"
	"github.com/kestrelio/ffmpegevents/internal/metrics"
	"github.com/kestrelio/ffmpegevents/internal/supervisor"
	"github.com/kestrelio/ffmpegevents/internal/tui"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "-version", "--version", "version":
			fmt.Println("ffevents", version)
			return 0
		}
	}

	cfg, err := config.ParseFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, "ffevents:", err)
		return 2
	}

	var logger = logging.NewLogger(cfg.LogFormat, cfg.AppLogLevel)
	if cfg.TUIEnabled {
		// the dashboard owns the terminal; route logs into the void so
		// they don't tear up the rendered frame.
		logger = logging.NewLoggerWithWriter(io.Discard, cfg.LogFormat, cfg.AppLogLevel)
	}
	logging.SetDefault(logger)

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "ffevents:", err)
		return 2
	}

	if cfg.Check {
		config.ApplyCheckMode(cfg)
		if err := config.CheckFFmpegBinary(cfg); err != nil {
			fmt.Fprintln(os.Stderr, "ffevents: check failed:", err)
			return 1
		}
		fmt.Println("ffevents: ffmpeg binary OK:", cfg.FFmpegPath)
		return 0
	}

	spec := buildSpec(cfg)

	if cfg.PrintCmd {
		fmt.Println(spec.String())
		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		if sig, ok := <-sigCh; ok {
			logger.Info("received_signal", "signal", sig.String())
			cancel()
		}
	}()

	var metricsServer *metrics.Server
	if cfg.MetricsAddr != "" {
		metricsServer = metrics.NewServer(cfg.MetricsAddr, logger)
		if err := metricsServer.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "ffevents: metrics server:", err)
			return 1
		}
		defer metricsServer.Shutdown(context.Background())
	}

	r, err := supervisor.Start(ctx, spec, supervisor.Config{
		GracePeriod:   cfg.GracePeriod,
		ChannelBuffer: cfg.ChannelBuffer,
		Logger:        logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "ffevents: starting ffmpeg:", err)
		return 1
	}

	collector := metrics.NewCollector(metrics.CollectorConfig{RunID: r.RunID()})

	go func() {
		<-ctx.Done()
		r.Close()
	}()

	var exitCode int
	if cfg.TUIEnabled {
		exitCode = runTUI(ctx, r, collector, cfg)
	} else {
		exitCode = runJSONLines(ctx, r, collector)
	}

	return exitCode
}

func buildSpec(cfg *config.Config) command.Spec {
	b := command.New(cfg.FFmpegPath).
		HideBanner().
		LogLevel(cfg.LogLevel).
		Overwrite()

	if cfg.Synthetic {
		b.InputArgs("-f", "lavfi").Input("testsrc=size=1280x720:rate=30")
	} else {
		b.Input(cfg.Input)
	}

	b.StdinPiped(cfg.StdinPiped).
		Output(cfg.OutputFormat, cfg.OutputSink)

	return b.Build()
}

// runJSONLines drains the run's events to stdout, one JSON object per
// line, until Done is delivered or the context is cancelled.
func runJSONLines(ctx context.Context, r *supervisor.Run, collector *metrics.Collector) int {
	enc := json.NewEncoder(os.Stdout)
	exitCode := 0

	for {
		ev, ok := r.Next(ctx)
		if !ok {
			break
		}
		collector.Observe(ev)

		if err := enc.Encode(jsonEvent(ev)); err != nil {
			fmt.Fprintln(os.Stderr, "ffevents: encoding event:", err)
		}

		if ev.Kind == event.KindDone {
			if !ev.Status.Success {
				exitCode = 1
			}
			break
		}
	}

	return exitCode
}

// runTUI feeds the run's events into a bubbletea program rendering the
// live dashboard, returning once the run finishes or the user quits.
func runTUI(ctx context.Context, r *supervisor.Run, collector *metrics.Collector, cfg *config.Config) int {
	model := tui.New(tui.Config{RunID: r.RunID(), FFmpegPath: cfg.FFmpegPath})
	program := tea.NewProgram(model, tea.WithAltScreen())

	exitCode := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			ev, ok := r.Next(ctx)
			if !ok {
				tui.SendQuit(program)
				return
			}
			collector.Observe(ev)
			tui.SendEvent(program, ev)

			if ev.Kind == event.KindDone {
				if !ev.Status.Success {
					exitCode = 1
				}
				tui.SendQuit(program)
				return
			}
		}
	}()

	if _, err := program.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "ffevents: tui:", err)
		exitCode = 1
	}
	<-done

	return exitCode
}

// jsonEvent wraps an event.Event so its error field, otherwise an
// unexported interface value, serializes to a plain message string.
func jsonEvent(ev event.Event) any {
	if ev.Kind != event.KindError || ev.Err == nil {
		return ev
	}
	type errEvent struct {
		event.Event
		Err string `json:"err"`
	}
	return errEvent{Event: ev, Err: ev.Err.Error()}
}
