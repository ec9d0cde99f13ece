// Package supervisor implements the Child Supervisor (Component E): it
// spawns the FFmpeg child described by a command.Spec, owns its pipes,
// runs the stderr and stdout reader goroutines, and delivers the merged
// event sequence to the caller through a single blocking iterator.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kestrelio/ffmpegevents/internal/command"
	"github.com/kestrelio/ffmpegevents/internal/event"
	"github.com/kestrelio/ffmpegevents/internal/frame"
	"github.com/kestrelio/ffmpegevents/internal/layout"
	"github.com/kestrelio/ffmpegevents/internal/lineparser"
)

// StdoutMode reports how the run's stdout is being handled, queryable
// by the caller before or during iteration per §6.
type StdoutMode int

const (
	StdoutModeNone StdoutMode = iota // no output targets stdout
	StdoutModeFramed
	StdoutModeOpaque
)

// Config tunes the supervisor's resource model.
type Config struct {
	GracePeriod   time.Duration
	ChannelBuffer int
	Logger        *slog.Logger
}

func DefaultConfig() Config {
	return Config{
		GracePeriod:   5 * time.Second,
		ChannelBuffer: 32,
		Logger:        slog.Default(),
	}
}

func (c Config) withDefaults() Config {
	if c.GracePeriod <= 0 {
		c.GracePeriod = 5 * time.Second
	}
	if c.ChannelBuffer <= 0 {
		c.ChannelBuffer = 32
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Run is the live, owned instance of one child process and its event
// iterator. It is the iterator referred to throughout §5: dropping it
// (calling Close) unconditionally terminates the child.
type Run struct {
	cmd         *exec.Cmd
	runID       string
	logger      *slog.Logger
	gracePeriod time.Duration

	events chan event.Event
	exited chan struct{}
	quit   chan struct{}

	stdin io.WriteCloser

	mu        sync.Mutex
	mode      StdoutMode
	rawStdout io.ReadCloser
	modeKnown chan struct{}

	closeOnce sync.Once
	closeErr  error
}

type planOutcome struct {
	plan layout.Plan
	err  error
}

// Start spawns the child described by spec and begins running its
// reader goroutines. The returned Run's event channel starts delivering
// events immediately; the caller drives it with Next.
func Start(ctx context.Context, spec command.Spec, cfg Config) (*Run, error) {
	cfg = cfg.withDefaults()

	if _, err := exec.LookPath(spec.BinaryPath); err != nil {
		return nil, event.Wrap(event.ErrorSpawnFailure, err, fmt.Sprintf("ffmpeg binary %q not found", spec.BinaryPath))
	}

	cmd := exec.CommandContext(ctx, spec.BinaryPath, spec.Args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, event.Wrap(event.ErrorPipeSetupFailure, err, "setting up stderr pipe")
	}

	stdoutBound := anyOutputToStdout(spec.Outputs)
	var stdoutPipe io.ReadCloser
	if stdoutBound {
		stdoutPipe, err = cmd.StdoutPipe()
		if err != nil {
			return nil, event.Wrap(event.ErrorPipeSetupFailure, err, "setting up stdout pipe")
		}
	}

	var stdinPipe io.WriteCloser
	if spec.StdinPiped {
		stdinPipe, err = cmd.StdinPipe()
		if err != nil {
			return nil, event.Wrap(event.ErrorPipeSetupFailure, err, "setting up stdin pipe")
		}
	}

	runID := uuid.NewString()
	logger := cfg.Logger.With("run_id", runID, "binary", spec.BinaryPath)

	if err := cmd.Start(); err != nil {
		return nil, event.Wrap(event.ErrorSpawnFailure, err, "starting ffmpeg")
	}
	logger.Info("ffmpeg started", "pid", cmd.Process.Pid, "args", spec.Args)

	r := &Run{
		cmd:         cmd,
		runID:       runID,
		logger:      logger,
		gracePeriod: cfg.GracePeriod,
		events:      make(chan event.Event, cfg.ChannelBuffer),
		exited:      make(chan struct{}),
		quit:        make(chan struct{}),
		stdin:       stdinPipe,
		modeKnown:   make(chan struct{}),
	}
	if !stdoutBound {
		r.mode = StdoutModeNone
		close(r.modeKnown)
	}

	eg := new(errgroup.Group)

	var planOnce sync.Once
	planResultCh := make(chan planOutcome, 1)
	sendPlan := func(o planOutcome) {
		planOnce.Do(func() { planResultCh <- o })
	}

	eg.Go(func() error {
		r.runStderr(stderrPipe, stdoutBound, sendPlan)
		return nil
	})

	if stdoutBound {
		eg.Go(func() error {
			r.runStdout(stdoutPipe, planResultCh)
			return nil
		})
	}

	go r.join(eg)

	return r, nil
}

func anyOutputToStdout(outputs []command.OutputDescriptor) bool {
	for _, o := range outputs {
		if o.ToStdout {
			return true
		}
	}
	return false
}

func isStdoutSink(location string) bool {
	return location == "pipe:" || location == "pipe:1"
}

// runStderr drives A (and, through metadata.ParseStreamDescriptor called
// from lineparser, B) over the child's stderr, forwarding every event to
// the merged channel and resolving the stdout layout plan (C) the moment
// enough output metadata has arrived.
func (r *Run) runStderr(stderrPipe io.Reader, stdoutBound bool, sendPlan func(planOutcome)) {
	pipeline := lineparser.NewPipeline(32)
	parser := lineparser.NewParser()

	outputFormats := map[int]string{}
	stdoutOutputs := map[int]bool{}
	var pendingOutputStreams []event.Stream
	planBuilt := false

	readerDone := make(chan struct{})
	go func() {
		pipeline.RunReader(stderrPipe)
		close(readerDone)
	}()

	var sawAnyLine bool

	pipeline.RunParser(parser, func(ev event.Event) {
		sawAnyLine = true

		switch ev.Kind {
		case event.KindParsedOutput:
			outputFormats[ev.Output.Index] = ev.Output.Format
			if isStdoutSink(ev.Output.Location) {
				stdoutOutputs[ev.Output.Index] = true
			}
		case event.KindParsedOutputStream:
			pendingOutputStreams = append(pendingOutputStreams, ev.Stream)
		}

		if !planBuilt && stdoutBound && len(stdoutOutputs) > 0 && sectionLikelyClosed(ev) {
			planBuilt = true
			plan, err := layout.Resolve(pendingOutputStreams, outputFormats, stdoutOutputs)
			sendPlan(planOutcome{plan: plan, err: err})
			if err != nil {
				r.send(event.NewError(err))
			}
		}

		r.send(ev)
	})

	<-readerDone

	if stdoutBound && !planBuilt {
		sendPlan(planOutcome{err: event.Newf(event.ErrorLayoutUnsupported, "stderr closed before output metadata was complete")})
	}

	if !sawAnyLine {
		r.send(event.NewError(event.Newf(event.ErrorStderrClosedPrematurely, "stderr closed before any output")))
	}
}

// sectionLikelyClosed reports whether ev signals that no further
// ParsedOutputStream events are expected before encoding begins: a
// progress update, a stream mapping entry, or a log line that has
// de-indented out of every Input/Output section. A log line still
// carrying a section label (the Metadata: block nested under an Output
// header, for instance) does not close the section; only a body-level
// log (no Section) does. This is the "output-section close signal"
// §4.5 and §5 refer to.
func sectionLikelyClosed(ev event.Event) bool {
	switch ev.Kind {
	case event.KindProgress, event.KindParsedStreamMapping:
		return true
	case event.KindLog:
		return ev.Log.Section == ""
	default:
		return false
	}
}

// runStdout waits for the layout plan and either hands stdout raw to the
// caller (opaque mode) or drives D, the fixed-size frame reader.
func (r *Run) runStdout(stdoutPipe io.ReadCloser, planResultCh <-chan planOutcome) {
	outcome := <-planResultCh

	if outcome.err != nil {
		r.mu.Lock()
		r.mode = StdoutModeNone
		r.mu.Unlock()
		close(r.modeKnown)
		// Without a plan nothing reads stdout: close it and terminate the
		// child so it cannot block on a full pipe.
		_ = stdoutPipe.Close()
		r.signalGroup(syscall.SIGTERM)
		return
	}

	if outcome.plan.Kind == layout.KindOpaque {
		r.mu.Lock()
		r.mode = StdoutModeOpaque
		r.rawStdout = stdoutPipe
		r.mu.Unlock()
		close(r.modeKnown)
		return
	}

	r.mu.Lock()
	r.mode = StdoutModeFramed
	r.mu.Unlock()
	close(r.modeKnown)

	fr := frame.NewReader(stdoutPipe, outcome.plan)
	if outcome.plan.Kind == layout.KindRawVideo {
		fr = fr.WithFPS(outcome.plan.FPS)
	}
	fr.Run(func(ev event.Event) { r.send(ev) })
	r.send(event.NewOutputsExhausted())
}

// join waits for both reader goroutines to finish, then reaps the
// process, emits Done (§3: terminal, exactly once, last), and closes
// the event channel.
func (r *Run) join(eg *errgroup.Group) {
	_ = eg.Wait()

	waitErr := r.cmd.Wait()
	close(r.exited)

	status := extractStatus(waitErr)
	r.logger.Info("ffmpeg exited", "success", status.Success, "exit_code", status.ExitCode)

	r.send(event.NewDone(status))
	close(r.events)
}

// send delivers ev to the caller's event channel, or drops it and
// returns false once Close has been called and nothing is draining the
// channel anymore. Without this, a reader goroutine blocks forever on
// a full buffer after the caller stops calling Next, and Close's wait
// for r.exited never completes even though the child has exited.
func (r *Run) send(ev event.Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.quit:
		return false
	}
}

func extractStatus(waitErr error) event.Status {
	if waitErr == nil {
		return event.Status{Success: true, ExitCode: 0}
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if ws.Signaled() {
				return event.Status{Success: false, ExitCode: 128 + int(ws.Signal())}
			}
			return event.Status{Success: false, ExitCode: ws.ExitStatus()}
		}
		return event.Status{Success: false, ExitCode: exitErr.ExitCode()}
	}
	return event.Status{Success: false, ExitCode: -1}
}

// Next blocks for the next event, or returns ok=false once Done has
// been delivered and the channel drained, or ctx is done first.
func (r *Run) Next(ctx context.Context) (event.Event, bool) {
	select {
	case ev, ok := <-r.events:
		return ev, ok
	case <-ctx.Done():
		return event.Event{}, false
	}
}

// StdoutMode reports how stdout is being handled. ok is false if the
// plan has not been resolved yet (no output metadata parsed so far).
func (r *Run) StdoutMode() (mode StdoutMode, ok bool) {
	select {
	case <-r.modeKnown:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.mode, true
	default:
		return StdoutModeNone, false
	}
}

// RawStdout returns the raw stdout handle when StdoutMode is Opaque.
// Ownership transfers to the caller; the supervisor will not read or
// close it.
func (r *Run) RawStdout() (io.ReadCloser, bool) {
	<-r.modeKnown
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode != StdoutModeOpaque {
		return nil, false
	}
	return r.rawStdout, true
}

var errStdinNotPiped = errors.New("stdin is not piped for this run")

// Quit requests graceful shutdown by writing "q\n" to stdin, per §6's
// stdin protocol, then falls back to the SIGTERM/SIGKILL ladder if the
// child has not exited within the grace period. Precondition: stdin
// must be piped; this is not a silent no-op otherwise.
func (r *Run) Quit(ctx context.Context) error {
	if r.stdin == nil {
		return errStdinNotPiped
	}
	if _, err := r.stdin.Write([]byte("q\n")); err != nil {
		return r.Close()
	}

	select {
	case <-r.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(r.gracePeriod):
		return r.Close()
	}
}

// Close unconditionally terminates the child: SIGTERM to its process
// group, then SIGKILL after the configured grace period if it has not
// exited. Idempotent.
func (r *Run) Close() error {
	r.closeOnce.Do(func() {
		close(r.quit)
		r.signalGroup(syscall.SIGTERM)

		select {
		case <-r.exited:
		case <-time.After(r.gracePeriod):
			r.signalGroup(syscall.SIGKILL)
			select {
			case <-r.exited:
			case <-time.After(r.gracePeriod):
				r.closeErr = event.Newf(event.ErrorGracefulShutdownTimeout, "child did not exit after SIGKILL")
			}
		}
	})
	return r.closeErr
}

func (r *Run) signalGroup(sig syscall.Signal) {
	pgid, err := syscall.Getpgid(r.cmd.Process.Pid)
	if err != nil {
		_ = r.cmd.Process.Signal(sig)
		return
	}
	_ = syscall.Kill(-pgid, sig)
}

// RunID returns the correlation ID stamped on every log line for this run.
func (r *Run) RunID() string { return r.runID }
