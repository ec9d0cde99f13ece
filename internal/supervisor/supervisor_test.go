package supervisor

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kestrelio/ffmpegevents/internal/command"
	"github.com/kestrelio/ffmpegevents/internal/event"
)

// TestHelperProcess is not a real test: it is re-executed as the fake
// "ffmpeg" child by spawning the test binary itself with
// GO_WANT_HELPER_PROCESS=1. See https://pkg.go.dev/os/exec for the
// pattern this follows.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}

	if script := os.Getenv("GO_HELPER_STDERR"); script != "" {
		for _, line := range strings.Split(script, "\n") {
			os.Stderr.WriteString(line + "\n")
		}
	}

	if os.Getenv("GO_HELPER_WAIT_FOR_STDIN") == "1" {
		bufio.NewReader(os.Stdin).ReadString('\n')
	}

	if ms := os.Getenv("GO_HELPER_SLEEP_MS"); ms != "" {
		if n, err := strconv.Atoi(ms); err == nil {
			time.Sleep(time.Duration(n) * time.Millisecond)
		}
	}

	if b64 := os.Getenv("GO_HELPER_STDOUT_B64"); b64 != "" {
		data, _ := base64.StdEncoding.DecodeString(b64)
		os.Stdout.Write(data)
	}

	code, _ := strconv.Atoi(os.Getenv("GO_HELPER_EXIT"))
	os.Exit(code)
}

type helperOpts struct {
	stderr     string
	stdout     []byte
	exitCode   int
	stdinPiped bool
	waitStdin  bool
	sleepMS    int
	output     *command.OutputDescriptor
}

func helperSpec(t *testing.T, o helperOpts) command.Spec {
	t.Helper()
	t.Setenv("GO_WANT_HELPER_PROCESS", "1")
	t.Setenv("GO_HELPER_STDERR", o.stderr)
	t.Setenv("GO_HELPER_STDOUT_B64", base64.StdEncoding.EncodeToString(o.stdout))
	t.Setenv("GO_HELPER_EXIT", strconv.Itoa(o.exitCode))
	if o.waitStdin {
		t.Setenv("GO_HELPER_WAIT_FOR_STDIN", "1")
	}
	if o.sleepMS > 0 {
		t.Setenv("GO_HELPER_SLEEP_MS", strconv.Itoa(o.sleepMS))
	}

	var outputs []command.OutputDescriptor
	if o.output != nil {
		outputs = []command.OutputDescriptor{*o.output}
	}

	return command.Spec{
		BinaryPath: os.Args[0],
		Args:       []string{"-test.run=^TestHelperProcess$"},
		StdinPiped: o.stdinPiped,
		Outputs:    outputs,
	}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.GracePeriod = 200 * time.Millisecond
	return cfg
}

func drain(t *testing.T, r *Run) []event.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var events []event.Event
	for {
		ev, ok := r.Next(ctx)
		if !ok {
			return events
		}
		events = append(events, ev)
	}
}

func TestRunEmitsDoneOnNormalExit(t *testing.T) {
	spec := helperSpec(t, helperOpts{
		stderr:   "ffmpeg version 8.0 Copyright (c) 2000-2025 the FFmpeg developers",
		exitCode: 0,
	})

	r, err := Start(context.Background(), spec, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := drain(t, r)
	if len(events) == 0 {
		t.Fatal("expected at least one event")
	}
	last := events[len(events)-1]
	if last.Kind != event.KindDone {
		t.Fatalf("last event Kind = %v, want Done", last.Kind)
	}
	if !last.Status.Success || last.Status.ExitCode != 0 {
		t.Errorf("Status = %+v, want success/0", last.Status)
	}
}

func TestRunFramesStdoutAndClosesInOrder(t *testing.T) {
	stderr := strings.Join([]string{
		"ffmpeg version 8.0 Copyright (c) 2000-2025 the FFmpeg developers",
		"Input #0, mov,mp4,m4a,3gp,3g2,mj2, from 'in.mp4':",
		"  Stream #0:0: Video: h264, yuv420p, 2x1, 25 fps",
		"Output #0, rawvideo, to 'pipe:1':",
		"  Stream #0:0: Video: rawvideo (RGB[24] / 0x18424752), rgb24, 2x1, q=2-31, 200 kb/s, 25 fps, 25 tbn",
		"frame=  265 fps=0.0 q=-1.0 Lsize=     830kB time=00:00:10.56 bitrate= 643.2kbits/s speed=21.2x",
	}, "\n")
	stdout := []byte{0xAA, 0xBB, 0xCC, 0xAA, 0xBB, 0xCC} // one 6-byte rgb24 2x1 frame

	spec := helperSpec(t, helperOpts{
		stderr:   stderr,
		stdout:   stdout,
		exitCode: 0,
		output:   &command.OutputDescriptor{Sink: "pipe:1", Format: "rawvideo", ToStdout: true},
	})

	r, err := Start(context.Background(), spec, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := drain(t, r)

	var sawFrame, sawExhausted bool
	doneIdx, exhaustedIdx, frameIdx := -1, -1, -1
	for i, ev := range events {
		switch ev.Kind {
		case event.KindOutputFrame:
			sawFrame = true
			frameIdx = i
			if len(ev.Frame.Data) != 6 {
				t.Errorf("frame data len = %d, want 6", len(ev.Frame.Data))
			}
		case event.KindOutputsExhausted:
			sawExhausted = true
			exhaustedIdx = i
		case event.KindDone:
			doneIdx = i
		}
	}

	if !sawFrame || !sawExhausted {
		t.Fatalf("events = %+v, want at least one OutputFrame and an OutputsExhausted", events)
	}
	if doneIdx != len(events)-1 {
		t.Errorf("Done is not the last event (index %d of %d)", doneIdx, len(events))
	}
	if frameIdx > exhaustedIdx {
		t.Errorf("OutputFrame observed after OutputsExhausted")
	}

	mode, ok := r.StdoutMode()
	if !ok || mode != StdoutModeFramed {
		t.Errorf("StdoutMode() = %v, %v; want Framed, true", mode, ok)
	}
}

func TestRunFramesDespiteLevelPrefixAndMetadataBlock(t *testing.T) {
	stderr := strings.Join([]string{
		"[info] Input #0, lavfi, from 'testsrc':",
		"[info]   Stream #0:0: Video: wrapped_avframe, yuv420p, 2x1, 25 fps",
		"[info] Output #0, rawvideo, to 'pipe:1':",
		"[info]   Metadata:",
		"[info]     encoder         : Lavf61.7.100",
		"[info]   Stream #0:0: Video: rawvideo (RGB[24] / 0x18424752), rgb24, 2x1, q=2-31, 200 kb/s, 25 fps, 25 tbn",
		"[info] Stream mapping:",
		"[info]   Stream #0:0 -> #0:0 (wrapped_avframe (native) -> rawvideo (native))",
		"[info] frame=  265 fps=0.0 q=-1.0 Lsize=     830kB time=00:00:10.56 bitrate= 643.2kbits/s speed=21.2x",
	}, "\n")
	stdout := []byte{0xAA, 0xBB, 0xCC, 0xAA, 0xBB, 0xCC} // one 6-byte rgb24 2x1 frame

	spec := helperSpec(t, helperOpts{
		stderr:   stderr,
		stdout:   stdout,
		exitCode: 0,
		output:   &command.OutputDescriptor{Sink: "pipe:1", Format: "rawvideo", ToStdout: true},
	})

	r, err := Start(context.Background(), spec, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	events := drain(t, r)

	var sawFrame, sawLayoutError bool
	for _, ev := range events {
		switch ev.Kind {
		case event.KindOutputFrame:
			sawFrame = true
		case event.KindError:
			sawLayoutError = true
		}
	}

	if sawLayoutError {
		t.Fatalf("events = %+v, a Metadata: block under a [level]-prefixed Output header must not close the section early", events)
	}
	if !sawFrame {
		t.Fatalf("events = %+v, want at least one OutputFrame once real output metadata arrives", events)
	}
}

func TestRunOpaqueStdoutIsHandedOff(t *testing.T) {
	stderr := strings.Join([]string{
		"Input #0, mov,mp4, from 'in.mp4':",
		"  Stream #0:0: Video: h264, yuv420p, 320x240, 25 fps",
		"Output #0, h264, to 'pipe:1':",
		"  Stream #0:0: Video: h264, yuv420p, 320x240, 25 fps",
		"frame=    1 fps=0.0 q=-1.0 size=       0kB time=00:00:00.04 bitrate=   0.0kbits/s speed=   0x",
	}, "\n")
	stdout := []byte{0x00, 0x00, 0x00, 0x01, 0x67} // opaque bytes, not frame-sliced

	spec := helperSpec(t, helperOpts{
		stderr:   stderr,
		stdout:   stdout,
		exitCode: 0,
		output:   &command.OutputDescriptor{Sink: "pipe:1", Format: "h264", ToStdout: true},
	})

	r, err := Start(context.Background(), spec, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	raw, ok := r.RawStdout()
	if !ok || raw == nil {
		t.Fatal("RawStdout() did not return a handle for an opaque-mode run")
	}
	got := make([]byte, len(stdout))
	if _, err := readFull(raw, got); err != nil {
		t.Fatalf("reading raw stdout: %v", err)
	}
	if string(got) != string(stdout) {
		t.Errorf("raw stdout = %v, want %v", got, stdout)
	}
	raw.Close()

	events := drain(t, r)
	for _, ev := range events {
		if ev.Kind == event.KindOutputFrame {
			t.Error("opaque mode must not emit OutputFrame events")
		}
	}

	mode, ok := r.StdoutMode()
	if !ok || mode != StdoutModeOpaque {
		t.Errorf("StdoutMode() = %v, %v; want Opaque, true", mode, ok)
	}
}

func readFull(r interface{ Read([]byte) (int, error) }, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestStartFailsForMissingBinary(t *testing.T) {
	spec := command.Spec{BinaryPath: "/no/such/binary/ffmpeg-does-not-exist"}

	_, err := Start(context.Background(), spec, testConfig())
	if err == nil {
		t.Fatal("expected an error for a missing binary")
	}
	var target *event.Error
	if !errors.As(err, &target) || target.Kind != event.ErrorSpawnFailure {
		t.Fatalf("err = %v, want ErrorSpawnFailure", err)
	}
}

func TestRunQuitWaitsForGracefulExit(t *testing.T) {
	spec := helperSpec(t, helperOpts{
		stdinPiped: true,
		waitStdin:  true,
		exitCode:   0,
	})

	r, err := Start(context.Background(), spec, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.Quit(ctx); err != nil {
		t.Fatalf("Quit() error = %v", err)
	}

	events := drain(t, r)
	last := events[len(events)-1]
	if last.Kind != event.KindDone || !last.Status.Success {
		t.Errorf("last event = %+v, want successful Done", last)
	}
}

func TestRunQuitWithoutStdinPipedReturnsError(t *testing.T) {
	spec := helperSpec(t, helperOpts{exitCode: 0})

	r, err := Start(context.Background(), spec, testConfig())
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer r.Close()

	if err := r.Quit(context.Background()); !errors.Is(err, errStdinNotPiped) {
		t.Errorf("Quit() error = %v, want errStdinNotPiped", err)
	}
}

func TestRunCloseUnblocksWithoutDrainingEvents(t *testing.T) {
	// A large stderr script overflows the event channel buffer; nothing
	// ever calls Next, so the reader goroutines would block on a full
	// channel forever if Close didn't give them a way out.
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, "[info] some chatter line "+strconv.Itoa(i))
	}

	spec := helperSpec(t, helperOpts{
		stderr:   strings.Join(lines, "\n"),
		exitCode: 0,
	})

	cfg := testConfig()
	cfg.ChannelBuffer = 4
	cfg.GracePeriod = 50 * time.Millisecond

	r, err := Start(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	closeDone := make(chan error, 1)
	go func() { closeDone <- r.Close() }()

	select {
	case err := <-closeDone:
		if err != nil {
			t.Errorf("Close() error = %v, want nil for a child that exits promptly once signaled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return; reader goroutines are stuck on a full event channel")
	}
}

func TestRunCloseEscalatesToSigkillWhenChildIgnoresTerm(t *testing.T) {
	spec := helperSpec(t, helperOpts{
		sleepMS:  5000,
		exitCode: 0,
	})

	cfg := testConfig()
	cfg.GracePeriod = 50 * time.Millisecond

	r, err := Start(context.Background(), spec, cfg)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := r.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	events := drain(t, r)
	last := events[len(events)-1]
	if last.Kind != event.KindDone || last.Status.Success {
		t.Errorf("last event = %+v, want a non-success Done after SIGKILL", last)
	}
}
