// Package command implements the fluent argument builder that is the
// interface boundary between a caller and the child supervisor: it
// produces an argv vector, a stdin-piped hint, and the set of output
// descriptors the supervisor needs to configure stdout and hand off to
// the output layout resolver.
package command

import (
	"fmt"
	"strings"
)

// OutputDescriptor describes one output the caller asked FFmpeg to
// produce. Sink "-", "pipe:" or "pipe:1" marks an output as stdout-bearing.
type OutputDescriptor struct {
	Sink      string
	Format    string
	ToStdout  bool
}

// Spec is the fully built invocation: what the supervisor needs to spawn
// the child and what the output layout resolver needs to plan stdout.
type Spec struct {
	BinaryPath string
	Args       []string
	StdinPiped bool
	Outputs    []OutputDescriptor
}

// String renders Spec as a shell-quoted command line, for logging and for
// the --print-cmd diagnostic mode.
func (s Spec) String() string {
	parts := make([]string, 0, len(s.Args)+1)
	parts = append(parts, s.BinaryPath)
	for _, a := range s.Args {
		if strings.ContainsAny(a, " \t'\"") {
			parts = append(parts, fmt.Sprintf("%q", a))
		} else {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}

// Builder accumulates FFmpeg arguments fluently. It knows nothing about
// spawning a process; it only produces a Spec for the supervisor to
// consume. Loglevel tagging (-hide_banner -loglevel level+info) is added
// automatically at Build() time unless the caller already set one.
type Builder struct {
	binary      string
	globalArgs  []string
	inputArgs   []string
	outputArgs  []string
	outputs     []OutputDescriptor
	stdinPiped  bool
	hasLoglevel bool
	hasBanner   bool
}

// New starts a builder for the given ffmpeg executable path. An empty
// path defaults to "ffmpeg" resolved via PATH at spawn time.
func New(binaryPath string) *Builder {
	if binaryPath == "" {
		binaryPath = "ffmpeg"
	}
	return &Builder{binary: binaryPath}
}

func (b *Builder) HideBanner() *Builder {
	b.hasBanner = true
	b.globalArgs = append(b.globalArgs, "-hide_banner")
	return b
}

// LogLevel sets an explicit -loglevel value, e.g. "level+info" or
// "level+verbose". Build() will not override an explicit choice.
func (b *Builder) LogLevel(level string) *Builder {
	b.hasLoglevel = true
	b.globalArgs = append(b.globalArgs, "-loglevel", level)
	return b
}

func (b *Builder) Overwrite() *Builder {
	b.globalArgs = append(b.globalArgs, "-y")
	return b
}

// Progress enables machine-readable progress reporting on the given file
// descriptor target, e.g. "pipe:2" to interleave progress with stderr.
func (b *Builder) Progress(target string) *Builder {
	b.globalArgs = append(b.globalArgs, "-progress", target)
	return b
}

func (b *Builder) Input(url string) *Builder {
	b.inputArgs = append(b.inputArgs, "-i", url)
	return b
}

// InputArgs appends raw arguments before the next -i, e.g. for -f lavfi.
func (b *Builder) InputArgs(args ...string) *Builder {
	b.inputArgs = append(b.inputArgs, args...)
	return b
}

func (b *Builder) Reconnect(enabled bool) *Builder {
	if enabled {
		b.inputArgs = append(b.inputArgs, "-reconnect", "1", "-reconnect_streamed", "1")
	}
	return b
}

func (b *Builder) VideoCodec(codec string) *Builder {
	b.outputArgs = append(b.outputArgs, "-c:v", codec)
	return b
}

func (b *Builder) AudioCodec(codec string) *Builder {
	b.outputArgs = append(b.outputArgs, "-c:a", codec)
	return b
}

func (b *Builder) PixelFormat(pixFmt string) *Builder {
	b.outputArgs = append(b.outputArgs, "-pix_fmt", pixFmt)
	return b
}

func (b *Builder) Frames(count int) *Builder {
	b.outputArgs = append(b.outputArgs, "-frames:v", fmt.Sprintf("%d", count))
	return b
}

// OutputArgs appends raw arguments immediately before the output sink.
func (b *Builder) OutputArgs(args ...string) *Builder {
	b.outputArgs = append(b.outputArgs, args...)
	return b
}

// Output declares an output with explicit format and sink. sink "-",
// "pipe:" and "pipe:1" are all recognized as stdout.
func (b *Builder) Output(format, sink string) *Builder {
	toStdout := sink == "-" || sink == "pipe:" || sink == "pipe:1"
	b.outputArgs = append(b.outputArgs, "-f", format, sink)
	b.outputs = append(b.outputs, OutputDescriptor{Sink: sink, Format: format, ToStdout: toStdout})
	return b
}

// StdinPiped marks the child's stdin as a pipe the caller may write to,
// in particular for the "q\n" graceful-quit protocol.
func (b *Builder) StdinPiped(piped bool) *Builder {
	b.stdinPiped = piped
	return b
}

// Build finalizes the argument list and returns the Spec. It adds
// -hide_banner and -loglevel level+info when the caller has not already
// set them, per the external interface contract: every stderr log line
// must carry a level tag for the parser to classify.
func (b *Builder) Build() Spec {
	args := make([]string, 0, len(b.globalArgs)+len(b.inputArgs)+len(b.outputArgs)+4)

	if !b.hasBanner {
		args = append(args, "-hide_banner")
	}
	if !b.hasLoglevel {
		args = append(args, "-loglevel", "level+info")
	}
	args = append(args, b.globalArgs...)
	args = append(args, b.inputArgs...)
	args = append(args, b.outputArgs...)

	return Spec{
		BinaryPath: b.binary,
		Args:       args,
		StdinPiped: b.stdinPiped,
		Outputs:    append([]OutputDescriptor(nil), b.outputs...),
	}
}
