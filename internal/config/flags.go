package config

import (
	"flag"
	"fmt"
	"os"
)

// ParseFlags parses command-line flags and returns a Config. The stream's
// input (a file path or URL) is the sole positional argument unless
// -synthetic is set.
func ParseFlags() (*Config, error) {
	cfg := DefaultConfig()

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `ffevents - drive ffmpeg as a structured event stream

Usage:
  ffevents [flags] <input>
  ffevents [flags] -synthetic

`)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  # Decode a file to raw video frames on stdout
  ffevents -output-format rawvideo video.mp4

  # Generate a synthetic source and watch it decode
  ffevents -synthetic -output-format rawvideo

  # Print the command ffevents would run, without running it
  ffevents --print-cmd video.mp4
`)
	}

	flag.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to the ffmpeg binary")
	flag.BoolVar(&cfg.Synthetic, "synthetic", cfg.Synthetic, "Use -f lavfi -i testsrc instead of a positional input")
	flag.StringVar(&cfg.LogLevel, "ffmpeg-loglevel", cfg.LogLevel, "ffmpeg -loglevel value")
	flag.BoolVar(&cfg.StdinPiped, "stdin-piped", cfg.StdinPiped, "Pipe stdin so Quit() can send ffmpeg's graceful-quit keystroke")

	flag.StringVar(&cfg.OutputFormat, "output-format", cfg.OutputFormat, "ffmpeg output format, e.g. rawvideo, h264")
	flag.StringVar(&cfg.OutputSink, "output-sink", cfg.OutputSink, "ffmpeg output sink, e.g. pipe:1")

	flag.DurationVar(&cfg.GracePeriod, "grace-period", cfg.GracePeriod, "Time to wait after SIGTERM/q before escalating")
	flag.IntVar(&cfg.ChannelBuffer, "channel-buffer", cfg.ChannelBuffer, "Event channel buffer size")

	flag.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, `Log format: "json", "text", or "auto"`)
	flag.StringVar(&cfg.AppLogLevel, "log-level", cfg.AppLogLevel, "Application log level: debug, info, warn, error")
	flag.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Prometheus metrics listen address (empty disables it)")

	flag.BoolVar(&cfg.TUIEnabled, "tui", cfg.TUIEnabled, "Render a live bubbletea dashboard instead of JSON lines")

	flag.BoolVar(&cfg.PrintCmd, "print-cmd", cfg.PrintCmd, "Print the ffmpeg command and exit")
	flag.BoolVar(&cfg.Check, "check", cfg.Check, "Verify the ffmpeg binary is resolvable and exit")

	flag.Parse()

	if args := flag.Args(); len(args) >= 1 {
		cfg.Input = args[0]
	}

	return cfg, nil
}
