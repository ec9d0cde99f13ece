// Package layout implements the Output Layout Resolver (Component C):
// given the parsed output streams bound for stdout, it decides whether
// stdout carries fixed-size frames the module can slice itself, or an
// opaque byte stream handed to the caller raw.
package layout

import (
	"github.com/kestrelio/ffmpegevents/internal/event"
)

// bytesPerPixelTable is the static pixel-format table from §4.3. Values
// are expressed as (numerator, denominator) so yuv420p/nv12's 1.5
// bytes/pixel stays exact integer arithmetic: frame size = w*h*num/den.
var bytesPerPixelTable = map[string][2]int{
	"rgb24":    {3, 1},
	"rgba":     {4, 1},
	"bgr24":    {3, 1},
	"bgra":     {4, 1},
	"gray":     {1, 1},
	"gray16le": {2, 1},
	"yuv420p":  {3, 2},
	"yuv422p":  {2, 1},
	"yuv444p":  {3, 1},
	"nv12":     {3, 2},
}

// BytesPerPixel returns the table entry for pixFmt and whether it is
// known. Unknown formats must be rejected, never silently guessed.
func BytesPerPixel(pixFmt string) (num, den int, ok bool) {
	e, ok := bytesPerPixelTable[pixFmt]
	if !ok {
		return 0, 0, false
	}
	return e[0], e[1], true
}

// FrameSize computes the byte size of one rawvideo frame for pixFmt at
// w x h. ok is false for an unknown pixel format or a w*h that does not
// divide evenly under the format's byte-per-pixel ratio (e.g. an odd
// total pixel count for a 3/2 format).
func FrameSize(pixFmt string, w, h int) (size int, ok bool) {
	num, den, known := BytesPerPixel(pixFmt)
	if !known {
		return 0, false
	}
	total := w * h * num
	if total%den != 0 {
		return 0, false
	}
	return total / den, true
}

// ChunkFrames is the number of samples per channel in one rawaudio chunk
// read from stdout, per the resolved Open Question in SPEC_FULL.md §9.
const ChunkFrames = 1024

// sampleFormatBytes maps an FFmpeg sample format name to its per-sample
// byte width.
var sampleFormatBytes = map[string]int{
	"u8": 1, "u8p": 1,
	"s16": 2, "s16p": 2,
	"s32": 4, "s32p": 4,
	"flt": 4, "fltp": 4,
	"dbl": 8, "dblp": 8,
}

// SampleFormatBytes returns the byte width of one sample in sampleFmt.
func SampleFormatBytes(sampleFmt string) (int, bool) {
	b, ok := sampleFormatBytes[sampleFmt]
	return b, ok
}

// Kind discriminates the resolved stdout layout.
type Kind int

const (
	KindNone Kind = iota
	KindRawVideo
	KindRawAudio
	KindOpaque
)

// Plan is the stdout-framing decision produced before any byte of stdout
// is read. OutputIndex/StreamIndex identify which parsed stream the plan
// describes; FrameSize is the fixed byte size D reads at a time.
type Plan struct {
	Kind        Kind
	OutputIndex int
	StreamIndex int
	PixelFormat string
	Width       int
	Height      int
	FPS         float64
	FrameSize   int

	SampleRate   int
	Channels     int
	SampleFormat string
	ChunkSamples int
}

// rawVideoFormats are the container/format names treated as raw,
// fixed-size video output; pcm_* formats are the raw audio ones (see
// isRawAudioFormat). Everything else (h264, hevc, matroska, mp4, mp3,
// ...) is opaque.
var rawVideoFormats = map[string]bool{"rawvideo": true}

func isRawAudioFormat(format string) bool {
	return len(format) > 4 && format[:4] == "pcm_"
}

// Resolve inspects the ParsedOutputStream events belonging to stdout
// outputs and produces a Plan, or a LayoutUnsupported error per §4.3.
//
// outputFormats maps output index to its declared container format
// (from the matching ParsedOutput event); stdoutOutputs is the set of
// output indices whose sink is stdout.
func Resolve(streams []event.Stream, outputFormats map[int]string, stdoutOutputs map[int]bool) (Plan, error) {
	var candidates []event.Stream
	for _, s := range streams {
		if !s.ParentIsOutput {
			continue
		}
		if !stdoutOutputs[s.ParentIndex] {
			continue
		}
		candidates = append(candidates, s)
	}

	stdoutOutputIndices := map[int]bool{}
	for idx := range stdoutOutputs {
		if stdoutOutputs[idx] {
			stdoutOutputIndices[idx] = true
		}
	}
	if len(stdoutOutputIndices) > 1 {
		return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "multiple outputs share stdout")
	}
	if len(candidates) == 0 {
		return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "no stream resolved for stdout output")
	}
	if len(candidates) > 1 {
		return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "multiple streams multiplexed onto a single stdout output")
	}

	s := candidates[0]
	format := outputFormats[s.ParentIndex]

	switch {
	case rawVideoFormats[format]:
		if s.Kind != event.KindVideo {
			return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "rawvideo output stream is not video")
		}
		// Zero width or height leaves no frame size to slice by: the
		// output is handed over as opaque bytes instead.
		if s.Video.Width == 0 || s.Video.Height == 0 {
			return Plan{Kind: KindOpaque, OutputIndex: s.ParentIndex, StreamIndex: s.StreamIndex}, nil
		}
		size, ok := FrameSize(s.Video.PixelFormat, s.Video.Width, s.Video.Height)
		if !ok {
			return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "unknown or incompatible pixel format %q", s.Video.PixelFormat)
		}
		return Plan{
			Kind:        KindRawVideo,
			OutputIndex: s.ParentIndex,
			StreamIndex: s.StreamIndex,
			PixelFormat: s.Video.PixelFormat,
			Width:       s.Video.Width,
			Height:      s.Video.Height,
			FPS:         s.Video.FPS,
			FrameSize:   size,
		}, nil

	case isRawAudioFormat(format):
		if s.Kind != event.KindAudio {
			return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "pcm output stream is not audio")
		}
		sampleBytes, ok := SampleFormatBytes(s.Audio.SampleFormat)
		if !ok {
			return Plan{}, event.Newf(event.ErrorLayoutUnsupported, "unknown sample format %q", s.Audio.SampleFormat)
		}
		channels := channelsFromLayout(s.Audio.ChannelLayout)
		if channels == 0 {
			channels = 1
		}
		return Plan{
			Kind:         KindRawAudio,
			OutputIndex:  s.ParentIndex,
			StreamIndex:  s.StreamIndex,
			SampleRate:   s.Audio.SampleRateHz,
			Channels:     channels,
			SampleFormat: s.Audio.SampleFormat,
			ChunkSamples: ChunkFrames,
			FrameSize:    sampleBytes * channels * ChunkFrames,
		}, nil

	default:
		return Plan{Kind: KindOpaque, OutputIndex: s.ParentIndex, StreamIndex: s.StreamIndex}, nil
	}
}

func channelsFromLayout(layout string) int {
	switch layout {
	case "mono":
		return 1
	case "stereo", "2.1":
		return 2
	case "3.0":
		return 3
	case "4.0", "quad":
		return 4
	case "5.1", "5.1(side)":
		return 6
	case "7.1", "7.1(wide)":
		return 8
	default:
		return 0
	}
}
