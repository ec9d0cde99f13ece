// Package event defines the data model shared across the ffmpeg event
// pipeline: the input/output/stream declarations parsed from stderr, the
// progress and frame records, and the FfmpegEvent sum type that carries
// all of them to the caller on a single channel.
package event

import "time"

// Level is a classified FFmpeg log line severity.
type Level int

const (
	LevelUnknown Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// StreamKind identifies the media kind of a declared stream.
type StreamKind int

const (
	KindOther StreamKind = iota
	KindVideo
	KindAudio
	KindSubtitle
	KindData
	KindAttachment
)

func (k StreamKind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	case KindSubtitle:
		return "subtitle"
	case KindData:
		return "data"
	case KindAttachment:
		return "attachment"
	default:
		return "other"
	}
}

// LogLine is a single classified line of FFmpeg stderr output.
type LogLine struct {
	Level   Level
	Text    string
	Section string // e.g. "input:0", "output:1", "" for lines outside any section
}

// Container describes one Input or Output section header.
type Container struct {
	Index    int               // 0-based, declaration order
	Format   string            // container/format name, e.g. "mov,mp4,m4a,3gp,3g2,mj2"
	Location string            // URL or path (input) or sink (output)
	Duration time.Duration     // 0 if unknown
	Metadata map[string]string // key/value pairs found inside the section
}

// VideoInfo is the kind-specific payload for a video stream.
type VideoInfo struct {
	PixelFormat          string
	Width, Height        int
	FPS                  float64
	IndeterminateFPS      bool
	SAR, DAR             string // e.g. "1:1", "16:9"; empty if not present
	BitrateKbps          float64
	HasBitrate           bool
}

// AudioInfo is the kind-specific payload for an audio stream.
type AudioInfo struct {
	SampleFormat   string
	SampleRateHz   int
	ChannelLayout  string
	BitrateKbps    float64
	HasBitrate     bool
}

// Stream is a declared input or output stream.
type Stream struct {
	ParentIsOutput bool // false => belongs to an Input, true => an Output
	ParentIndex    int
	StreamIndex    int
	Kind           StreamKind
	CodecName      string

	Video VideoInfo // valid when Kind == KindVideo
	Audio AudioInfo // valid when Kind == KindAudio
}

// StreamMapping is one "a:b -> c:d" line from a "Stream mapping:" block.
type StreamMapping struct {
	From string
	To   string
}

// Progress is a parsed `-progress` status line.
type Progress struct {
	Frame         int64
	FPS           float64
	BitrateKbps   float64
	TotalSizeBytes int64
	OutTime       time.Duration
	Speed         float64
	DupFrames     int64
	DropFrames    int64
	Done          bool // true when progress=end
}

// Frame is one sliced unit of stdout output: a video frame or an audio chunk.
type Frame struct {
	OutputIndex int
	StreamIndex int
	Width       int // 0 for audio
	Height      int // 0 for audio
	PixelFormat string
	SampleRate  int // 0 for video
	Channels    int // 0 for video
	SampleFmt   string
	Timestamp   time.Duration
	FrameIndex  int64
	Data        []byte
}

// Status is the terminal status of a completed run, carried by a Done event.
type Status struct {
	Success  bool
	ExitCode int
}

// Kind discriminates the FfmpegEvent sum type.
type Kind int

const (
	KindParsedInput Kind = iota
	KindParsedOutput
	KindParsedStreamMapping
	KindParsedInputStream
	KindParsedOutputStream
	KindProgress
	KindLog
	KindOutputFrame
	KindOutputsExhausted
	KindDone
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindParsedInput:
		return "ParsedInput"
	case KindParsedOutput:
		return "ParsedOutput"
	case KindParsedStreamMapping:
		return "ParsedStreamMapping"
	case KindParsedInputStream:
		return "ParsedInputStream"
	case KindParsedOutputStream:
		return "ParsedOutputStream"
	case KindProgress:
		return "Progress"
	case KindLog:
		return "Log"
	case KindOutputFrame:
		return "OutputFrame"
	case KindOutputsExhausted:
		return "OutputsExhausted"
	case KindDone:
		return "Done"
	case KindError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Event is the tagged sum type delivered on the merged channel. Exactly one
// of the payload fields is meaningful, selected by Kind; Go has no native
// tagged union so this is the idiomatic flat-struct-with-discriminant shape.
type Event struct {
	Kind Kind

	Input         Container
	Output        Container
	Mapping       StreamMapping
	Stream        Stream
	Progress      Progress
	Log           LogLine
	Frame         Frame
	Status        Status
	Err           error
}

func NewParsedInput(c Container) Event  { return Event{Kind: KindParsedInput, Input: c} }
func NewParsedOutput(c Container) Event { return Event{Kind: KindParsedOutput, Output: c} }
func NewParsedStreamMapping(m StreamMapping) Event {
	return Event{Kind: KindParsedStreamMapping, Mapping: m}
}
func NewParsedInputStream(s Stream) Event  { return Event{Kind: KindParsedInputStream, Stream: s} }
func NewParsedOutputStream(s Stream) Event { return Event{Kind: KindParsedOutputStream, Stream: s} }
func NewProgress(p Progress) Event         { return Event{Kind: KindProgress, Progress: p} }
func NewLog(l LogLine) Event               { return Event{Kind: KindLog, Log: l} }
func NewOutputFrame(f Frame) Event         { return Event{Kind: KindOutputFrame, Frame: f} }
func NewOutputsExhausted() Event           { return Event{Kind: KindOutputsExhausted} }
func NewDone(s Status) Event               { return Event{Kind: KindDone, Status: s} }
func NewError(err error) Event             { return Event{Kind: KindError, Err: err} }
