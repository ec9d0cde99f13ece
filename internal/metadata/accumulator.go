// Package metadata assembles stream-declaration tokens from FFmpeg's
// stderr into typed Stream records (Component B of the event pipeline).
// It is a stateless, per-kind grammar: each "Stream #I:S: Kind: rest"
// line is fully self-describing, so there is no cross-line state to
// accumulate beyond what the caller (the log parser's section state)
// already tracks.
package metadata

import (
	"strings"

	"github.com/kestrelio/ffmpegevents/internal/event"
)

// ParseStreamDescriptor interprets the kind token and remainder of a
// "Stream #I:S[...]: <Kind>: <rest>" line into a Stream payload. parentIsOutput
// and parentIndex/streamIndex are supplied by the caller, which already
// knows the enclosing section from its own state machine.
func ParseStreamDescriptor(parentIsOutput bool, parentIndex, streamIndex int, kindToken, rest string) event.Stream {
	s := event.Stream{
		ParentIsOutput: parentIsOutput,
		ParentIndex:    parentIndex,
		StreamIndex:    streamIndex,
		Kind:           classifyKind(kindToken),
		CodecName:      codecName(rest),
	}

	switch s.Kind {
	case event.KindVideo:
		s.Video = parseVideo(rest)
	case event.KindAudio:
		s.Audio = parseAudio(rest)
	}

	return s
}

func classifyKind(token string) event.StreamKind {
	switch strings.ToLower(strings.TrimSpace(token)) {
	case "video":
		return event.KindVideo
	case "audio":
		return event.KindAudio
	case "subtitle":
		return event.KindSubtitle
	case "data":
		return event.KindData
	case "attachment":
		return event.KindAttachment
	default:
		return event.KindOther
	}
}

func parseVideo(rest string) event.VideoInfo {
	fields := splitFields(rest)
	v := event.VideoInfo{
		PixelFormat: parsePixelFormat(fields),
	}
	v.Width, v.Height, _ = parseResolution(rest)
	v.SAR, v.DAR = parseSARDAR(rest)
	v.FPS, v.IndeterminateFPS, _ = parseFPS(rest)
	if kbps, ok := parseKbps(rest); ok {
		v.BitrateKbps = kbps
		v.HasBitrate = true
	}
	return v
}

func parseAudio(rest string) event.AudioInfo {
	fields := splitFields(rest)
	a := event.AudioInfo{}
	a.SampleRateHz, _ = parseHz(rest)
	a.ChannelLayout = parseChannelLayout(fields)
	a.SampleFormat = parseSampleFormat(fields)
	if kbps, ok := parseKbps(rest); ok {
		a.BitrateKbps = kbps
		a.HasBitrate = true
	}
	return a
}

// IsRawVideoCandidate reports whether a video stream has enough resolved
// geometry to be framed as raw video on stdout (§4.2's "opaque output"
// edge case: zero width/height disqualifies it).
func IsRawVideoCandidate(s event.Stream) bool {
	return s.Kind == event.KindVideo && s.Video.Width > 0 && s.Video.Height > 0
}
