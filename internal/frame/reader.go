// Package frame implements the Stdout Frame Reader (Component D): given
// a resolved layout.Plan, it slices stdout into fixed-size frames in a
// tight blocking read loop.
package frame

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/kestrelio/ffmpegevents/internal/event"
	"github.com/kestrelio/ffmpegevents/internal/layout"
)

// Reader slices an io.Reader into Frame events according to plan.
type Reader struct {
	r    io.Reader
	plan layout.Plan
	buf  []byte
	idx  int64
	fps  float64
}

func NewReader(r io.Reader, plan layout.Plan) *Reader {
	return &Reader{r: r, plan: plan, buf: make([]byte, plan.FrameSize)}
}

// WithFPS attaches the source stream's frame rate so frame timestamps
// can be computed as frameIndex/fps, per §4.4. A zero or unset fps
// leaves Timestamp at zero; monotonic ordering then falls back to
// FrameIndex, as the spec allows.
func (rd *Reader) WithFPS(fps float64) *Reader {
	rd.fps = fps
	return rd
}

// Run reads frames until EOF or an error, sending one event per frame
// (or a final Log/Error) to sink. It returns normally on clean EOF.
func (rd *Reader) Run(sink func(event.Event)) {
	for {
		n, err := io.ReadFull(rd.r, rd.buf)
		switch {
		case err == nil:
			sink(event.NewOutputFrame(rd.buildFrame(rd.buf)))
			rd.idx++

		case errors.Is(err, io.EOF):
			return

		case errors.Is(err, io.ErrUnexpectedEOF):
			if n > 0 {
				sink(event.NewLog(event.LogLine{
					Level: event.LevelWarning,
					Text:  fmt.Sprintf("truncated final frame of %d bytes", n),
				}))
			}
			return

		default:
			sink(event.NewError(event.Wrap(event.ErrorStdoutReadFailure, err, "reading stdout frame")))
			return
		}
	}
}

func (rd *Reader) buildFrame(data []byte) event.Frame {
	f := event.Frame{
		OutputIndex: rd.plan.OutputIndex,
		StreamIndex: rd.plan.StreamIndex,
		FrameIndex:  rd.idx,
		Data:        append([]byte(nil), data...),
	}

	switch rd.plan.Kind {
	case layout.KindRawVideo:
		f.Width = rd.plan.Width
		f.Height = rd.plan.Height
		f.PixelFormat = rd.plan.PixelFormat
		if rd.fps > 0 {
			f.Timestamp = time.Duration(float64(rd.idx) / rd.fps * float64(time.Second))
		}
	case layout.KindRawAudio:
		f.SampleRate = rd.plan.SampleRate
		f.Channels = rd.plan.Channels
		f.SampleFmt = rd.plan.SampleFormat
	}

	return f
}
