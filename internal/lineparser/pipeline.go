package lineparser

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"

	"github.com/kestrelio/ffmpegevents/internal/event"
)

// LineSource reads lines from an underlying stream and feeds them to a
// Pipeline. Implementations must call Pipeline.CloseChannel on exit.
type LineSource interface {
	Run()
	Close() error
	Stats() (bytesRead, linesRead int64, healthy bool)
}

// EventParser turns a single line into zero or more events. *Parser
// implements this.
type EventParser interface {
	ParseLine(line string) []event.Event
}

// Pipeline carries lines from a reader goroutine to a parser goroutine
// over a bounded channel. Unlike a sampling/stats pipeline that can
// afford to drop lines under load, this channel send always blocks: a
// slow consumer backpressures the reader, and through it the pipe buffer
// feeding the child process (§5).
type Pipeline struct {
	lineChan chan string
	closeOnce sync.Once

	linesRead atomic.Int64
	bytesRead atomic.Int64
}

func NewPipeline(bufferSize int) *Pipeline {
	if bufferSize <= 0 {
		bufferSize = 32
	}
	return &Pipeline{lineChan: make(chan string, bufferSize)}
}

// FeedLine blocks until the line is accepted. Only the owning reader
// goroutine calls this, and it alone calls CloseChannel afterward, so
// there is no send-after-close race to guard against.
func (p *Pipeline) FeedLine(line string) {
	p.lineChan <- line
}

// CloseChannel closes the line channel. Idempotent.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() { close(p.lineChan) })
}

// RunParser drains lines from the channel, feeding each into parser and
// forwarding every resulting event to sink. Returns when the channel is
// closed and drained.
func (p *Pipeline) RunParser(parser EventParser, sink func(event.Event)) {
	for line := range p.lineChan {
		for _, ev := range parser.ParseLine(line) {
			sink(ev)
		}
	}
}

// RunReader scans r line by line, feeding Pipeline until EOF or a read
// error. It must be run from its own goroutine and always closes the
// pipeline's channel on return, matching the LineSource contract.
func (p *Pipeline) RunReader(r io.Reader) {
	defer p.CloseChannel()

	scanner := bufio.NewScanner(r)
	const maxLineSize = 64 * 1024
	scanner.Buffer(make([]byte, maxLineSize), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		p.bytesRead.Add(int64(len(line) + 1))
		p.linesRead.Add(1)
		p.FeedLine(line)
	}
}

func (p *Pipeline) Stats() (bytesRead, linesRead int64) {
	return p.bytesRead.Load(), p.linesRead.Load()
}

// PipeReader adapts an io.Reader (a stdout or stderr pipe) into a
// LineSource over a Pipeline.
type PipeReader struct {
	r        io.Reader
	pipeline *Pipeline
	closed   atomic.Bool
}

func NewPipeReader(r io.Reader, pipeline *Pipeline) *PipeReader {
	return &PipeReader{r: r, pipeline: pipeline}
}

func (pr *PipeReader) Run() {
	pr.pipeline.RunReader(pr.r)
}

func (pr *PipeReader) Close() error {
	pr.closed.Store(true)
	if c, ok := pr.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (pr *PipeReader) Stats() (bytesRead, linesRead int64, healthy bool) {
	b, l := pr.pipeline.Stats()
	return b, l, !pr.closed.Load()
}

var _ LineSource = (*PipeReader)(nil)
