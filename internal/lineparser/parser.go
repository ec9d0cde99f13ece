// Package lineparser implements the stderr log parser and event
// synthesizer (Component A): a stateful classifier that turns each
// terminated line of FFmpeg's stderr into zero or more typed events,
// delegating stream-descriptor grammar to the metadata package and
// progress-line grammar to the progress package.
package lineparser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/kestrelio/ffmpegevents/internal/event"
	"github.com/kestrelio/ffmpegevents/internal/metadata"
	progresspkg "github.com/kestrelio/ffmpegevents/internal/progress"
)

// phase is the parser's state machine position, per §4.1.
type phase int

const (
	phasePreBanner phase = iota
	phaseBanner
	phaseBody
	phaseInInput
	phaseInOutput
	phaseInStreamMapping
)

var (
	reInputHeader  = regexp.MustCompile(`^Input #(\d+), (.+), from '(.*)':$`)
	reOutputHeader = regexp.MustCompile(`^Output #(\d+), (.+), to '(.*)':$`)
	reStreamLine   = regexp.MustCompile(`^Stream #(\d+):(\d+)(?:\[[^\]]*\])?(?:\([a-zA-Z]+\))?: (\w+): (.*)$`)
	// reLevelPrefix strips the "[level]" tag that -loglevel's "level"
	// modifier prepends to every stderr line. The captured remainder
	// keeps any indentation that followed the tag, since the tag itself
	// carries no indentation information about the line it prefixes.
	reLevelPrefix = regexp.MustCompile(`^\[(info|warning|error|fatal|debug|trace)\](.*)$`)
)

var recognizedLevels = map[string]event.Level{
	"info":    event.LevelInfo,
	"warning": event.LevelWarning,
	"error":   event.LevelError,
	"fatal":   event.LevelFatal,
	// debug/trace have no dedicated Level constant; they are informational.
	"debug": event.LevelInfo,
	"trace": event.LevelInfo,
}

// Parser is the stderr state machine. It is not safe for concurrent use;
// the supervisor drives it from a single stderr reader goroutine.
type Parser struct {
	ph              phase
	bannerSeen      bool
	sectionIndex    int
	sectionIsOutput bool
	progress        *progresspkg.Parser
}

func NewParser() *Parser {
	return &Parser{
		ph:       phasePreBanner,
		progress: progresspkg.NewParser(),
	}
}

// ParseLine classifies one stderr line and returns the events it
// produces. Most lines produce exactly one event; the "Stream mapping:"
// header itself produces none (it only opens a new phase).
func (p *Parser) ParseLine(raw string) []event.Event {
	text := raw
	var level event.Level
	hasLevel := false
	if m := reLevelPrefix.FindStringSubmatch(raw); m != nil {
		if lvl, ok := recognizedLevels[m[1]]; ok {
			level = lvl
			hasLevel = true
		}
		text = m[2]
	}

	trimmed := strings.TrimSpace(text)
	indented := len(text) > 0 && (text[0] == ' ' || text[0] == '\t')

	if trimmed == "" {
		// An empty line ends the banner/configuration block.
		if p.ph == phaseBanner {
			p.ph = phaseBody
		}
		return nil
	}

	if p.ph == phasePreBanner {
		if strings.HasPrefix(trimmed, "ffmpeg version ") {
			p.ph = phaseBanner
			p.bannerSeen = true
			return []event.Event{event.NewLog(event.LogLine{Level: resolveLevel(hasLevel, level, event.LevelInfo), Text: trimmed})}
		}
	}

	if m := reInputHeader.FindStringSubmatch(trimmed); m != nil {
		idx, _ := strconv.Atoi(m[1])
		p.ph = phaseInInput
		p.sectionIndex = idx
		p.sectionIsOutput = false
		return []event.Event{event.NewParsedInput(event.Container{
			Index:    idx,
			Format:   m[2],
			Location: m[3],
			Metadata: map[string]string{},
		})}
	}

	if m := reOutputHeader.FindStringSubmatch(trimmed); m != nil {
		idx, _ := strconv.Atoi(m[1])
		p.ph = phaseInOutput
		p.sectionIndex = idx
		p.sectionIsOutput = true
		return []event.Event{event.NewParsedOutput(event.Container{
			Index:    idx,
			Format:   m[2],
			Location: m[3],
			Metadata: map[string]string{},
		})}
	}

	if trimmed == "Stream mapping:" {
		p.ph = phaseInStreamMapping
		return nil
	}

	// Stream declarations are matched before the progress check: an
	// output stream descriptor can carry tokens such as "q=2-31" that
	// would otherwise read as a progress anchor.
	if (p.ph == phaseInInput || p.ph == phaseInOutput) && indented {
		if m := reStreamLine.FindStringSubmatch(trimmed); m != nil {
			streamIdx, _ := strconv.Atoi(m[2])
			s := metadata.ParseStreamDescriptor(p.sectionIsOutput, p.sectionIndex, streamIdx, m[3], m[4])
			if p.sectionIsOutput {
				return []event.Event{event.NewParsedOutputStream(s)}
			}
			return []event.Event{event.NewParsedInputStream(s)}
		}
	}

	if progresspkg.IsProgressLine(trimmed) {
		// A progress line always de-indents out of whatever section was open.
		p.ph = phaseBody
		if prog, ok := p.progress.ParseLine(trimmed); ok {
			return []event.Event{event.NewProgress(prog)}
		}
		return nil
	}

	if p.ph == phaseInStreamMapping {
		if indented {
			if mapping, ok := parseMappingLine(trimmed); ok {
				return []event.Event{event.NewParsedStreamMapping(mapping)}
			}
			return []event.Event{event.NewLog(event.LogLine{Level: resolveLevel(hasLevel, level, event.LevelInfo), Text: trimmed, Section: "stream_mapping"})}
		}
		p.ph = phaseBody
		// fall through: reclassify this de-indenting line under body rules.
	}

	if (p.ph == phaseInInput || p.ph == phaseInOutput) && indented {
		section := sectionLabel(p.sectionIsOutput, p.sectionIndex)
		return []event.Event{event.NewLog(event.LogLine{Level: resolveLevel(hasLevel, level, event.LevelInfo), Text: trimmed, Section: section})}
	}

	if (p.ph == phaseInInput || p.ph == phaseInOutput) && !indented {
		p.ph = phaseBody
		// fall through to body-level classification below.
	}

	if p.ph == phaseBanner {
		return []event.Event{event.NewLog(event.LogLine{Level: resolveLevel(hasLevel, level, event.LevelInfo), Text: trimmed})}
	}

	return []event.Event{event.NewLog(event.LogLine{Level: resolveLevel(hasLevel, level, event.LevelUnknown), Text: trimmed})}
}

// resolveLevel prefers the level captured from an explicit "[level]"
// stderr prefix over a phase-based fallback guess.
func resolveLevel(hasLevel bool, level, fallback event.Level) event.Level {
	if hasLevel {
		return level
	}
	return fallback
}

func sectionLabel(isOutput bool, index int) string {
	if isOutput {
		return "output:" + strconv.Itoa(index)
	}
	return "input:" + strconv.Itoa(index)
}

func parseMappingLine(trimmed string) (event.StreamMapping, bool) {
	trimmed = strings.TrimPrefix(trimmed, "Stream ")
	idx := strings.Index(trimmed, "->")
	if idx < 0 {
		return event.StreamMapping{}, false
	}
	from := strings.TrimSpace(trimmed[:idx])
	to := strings.TrimSpace(trimmed[idx+2:])
	if from == "" || to == "" {
		return event.StreamMapping{}, false
	}
	return event.StreamMapping{From: from, To: to}, true
}
