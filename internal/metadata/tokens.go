package metadata

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	// Bounded width/height digit counts and required boundary characters
	// keep this from matching inside a hex literal like "0x31637661"
	// (a codec tag) that can appear earlier on the same descriptor line.
	reResolution = regexp.MustCompile(`(?:^|[\s,\[])(\d{1,5})x(\d{1,5})(?:[\s,\]]|$)`)
	reSARDAR     = regexp.MustCompile(`\[SAR (\d+:\d+) DAR (\d+:\d+)\]`)
	reFPS        = regexp.MustCompile(`([\d.]+) fps`)
	reZeroFPS    = regexp.MustCompile(`\b0/0\b`)
	reKbps       = regexp.MustCompile(`([\d.]+) kb/s`)
	reHz         = regexp.MustCompile(`(\d+) Hz`)
	rePixFmt     = regexp.MustCompile(`\b([a-z0-9_]+?)(?:\([^)]*\))?(?:,|\s|$)`)
)

var knownPixelFormats = map[string]bool{
	"yuv420p": true, "yuv422p": true, "yuv444p": true, "yuvj420p": true,
	"nv12": true, "nv21": true, "rgb24": true, "rgba": true, "bgr24": true,
	"bgra": true, "gray": true, "gray16le": true, "gray8": true,
}

var knownChannelLayouts = []string{
	"mono", "stereo", "5.1(side)", "5.1", "7.1", "quad", "2.1", "3.0", "4.0", "7.1(wide)",
}

var knownSampleFormats = []string{
	"fltp", "flt", "s16p", "s16", "s32p", "s32", "u8p", "u8", "dblp", "dbl",
}

// codecName extracts the leading codec token from a stream descriptor's
// remainder, e.g. "h264 (High) (avc1 / ...), yuv420p, ..." -> "h264".
func codecName(rest string) string {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	end := len(rest)
	for i, r := range rest {
		if r == '(' || r == ',' {
			end = i
			break
		}
	}
	return strings.TrimSpace(rest[:end])
}

// splitFields splits a stream descriptor remainder on commas and trims
// the surrounding whitespace of each field.
func splitFields(rest string) []string {
	parts := strings.Split(rest, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parsePixelFormat(fields []string) string {
	for _, f := range fields {
		token := f
		if idx := strings.IndexByte(token, '('); idx >= 0 {
			token = token[:idx]
		}
		token = strings.TrimSpace(token)
		if knownPixelFormats[token] {
			return token
		}
	}
	return ""
}

func parseResolution(rest string) (w, h int, ok bool) {
	m := reResolution.FindStringSubmatch(rest)
	if m == nil {
		return 0, 0, false
	}
	w, _ = strconv.Atoi(m[1])
	h, _ = strconv.Atoi(m[2])
	return w, h, true
}

func parseSARDAR(rest string) (sar, dar string) {
	m := reSARDAR.FindStringSubmatch(rest)
	if m == nil {
		return "", ""
	}
	return m[1], m[2]
}

func parseFPS(rest string) (fps float64, indeterminate bool, ok bool) {
	if reZeroFPS.MatchString(rest) {
		return 0, true, true
	}
	m := reFPS.FindStringSubmatch(rest)
	if m == nil {
		return 0, false, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false, false
	}
	if v == 0 {
		return 0, true, true
	}
	return v, false, true
}

func parseKbps(rest string) (float64, bool) {
	m := reKbps.FindStringSubmatch(rest)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseHz(rest string) (int, bool) {
	m := reHz.FindStringSubmatch(rest)
	if m == nil {
		return 0, false
	}
	v, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseChannelLayout(fields []string) string {
	for _, f := range fields {
		for _, layout := range knownChannelLayouts {
			if f == layout {
				return f
			}
		}
	}
	return ""
}

func parseSampleFormat(fields []string) string {
	for _, f := range fields {
		for _, sf := range knownSampleFormats {
			if f == sf {
				return f
			}
		}
	}
	return ""
}
