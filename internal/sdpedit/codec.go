package sdpedit

import (
	"strings"
)

// staticPayloads names the RTP/AVP payload types that may appear without an
// rtpmap line.
var staticPayloads = map[string]string{
	"0":  "PCMU",
	"3":  "GSM",
	"4":  "G723",
	"8":  "PCMA",
	"9":  "G722",
	"18": "G729",
	"26": "JPEG",
	"34": "H263",
}

// PayloadFor returns the first payload type whose rtpmap names codec,
// matching case-insensitively. Static payload types are resolved when they
// have no rtpmap line.
func (m *Media) PayloadFor(codec string) (string, bool) {
	if codec == "" {
		return "", false
	}
	mapped := make(map[string]bool)
	for _, l := range m.Lines {
		pt, name, ok := parseRtpmap(l)
		if !ok {
			continue
		}
		mapped[pt] = true
		if strings.EqualFold(name, codec) && m.hasFormat(pt) {
			return pt, true
		}
	}
	for _, pt := range m.Formats {
		if mapped[pt] {
			continue
		}
		if name, ok := staticPayloads[pt]; ok && strings.EqualFold(name, codec) {
			return pt, true
		}
	}
	return "", false
}

func (m *Media) hasFormat(pt string) bool {
	for _, f := range m.Formats {
		if f == pt {
			return true
		}
	}
	return false
}

// parseRtpmap splits "a=rtpmap:111 opus/48000/2" into ("111", "opus").
func parseRtpmap(line string) (string, string, bool) {
	rest, ok := strings.CutPrefix(line, "a=rtpmap:")
	if !ok {
		return "", "", false
	}
	pt, enc, ok := strings.Cut(rest, " ")
	if !ok {
		return "", "", false
	}
	name, _, _ := strings.Cut(strings.TrimSpace(enc), "/")
	return pt, name, true
}

// MoveFormatToFront puts pt first in the m= line format list and keeps the
// relative order of the others. It reports whether the line changed.
func (m *Media) MoveFormatToFront(pt string) bool {
	idx := -1
	for i, f := range m.Formats {
		if f == pt {
			idx = i
			break
		}
	}
	if idx <= 0 {
		return false
	}
	reordered := make([]string, 0, len(m.Formats))
	reordered = append(reordered, pt)
	reordered = append(reordered, m.Formats[:idx]...)
	reordered = append(reordered, m.Formats[idx+1:]...)
	m.Formats = reordered
	return true
}
