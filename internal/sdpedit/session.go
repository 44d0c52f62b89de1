// Package sdpedit rewrites session descriptions to enforce codec and bitrate
// preferences. Descriptions are parsed into session-level lines plus media
// sections and written back in the original line order; anything the edits
// do not touch is emitted byte for byte.
package sdpedit

import (
	"strings"
)

const (
	KindAudio = "audio"
	KindVideo = "video"
)

// Session is a line-indexed session description.
type Session struct {
	eol      string
	trailing bool

	Header []string
	Media  []*Media
}

// Media is one m= section. Lines holds every line after the m= line up to
// the next m= line.
type Media struct {
	raw     string
	parsed  bool
	Kind    string
	Port    string
	Proto   string
	Formats []string
	Lines   []string
}

func Parse(raw string) *Session {
	s := &Session{eol: "\n"}
	if strings.Contains(raw, "\r\n") {
		s.eol = "\r\n"
	}
	s.trailing = strings.HasSuffix(raw, "\n")

	var cur *Media
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "m=") {
			cur = parseMediaLine(line)
			s.Media = append(s.Media, cur)
			continue
		}
		if cur == nil {
			s.Header = append(s.Header, line)
		} else {
			cur.Lines = append(cur.Lines, line)
		}
	}
	return s
}

func parseMediaLine(line string) *Media {
	m := &Media{raw: line}
	fields := strings.Fields(strings.TrimPrefix(line, "m="))
	if len(fields) < 3 {
		return m
	}
	m.parsed = true
	m.Kind = fields[0]
	m.Port = fields[1]
	m.Proto = fields[2]
	m.Formats = append([]string(nil), fields[3:]...)
	return m
}

func (s *Session) String() string {
	lines := make([]string, 0, len(s.Header)+8*len(s.Media))
	lines = append(lines, s.Header...)
	for _, m := range s.Media {
		lines = append(lines, m.MLine())
		lines = append(lines, m.Lines...)
	}
	out := strings.Join(lines, s.eol)
	if s.trailing {
		out += s.eol
	}
	return out
}

// FirstMedia returns the first section of the given kind, or nil.
func (s *Session) FirstMedia(kind string) *Media {
	for _, m := range s.Media {
		if m.Kind == kind {
			return m
		}
	}
	return nil
}

// HasMedia reports whether raw carries an active section of the given kind.
// A section with port 0 is rejected and does not count.
func HasMedia(raw, kind string) bool {
	for _, m := range Parse(raw).Media {
		if m.Kind == kind && m.Port != "0" {
			return true
		}
	}
	return false
}

func (m *Media) MLine() string {
	if !m.parsed {
		return m.raw
	}
	parts := make([]string, 0, 3+len(m.Formats))
	parts = append(parts, m.Kind, m.Port, m.Proto)
	parts = append(parts, m.Formats...)
	return "m=" + strings.Join(parts, " ")
}

func (m *Media) indexOf(prefix string) int {
	for i, l := range m.Lines {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	return -1
}

func (m *Media) insertAt(i int, line string) {
	m.Lines = append(m.Lines, "")
	copy(m.Lines[i+1:], m.Lines[i:])
	m.Lines[i] = line
}

func (m *Media) removeAt(i int) {
	m.Lines = append(m.Lines[:i], m.Lines[i+1:]...)
}
