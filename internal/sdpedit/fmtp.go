package sdpedit

import (
	"strings"
)

// Param is one fmtp parameter. Flags such as "0-15" have no value.
type Param struct {
	Key      string
	Value    string
	HasValue bool
}

func (p Param) String() string {
	if !p.HasValue {
		return p.Key
	}
	return p.Key + "=" + p.Value
}

// Params keeps fmtp parameters in their original order.
type Params []Param

func parseParams(s string) Params {
	var out Params
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		out = append(out, Param{Key: strings.TrimSpace(k), Value: strings.TrimSpace(v), HasValue: ok})
	}
	return out
}

func (ps Params) Get(key string) (string, bool) {
	for _, p := range ps {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// Set updates key in place or appends it.
func (ps Params) Set(key, value string) Params {
	for i, p := range ps {
		if p.Key == key {
			ps[i] = Param{Key: key, Value: value, HasValue: true}
			return ps
		}
	}
	return append(ps, Param{Key: key, Value: value, HasValue: true})
}

func (ps Params) Remove(key string) Params {
	out := ps[:0]
	for _, p := range ps {
		if p.Key != key {
			out = append(out, p)
		}
	}
	return out
}

func (ps Params) String() string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = p.String()
	}
	return strings.Join(parts, ";")
}

func fmtpPrefix(pt string) string { return "a=fmtp:" + pt + " " }

// Fmtp returns the parameters of pt and whether an fmtp line exists.
func (m *Media) Fmtp(pt string) (Params, bool) {
	i := m.fmtpIndex(pt)
	if i < 0 {
		return nil, false
	}
	return parseParams(strings.TrimPrefix(m.Lines[i], fmtpPrefix(pt))), true
}

func (m *Media) fmtpIndex(pt string) int {
	prefix := fmtpPrefix(pt)
	for i, l := range m.Lines {
		if strings.HasPrefix(l, prefix) || l == strings.TrimSpace(prefix) {
			return i
		}
	}
	return -1
}

// SetFmtp writes params for pt. An empty parameter list deletes the line.
// A new line goes right after the rtpmap of pt, or at the end of the
// section for static payloads.
func (m *Media) SetFmtp(pt string, params Params) bool {
	i := m.fmtpIndex(pt)
	if len(params) == 0 {
		if i < 0 {
			return false
		}
		m.removeAt(i)
		return true
	}
	line := fmtpPrefix(pt) + params.String()
	if i >= 0 {
		if m.Lines[i] == line {
			return false
		}
		m.Lines[i] = line
		return true
	}
	at := len(m.Lines)
	if r := m.indexOf("a=rtpmap:" + pt + " "); r >= 0 {
		at = r + 1
	}
	m.insertAt(at, line)
	return true
}

// EditFmtp applies fn to the current parameters of pt and writes the result.
func (m *Media) EditFmtp(pt string, fn func(Params) Params) bool {
	cur, _ := m.Fmtp(pt)
	return m.SetFmtp(pt, fn(append(Params(nil), cur...)))
}
