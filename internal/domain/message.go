package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMalformedMessage   = errors.New("malformed message")
)

type MessageType string

const (
	MessageOffer     MessageType = "offer"
	MessageAnswer    MessageType = "answer"
	MessageCandidate MessageType = "candidate"
	MessageBye       MessageType = "bye"
)

type IceCandidate struct {
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex"`
}

// Message is a signaling message. Exactly one payload is meaningful per Type:
// SDP for offer/answer, Candidates for candidate, Reason (optional) for bye.
// Messages are immutable once decoded.
type Message struct {
	Type       MessageType
	SDP        string
	Candidates []IceCandidate
	Reason     string
}

func NewOffer(sdp string) Message  { return Message{Type: MessageOffer, SDP: sdp} }
func NewAnswer(sdp string) Message { return Message{Type: MessageAnswer, SDP: sdp} }
func NewBye(reason string) Message { return Message{Type: MessageBye, Reason: reason} }

func NewCandidates(cands ...IceCandidate) Message {
	out := make([]IceCandidate, len(cands))
	copy(out, cands)
	return Message{Type: MessageCandidate, Candidates: out}
}

type wireMessage struct {
	Type          MessageType    `json:"type"`
	SDP           string         `json:"sdp,omitempty"`
	Candidate     string         `json:"candidate,omitempty"`
	SDPMid        *string        `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16        `json:"sdpMLineIndex,omitempty"`
	Candidates    []IceCandidate `json:"candidates,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}

// MarshalJSON writes a candidate batch of one in the single-candidate form
// every peer understands; larger batches use the candidates array.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{Type: m.Type}
	switch m.Type {
	case MessageOffer, MessageAnswer:
		w.SDP = m.SDP
	case MessageCandidate:
		if len(m.Candidates) == 1 {
			c := m.Candidates[0]
			w.Candidate = c.Candidate
			idx := c.SDPMLineIndex
			w.SDPMLineIndex = &idx
			if c.SDPMid != "" {
				mid := c.SDPMid
				w.SDPMid = &mid
			}
		} else {
			w.Candidates = m.Candidates
		}
	case MessageBye:
		w.Reason = m.Reason
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, m.Type)
	}
	return json.Marshal(w)
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	out := Message{Type: w.Type}
	switch w.Type {
	case MessageOffer, MessageAnswer:
		if w.SDP == "" {
			return fmt.Errorf("%w: %s without sdp", ErrMalformedMessage, w.Type)
		}
		out.SDP = w.SDP
	case MessageCandidate:
		if w.Candidate != "" {
			c := IceCandidate{Candidate: w.Candidate}
			if w.SDPMid != nil {
				c.SDPMid = *w.SDPMid
			}
			if w.SDPMLineIndex != nil {
				c.SDPMLineIndex = *w.SDPMLineIndex
			}
			out.Candidates = append(out.Candidates, c)
		}
		for _, c := range w.Candidates {
			if c.Candidate == "" {
				return fmt.Errorf("%w: empty candidate in batch", ErrMalformedMessage)
			}
			out.Candidates = append(out.Candidates, c)
		}
		if len(out.Candidates) == 0 {
			return fmt.Errorf("%w: candidate without payload", ErrMalformedMessage)
		}
	case MessageBye:
		out.Reason = w.Reason
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessageType, w.Type)
	}
	*m = out
	return nil
}

// DecodeMessage parses one signaling message. Every failure matches either
// ErrMalformedMessage or ErrUnknownMessageType.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		if errors.Is(err, ErrMalformedMessage) || errors.Is(err, ErrUnknownMessageType) {
			return Message{}, err
		}
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return m, nil
}
