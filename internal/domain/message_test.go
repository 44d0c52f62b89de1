package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageMarshal(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"offer", NewOffer("v=0\r\n"), `{"type":"offer","sdp":"v=0\r\n"}`},
		{"answer", NewAnswer("v=0\r\n"), `{"type":"answer","sdp":"v=0\r\n"}`},
		{"bye with reason", NewBye("busy"), `{"type":"bye","reason":"busy"}`},
		{"bye", NewBye(""), `{"type":"bye"}`},
		{
			"single candidate",
			NewCandidates(IceCandidate{Candidate: "candidate:1", SDPMid: "0"}),
			`{"type":"candidate","candidate":"candidate:1","sdpMid":"0","sdpMLineIndex":0}`,
		},
		{
			"single candidate without mid",
			NewCandidates(IceCandidate{Candidate: "candidate:1", SDPMLineIndex: 1}),
			`{"type":"candidate","candidate":"candidate:1","sdpMLineIndex":1}`,
		},
		{
			"batch",
			NewCandidates(IceCandidate{Candidate: "candidate:1"}, IceCandidate{Candidate: "candidate:2", SDPMid: "1", SDPMLineIndex: 1}),
			`{"type":"candidate","candidates":[{"candidate":"candidate:1","sdpMLineIndex":0},{"candidate":"candidate:2","sdpMid":"1","sdpMLineIndex":1}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.msg)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(b))
		})
	}

	_, err := json.Marshal(Message{Type: "ping"})
	assert.ErrorIs(t, err, ErrUnknownMessageType)
}

func TestDecodeMessage(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Message
	}{
		{"offer", `{"type":"offer","sdp":"v=0"}`, NewOffer("v=0")},
		{"bye reason", `{"type":"bye","reason":"shutdown"}`, NewBye("shutdown")},
		{"bye bare", `{"type":"bye"}`, NewBye("")},
		{
			"single",
			`{"type":"candidate","candidate":"candidate:1","sdpMid":"audio","sdpMLineIndex":2}`,
			NewCandidates(IceCandidate{Candidate: "candidate:1", SDPMid: "audio", SDPMLineIndex: 2}),
		},
		{
			"batch keeps order",
			`{"type":"candidate","candidates":[{"candidate":"c:3"},{"candidate":"c:1"},{"candidate":"c:2"}]}`,
			NewCandidates(IceCandidate{Candidate: "c:3"}, IceCandidate{Candidate: "c:1"}, IceCandidate{Candidate: "c:2"}),
		},
		{
			"single and batch",
			`{"type":"candidate","candidate":"c:0","candidates":[{"candidate":"c:1"}]}`,
			NewCandidates(IceCandidate{Candidate: "c:0"}, IceCandidate{Candidate: "c:1"}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMessage([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMessageErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"offer without sdp", `{"type":"offer"}`, ErrMalformedMessage},
		{"answer without sdp", `{"type":"answer","sdp":""}`, ErrMalformedMessage},
		{"empty candidate in batch", `{"type":"candidate","candidates":[{"candidate":"c:1"},{"candidate":""}]}`, ErrMalformedMessage},
		{"candidate without payload", `{"type":"candidate"}`, ErrMalformedMessage},
		{"truncated", `{"type":"offer"`, ErrMalformedMessage},
		{"not an object", `[1,2]`, ErrMalformedMessage},
		{"wrong field type", `{"type":"offer","sdp":5}`, ErrMalformedMessage},
		{"unknown type", `{"type":"ping"}`, ErrUnknownMessageType},
		{"missing type", `{"sdp":"v=0"}`, ErrUnknownMessageType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeMessage([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMessageRoundTripBatchOfOne(t *testing.T) {
	in := NewCandidates(IceCandidate{Candidate: "candidate:9", SDPMid: "0", SDPMLineIndex: 0})
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "candidates")

	out, err := DecodeMessage(b)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}
