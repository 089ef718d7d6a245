package webrtc

import (
	"encoding/json"

	pion "github.com/pion/webrtc/v4"
)

// Signal types carried through the coordinator.
const (
	SignalOffer     = "offer"
	SignalAnswer    = "answer"
	SignalCandidate = "candidate"
)

// Signal is the handshake payload exchanged between two peers. The
// coordinator relays it without looking inside.
type Signal struct {
	Type      string                 `json:"type"`
	SDP       string                 `json:"sdp,omitempty"`
	Candidate *pion.ICECandidateInit `json:"candidate,omitempty"`
}

// ParseSignal decodes a relayed payload.
func ParseSignal(payload json.RawMessage) (*Signal, error) {
	var s Signal
	if err := json.Unmarshal(payload, &s); err != nil {
		return nil, NewError("parse signal", err)
	}
	return &s, nil
}

func (s *Signal) encode() (json.RawMessage, error) {
	return json.Marshal(s)
}
