package messages

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
)

// Control message tags sent by clients.
const (
	TypeWebRTCOffer        = "webrtc-offer"
	TypeWebRTCAnswer       = "webrtc-answer"
	TypeWebRTCICECandidate = "webrtc-ice-candidate"
	TypeLanguageToggle     = "language-toggle"
)

// Kind tells how an inbound frame was classified.
type Kind int

const (
	KindMalformed Kind = iota
	KindControl
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindControl:
		return "control"
	case KindAudio:
		return "audio"
	default:
		return "malformed"
	}
}

// Frame is one classified unit received from a client.
// For KindControl, Type holds the tag and Data the raw JSON, which is relayed
// verbatim. For KindAudio, Data holds the audio chunk.
type Frame struct {
	Kind Kind
	Type string
	Data []byte
}

// Classify applies the inbound decision rule:
//   - any payload that is valid UTF-8 JSON is a control message (its "type"
//     may be empty or unknown, which the router ignores);
//   - otherwise a non-empty binary payload is an audio chunk;
//   - everything else is malformed.
//
// Control messages are relayed as text frames, and a text frame carrying
// invalid UTF-8 makes the receiving browser drop its connection.
func Classify(messageType int, data []byte) Frame {
	if gjson.ValidBytes(data) && utf8.Valid(data) {
		return Frame{
			Kind: KindControl,
			Type: gjson.GetBytes(data, "type").String(),
			Data: data,
		}
	}
	if messageType == websocket.BinaryMessage && len(data) > 0 {
		return Frame{Kind: KindAudio, Data: data}
	}
	return Frame{Kind: KindMalformed, Data: data}
}

// SignalMessage is the shape of offer, answer and ICE candidate messages.
// The hub never looks inside SignalData or Candidate.
type SignalMessage struct {
	Type       string          `json:"type"`
	SignalData json.RawMessage `json:"signalData,omitempty"`
	Candidate  json.RawMessage `json:"candidate,omitempty"`
}

// LanguageTogglePayload carries the language a client switched to.
type LanguageTogglePayload struct {
	Language string `json:"language"`
}

// LanguageToggle is {type:"language-toggle", payload:{language}}.
type LanguageToggle struct {
	Type    string                `json:"type"`
	Payload LanguageTogglePayload `json:"payload"`
}

// NewLanguageToggle builds a language-toggle control message.
func NewLanguageToggle(code string) *LanguageToggle {
	return &LanguageToggle{
		Type:    TypeLanguageToggle,
		Payload: LanguageTogglePayload{Language: code},
	}
}

// DecodeLanguageToggle extracts the requested language code.
func DecodeLanguageToggle(data []byte) (string, error) {
	var msg LanguageToggle
	if err := sonic.Unmarshal(data, &msg); err != nil {
		return "", fmt.Errorf("decode language-toggle: %w", err)
	}
	if msg.Payload.Language == "" {
		return "", fmt.Errorf("decode language-toggle: missing payload.language")
	}
	return msg.Payload.Language, nil
}
