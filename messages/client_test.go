package messages

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		messageType int
		data        string
		kind        Kind
		typ         string
	}{
		{"offer", websocket.TextMessage, `{"type":"webrtc-offer","signalData":"sdp1"}`, KindControl, TypeWebRTCOffer},
		{"json in binary frame", websocket.BinaryMessage, `{"type":"language-toggle","payload":{"language":"ur"}}`, KindControl, TypeLanguageToggle},
		{"json without type", websocket.TextMessage, `{"foo":1}`, KindControl, ""},
		{"json scalar", websocket.TextMessage, `42`, KindControl, ""},
		{"audio", websocket.BinaryMessage, "RIFF\x00\x01\xff", KindAudio, ""},
		{"empty binary", websocket.BinaryMessage, "", KindMalformed, ""},
		{"bad text", websocket.TextMessage, "hello", KindMalformed, ""},
		{"truncated json text", websocket.TextMessage, `{"type":"webrtc-offer"`, KindMalformed, ""},
		{"json with invalid utf8 in text frame", websocket.TextMessage, "{\"type\":\"webrtc-offer\",\"signalData\":\"\xff\xfe\"}", KindMalformed, ""},
		{"json with invalid utf8 in binary frame", websocket.BinaryMessage, "{\"type\":\"webrtc-offer\",\"signalData\":\"\xff\xfe\"}", KindAudio, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.messageType, []byte(tt.data))
			require.Equal(t, tt.kind, f.Kind, f.Kind.String())
			require.Equal(t, tt.typ, f.Type)
			require.Equal(t, tt.data, string(f.Data))
		})
	}
}

func TestDecodeLanguageToggle(t *testing.T) {
	code, err := DecodeLanguageToggle([]byte(`{"type":"language-toggle","payload":{"language":"ur"}}`))
	require.NoError(t, err)
	require.Equal(t, "ur", code)

	for _, bad := range []string{
		`{"type":"language-toggle"}`,
		`{"type":"language-toggle","payload":{"language":""}}`,
		`{"type":"language-toggle","payload":"ur"}`,
	} {
		_, err := DecodeLanguageToggle([]byte(bad))
		require.Error(t, err, bad)
	}
}

func TestNewLanguageToggleRoundTrip(t *testing.T) {
	data, err := Marshal(NewLanguageToggle("en"))
	require.NoError(t, err)
	require.Equal(t, TypeLanguageToggle, Classify(websocket.TextMessage, data).Type)

	code, err := DecodeLanguageToggle(data)
	require.NoError(t, err)
	require.Equal(t, "en", code)
}
