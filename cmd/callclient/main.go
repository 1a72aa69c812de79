// Command callclient is a peer for manual testing of the hub. It negotiates a
// WebRTC connection with the other peer through the hub, sets its language,
// streams an audio file and prints every translation it receives.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/room4-2/callbridge/messages"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// inbound is the union of every server and relayed message this client reads.
type inbound struct {
	Type       string          `json:"type"`
	ClientID   string          `json:"clientId"`
	Message    string          `json:"message"`
	SignalData json.RawMessage `json:"signalData"`
	Candidate  json.RawMessage `json:"candidate"`
	Payload    struct {
		SenderID       string `json:"senderId"`
		OriginalText   string `json:"originalText"`
		TranslatedText string `json:"translatedText"`
		SourceLang     string `json:"sourceLang"`
		TargetLang     string `json:"targetLang"`
	} `json:"payload"`
}

// peer owns the signaling socket and the peer connection. gorilla allows one
// concurrent writer, so every write goes through send.
type peer struct {
	conn   *websocket.Conn
	pc     *webrtc.PeerConnection
	logger zerolog.Logger

	writeMu sync.Mutex
	id      string
}

// speaker labels a translation by who said it. id is only touched by the
// read loop.
func (p *peer) speaker(senderID string) string {
	if senderID != "" && senderID == p.id {
		return "me"
	}
	return "peer " + senderID
}

func (p *peer) send(messageType int, data []byte) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return p.conn.WriteMessage(messageType, data)
}

func (p *peer) sendJSON(v any) error {
	data, err := sonic.Marshal(v)
	if err != nil {
		return err
	}
	return p.send(websocket.TextMessage, data)
}

func (p *peer) sendSignal(typ string, desc *webrtc.SessionDescription) error {
	blob, err := sonic.Marshal(desc)
	if err != nil {
		return err
	}
	return p.sendJSON(messages.SignalMessage{Type: typ, SignalData: blob})
}

func (p *peer) offer() error {
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return err
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return err
	}
	return p.sendSignal(messages.TypeWebRTCOffer, p.pc.LocalDescription())
}

func (p *peer) handleSignal(msg *inbound) error {
	switch msg.Type {
	case messages.TypeWebRTCOffer:
		var desc webrtc.SessionDescription
		if err := sonic.Unmarshal(msg.SignalData, &desc); err != nil {
			return err
		}
		if err := p.pc.SetRemoteDescription(desc); err != nil {
			return err
		}
		answer, err := p.pc.CreateAnswer(nil)
		if err != nil {
			return err
		}
		if err := p.pc.SetLocalDescription(answer); err != nil {
			return err
		}
		return p.sendSignal(messages.TypeWebRTCAnswer, p.pc.LocalDescription())
	case messages.TypeWebRTCAnswer:
		var desc webrtc.SessionDescription
		if err := sonic.Unmarshal(msg.SignalData, &desc); err != nil {
			return err
		}
		return p.pc.SetRemoteDescription(desc)
	case messages.TypeWebRTCICECandidate:
		var cand webrtc.ICECandidateInit
		if err := sonic.Unmarshal(msg.Candidate, &cand); err != nil {
			return err
		}
		return p.pc.AddICECandidate(cand)
	}
	return nil
}

func (p *peer) readLoop(done chan<- struct{}, ready chan<- string) {
	defer close(done)
	for {
		_, data, err := p.conn.ReadMessage()
		if err != nil {
			p.logger.Info().Err(err).Msg("connection closed")
			return
		}

		var msg inbound
		if err := sonic.Unmarshal(data, &msg); err != nil {
			p.logger.Warn().Err(err).Msg("parse error")
			continue
		}

		switch msg.Type {
		case messages.TypeAssignID:
			p.id = msg.ClientID
			p.logger.Info().Str("id", msg.ClientID).Msg("assigned id")
			ready <- msg.ClientID
		case messages.TypeClientDisconnected:
			p.logger.Info().Str("peer", msg.ClientID).Msg("peer left")
		case messages.TypeTranslationResult:
			p.logger.Info().
				Str("from", p.speaker(msg.Payload.SenderID)).
				Str("direction", msg.Payload.SourceLang+" -> "+msg.Payload.TargetLang).
				Str("original", msg.Payload.OriginalText).
				Str("translated", msg.Payload.TranslatedText).
				Msg("translation")
		case messages.TypeError:
			p.logger.Error().Str("message", msg.Message).Msg("server error")
		default:
			if err := p.handleSignal(&msg); err != nil {
				p.logger.Warn().Err(err).Str("type", msg.Type).Msg("signaling failed")
			} else {
				p.logger.Debug().Str("type", msg.Type).Msg("signal applied")
			}
		}
	}
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("callclient", pflag.ContinueOnError)

	var (
		serverURL = fs.StringP("server", "s", "ws://localhost:3001/ws", "hub WebSocket URL")
		audioFile = fs.StringP("file", "f", "", "audio file to send (sent whole unless --chunk-size is set)")
		language  = fs.StringP("language", "l", "en", "language spoken by this peer (en or ur)")
		chunkSize = fs.Int("chunk-size", 0, "split the file into chunks of this many bytes")
		interval  = fs.Duration("interval", 100*time.Millisecond, "pause between chunks")
		initiate  = fs.Bool("offer", false, "send a WebRTC offer after connecting")
		wait      = fs.Duration("wait", 30*time.Second, "how long to listen after sending")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, *serverURL, nil)
	if err != nil {
		logger.Fatal().Err(err).Str("server", *serverURL).Msg("failed to connect")
	}
	defer conn.Close()

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create peer connection")
	}
	defer pc.Close()

	p := &peer{conn: conn, pc: pc, logger: logger}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		blob, err := sonic.Marshal(cand.ToJSON())
		if err != nil {
			return
		}
		if err := p.sendJSON(messages.SignalMessage{Type: messages.TypeWebRTCICECandidate, Candidate: blob}); err != nil {
			logger.Warn().Err(err).Msg("send ICE candidate")
		}
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		logger.Info().Str("peer_connection_state", s.String()).Msg("peer state")
	})
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio); err != nil {
		logger.Fatal().Err(err).Msg("failed to add audio transceiver")
	}

	done := make(chan struct{})
	ready := make(chan string, 1)
	go p.readLoop(done, ready)

	select {
	case <-ready:
	case <-done:
		return
	case <-time.After(5 * time.Second):
		logger.Fatal().Msg("no assign-id from server")
	}

	if err := p.sendJSON(messages.NewLanguageToggle(*language)); err != nil {
		logger.Fatal().Err(err).Msg("send language-toggle")
	}
	if *initiate {
		if err := p.offer(); err != nil {
			logger.Fatal().Err(err).Msg("send offer")
		}
	}

	if *audioFile != "" {
		if err := streamFile(ctx, p, *audioFile, *chunkSize, *interval); err != nil {
			logger.Error().Err(err).Msg("stream audio")
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		logger.Info().Msg("interrupted, closing")
	case <-time.After(*wait):
		logger.Info().Msg("done waiting")
	}
	_ = p.send(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func streamFile(ctx context.Context, p *peer, path string, chunkSize int, interval time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if chunkSize <= 0 {
		chunkSize = len(data)
	}

	total := (len(data) + chunkSize - 1) / chunkSize
	for i := 0; i < len(data); i += chunkSize {
		chunk := data[i:min(i+chunkSize, len(data))]
		if err := p.send(websocket.BinaryMessage, chunk); err != nil {
			return err
		}
		p.logger.Info().Int("chunk", i/chunkSize+1).Int("of", total).Int("bytes", len(chunk)).Msg("sent audio")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	return nil
}
