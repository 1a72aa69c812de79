package messages

import "github.com/bytedance/sonic"

// Event types sent by the hub.
const (
	TypeAssignID           = "assign-id"
	TypeClientDisconnected = "client-disconnected"
	TypeTranslationResult  = "translation-result"
	TypeError              = "error"
)

// Error texts sent to clients.
const (
	ErrTextTranslationFailed = "Translation failed."
	ErrTextQueueFull         = "Audio queue full, chunk dropped."
	ErrTextSessionRejected   = "Server is at capacity."
	ErrTextShuttingDown      = "Server is shutting down."
)

// AssignID is sent once to a client right after it connects.
type AssignID struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// ClientDisconnected tells remaining clients that a peer left.
type ClientDisconnected struct {
	Type     string `json:"type"`
	ClientID string `json:"clientId"`
}

// TranslationPayload is the body of a translation-result event.
type TranslationPayload struct {
	SenderID       string `json:"senderId"`
	OriginalText   string `json:"originalText"`
	TranslatedText string `json:"translatedText"`
	SourceLang     string `json:"sourceLang"`
	TargetLang     string `json:"targetLang"`
}

// TranslationResult is broadcast to every client, sender included.
type TranslationResult struct {
	Type    string             `json:"type"`
	Payload TranslationPayload `json:"payload"`
}

// ErrorMessage is delivered to a single client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewAssignID creates an assign-id event
func NewAssignID(clientID string) *AssignID {
	return &AssignID{Type: TypeAssignID, ClientID: clientID}
}

// NewClientDisconnected creates a client-disconnected event
func NewClientDisconnected(clientID string) *ClientDisconnected {
	return &ClientDisconnected{Type: TypeClientDisconnected, ClientID: clientID}
}

// NewTranslationResult creates a translation-result event
func NewTranslationResult(senderID, originalText, translatedText, sourceLang, targetLang string) *TranslationResult {
	return &TranslationResult{
		Type: TypeTranslationResult,
		Payload: TranslationPayload{
			SenderID:       senderID,
			OriginalText:   originalText,
			TranslatedText: translatedText,
			SourceLang:     sourceLang,
			TargetLang:     targetLang,
		},
	}
}

// NewErrorMessage creates an error event
func NewErrorMessage(message string) *ErrorMessage {
	return &ErrorMessage{Type: TypeError, Message: message}
}

// Outbound events go out as text frames, so invalid UTF-8 in string fields
// is replaced rather than passed through.
var codec = sonic.Config{ValidateString: true}.Froze()

// Marshal encodes an outbound message to its wire form.
func Marshal(v any) ([]byte, error) {
	return codec.Marshal(v)
}
