// Package translation defines the contract of the external speech-to-text and
// translation collaborator used by the hub.
package translation

import (
	"context"
	"errors"
)

// ErrEmptyResult is returned when a step of the pipeline produced no text.
var ErrEmptyResult = errors.New("translation: empty result")

// Result is what one processed audio chunk yields.
type Result struct {
	// OriginalText is the transcription in the source language.
	OriginalText string `json:"originalText"`
	// TranslatedText is OriginalText rendered in the target language.
	TranslatedText string `json:"translatedText"`
}

// Service turns raw audio into a transcript and its translation.
// Language arguments are display names such as "English" or "Urdu".
type Service interface {
	ProcessAudio(ctx context.Context, audio []byte, sourceLang, targetLang string) (Result, error)
}

// Func adapts an ordinary function to Service.
type Func func(ctx context.Context, audio []byte, sourceLang, targetLang string) (Result, error)

// ProcessAudio calls f.
func (f Func) ProcessAudio(ctx context.Context, audio []byte, sourceLang, targetLang string) (Result, error) {
	return f(ctx, audio, sourceLang, targetLang)
}
