// Package gemini implements translation.Service on top of the Gemini API:
// one request transcribes the audio, a second one translates the transcript.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/room4-2/callbridge/translation"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const (
	DefaultModel    = "gemini-2.0-flash"
	DefaultMIMEType = "audio/wav"
)

var (
	ErrTranscription = errors.New("failed to transcribe audio")
	ErrTranslation   = errors.New("failed to translate text")
)

// Config configures a Translator
type Config struct {
	APIKey   string
	Model    string
	MIMEType string
	// BaseURL and HTTPClient override the API endpoint, mostly for tests.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zerolog.Logger
}

// Translator talks to Gemini through the official SDK
type Translator struct {
	client   *genai.Client
	model    string
	mimeType string
	logger   zerolog.Logger
}

var _ translation.Service = (*Translator)(nil)

// NewTranslator creates the GenAI client. It does not contact the API.
func NewTranslator(ctx context.Context, cfg Config) (*Translator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	t := &Translator{
		client:   client,
		model:    cfg.Model,
		mimeType: cfg.MIMEType,
		logger:   zerolog.Nop(),
	}
	if t.model == "" {
		t.model = DefaultModel
	}
	if t.mimeType == "" {
		t.mimeType = DefaultMIMEType
	}
	if cfg.Logger != nil {
		t.logger = cfg.Logger.With().Str("component", "gemini").Str("model", t.model).Logger()
	}
	return t, nil
}

// ProcessAudio transcribes audio spoken in sourceLang and translates the
// transcript to targetLang. A failure of either step is returned as the error.
func (t *Translator) ProcessAudio(ctx context.Context, audio []byte, sourceLang, targetLang string) (translation.Result, error) {
	original, err := t.speechToText(ctx, audio, sourceLang)
	if err != nil {
		return translation.Result{}, fmt.Errorf("%w: %w", ErrTranscription, err)
	}

	translated, err := t.translateText(ctx, original, sourceLang, targetLang)
	if err != nil {
		return translation.Result{}, fmt.Errorf("%w: %w", ErrTranslation, err)
	}

	return translation.Result{
		OriginalText:   original,
		TranslatedText: translated,
	}, nil
}

func (t *Translator) speechToText(ctx context.Context, audio []byte, lang string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromText(buildTranscribePrompt(lang)),
			genai.NewPartFromBytes(audio, t.mimeType),
		}, genai.RoleUser),
	}

	text, err := t.generate(ctx, contents)
	if err != nil {
		return "", err
	}
	t.logger.Debug().Str("lang", lang).Int("bytes", len(audio)).Str("text", text).Msg("transcribed")
	return text, nil
}

func (t *Translator) translateText(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	contents := genai.Text(buildTranslatePrompt(text, sourceLang, targetLang))

	translated, err := t.generate(ctx, contents)
	if err != nil {
		return "", err
	}
	t.logger.Debug().Str("source", sourceLang).Str("target", targetLang).Str("text", translated).Msg("translated")
	return translated, nil
}

func (t *Translator) generate(ctx context.Context, contents []*genai.Content) (string, error) {
	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr[float32](0),
	})
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", translation.ErrEmptyResult
	}
	return text, nil
}
