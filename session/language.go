package session

import "fmt"

// Language is a client's spoken language, identified by its short code.
type Language string

const (
	English Language = "en"
	Urdu    Language = "ur"

	DefaultLanguage = English
)

// ParseLanguage accepts the codes clients send in language-toggle.
func ParseLanguage(code string) (Language, error) {
	switch Language(code) {
	case English, Urdu:
		return Language(code), nil
	default:
		return "", fmt.Errorf("unsupported language %q", code)
	}
}

// Name is the display name handed to the translation service.
func (l Language) Name() string {
	if l == Urdu {
		return "Urdu"
	}
	return "English"
}

// Opposite is the other side of the call.
func (l Language) Opposite() Language {
	if l == Urdu {
		return English
	}
	return Urdu
}

// Direction returns source and target names for speech in language l.
func (l Language) Direction() (source, target string) {
	return l.Name(), l.Opposite().Name()
}
