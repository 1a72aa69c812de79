package gemini

import "fmt"

const transcribePrompt = `Transcribe the following audio spoken in %s (%s).
Return only the words that were spoken, with no commentary, labels or quotation marks.
If nothing intelligible was said, return an empty response.`

const translatePrompt = `Translate the following text from %s to %s.
Return only the translation, with no commentary, labels or quotation marks.

%s`

// localeFor maps a language display name to the locale hint used for transcription
func localeFor(lang string) string {
	if lang == "Urdu" {
		return "ur-PK"
	}
	return "en-US"
}

func buildTranscribePrompt(lang string) string {
	return fmt.Sprintf(transcribePrompt, lang, localeFor(lang))
}

func buildTranslatePrompt(text, sourceLang, targetLang string) string {
	return fmt.Sprintf(translatePrompt, sourceLang, targetLang, text)
}
