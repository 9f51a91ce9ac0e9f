package domain

import (
	"errors"
	"slices"
)

// ErrUnsupportedLanguage is returned for language codes outside Languages.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language is a supported feedback language code.
type Language string

const (
	LanguageEnglish  Language = "en"
	LanguageHindi    Language = "hi"
	LanguageGujarati Language = "gu"
)

// Languages lists the supported languages.
var Languages = []Language{LanguageEnglish, LanguageHindi, LanguageGujarati}

// Valid reports whether l is a supported language.
func (l Language) Valid() bool {
	return slices.Contains(Languages, l)
}

// DisplayName returns the English name of the language, used in model prompts.
func (l Language) DisplayName() string {
	switch l {
	case LanguageHindi:
		return "Hindi"
	case LanguageGujarati:
		return "Gujarati"
	default:
		return "English"
	}
}

// VoiceTag returns the BCP-47 tag used by speech synthesizers.
func (l Language) VoiceTag() string {
	switch l {
	case LanguageHindi:
		return "hi-IN"
	case LanguageGujarati:
		return "gu-IN"
	default:
		return "en-US"
	}
}

// Verdict is the structured result of one posture evaluation.
type Verdict struct {
	Accuracy    float64  `json:"accuracy"`
	Message     string   `json:"message"`
	Corrections []string `json:"corrections"`
	IsCorrect   bool     `json:"isCorrect"`
}

// Clone returns a deep copy of the verdict.
func (v Verdict) Clone() Verdict {
	v.Corrections = slices.Clone(v.Corrections)
	return v
}
