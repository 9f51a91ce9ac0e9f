// Package feedback talks to the remote posture-evaluation service.
package feedback

import (
	"context"
	"errors"

	"github.com/yogguru/trainer/internal/domain"
)

var (
	// ErrUnavailable is returned when no feedback backend is configured.
	ErrUnavailable = errors.New("feedback service unavailable")
	// ErrEmptyResponse is returned when the service answers with no payload.
	ErrEmptyResponse = errors.New("empty response from feedback service")
	// ErrMalformedResponse is returned when the payload cannot be decoded.
	ErrMalformedResponse = errors.New("malformed feedback response")
)

// Request is one posture evaluation request.
type Request struct {
	PoseName string          `json:"pose_name"`
	Measured domain.AngleMap `json:"measured"`
	Target   domain.AngleMap `json:"target"`
	Language domain.Language `json:"language"`

	// Routing metadata, not sent to the model.
	UserID    string `json:"-"`
	SessionID string `json:"-"`
}

// Service evaluates measured angles against a pose's targets.
type Service interface {
	Evaluate(ctx context.Context, req Request) (domain.Verdict, error)
}

// Checker is implemented by services that can report backend health.
type Checker interface {
	Health(ctx context.Context) error
}

// Unavailable is the Service used when no backend is configured.
type Unavailable struct{}

// Evaluate always fails with ErrUnavailable.
func (Unavailable) Evaluate(context.Context, Request) (domain.Verdict, error) {
	return domain.Verdict{}, ErrUnavailable
}

// Health reports the backend as unavailable.
func (Unavailable) Health(context.Context) error {
	return ErrUnavailable
}

var fallbackMessages = map[domain.Language]string{
	domain.LanguageEnglish:  "AI feedback currently unavailable. Try adjusting your position.",
	domain.LanguageHindi:    "प्रतिक्रिया अनुपलब्ध है। कृपया स्थिति समायोजित करें।",
	domain.LanguageGujarati: "પ્રતિસાદ અનુપલબ્ધ છે. મહેરબાની કરીને સ્થિતિ સમાયોજિત કરો.",
}

var fallbackCorrections = map[domain.Language]string{
	domain.LanguageEnglish:  "Ensure you are fully in frame",
	domain.LanguageHindi:    "कृपया कैमरे के सामने आएं",
	domain.LanguageGujarati: "કૃપા કરીને કેમેરા સામે આવો",
}

// Fallback returns the localized verdict shown when evaluation fails.
// Unknown languages get the English text.
func Fallback(lang domain.Language) domain.Verdict {
	if !lang.Valid() {
		lang = domain.LanguageEnglish
	}
	return domain.Verdict{
		Accuracy:    0,
		Message:     fallbackMessages[lang],
		Corrections: []string{fallbackCorrections[lang]},
		IsCorrect:   false,
	}
}
