package feedback

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"google.golang.org/genai"

	"github.com/yogguru/trainer/internal/domain"
)

func TestFallbackLocalized(t *testing.T) {
	t.Parallel()

	for _, lang := range domain.Languages {
		v := Fallback(lang)
		if v.IsCorrect {
			t.Errorf("%s: fallback must not be correct", lang)
		}
		if v.Accuracy != 0 {
			t.Errorf("%s: fallback accuracy = %v, want 0", lang, v.Accuracy)
		}
		if v.Message != fallbackMessages[lang] {
			t.Errorf("%s: unexpected message %q", lang, v.Message)
		}
		if len(v.Corrections) != 1 {
			t.Errorf("%s: expected one correction, got %v", lang, v.Corrections)
		}
	}

	if got := Fallback("fr"); got.Message != fallbackMessages[domain.LanguageEnglish] {
		t.Errorf("unknown language should fall back to English, got %q", got.Message)
	}
}

func TestFallbackGujaratiIsNotHindi(t *testing.T) {
	t.Parallel()

	gu := Fallback(domain.LanguageGujarati)
	hi := Fallback(domain.LanguageHindi)
	if gu.Corrections[0] == hi.Corrections[0] {
		t.Errorf("Gujarati correction reuses the Hindi text %q", hi.Corrections[0])
	}
	if gu.Corrections[0] != fallbackCorrections[domain.LanguageGujarati] {
		t.Errorf("Gujarati correction = %q", gu.Corrections[0])
	}
}

func TestFallbackReturnsIndependentCorrections(t *testing.T) {
	t.Parallel()

	a := Fallback(domain.LanguageEnglish)
	a.Corrections[0] = "mutated"
	if b := Fallback(domain.LanguageEnglish); b.Corrections[0] == "mutated" {
		t.Fatal("fallback corrections share backing storage")
	}
}

func TestDecodeVerdict(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    domain.Verdict
		wantErr error
	}{
		{
			name: "complete",
			in:   `{"accuracy": 82.5, "message": " Lift your chest ", "corrections": ["Straighten knee", " "], "isCorrect": false}`,
			want: domain.Verdict{Accuracy: 82.5, Message: "Lift your chest", Corrections: []string{"Straighten knee"}},
		},
		{
			name: "accuracy clamped high",
			in:   `{"accuracy": 140, "message": "Great", "corrections": [], "isCorrect": true}`,
			want: domain.Verdict{Accuracy: 100, Message: "Great", Corrections: []string{}, IsCorrect: true},
		},
		{
			name: "accuracy clamped low, corrections missing",
			in:   `{"accuracy": -3, "message": "Keep going"}`,
			want: domain.Verdict{Accuracy: 0, Message: "Keep going", Corrections: []string{}},
		},
		{name: "empty", in: "  ", wantErr: ErrEmptyResponse},
		{name: "not json", in: "Sure! Here is feedback", wantErr: ErrMalformedResponse},
		{name: "missing message", in: `{"accuracy": 50}`, wantErr: ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeVerdict([]byte(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Accuracy != tt.want.Accuracy || got.Message != tt.want.Message || got.IsCorrect != tt.want.IsCorrect {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if strings.Join(got.Corrections, "|") != strings.Join(tt.want.Corrections, "|") {
				t.Fatalf("corrections = %v, want %v", got.Corrections, tt.want.Corrections)
			}
		})
	}
}

func TestBuildPromptNamesLanguageAndAngles(t *testing.T) {
	t.Parallel()

	prompt := buildPrompt(Request{
		PoseName: "Warrior II",
		Measured: domain.AngleMap{domain.JointKnee: 101.26, domain.JointHip: 88},
		Target:   domain.AngleMap{domain.JointKnee: 90},
		Language: domain.LanguageGujarati,
	})

	for _, want := range []string{"Warrior II", `{"hip":88.0,"knee":101.3}`, `{"knee":90.0}`, "ONLY in Gujarati"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

type fakeGenerator struct {
	text   string
	err    error
	model  string
	config *genai.GenerateContentConfig
}

func (f *fakeGenerator) GenerateContent(_ context.Context, model string, _ []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.config = config
	if f.err != nil {
		return nil, f.err
	}
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{{Text: f.text}}},
		}},
	}, nil
}

func TestGeminiClientEvaluate(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{text: `{"accuracy": 91, "message": "Nice alignment", "corrections": ["Relax shoulders"], "isCorrect": true}`}
	c := &GeminiClient{models: gen, model: "test-model", logger: slog.Default()}

	v, err := c.Evaluate(context.Background(), Request{PoseName: "Tree Pose", Language: domain.LanguageEnglish})
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if v.Accuracy != 91 || !v.IsCorrect || v.Message != "Nice alignment" {
		t.Fatalf("unexpected verdict %+v", v)
	}
	if gen.model != "test-model" {
		t.Errorf("model = %q", gen.model)
	}
	if gen.config == nil || gen.config.ResponseMIMEType != "application/json" || gen.config.ResponseSchema == nil {
		t.Error("expected JSON response schema to be requested")
	}
}

func TestGeminiClientErrors(t *testing.T) {
	t.Parallel()

	c := &GeminiClient{models: &fakeGenerator{err: errors.New("quota exceeded")}, model: "m", logger: slog.Default()}
	if _, err := c.Evaluate(context.Background(), Request{}); err == nil {
		t.Fatal("expected transport error")
	}

	c = &GeminiClient{models: &fakeGenerator{text: ""}, model: "m", logger: slog.Default()}
	if _, err := c.Evaluate(context.Background(), Request{}); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestUnavailable(t *testing.T) {
	t.Parallel()

	var svc Service = Unavailable{}
	if _, err := svc.Evaluate(context.Background(), Request{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
