package feedback

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/yogguru/trainer/internal/domain"
)

// wireVerdict mirrors the JSON schema requested from the model.
type wireVerdict struct {
	Accuracy    *float64 `json:"accuracy"`
	Message     *string  `json:"message"`
	Corrections []string `json:"corrections"`
	IsCorrect   *bool    `json:"isCorrect"`
}

// decodeVerdict parses and normalizes a service payload.
func decodeVerdict(data []byte) (domain.Verdict, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return domain.Verdict{}, ErrEmptyResponse
	}

	var w wireVerdict
	if err := json.Unmarshal(data, &w); err != nil {
		return domain.Verdict{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if w.Accuracy == nil || w.Message == nil {
		return domain.Verdict{}, fmt.Errorf("%w: missing accuracy or message", ErrMalformedResponse)
	}
	if math.IsNaN(*w.Accuracy) {
		return domain.Verdict{}, fmt.Errorf("%w: accuracy is NaN", ErrMalformedResponse)
	}

	v := domain.Verdict{
		Accuracy:    math.Max(0, math.Min(100, *w.Accuracy)),
		Message:     strings.TrimSpace(*w.Message),
		Corrections: make([]string, 0, len(w.Corrections)),
	}
	if w.IsCorrect != nil {
		v.IsCorrect = *w.IsCorrect
	}
	for _, c := range w.Corrections {
		if c = strings.TrimSpace(c); c != "" {
			v.Corrections = append(v.Corrections, c)
		}
	}
	return v, nil
}

// buildPrompt renders the evaluation instructions for a language model.
func buildPrompt(req Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User is performing %s.\n", req.PoseName)
	fmt.Fprintf(&b, "Current detected joint angles: %s.\n", formatAngles(req.Measured))
	fmt.Fprintf(&b, "Target ideal angles: %s.\n\n", formatAngles(req.Target))
	fmt.Fprintf(&b, "IMPORTANT: Respond ONLY in %s.\n", req.Language.DisplayName())
	b.WriteString("Compare the two and provide real-time correction instructions.\n")
	b.WriteString("Be encouraging but precise.\n")
	return b.String()
}

// formatAngles renders an angle map as stable JSON with one decimal.
func formatAngles(m domain.AngleMap) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%q:%.1f", k, m[domain.Joint(k)])
	}
	b.WriteByte('}')
	return b.String()
}
