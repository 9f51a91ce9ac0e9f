package feedback

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/yogguru/trainer/internal/domain"
)

// DefaultGeminiModel is the model used when none is configured.
const DefaultGeminiModel = "gemini-3-flash-preview"

// generator is the subset of genai.Models used by the client.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient evaluates postures with the Gemini API.
type GeminiClient struct {
	models generator
	model  string
	logger *slog.Logger
}

// NewGeminiClient creates a Gemini-backed feedback service.
func NewGeminiClient(ctx context.Context, apiKey, model string, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger.Info("Gemini feedback client initialized", "model", model)
	return &GeminiClient{models: client.Models, model: model, logger: logger}, nil
}

// verdictSchema constrains the model output to the Verdict shape.
var verdictSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"accuracy": {Type: genai.TypeNumber, Description: "A score from 0-100"},
		"message":  {Type: genai.TypeString, Description: "Main feedback message"},
		"corrections": {
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: "Specific step-by-step corrections",
		},
		"isCorrect": {Type: genai.TypeBoolean},
	},
	Required: []string{"accuracy", "message", "corrections", "isCorrect"},
}

// Evaluate asks the model to compare measured and target angles.
func (c *GeminiClient) Evaluate(ctx context.Context, req Request) (domain.Verdict, error) {
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(buildPrompt(req)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   verdictSchema,
	})
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("gemini generate content: %w", err)
	}
	if resp == nil {
		return domain.Verdict{}, ErrEmptyResponse
	}

	v, err := decodeVerdict([]byte(resp.Text()))
	if err != nil {
		c.logger.Warn("Gemini returned unusable verdict", "error", err, "pose", req.PoseName)
		return domain.Verdict{}, err
	}
	return v, nil
}

// Health reports whether the client is configured. The API has no cheap probe.
func (c *GeminiClient) Health(context.Context) error {
	if c.models == nil {
		return ErrUnavailable
	}
	return nil
}
