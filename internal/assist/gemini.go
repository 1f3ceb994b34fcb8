package assist

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"fiesta/internal/config"
	"fiesta/internal/logging"
	"fiesta/internal/workspace"
)

// DefaultModel is used when the configuration names none.
const DefaultModel = "gemini-2.5-flash"

// generator is the slice of the genai client this package calls.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiClient implements Completer with Google's Gemini API.
type GeminiClient struct {
	models             generator
	model              string
	timeout            time.Duration
	temperature        float32
	personaTemperature float32
}

// NewGeminiClient creates a client from assist configuration.
func NewGeminiClient(ctx context.Context, cfg config.AssistConfig, timeout time.Duration) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	c := newGeminiClient(client.Models, cfg, timeout)
	logging.Assist("gemini client ready (model %s)", c.model)
	return c, nil
}

func newGeminiClient(models generator, cfg config.AssistConfig, timeout time.Duration) *GeminiClient {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &GeminiClient{
		models:             models,
		model:              model,
		timeout:            timeout,
		temperature:        cfg.Temperature,
		personaTemperature: cfg.PersonaTemperature,
	}
}

// Name returns the provider and model.
func (c *GeminiClient) Name() string {
	return "gemini:" + c.model
}

// Complete implements Completer.
func (c *GeminiClient) Complete(ctx context.Context, history []Turn, prompt string, files *workspace.Collection, persona bool) (string, error) {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		role := genai.Role(genai.RoleUser)
		if turn.Role == RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Text, role))
	}
	contents = append(contents, genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromText(FileContext(files)),
		genai.NewPartFromText(prompt),
	}, genai.RoleUser))

	temperature := c.temperature
	if persona {
		temperature = c.personaTemperature
	}
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(SystemInstruction(persona), genai.RoleUser),
		Temperature:       genai.Ptr[float32](temperature),
	}

	text, err := c.generate(ctx, "complete", contents, cfg)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "No response generated.", nil
	}
	return text, nil
}

// Explain implements Completer.
func (c *GeminiClient) Explain(ctx context.Context, code, docName string) (string, error) {
	return c.single(ctx, "explain", ExplainPrompt(code, docName))
}

// Fix implements Completer.
func (c *GeminiClient) Fix(ctx context.Context, code, problem string) (string, error) {
	return c.single(ctx, "fix", FixPrompt(code, problem))
}

// Simulate implements Completer.
func (c *GeminiClient) Simulate(ctx context.Context, code string, lang workspace.Language, input string) (string, error) {
	return c.single(ctx, "simulate", SimulatePrompt(code, lang, input))
}

func (c *GeminiClient) single(ctx context.Context, op, prompt string) (string, error) {
	return c.generate(ctx, op, genai.Text(prompt), nil)
}

func (c *GeminiClient) generate(ctx context.Context, op string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	timer := logging.StartTimer(logging.CategoryAssist, "gemini "+op)
	resp, err := c.models.GenerateContent(ctx, c.model, contents, cfg)
	timer.StopWithThreshold(30 * time.Second)
	if err != nil {
		logging.AssistWarn("%s failed: %v", op, err)
		return "", fmt.Errorf("gemini %s: %w", op, err)
	}
	text := resp.Text()
	logging.AssistDebug("%s returned %d chars", op, len(text))
	return text, nil
}
