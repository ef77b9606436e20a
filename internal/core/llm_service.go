package core

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"mindmate.app/companion/internal/logger"
)

const defaultModelName = "gemini-1.5-flash"

// GenerateRequest is one single-turn prompt to the model.
type GenerateRequest struct {
	SystemInstruction string
	Prompt            string
	JSON              bool // ask the model for application/json output
	Temperature       *float32
	MaxOutputTokens   *int32
}

// TextGenerator is the only thing the analyzer and responder need from an LLM.
type TextGenerator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

type GeminiClient struct {
	client    *genai.Client
	modelName string
	timeout   time.Duration
	log       *logger.Logger
}

func NewGeminiClient(ctx context.Context, apiKey, modelName string, timeout time.Duration, log *logger.Logger) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	if modelName == "" {
		modelName = defaultModelName
	}
	return &GeminiClient{
		client:    client,
		modelName: modelName,
		timeout:   timeout,
		log:       log,
	}, nil
}

func (c *GeminiClient) Close() {
	if c.client != nil {
		if err := c.client.Close(); err != nil {
			c.log.Warn("Error closing GenAI client", "error", err)
		} else {
			c.log.Info("GenAI client closed")
		}
	}
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	model := c.client.GenerativeModel(c.modelName)
	if req.SystemInstruction != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.SystemInstruction)},
		}
	}
	if req.JSON {
		model.ResponseMIMEType = "application/json"
	}
	if req.Temperature != nil {
		model.Temperature = req.Temperature
	}
	if req.MaxOutputTokens != nil {
		model.MaxOutputTokens = req.MaxOutputTokens
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", fmt.Errorf("gemini GenerateContent failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", ErrEmptyResponse
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			c.log.Debug("Gemini response part was not text", "type", fmt.Sprintf("%T", part))
		}
	}

	text := strings.TrimSpace(responseText.String())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
