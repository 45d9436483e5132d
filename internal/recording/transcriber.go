// Package recording transcribes completed call recordings when no live
// stream produced a transcript, and feeds the result back into call
// control the same way a live final would.
package recording

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/sonitel/callbridge/pkg/logger"
)

const defaultPrompt = "Transcribe this phone call audio verbatim. " +
	"Return only the spoken words with no commentary."

// Transcriber turns one complete WAV recording into text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// GeminiTranscriber performs one-shot transcription through the Gemini API.
type GeminiTranscriber struct {
	client *genai.Client
	model  string
	prompt string
	logger *logger.Logger
}

// NewGeminiTranscriber creates a transcriber for the given model.
func NewGeminiTranscriber(ctx context.Context, apiKey, model, prompt string, log *logger.Logger) (*GeminiTranscriber, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	if prompt == "" {
		prompt = defaultPrompt
	}
	return &GeminiTranscriber{
		client: client,
		model:  model,
		prompt: prompt,
		logger: log.Named("gemini-transcriber"),
	}, nil
}

func (t *GeminiTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(t.prompt),
		genai.NewPartFromBytes(wav, "audio/wav"),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := t.client.Models.GenerateContent(ctx, t.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generating transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", errors.New("transcription response contained no text")
	}
	t.logger.Debug("Recording transcribed", logger.Int("chars", len(text)))
	return text, nil
}
