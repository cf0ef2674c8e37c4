package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"deckforge.app/deck-backend/internal/config"
	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const defaultSlideModelName = "gemini-2.0-flash-exp"

type LLMService struct {
	client *genai.Client
}

func NewLLMService() *LLMService {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(config.AppConfig.GeminiAPIKey))
	if err != nil {
		log.Fatalf("Failed to create GenAI client: %v", err)
	}

	return &LLMService{
		client: client,
	}
}

func (s *LLMService) Close() {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			log.Printf("Error closing GenAI client: %v", err)
		} else {
			log.Println("GenAI client closed.")
		}
	}
}

// GenerateText sends a single prompt to the model and returns the concatenated
// text parts of the first candidate.
func (s *LLMService) GenerateText(ctx context.Context, prompt string) (string, error) {
	model := s.client.GenerativeModel(defaultSlideModelName)

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("gemini content generation failed: %w", err)
	}

	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned an empty response")
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			responseText.WriteString(string(txt))
		} else {
			log.Printf("Gemini response part was not text: %T", part)
		}
	}

	if responseText.Len() == 0 {
		return "", fmt.Errorf("gemini response contained no text parts")
	}

	return strings.TrimSpace(responseText.String()), nil
}
