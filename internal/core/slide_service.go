package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"deckforge.app/deck-backend/internal/store"
)

// ErrUnparsableResponse is returned by Update when the model output cannot be
// parsed into a slide deck. Update never fabricates a result: the caller's
// edit intent must not be silently discarded.
var ErrUnparsableResponse = errors.New("failed to parse model response as slides")

const generateSystemPrompt = `You are an AI assistant specialized in creating PowerPoint presentations with images.

CRITICAL: You MUST add image_search_query to EVERY slide (except pure text conclusion slides).

Your response MUST be in this exact JSON format:
{
  "slides": [
    {
      "title": "Slide Title",
      "content": ["Point 1", "Point 2", "Point 3"],
      "image_search_query": "specific descriptive search terms",
      "image_position": "right"
    }
  ],
  "message": "A brief confirmation message to the user"
}

MANDATORY RULES:
- EVERY slide MUST have "image_search_query" field (cannot be empty or null)
- Use very specific, descriptive search terms for images
- For title slides: use dramatic, relevant background images
- For content slides: use illustrative, topic-related images
- image_position options: "right" (default), "left", "center", "background" (for title slides)

EXAMPLES OF GOOD image_search_query:
- "artificial intelligence neural network visualization"
- "climate change melting glacier arctic"
- "healthy food colorful vegetables fruits"
- "modern office teamwork collaboration"
- "space exploration rocket launch"

Guidelines:
- Create 5-7 slides unless specified otherwise
- Each slide needs clear title and 3-5 bullet points
- First slide (title): use "background" position
- Content slides: use "right" or "left" position
- Last slide (conclusion): use "center" or "background"
- Make image searches highly specific to slide content

User request: `

const updateSystemPrompt = `You are an AI assistant helping to edit PowerPoint presentations.

Current slides:
%s

User wants to: %s

Please provide the UPDATED complete slide deck in this JSON format:
{
  "slides": [
    {
      "title": "Slide Title",
      "content": ["Point 1", "Point 2", "Point 3"]
    }
  ],
  "message": "Brief description of changes made"
}

Important:
- Return ALL slides, including unchanged ones
- Make only the changes requested by the user
- Maintain the same structure and format
- If editing a specific slide number, count from 1 (not 0)
`

// textGenerator is the single operation the slide service needs from the
// model provider.
type textGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

type SlideService struct {
	llm textGenerator
}

func NewSlideService(llm textGenerator) *SlideService {
	return &SlideService{llm: llm}
}

// DeckResult is the parsed outcome of a generate or update call.
type DeckResult struct {
	Slides  []store.Slide `json:"slides"`
	Message string        `json:"message"`
}

// Generate asks the model for a fresh deck. Model and parse failures are fully
// absorbed: the caller always gets a usable, if degraded, deck.
func (s *SlideService) Generate(ctx context.Context, instruction, requesterName string, imageCount int) *DeckResult {
	prompt := fmt.Sprintf("Hello %s! %s%s", requesterName, generateSystemPrompt, instruction)
	if imageCount > 0 {
		prompt += fmt.Sprintf("\n\nNote: User wants to include %d image(s) in the presentation. Add 'image_placeholder' field to slides where images should appear.", imageCount)
	}

	raw, err := s.llm.GenerateText(ctx, prompt)
	if err != nil {
		log.Printf("Model call failed during generation, degrading: %v", err)
		return degradedResult(raw, requesterName)
	}

	result, err := parseDeckResponse(raw)
	if err != nil {
		log.Printf("Could not parse model output during generation, degrading: %v", err)
		return degradedResult(raw, requesterName)
	}

	result.Message = personalizeMessage(result.Message, requesterName)
	return result
}

// Update asks the model to rewrite the full deck according to an edit
// instruction. Unlike Generate it does not degrade: a model or parse failure
// is reported so the caller's previous deck stays intact.
func (s *SlideService) Update(ctx context.Context, instruction string, currentSlides []store.Slide) (*DeckResult, error) {
	slidesJSON, err := json.MarshalIndent(currentSlides, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal current slides: %w", err)
	}

	prompt := fmt.Sprintf(updateSystemPrompt, string(slidesJSON), instruction)

	raw, err := s.llm.GenerateText(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("model call failed during update: %w", err)
	}

	result, err := parseDeckResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparsableResponse, err)
	}
	return result, nil
}

func parseDeckResponse(raw string) (*DeckResult, error) {
	body, outcome := ExtractJSONBlock(raw)
	if outcome == ExtractEmpty {
		return nil, fmt.Errorf("model output was empty")
	}

	var result DeckResult
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		return nil, fmt.Errorf("invalid JSON in model output: %w", err)
	}
	return &result, nil
}

// degradedResult builds the best-effort single-slide deck used when the model
// output could not be parsed. Its bullet content is the first 5 lines of the
// raw response.
func degradedResult(raw, requesterName string) *DeckResult {
	var content []string
	for _, line := range strings.Split(raw, "\n") {
		if len(content) == 5 {
			break
		}
		content = append(content, line)
	}

	return &DeckResult{
		Slides: []store.Slide{
			{
				Title:   "Generated Content",
				Content: content,
			},
		},
		Message: personalizeMessage("Slides generated successfully!", requesterName),
	}
}

func personalizeMessage(message, requesterName string) string {
	if strings.TrimSpace(message) == "" {
		return fmt.Sprintf("Great work, %s! Your slides are ready!", requesterName)
	}
	return fmt.Sprintf("%s, %s", requesterName, message)
}
