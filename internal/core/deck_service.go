package core

import (
	"context"
	"log"
	"strings"
	"sync"

	"deckforge.app/deck-backend/internal/store"
)

// AnonymousOwnerID is the working-deck slot shared by unauthenticated callers
// when the open-endpoint policy is enabled.
const AnonymousOwnerID int64 = 0

type imageResolver interface {
	ResolveImage(ctx context.Context, query string, index int) (ImageResolution, bool)
}

type imageMaterializer interface {
	Fetch(ctx context.Context, imageURL string, slot int) (string, error)
}

// DeckService orchestrates slide generation, image enrichment, persistence and
// the per-owner working decks.
type DeckService struct {
	dbStore  *store.SQLiteStore
	slides   *SlideService
	resolver imageResolver
	fetcher  imageMaterializer

	mu           sync.RWMutex
	workingDecks map[int64][]store.Slide
}

func NewDeckService(db *store.SQLiteStore, slides *SlideService, resolver imageResolver, fetcher imageMaterializer) *DeckService {
	return &DeckService{
		dbStore:      db,
		slides:       slides,
		resolver:     resolver,
		fetcher:      fetcher,
		workingDecks: make(map[int64][]store.Slide),
	}
}

type GenerateDeckResult struct {
	Slides         []store.Slide `json:"slides"`
	Message        string        `json:"message"`
	PresentationID string        `json:"presentation_id,omitempty"`
}

// GenerateDeck produces a fresh deck from a user instruction, enriches it with
// images, persists it and replaces the caller's working deck. Generation never
// fails outright: model and image problems degrade rather than error.
func (s *DeckService) GenerateDeck(ctx context.Context, userID int64, username, instruction string, imageCount int) *GenerateDeckResult {
	result := s.slides.Generate(ctx, instruction, username, imageCount)

	s.EnrichSlides(ctx, result.Slides)

	out := &GenerateDeckResult{
		Slides:  result.Slides,
		Message: result.Message,
	}

	presentation, err := s.dbStore.SavePresentation(userID, result.Slides)
	if err != nil {
		// The deck is still usable without a saved copy.
		log.Printf("Warning: could not save presentation for user %d: %v", userID, err)
	} else {
		out.PresentationID = presentation.ID
		log.Printf("Presentation saved: id=%s title=%q", presentation.ID, presentation.Title)
	}

	s.setWorkingDeck(userID, result.Slides)
	return out
}

// UpdateDeck rewrites the deck according to an edit instruction. When the
// caller supplies no slides, the owner's working deck is edited. On any
// failure the working deck is left unchanged.
func (s *DeckService) UpdateDeck(ctx context.Context, ownerID int64, instruction string, slides []store.Slide) (*DeckResult, error) {
	if slides == nil {
		slides = s.WorkingDeck(ownerID)
	}

	result, err := s.slides.Update(ctx, instruction, slides)
	if err != nil {
		return nil, err
	}

	s.EnrichSlides(ctx, result.Slides)
	s.setWorkingDeck(ownerID, result.Slides)
	return result, nil
}

// EnrichSlides resolves and materializes an image for every slide that lacks
// one, in slide order so fallback seeds stay keyed by index. Every slide
// leaves with HasImage set, true or false.
func (s *DeckService) EnrichSlides(ctx context.Context, slides []store.Slide) {
	enriched := 0
	for i := range slides {
		if slides[i].ImageURL != "" {
			slides[i].HasImage = true
			continue
		}

		query := strings.TrimSpace(slides[i].ImageSearchQuery)
		if query == "" {
			slides[i].HasImage = false
			continue
		}

		resolution, ok := s.resolver.ResolveImage(ctx, query, i)
		if !ok {
			slides[i].HasImage = false
			continue
		}

		localURL, err := s.fetcher.Fetch(ctx, resolution.URL, i)
		if err != nil {
			log.Printf("Slide %d: could not materialize image from %s source: %v", i+1, resolution.Source, err)
			slides[i].HasImage = false
			continue
		}

		slides[i].ImageURL = localURL
		slides[i].HasImage = true
		enriched++
	}
	log.Printf("Enriched %d/%d slides with images", enriched, len(slides))
}

// WorkingDeck returns a copy of the owner's most recent deck, or nil when none
// has been produced yet.
func (s *DeckService) WorkingDeck(ownerID int64) []store.Slide {
	s.mu.RLock()
	defer s.mu.RUnlock()

	deck, ok := s.workingDecks[ownerID]
	if !ok {
		return nil
	}
	out := make([]store.Slide, len(deck))
	copy(out, deck)
	return out
}

func (s *DeckService) setWorkingDeck(ownerID int64, slides []store.Slide) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingDecks[ownerID] = slides
}

// Store pass-throughs used by the handlers.

func (s *DeckService) GetUserByUsername(username string) (*store.User, error) {
	return s.dbStore.GetUserByUsername(username)
}

func (s *DeckService) GetUserByEmail(email string) (*store.User, error) {
	return s.dbStore.GetUserByEmail(email)
}

func (s *DeckService) CreateUser(username, email, passwordHash string) (*store.User, error) {
	return s.dbStore.CreateUser(username, email, passwordHash)
}

func (s *DeckService) ListPresentations(userID int64) ([]store.Presentation, error) {
	return s.dbStore.GetPresentationsByUserID(userID)
}

func (s *DeckService) LoadPresentation(presentationID string, userID int64) (*store.Presentation, error) {
	return s.dbStore.GetPresentationByID(presentationID, userID)
}

func (s *DeckService) DeletePresentation(presentationID string, userID int64) (bool, error) {
	return s.dbStore.DeletePresentation(presentationID, userID)
}
