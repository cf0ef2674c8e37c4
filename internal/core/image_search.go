package core

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// ImageSource identifies which tier of the fallback chain produced a URL.
type ImageSource int

const (
	SourcePrimary ImageSource = iota
	SourceSeededFallback
	SourceRandomFallback
)

func (s ImageSource) String() string {
	switch s {
	case SourcePrimary:
		return "primary"
	case SourceSeededFallback:
		return "seeded-fallback"
	default:
		return "random-fallback"
	}
}

// ImageResolution is a resolved image URL together with its source tier.
type ImageResolution struct {
	URL    string
	Source ImageSource
}

var queryStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"but": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "of": true, "with": true, "by": true, "about": true,
}

const maxQueryKeywords = 4

// ImageSearchService resolves free-text queries to image URLs via a primary
// provider and a degrading fallback chain. It never returns an error: every
// failure falls through to the next tier, and the last tier needs no network.
type ImageSearchService struct {
	primaryBaseURL  string
	fallbackBaseURL string
	searchClient    *http.Client
	probeClient     *http.Client
}

func NewImageSearchService() *ImageSearchService {
	return &ImageSearchService{
		primaryBaseURL:  "https://source.unsplash.com",
		fallbackBaseURL: "https://picsum.photos",
		searchClient:    &http.Client{Timeout: 10 * time.Second},
		probeClient:     &http.Client{Timeout: 5 * time.Second},
	}
}

// ResolveImage resolves query to an image URL. The index keys the fallback
// seed so repeated calls for the same slide stay deterministic. The second
// return value is false only for a blank query.
func (s *ImageSearchService) ResolveImage(ctx context.Context, query string, index int) (ImageResolution, bool) {
	query = strings.TrimSpace(query)
	if query == "" {
		return ImageResolution{}, false
	}

	searchURL := fmt.Sprintf("%s/800x600/?%s", s.primaryBaseURL, normalizeQuery(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		log.Printf("Bad primary image request for %q: %v", query, err)
		return s.resolveFallback(ctx, query, index), true
	}

	resp, err := s.searchClient.Do(req)
	if err != nil {
		log.Printf("Primary image search failed for %q, using fallback: %v", query, err)
		return s.resolveFallback(ctx, query, index), true
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("Primary image search for %q returned status %d, using fallback", query, resp.StatusCode)
		return s.resolveFallback(ctx, query, index), true
	}

	// The provider redirects to the actual asset; report the final URL.
	return ImageResolution{URL: resp.Request.URL.String(), Source: SourcePrimary}, true
}

// resolveFallback derives a deterministic seed from query and index and probes
// the seeded URL. If even the probe fails, the last tier is a URL keyed only
// by index, always constructible without a network check.
func (s *ImageSearchService) resolveFallback(ctx context.Context, query string, index int) ImageResolution {
	seed := fmt.Sprintf("%s-%d", strings.ReplaceAll(query, " ", "-"), index)
	seededURL := fmt.Sprintf("%s/seed/%s/800/600", s.fallbackBaseURL, seed)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, seededURL, nil)
	if err == nil {
		resp, probeErr := s.probeClient.Do(req)
		if probeErr == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return ImageResolution{URL: seededURL, Source: SourceSeededFallback}
			}
		} else {
			log.Printf("Fallback probe failed for %q: %v", query, probeErr)
		}
	}

	return ImageResolution{
		URL:    fmt.Sprintf("%s/800/600?random=%d", s.fallbackBaseURL, index),
		Source: SourceRandomFallback,
	}
}

// normalizeQuery strips stop words and keeps at most the first 4 remaining
// keywords, comma-joined for the provider's query syntax.
func normalizeQuery(query string) string {
	var keywords []string
	for _, word := range strings.Fields(query) {
		word = strings.ToLower(word)
		if queryStopWords[word] {
			continue
		}
		keywords = append(keywords, word)
		if len(keywords) == maxQueryKeywords {
			break
		}
	}
	return strings.Join(keywords, ",")
}
