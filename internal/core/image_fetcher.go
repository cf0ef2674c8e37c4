package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
)

// ErrUnexpectedStatus reports a non-200 response while downloading an image.
var ErrUnexpectedStatus = errors.New("unexpected status downloading image")

const (
	maxImageWidth    = 1600
	uploadPublicPath = "/static/uploads"
)

// ImageFetcher downloads a resolved image URL and persists it under the
// upload directory, returning a reference the serving layer can resolve.
type ImageFetcher struct {
	client    *http.Client
	uploadDir string
}

func NewImageFetcher(uploadDir string) (*ImageFetcher, error) {
	if err := os.MkdirAll(uploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", uploadDir, err)
	}
	return &ImageFetcher{
		client:    &http.Client{Timeout: 15 * time.Second},
		uploadDir: uploadDir,
	}, nil
}

// Fetch downloads imageURL and saves it as a JPEG named after the slot and the
// current time to avoid collisions. The payload is decoded before saving, so
// non-image responses are rejected, and oversized images are bounded to
// maxImageWidth.
func (f *ImageFetcher) Fetch(ctx context.Context, imageURL string, slot int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build image download request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("image download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to decode downloaded image: %w", err)
	}
	if img.Bounds().Dx() > maxImageWidth {
		img = imaging.Resize(img, maxImageWidth, 0, imaging.Lanczos)
	}

	filename := fmt.Sprintf("slide_%d_%d.jpg", slot, time.Now().Unix())
	path := filepath.Join(f.uploadDir, filename)

	if err := imaging.Save(img, path); err != nil {
		// Don't leave a partially written file behind.
		os.Remove(path)
		return "", fmt.Errorf("failed to save image %s: %w", filename, err)
	}

	return uploadPublicPath + "/" + filename, nil
}
