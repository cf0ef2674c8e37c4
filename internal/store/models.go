package store

import "time"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Do not expose this in JSON responses
	CreatedAt    time.Time `json:"created_at"`
}

// Slide is the wire shape shared with the model provider and with clients.
// HasImage is always set once enrichment has run, even when no image was found.
type Slide struct {
	Title            string   `json:"title"`
	Content          []string `json:"content"`
	ImageSearchQuery string   `json:"image_search_query,omitempty"`
	ImagePosition    string   `json:"image_position,omitempty"`
	ImageURL         string   `json:"image_url,omitempty"`
	HasImage         bool     `json:"has_image"`
}

// Presentation is a deck owned by exactly one user. Slides are stored as a
// single JSON text blob in SlidesData.
type Presentation struct {
	ID         string    `json:"id"` // UUID
	UserID     int64     `json:"user_id"`
	Title      string    `json:"title"`
	SlidesData string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// UploadedImage records a manually uploaded file. Records live in a
// process-wide list; there is currently no delete path.
type UploadedImage struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Path     string `json:"path"`
}
