package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        username TEXT UNIQUE NOT NULL,
        email TEXT UNIQUE NOT NULL,
        password_hash TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS presentations (
        id TEXT PRIMARY KEY, -- UUID
        user_id INTEGER NOT NULL,
        title TEXT NOT NULL,
        slides_data TEXT NOT NULL, -- JSON array of slides
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) GetUserByUsername(username string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?", username).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?", email).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) CreateUser(username, email, passwordHash string) (*User, error) {
	res, err := s.db.Exec("INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)", username, email, passwordHash)
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.getUserByID(id)
}

func (s *SQLiteStore) getUserByID(id int64) (*User, error) {
	var user User
	err := s.db.QueryRow("SELECT id, username, email, password_hash, created_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return &user, nil
}

// Presentation methods

// SavePresentation stores a new deck owned by userID. The title comes from the
// first slide, or a default when the deck is empty.
func (s *SQLiteStore) SavePresentation(userID int64, slides []Slide) (*Presentation, error) {
	title := "Untitled Presentation"
	if len(slides) > 0 && slides[0].Title != "" {
		title = slides[0].Title
	}

	slidesJSON, err := json.Marshal(slides)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal slides: %w", err)
	}

	p := Presentation{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		SlidesData: string(slidesJSON),
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	stmt, err := s.db.Prepare("INSERT INTO presentations (id, user_id, title, slides_data, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare presentation insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(p.ID, p.UserID, p.Title, p.SlidesData, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to execute presentation insert: %w", err)
	}
	return &p, nil
}

// GetPresentationByID loads a deck scoped to its owner. A deck belonging to a
// different user is indistinguishable from a missing one: both return nil, nil.
func (s *SQLiteStore) GetPresentationByID(presentationID string, userID int64) (*Presentation, error) {
	var p Presentation
	err := s.db.QueryRow("SELECT id, user_id, title, slides_data, created_at, updated_at FROM presentations WHERE id = ? AND user_id = ?", presentationID, userID).
		Scan(&p.ID, &p.UserID, &p.Title, &p.SlidesData, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get presentation: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) GetPresentationsByUserID(userID int64) ([]Presentation, error) {
	rows, err := s.db.Query("SELECT id, user_id, title, slides_data, created_at, updated_at FROM presentations WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query presentations: %w", err)
	}
	defer rows.Close()

	var presentations []Presentation
	for rows.Next() {
		var p Presentation
		if err := rows.Scan(&p.ID, &p.UserID, &p.Title, &p.SlidesData, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan presentation row: %w", err)
		}
		presentations = append(presentations, p)
	}
	return presentations, nil
}

// DeletePresentation removes a deck scoped to its owner. Returns false when the
// deck does not exist or belongs to someone else.
func (s *SQLiteStore) DeletePresentation(presentationID string, userID int64) (bool, error) {
	res, err := s.db.Exec("DELETE FROM presentations WHERE id = ? AND user_id = ?", presentationID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete presentation: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

// Slides decodes the stored JSON blob back into slides.
func (p *Presentation) Slides() ([]Slide, error) {
	var slides []Slide
	if err := json.Unmarshal([]byte(p.SlidesData), &slides); err != nil {
		return nil, fmt.Errorf("failed to unmarshal slides for presentation %s: %w", p.ID, err)
	}
	return slides, nil
}
