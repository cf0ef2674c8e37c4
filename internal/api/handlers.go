package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strings"
	"time"

	"deckforge.app/deck-backend/internal/auth"
	"deckforge.app/deck-backend/internal/config"
	"deckforge.app/deck-backend/internal/core"
	"deckforge.app/deck-backend/internal/store"
	"github.com/go-chi/chi/v5"
)

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

type APIHandler struct {
	deckService   *core.DeckService
	uploadService *core.UploadService
}

func NewAPIHandler(ds *core.DeckService, us *core.UploadService) *APIHandler {
	return &APIHandler{deckService: ds, uploadService: us}
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// JWTAuthMiddleware requires a bearer token and resolves the user into the
// request context.
func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			respondError(w, http.StatusUnauthorized, "Authorization header is required")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := auth.ValidateJWT(tokenString)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		user, err := h.deckService.GetUserByUsername(username)
		if err != nil {
			log.Printf("Error in JWTAuthMiddleware for user %s: %v", username, err)
			respondError(w, http.StatusInternalServerError, "Failed to process user identity")
			return
		}
		if user == nil {
			respondError(w, http.StatusUnauthorized, "User not found")
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		ctx = context.WithValue(ctx, usernameKey, user.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OptionalJWTAuthMiddleware resolves a token when one is presented but lets
// anonymous requests through. Used for the endpoints the open policy leaves
// unauthenticated.
func (h *APIHandler) OptionalJWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if username, err := auth.ValidateJWT(tokenString); err == nil {
				if user, err := h.deckService.GetUserByUsername(username); err == nil && user != nil {
					ctx := context.WithValue(r.Context(), userIDKey, user.ID)
					ctx = context.WithValue(ctx, usernameKey, user.Username)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

func identityFromContext(ctx context.Context) (int64, string) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return core.AnonymousOwnerID, ""
	}
	username, _ := ctx.Value(usernameKey).(string)
	return userID, username
}

type SignupRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "All fields are required")
		return
	}

	if existing, err := h.deckService.GetUserByUsername(req.Username); err != nil {
		log.Printf("Error checking username %s: %v", req.Username, err)
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	} else if existing != nil {
		respondError(w, http.StatusBadRequest, "Username already exists")
		return
	}

	if existing, err := h.deckService.GetUserByEmail(req.Email); err != nil {
		log.Printf("Error checking email %s: %v", req.Email, err)
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	} else if existing != nil {
		respondError(w, http.StatusBadRequest, "Email already registered")
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("Error hashing password for user %s: %v", req.Username, err)
		respondError(w, http.StatusInternalServerError, "Failed to process password")
		return
	}

	if _, err := h.deckService.CreateUser(req.Username, req.Email, hashedPassword); err != nil {
		log.Printf("Error creating user %s: %v", req.Username, err)
		respondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"success": true,
		"message": "Account created successfully",
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "Username and password required")
		return
	}

	user, err := h.deckService.GetUserByUsername(req.Username)
	if err != nil {
		log.Printf("Error getting user %s: %v", req.Username, err)
		respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		respondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}

	token, err := auth.GenerateJWT(user.Username)
	if err != nil {
		log.Printf("Error generating JWT for user %s: %v", req.Username, err)
		respondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token, "username": user.Username})
}

type ChatRequest struct {
	Prompt        string   `json:"prompt"`
	IncludeImages []string `json:"include_images"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	userID, username := identityFromContext(r.Context())

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "No prompt provided")
		return
	}

	result := h.deckService.GenerateDeck(r.Context(), userID, username, req.Prompt, len(req.IncludeImages))
	respondJSON(w, http.StatusOK, result)
}

type UpdateRequest struct {
	Prompt string        `json:"prompt"`
	Slides []store.Slide `json:"slides"`
}

func (h *APIHandler) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := identityFromContext(r.Context())

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.Prompt == "" {
		respondError(w, http.StatusBadRequest, "No prompt provided")
		return
	}

	result, err := h.deckService.UpdateDeck(r.Context(), ownerID, req.Prompt, req.Slides)
	if err != nil {
		if errors.Is(err, core.ErrUnparsableResponse) {
			respondError(w, http.StatusInternalServerError, "Failed to parse AI response")
			return
		}
		log.Printf("Error updating deck for owner %d: %v", ownerID, err)
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (h *APIHandler) GetSlidesHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())

	slides := h.deckService.WorkingDeck(userID)
	if slides == nil {
		slides = []store.Slide{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"slides": slides})
}

var historyTemplate = template.Must(template.New("history").Parse(`<!DOCTYPE html>
<html>
<head><title>Presentation History</title></head>
<body>
  <h1>{{.Username}}'s Presentations</h1>
  {{if .Presentations}}
  <ul>
    {{range .Presentations}}
    <li>
      <a href="/load-presentation/{{.ID}}">{{.Title}}</a>
      <small>updated {{.UpdatedAt.Format "2006-01-02 15:04"}}</small>
    </li>
    {{end}}
  </ul>
  {{else}}
  <p>No presentations yet.</p>
  {{end}}
</body>
</html>
`))

func (h *APIHandler) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	userID, username := identityFromContext(r.Context())

	presentations, err := h.deckService.ListPresentations(userID)
	if err != nil {
		log.Printf("Error listing presentations for user %d: %v", userID, err)
		respondError(w, http.StatusInternalServerError, "Failed to list presentations")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Username      string
		Presentations []store.Presentation
	}{Username: username, Presentations: presentations}

	if err := historyTemplate.Execute(w, data); err != nil {
		log.Printf("Error rendering history for user %d: %v", userID, err)
	}
}

type LoadPresentationResponse struct {
	Slides    []store.Slide `json:"slides"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

func (h *APIHandler) LoadPresentationHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())
	presentationID := chi.URLParam(r, "presentationID")

	presentation, err := h.deckService.LoadPresentation(presentationID, userID)
	if err != nil {
		log.Printf("Error loading presentation %s for user %d: %v", presentationID, userID, err)
		respondError(w, http.StatusInternalServerError, "Failed to load presentation")
		return
	}
	if presentation == nil {
		respondError(w, http.StatusNotFound, "Presentation not found")
		return
	}

	slides, err := presentation.Slides()
	if err != nil {
		log.Printf("Corrupt slides for presentation %s: %v", presentationID, err)
		respondError(w, http.StatusInternalServerError, "Failed to decode presentation")
		return
	}

	respondJSON(w, http.StatusOK, LoadPresentationResponse{
		Slides:    slides,
		Title:     presentation.Title,
		CreatedAt: presentation.CreatedAt,
		UpdatedAt: presentation.UpdatedAt,
	})
}

func (h *APIHandler) DeletePresentationHandler(w http.ResponseWriter, r *http.Request) {
	userID, _ := identityFromContext(r.Context())
	presentationID := chi.URLParam(r, "presentationID")

	deleted, err := h.deckService.DeletePresentation(presentationID, userID)
	if err != nil {
		log.Printf("Error deleting presentation %s for user %d: %v", presentationID, userID, err)
		respondError(w, http.StatusInternalServerError, "Failed to delete presentation")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Presentation not found")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "Presentation deleted",
	})
}

func (h *APIHandler) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, config.AppConfig.MaxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		respondError(w, http.StatusBadRequest, "No image file provided")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		respondError(w, http.StatusBadRequest, "No file selected")
		return
	}

	record, err := h.uploadService.SaveUpload(header.Filename, file)
	if err != nil {
		if errors.Is(err, core.ErrDisallowedExtension) {
			respondError(w, http.StatusBadRequest, "Invalid file type. Allowed: png, jpg, jpeg, gif, bmp, webp")
			return
		}
		log.Printf("Error storing upload %s: %v", header.Filename, err)
		respondError(w, http.StatusInternalServerError, "Failed to store image")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"filename": record.Filename,
		"url":      record.URL,
	})
}

func (h *APIHandler) GetImagesHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"images": h.uploadService.ListImages(),
	})
}
