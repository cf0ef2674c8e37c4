package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, uploadDir string, openEndpoints bool) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	// Public routes
	r.Post("/signup", apiHandler.SignupHandler)
	r.Post("/login", apiHandler.LoginHandler)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Materialized and uploaded images are served from the upload directory.
	r.Handle("/static/uploads/*", http.StripPrefix("/static/uploads/", http.FileServer(http.Dir(uploadDir))))

	// User-authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(apiHandler.JWTAuthMiddleware)

		r.Post("/chat", apiHandler.ChatHandler)
		r.Get("/get-slides", apiHandler.GetSlidesHandler)
		r.Get("/history", apiHandler.HistoryHandler)
		r.Get("/load-presentation/{presentationID}", apiHandler.LoadPresentationHandler)
		r.Delete("/delete-presentation/{presentationID}", apiHandler.DeletePresentationHandler)
	})

	// Endpoints the original deployment left open. OPEN_ENDPOINTS=false puts
	// them behind the same token check as everything else.
	r.Group(func(r chi.Router) {
		if openEndpoints {
			r.Use(apiHandler.OptionalJWTAuthMiddleware)
		} else {
			r.Use(apiHandler.JWTAuthMiddleware)
		}

		r.Post("/update", apiHandler.UpdateHandler)
		r.Post("/upload-image", apiHandler.UploadImageHandler)
		r.Get("/get-images", apiHandler.GetImagesHandler)
	})

	return r
}
