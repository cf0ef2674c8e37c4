package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deckforge.app/deck-backend/internal/api"
	"deckforge.app/deck-backend/internal/config"
	"deckforge.app/deck-backend/internal/core"
	"deckforge.app/deck-backend/internal/store"
)

func main() {
	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	// Initialize database store
	dbStore, err := store.NewSQLiteStore(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Initialize LLM service
	llmService := core.NewLLMService()
	defer llmService.Close()

	// Image pipeline: search chain plus materializer
	imageSearch := core.NewImageSearchService()
	imageFetcher, err := core.NewImageFetcher(config.AppConfig.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize image fetcher: %v", err)
	}

	uploadService, err := core.NewUploadService(config.AppConfig.UploadDir, config.AppConfig.AllowedExtensions)
	if err != nil {
		log.Fatalf("Failed to initialize upload service: %v", err)
	}

	// Deck pipeline
	slideService := core.NewSlideService(llmService)
	deckService := core.NewDeckService(dbStore, slideService, imageSearch, imageFetcher)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(deckService, uploadService)
	router := api.NewRouter(apiHandler, config.AppConfig.UploadDir, config.AppConfig.OpenEndpoints)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second, // Adjusted for potentially slower LLM handshakes
		WriteTimeout: 60 * time.Second, // LLM and image provider calls can take time
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
