package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"plantboard/api/internal/app"
	"plantboard/api/internal/config"
	"plantboard/api/internal/events"
	"plantboard/api/internal/export"
	"plantboard/api/internal/render"
	"plantboard/api/internal/search"
	"plantboard/api/internal/store"
	"plantboard/api/internal/thumbnail"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
	}
	searchService := search.NewService(meiliClient, pgfts)
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService.ReindexAllFromPG(ctx)
	}

	var renderCache *render.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		renderCache, err = render.NewCache(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		defer renderCache.Close()
		log.Printf("Using Redis to cache rendered images")
	}

	renderClient := render.NewClient(cfg.RenderBaseURL, cfg.RenderTimeout, renderCache)
	thumbs := thumbnail.NewGenerator(renderClient, cfg.ThumbnailMaxWidth)
	bus := events.NewBus()
	exportService := export.NewService(renderClient)

	service := app.New(cfg, dataStore, renderClient, thumbs, bus, searchService, exportService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, cfg.APIKeys)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write timeout: the event stream endpoint holds its
		// response open for the lifetime of the subscriber.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Plantboard API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
