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

	"poppy/api/internal/advisory"
	"poppy/api/internal/app"
	"poppy/api/internal/config"
	"poppy/api/internal/export"
	"poppy/api/internal/search"
	"poppy/api/internal/snapshot"
	"poppy/api/internal/store"
)

func main() {
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
		go searchService.ReindexAllFromPG(ctx)
	}

	var detector *advisory.Detector
	if strings.TrimSpace(cfg.ContinuationURL) != "" {
		detector = advisory.NewDetector(cfg.ContinuationURL, cfg.AdvisoryTimeout, nil)
	}
	var merger *advisory.Merger
	if strings.TrimSpace(cfg.MergerURL) != "" {
		merger = advisory.NewMerger(cfg.MergerURL, cfg.AdvisoryTimeout, nil)
	}
	var continuationCache *advisory.Cache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		continuationCache, err = advisory.NewCache(cfg.RedisURL, cfg.ContinuationCacheTTL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		log.Printf("Using Redis continuation cache")
	}
	advisorService := advisory.NewService(detector, merger, continuationCache, cfg.MergeSeparator, cfg.MergeDonorFirst)

	var snapshotService *snapshot.Service
	if strings.TrimSpace(cfg.SnapshotsDir) != "" {
		if err := os.MkdirAll(cfg.SnapshotsDir, 0o755); err != nil {
			log.Fatalf("failed to create snapshots dir: %v", err)
		}
		snapshotService = snapshot.New(cfg.SnapshotsDir)
	}

	var exportArchive *export.Archive
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		exportArchive, err = export.NewArchive(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			log.Printf("WARNING: export archive unavailable: %v", err)
		}
	}
	exportService := export.NewService(dataStore, exportArchive)

	service := app.New(cfg, dataStore, advisorService, searchService, snapshotService, exportService)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Poppy API listening on %s", cfg.Addr)
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
