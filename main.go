// Package main, callrelay sunucusunun giriş noktasıdır.
//
// Bu dosya Dependency Injection "wire-up" noktasıdır:
//  1. Config'i yükle
//  2. Database'i başlat (gömülü migration'lar)
//  3. Repository'leri oluştur (registry backend seçimi dahil)
//  4. Metrics ve WebSocket Hub
//  5. Service'leri oluştur
//  6. Hub callback'lerini bağla ve Hub'ı başlat
//  7. Handler'ları oluştur
//  8. HTTP router'ı kur, route'ları bağla
//  9. CORS yapılandır
//  10. HTTP Server'ı başlat
//  11. Graceful shutdown
//
// Global değişken yok; her şey burada oluşturulup birbirine bağlanır.
package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/akinalp/callrelay/config"
	"github.com/akinalp/callrelay/database"
	"github.com/akinalp/callrelay/pkg/metrics"
	"github.com/akinalp/callrelay/ws"
)

func main() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("[main] callrelay server starting...")

	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] failed to load config: %v", err)
	}
	log.Printf("[main] config loaded (port=%d, registry=%s)", cfg.Server.Port, cfg.Registry.Backend)

	// ─── 2. Database ───
	migrations, err := fs.Sub(database.EmbeddedMigrations, "migrations")
	if err != nil {
		log.Fatalf("[main] failed to open embedded migrations: %v", err)
	}
	db, err := database.New(cfg.Database.Path, migrations)
	if err != nil {
		log.Fatalf("[main] failed to initialize database: %v", err)
	}
	defer db.Close()

	// ─── 3. Repository Layer ───
	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	repos, err := initRepositories(startCtx, db.Conn, cfg.Registry)
	startCancel()
	if err != nil {
		log.Fatalf("[main] failed to initialize repositories: %v", err)
	}
	defer repos.Close()

	// ─── 4. Metrics + WebSocket Hub ───
	m := metrics.New(cfg.Metrics.Namespace)
	hub := ws.NewHub(m)

	// ─── 5. Service Layer ───
	svcs, limiters, err := initServices(repos, hub, m, cfg)
	if err != nil {
		log.Fatalf("[main] failed to initialize services: %v", err)
	}

	// ─── 6. Hub Callbacks ───
	registerHubCallbacks(hub, svcs.Invitation)
	go hub.Run()

	svcs.Pruner.Start()

	// ─── 7. Handler Layer ───
	h := initHandlers(svcs, limiters, hub)

	// ─── 8. HTTP Router ───
	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Auth, m)

	// ─── 9. CORS ───
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
	})

	// ─── 10. HTTP Server ───
	srv := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: corsHandler.Handler(mux),
		// WriteTimeout dispatch süresinden uzun olmalı; callRequest fan-out'u
		// DispatchTimeout kadar sürebilir.
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Call.DispatchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ─── 11. Graceful Shutdown ───
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("[main] server listening on %s", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("[main] server error: %v", err)
		}
	}()

	<-done
	log.Println("[main] shutting down...")

	// Önce HTTP server: yeni RPC kabul edilmez, süren fan-out'lar biter.
	// Sonra WebSocket bağlantıları ve arka plan goroutine'leri kapanır.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Call.DispatchTimeout+5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("[main] forced shutdown: %v", err)
	}

	hub.Shutdown()
	svcs.Close()
	limiters.Close()

	log.Println("[main] server stopped gracefully")
}
