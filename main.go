// Package main, sohbet sunucusunun giriş noktasıdır.
//
// Bu dosyanın görevi, Dependency Injection "wire-up":
//
//  1. Config'i yükle
//  2. Logger'ı kur
//  3. Database'i başlat (migration'lar dahil)
//  4. Repository'leri oluştur
//  5. WebSocket Hub'ı başlat
//  6. Service'leri ve rate limiter'ları oluştur
//  7. Hub callback'lerini bağla
//  8. Handler'ları oluştur
//  9. HTTP router'ı kur, route'ları bağla
//  10. CORS yapılandır
//  11. HTTP Server'ı başlat
//  12. Graceful shutdown
//
// Global değişken yok (zap global logger hariç); her şey burada oluşturulup
// birbirine bağlanıyor.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akinalp/sohbet/config"
	"github.com/akinalp/sohbet/database"
	"github.com/akinalp/sohbet/pkg/logger"
	"github.com/akinalp/sohbet/ws"
	"github.com/benbjohnson/clock"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// shutdownTimeout: mevcut isteklerin ve presence yazımlarının bitmesi için üst süre.
const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sohbet: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// ─── 1. Config ───
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─── 2. Logger ───
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	zap.S().Infow("[main] sohbet server starting", "port", cfg.Server.Port)

	// ─── 3. Database ───
	db, err := database.New(cfg.Database.Path, database.Migrations())
	if err != nil {
		return fmt.Errorf("failed to init database: %w", err)
	}
	defer db.Close()
	zap.S().Infow("[main] database ready", "path", cfg.Database.Path)

	// ─── 4. Repositories ───
	repos := initRepositories(db.Conn)

	// ─── 5. WebSocket Hub ───
	hub := ws.NewHub()
	go hub.Run()

	// ─── 6. Services ───
	svcs, limiters, err := initServices(repos, hub, cfg, clock.New())
	if err != nil {
		return err
	}

	// ─── 7. Hub Callbacks ───
	registerHubCallbacks(hub, svcs)

	// ─── 8. Handlers ───
	h := initHandlers(svcs, limiters, hub, db.Conn, cfg)

	// ─── 9. Router ───
	mux := http.NewServeMux()
	initRoutes(mux, h, svcs.Auth, svcs.Users)

	// ─── 10. CORS ───
	origins := cfg.Server.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: len(cfg.Server.CORSOrigins) > 0,
	})

	// ─── 11. HTTP Server ───
	// WriteTimeout yok: /ws hijack edilir, attachment indirmeleri uzun sürebilir.
	srv := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           corsHandler.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		zap.S().Infow("[main] server listening", "addr", cfg.Server.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// ─── 12. Graceful Shutdown ───
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	select {
	case <-done:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}
	zap.S().Info("[main] shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Önce yeni istekleri durdur, sonra WS bağlantılarını kapat.
	// Tracker en son: bekleyen grace timer'ları iptal edip online
	// kullanıcıları offline yazar.
	if err := srv.Shutdown(ctx); err != nil {
		zap.S().Warnw("[main] forced shutdown", "error", err)
	}
	hub.Shutdown()
	svcs.Presence.Shutdown(ctx)

	zap.S().Info("[main] server stopped gracefully")
	return nil
}
