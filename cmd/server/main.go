package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"sitemedic/internal/config"
	"sitemedic/internal/db"
	"sitemedic/internal/events"
	"sitemedic/internal/handlers"
	"sitemedic/internal/middleware"
	"sitemedic/internal/repair"
	"sitemedic/internal/scanner"
	"sitemedic/internal/session"
	"sitemedic/internal/transport"
	"sitemedic/internal/version"
)

func main() {
	cfg := config.Load()

	if err := db.Init(cfg.DBPath); err != nil {
		log.Fatalf("❌ Database init failed: %v", err)
	}
	defer db.DB.Close()

	bus := events.NewBus()
	bus.Subscribe(events.LogSink())

	sessions := session.NewManager(transport.Dial, cfg.SessionTTL, cfg.SweepInterval)
	sessions.Start()

	rules := scanner.DefaultRules()
	if cfg.RulesPath != "" {
		n, err := rules.LoadPack(cfg.RulesPath)
		if err != nil {
			log.Printf("⚠️  Rule pack %s not loaded: %v", cfg.RulesPath, err)
		} else {
			log.Printf("✓ Loaded %d signature rules from %s", n, cfg.RulesPath)
		}
	}

	runner := &scanner.Runner{
		DB:           db.DB,
		Sessions:     sessions,
		Classifier:   scanner.NewClassifier(rules),
		Bus:          bus,
		MaxReadBytes: cfg.MaxReadBytes,
		Limiter:      rate.NewLimiter(rate.Limit(cfg.ReadsPerSec), int(cfg.ReadsPerSec*2)),
	}

	pool := scanner.NewPool(db.DB, runner, cfg.ScanWorkers, time.Duration(cfg.ScanPollSec)*time.Second)
	pool.Start()

	engine := &repair.Engine{DB: db.DB, Sessions: sessions, Bus: bus}

	handlers.Sessions = sessions
	handlers.Engine = engine
	handlers.Bus = bus

	rl := middleware.NewRateLimiter(120, time.Minute)
	protect := rl.Limit

	mux := http.NewServeMux()
	handlers.RegisterSessionRoutes(mux, protect)
	handlers.RegisterScanRoutes(mux, protect)
	handlers.RegisterRepairRoutes(mux, protect)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		handlers.JSONResponse(w, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("GET /api/version", func(w http.ResponseWriter, r *http.Request) {
		handlers.JSONResponse(w, version.Get())
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      middleware.CORS(middleware.Logging(mux)),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("✓ SiteMedic %s listening on port %s", version.Version, cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down...")

	pool.Stop()
	sessions.Stop()
	sessions.CloseAll()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️  Shutdown: %v", err)
	}
	log.Println("✓ Server stopped")
}
