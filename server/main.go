package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"layeredge/server/account"
	"layeredge/server/api"
	"layeredge/server/auth"
	"layeredge/server/config"
	"layeredge/server/market"
	"layeredge/server/recorder"
	"layeredge/server/srv"
	"layeredge/server/surge"
	"layeredge/server/viral"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	hashPassword := flag.String("hash-password", "", "print the bcrypt hash for an operator password and exit")
	flag.Parse()
	if *hashPassword != "" {
		h, err := auth.HashPassword(*hashPassword)
		if err != nil {
			log.Fatalf("hash password: %v", err)
		}
		fmt.Println(h)
		return
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sqlRec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open event ledger: %v", err)
		}
		rec = recorder.NewAsync(sqlRec, 256)
		log.Printf("RECORDER: writing events to %s", cfg.Database.SQLitePath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loop := srv.NewLoop(1024)
	go loop.Run(ctx)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	clock := srv.NewClock(loop)
	accounts := account.NewRegistry()
	memes := market.New(accounts)

	hub := srv.NewHub(loop, accounts, memes, rec, srv.Options{
		InitialSurgeDelay: cfg.Surge.InitialDelay,
		MessagesPerSecond: cfg.Limits.MessagesPerSecond,
		Burst:             cfg.Limits.Burst,
	})

	scheduler := surge.New(surge.Config{
		Duration:     cfg.Surge.Duration,
		Target:       cfg.Surge.Target,
		Policy:       surge.TargetPolicy(cfg.Surge.TargetPolicy),
		TargetMin:    cfg.Surge.TargetMin,
		TargetMax:    cfg.Surge.TargetMax,
		RetriggerMin: cfg.Surge.RetriggerMin,
		RetriggerMax: cfg.Surge.RetriggerMax,
	}, hub, clock, rng, rec)
	hub.SetSurge(scheduler)

	engine := viral.New(viral.Config{
		MinHype:  cfg.Viral.MinHype,
		MinScore: cfg.Viral.MinScore,
		Reward:   cfg.Viral.Reward,
	}, memes, accounts, hub, clock, rng, rec)

	c := cron.New()
	if _, err := c.AddFunc(cfg.Viral.Schedule, func() { loop.Post(func() { engine.Run() }) }); err != nil {
		log.Fatalf("failed to schedule viral spread %q: %v", cfg.Viral.Schedule, err)
	}
	c.Start()
	log.Printf("VIRAL: spread check scheduled %q", cfg.Viral.Schedule)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", hub.ServeWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })

	admin := &api.Admin{
		Hub:      hub,
		Loop:     loop,
		Accounts: accounts,
		Market:   memes,
		Surge:    scheduler,
		Viral:    engine,
		Started:  time.Now(),
	}
	admin.Register(mux, auth.NewAuth(cfg.Admin.Users, cfg.Admin.JWTSecret, cfg.Admin.TokenTTL))

	if cfg.HTTP.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(cfg.HTTP.StaticDir)))
		log.Printf("serving static files from %s", cfg.HTTP.StaticDir)
	}

	s := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		log.Println("server listening on", cfg.HTTP.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	<-c.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Printf("http shutdown: %v", err)
	}
	<-loop.Done()
	scheduler.Stop()
	if err := rec.Close(); err != nil {
		log.Printf("RECORDER: close: %v", err)
	}
}
