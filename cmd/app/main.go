package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"BlockTrader/internal/di"
	"BlockTrader/pkg/config"
	"BlockTrader/pkg/http/middleware"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config/config.yaml", "config file path")
	tokenFor := flag.String("token", "", "print an operator API token for this subject and exit")
	flag.Parse()

	// Load config
	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if *tokenFor != "" {
		tok, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), cfg.Auth.Issuer, *tokenFor, cfg.Auth.TokenTTL, time.Now())
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	log.Printf("env=%s symbol=%s source=%s sink=%s", cfg.Environment, cfg.Trading.Symbol, cfg.Source, cfg.Sink)

	// Wire DI: Initialize all dependencies
	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
