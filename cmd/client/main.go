package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"bors-backend/internal/client"
	"bors-backend/internal/config"
	"bors-backend/internal/conversation"
	"bors-backend/internal/storage"
	"bors-backend/internal/ui"
	"bors-backend/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	var configPath, logPath string
	var debug bool
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "path to the config file")
	flag.StringVar(&logPath, "log", "./data/client.log", "client log file")
	flag.BoolVar(&debug, "debug", false, "log outgoing requests")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// the terminal belongs to the UI, so logs go to a file
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		log.Fatalf("Failed to create log dir: %v", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer logFile.Close()

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	if err := logger.Init(level, cfg.Log.Format, logFile); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	store := storage.NewDiskStorage(cfg.Client.PromptFile)
	if err := store.Init(); err != nil {
		log.Fatalf("Failed to open settings: %v", err)
	}
	defer store.Close()

	backend := client.New(client.Options{
		ServerURL: cfg.Client.ServerURL,
		Timeout:   cfg.Client.RequestTimeout,
		InitData:  cfg.Client.InitData,
		Debug:     debug,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	catalog := backend.CatalogOrDefault(ctx)
	cancel()

	session, err := conversation.NewSession(backend, store, catalog)
	if err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}

	logger.Infof("Client started against %s", cfg.Client.ServerURL)
	if err := ui.New(session, cfg.Client.ImageDir).Run(); err != nil {
		logger.Errorf("UI exited: %v", err)
		log.Fatalf("UI error: %v", err)
	}
}
