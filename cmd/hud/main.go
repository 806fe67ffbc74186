package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/speedhud/gohud/internal/app"
	"github.com/speedhud/gohud/internal/server"
	"github.com/speedhud/gohud/pkg/config"
	"github.com/speedhud/gohud/pkg/logger"

	// register the built-in fix sources
	_ "github.com/speedhud/gohud/internal/sources/all"
)

func main() {
	configPath := flag.String("config", "", "config file path (.yaml, .yml or .json)")
	sourceID := flag.String("source", "", "override the configured fix source")
	flag.Parse()

	// pull a local .env into the process before config reads the environment
	_ = godotenv.Load()

	if *configPath == "" {
		if _, err := os.Stat("hud.yaml"); err == nil {
			*configPath = "hud.yaml"
		}
	}
	config.SetConfigPath(*configPath)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *sourceID != "" {
		cfg.Source.ID = *sourceID
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "config: %v\n", err)
			os.Exit(1)
		}
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.LogLevel,
		OutputFile: cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		LogPerTrip: cfg.LogPerTrip,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}

	if *configPath != "" {
		logrus.Infof("config loaded from %s", *configPath)
	} else {
		logrus.Info("no config file, running on environment and defaults")
	}

	application, err := app.New(cfg)
	if err != nil {
		logrus.Fatalf("build pipeline: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logrus.Fatalf("start pipeline: %v", err)
	}

	srv := server.New(cfg, application)
	if err := srv.Start(ctx); err != nil {
		logrus.Fatalf("start control plane: %v", err)
	}

	sigC := make(chan os.Signal, 1)
	signal.Notify(sigC, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigC
	logrus.Infof("received %s, shutting down", sig)

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	application.Stop(stopCtx)
}
