package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgeterm/edgeterm/internal/infrastructure/config"
	"github.com/edgeterm/edgeterm/internal/infrastructure/server"
)

func main() {
	configPath := flag.String("config", "", "Path to TOML config file")
	port := flag.String("port", "", "HTTP port (overrides config)")
	deviceID := flag.String("device-id", "", "Device ID for backend registration")
	apiURL := flag.String("api-url", "", "Backend API URL; enables registration")
	publicHTTPURL := flag.String("public-http-url", "", "Externally reachable URL, e.g. an ngrok tunnel")
	flag.Parse()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override file and environment.
	if *port != "" {
		cfg.Server.Port = *port
	}
	if *deviceID != "" {
		cfg.Registration.DeviceID = *deviceID
	}
	if *apiURL != "" {
		cfg.Registration.APIURL = *apiURL
		cfg.Registration.Enabled = true
	}
	if *publicHTTPURL != "" {
		cfg.Registration.PublicHTTPURL = *publicHTTPURL
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
