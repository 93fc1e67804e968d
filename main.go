// ABOUTME: Entry point for the Sendspin synchronized audio player client
// ABOUTME: Parses CLI flags, builds an endpoint, and runs resonate.Player until interrupted
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sendspin-audio/client-go/internal/endpoint"
	"github.com/sendspin-audio/client-go/pkg/resonate"
)

var (
	host          = flag.String("host", "", "Local server host (direct WebSocket connection)")
	port          = flag.Int("port", 8927, "Local server port")
	path          = flag.String("path", "/ws", "Local server WebSocket path")
	proxyURL      = flag.String("proxy-url", "", "Authenticated proxy URL (https://...)")
	proxyBearer   = flag.String("proxy-bearer", "", "Bearer token for the authenticated proxy")
	remoteID      = flag.String("remote-id", "", "26-character remote identifier for WebRTC connection")
	signalingURL  = flag.String("signaling-url", "", "WebRTC signaling server URL (required with -remote-id)")
	name          = flag.String("name", "", "Player display name (default: hostname)")
	volume        = flag.Int("volume", 100, "Initial volume (0-100)")
	highPower     = flag.Bool("high-power", false, "Enable high-power mode (shorter idle-ping interval)")
	staticDelayMs = flag.Float64("static-delay-ms", 0, "Static audio-path delay calibration, in milliseconds")
	logFile       = flag.String("log-file", "sendspin-player.log", "Log file path")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer f.Close()

	logger := log.New(io.MultiWriter(os.Stdout, f), "", log.LstdFlags|log.Lmicroseconds)

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-sendspin-player", hostname)
	}

	ep := endpoint.Endpoint{ID: "cli-endpoint", Name: playerName, Policy: endpoint.PolicyAuto}
	if *host != "" {
		ep.Local = &endpoint.LocalAddress{Host: *host, Port: *port, Path: *path}
	}
	if *proxyURL != "" {
		ep.Proxy = &endpoint.ProxyDescriptor{URL: *proxyURL, Auth: endpoint.ProxyAuth{BearerToken: *proxyBearer}}
	}
	if *remoteID != "" {
		ep.Remote = endpoint.RemoteHandle(*remoteID)
	}
	if err := ep.Validate(); err != nil {
		log.Fatalf("invalid endpoint: %v (pass -host, -proxy-url, and/or -remote-id)", err)
	}

	player, err := resonate.NewPlayer(resonate.PlayerConfig{
		Endpoint:      ep,
		PlayerName:    playerName,
		Volume:        *volume,
		HighPowerMode: *highPower,
		StaticDelayMs: *staticDelayMs,
		SignalingURL:  *signalingURL,
		Logger:        logger,
		OnStateChange: func(s resonate.PlayerState) {
			logger.Printf("player state: session=%s app=%s connected=%v", s.SessionState, s.AppState, s.Connected)
		},
		OnMetadata: func(m resonate.Metadata) {
			logger.Printf("now playing: %s - %s (%s)", m.Artist, m.Title, m.Album)
		},
		OnError: func(err error) {
			logger.Printf("player error: %v", err)
		},
	})
	if err != nil {
		log.Fatalf("failed to create player: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Printf("shutdown signal received")
		cancel()
	}()

	logger.Printf("starting player %q", playerName)
	player.Connect(ctx)

	<-ctx.Done()
	if err := player.Close(); err != nil {
		logger.Printf("error closing player: %v", err)
	}
	logger.Printf("player stopped")
}
