// Command natbeacon runs the STUN Binding server and, unless disabled, the
// WebSocket signaling server next to it.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/natbeacon/config"
	"github.com/opd-ai/natbeacon/server"
	"github.com/opd-ai/natbeacon/signaling"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithField("error", err.Error()).Fatal("Failed to load configuration")
	}
	setupLogging(cfg)

	stunServer, err := server.Listen(server.Config{
		Addr:      cfg.STUNAddr,
		Workers:   cfg.Workers,
		QueueSize: cfg.QueueSize,
	})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"addr":  cfg.STUNAddr,
			"error": err.Error(),
		}).Fatal("Failed to bind STUN socket")
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- stunServer.Serve()
	}()

	var signalingServer *signaling.Server
	if cfg.SignalingEnabled {
		signalingServer = signaling.NewServer()
		go func() {
			errCh <- signalingServer.ListenAndServe(cfg.SignalingAddr)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig.String()).Info("Shutting down")
	case err := <-errCh:
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Server failed")
		}
	}

	if signalingServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := signalingServer.Shutdown(ctx); err != nil {
			logrus.WithField("error", err.Error()).Warn("Signaling shutdown error")
		}
	}
	if err := stunServer.Close(); err != nil {
		logrus.WithField("error", err.Error()).Warn("STUN shutdown error")
	}
}

// setupLogging applies the configured logrus level and formatter.
func setupLogging(cfg config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if cfg.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
