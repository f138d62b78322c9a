package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/antoniostano/whisperpool/internal/acoustic"
	"github.com/antoniostano/whisperpool/internal/config"
	"github.com/antoniostano/whisperpool/internal/decoder"
	"github.com/antoniostano/whisperpool/internal/deviceconf"
	"github.com/antoniostano/whisperpool/internal/engine"
	"github.com/antoniostano/whisperpool/internal/httpapi"
	"github.com/antoniostano/whisperpool/internal/model"
	"github.com/antoniostano/whisperpool/internal/observability"
	"github.com/antoniostano/whisperpool/internal/storage"
	"github.com/antoniostano/whisperpool/internal/vad"
)

const whisperEngineID = 0

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.DatabaseURL, cfg.FileStoragePath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer store.Close()

	devices := deviceconf.New()
	devices.Add(whisperEngineID, "whisper", -1)
	if cfg.DeviceConfig != "" {
		if err := devices.Apply(cfg.DeviceConfig, -1, deviceconf.ImplicitAllowed); err != nil {
			log.Fatalf("WHISPERPOOL_DEVICE parse error: %v", err)
		}
	}
	device, _ := devices.Device(whisperEngineID)
	log.Printf("whisper engine device: %s", deviceconf.DeviceString(device))

	vadCfg := model.VADConfig{
		SampleRate:       16000,
		WindowSizeMs:     cfg.VADWindowSizeMs,
		Threshold:        float32(cfg.VADThreshold),
		MinSilenceMs:     cfg.VADMinSilenceMs,
		MinSpeechMs:      cfg.VADMinSpeechMs,
		PadMs:            cfg.VADPadMs,
		MaxSpeechSeconds: cfg.VADMaxSpeechSecs,
	}

	newDriver := func() (*decoder.Driver, error) {
		acousticModel := acoustic.NewModel(16000)
		vadModel := acoustic.NewRMSModel(0)
		segmenter := vad.New(vadModel, vadCfg)
		return &decoder.Driver{Model: acousticModel, VAD: segmenter}, nil
	}

	eng := engine.New(newDriver, cfg.MaxWorkers, metrics)

	api := httpapi.New(cfg, eng, store, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		log.Printf("engine drain failed: %v", err)
	}

	log.Printf("shutdown complete")
}
