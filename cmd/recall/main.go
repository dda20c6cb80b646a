package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/lokutor-ai/recall/pkg/audio"
	"github.com/lokutor-ai/recall/pkg/config"
	"github.com/lokutor-ai/recall/pkg/logging"
	"github.com/lokutor-ai/recall/pkg/pipeline"
	"github.com/lokutor-ai/recall/pkg/providers/stt"
	"github.com/lokutor-ai/recall/pkg/store"
	"github.com/lokutor-ai/recall/pkg/supervisor"
	"github.com/lokutor-ai/recall/pkg/vad"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: No .env file found, using system environment variables")
	}

	cfg, err := config.Load(os.Getenv("RECALL_CONFIG"))
	if err != nil {
		log.Fatalf("Error: invalid configuration: %v", err)
	}

	logger, flush, err := logging.New(os.Getenv("RECALL_DEBUG") != "")
	if err != nil {
		log.Fatalf("Error: init logging: %v", err)
	}
	defer flush()

	if err := os.MkdirAll(cfg.OutputDirectory, 0o755); err != nil {
		log.Fatalf("Error: create output directory: %v", err)
	}

	db, err := store.Open(filepath.Join(cfg.OutputDirectory, "recall.db"))
	if err != nil {
		log.Fatalf("Error: open store: %v", err)
	}
	defer db.Close()

	// VAD selection
	var vadEngine vad.Engine
	switch cfg.VadEngine {
	case config.VadNeural:
		silero, err := vad.NewSilero(cfg.SileroModelPath)
		if err != nil {
			log.Fatalf("Error: load neural VAD: %v", err)
		}
		defer silero.Close()
		vadEngine = silero
	default:
		vadEngine = vad.NewEnergy()
	}

	// Provider selection: the local model is always loaded so the
	// cloud path has something to fall back to.
	whisperPath := cfg.WhisperModelPath
	if cfg.TranscriptionEngine == config.EngineLocalDistil {
		whisperPath = filepath.Join(filepath.Dir(whisperPath), "ggml-distil-large-v3.bin")
	}
	local, err := stt.NewWhisper(whisperPath)
	if err != nil {
		log.Fatalf("Error: load whisper model: %v", err)
	}
	defer local.Close()

	var primary stt.Provider = local
	var fallback stt.Provider
	if cfg.TranscriptionEngine == config.EngineCloud {
		if cfg.CloudAPIKey == "" {
			log.Fatal("Error: cloud_api_key (or DEEPGRAM_API_KEY) must be set for the cloud engine")
		}
		primary = stt.NewDeepgram(cfg.CloudAPIKey)
		fallback = local
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker := pipeline.NewWorker(pipeline.WorkerConfig{
		Primary:   primary,
		Fallback:  fallback,
		VAD:       vadEngine,
		OutputDir: cfg.OutputDirectory,
		Logger:    logger,
	})
	worker.Start(ctx)

	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		pipeline.RunStoreSink(ctx, worker.Results(), db, logger)
	}()

	devices, err := resolveDevices(cfg.Devices)
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	for _, dev := range devices {
		logger.Info("capturing device", "device", dev.String())
	}

	sup, err := supervisor.New(supervisor.Config{
		Devices:      devices,
		ClipDuration: time.Duration(cfg.ClipDurationSeconds) * time.Second,
		OutputDir:    cfg.OutputDirectory,
		Submit:       worker.Submit,
		Logger:       logger,
	})
	if err != nil {
		log.Fatalf("Error: %v", err)
	}
	sup.Start(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := sup.Shutdown(shutdownCtx); err != nil {
		logger.Warn("capture loops did not drain in time", "error", err)
	}
	worker.Stop()
	<-sinkDone
	cancel()
}

// resolveDevices parses the configured device strings, defaulting to
// the host's default input and output devices.
func resolveDevices(names []string) ([]audio.AudioDevice, error) {
	if len(names) == 0 {
		var devices []audio.AudioDevice
		if in, err := audio.DefaultInputDevice(); err == nil {
			devices = append(devices, in)
		}
		if out, err := audio.DefaultOutputDevice(); err == nil {
			devices = append(devices, out)
		}
		if len(devices) == 0 {
			return nil, fmt.Errorf("no audio devices available")
		}
		return devices, nil
	}
	devices := make([]audio.AudioDevice, 0, len(names))
	for _, name := range names {
		dev, err := audio.ParseDevice(name)
		if err != nil {
			return nil, err
		}
		devices = append(devices, dev)
	}
	return devices, nil
}
