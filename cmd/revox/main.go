// Command revox records audio from the default input device as a sequence
// of crash-recoverable chunks and assembles them into one WAV recording.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/revox-audio/revox/internal/config"
	"github.com/revox-audio/revox/internal/health"
	"github.com/revox-audio/revox/internal/observe"
	"github.com/revox-audio/revox/internal/recorder"
	"github.com/revox-audio/revox/pkg/capture/portaudio"
	"github.com/revox-audio/revox/pkg/recovery"
	"github.com/revox-audio/revox/pkg/store"
	sqlitestore "github.com/revox-audio/revox/pkg/store/sqlite"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	duration := flag.Duration("duration", 30*time.Second, "how long to record (0 = until Ctrl+C)")
	out := flag.String("out", "recording.wav", "file the finished recording is written to")
	recoverOut := flag.String("recover-out", "", "write a previously persisted recording to this file and exit")
	reset := flag.Bool("reset", false, "clear both recovery slots and exit")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// No config file is fine; run on defaults.
			cfg = config.Default()
		} else {
			fmt.Fprintf(os.Stderr, "revox: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.Log))

	slog.Info("revox starting",
		"config", *configPath,
		"store_path", cfg.Recording.StorePath,
		"chunk_duration_ms", cfg.Recording.ChunkDurationMs,
		"log_level", cfg.Log.Level,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "revox"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	probes := health.NewRegistry()
	if addr := cfg.Metrics.ListenAddr; addr != "" {
		go serveMetrics(addr, probes)
	}

	// ── Slot store (optional: recording works without it) ─────────────────────
	var st store.Store
	sqlSt, err := sqlitestore.Open(ctx, cfg.Recording.StorePath)
	if err != nil {
		slog.Warn("recovery store unavailable, recording without persistence", "err", err)
	} else {
		st = sqlSt
		probes.Add("store", func(ctx context.Context) error {
			_, err := sqlSt.LatestChunk(ctx)
			return err
		})
		defer func() {
			if err := sqlSt.Close(); err != nil {
				slog.Warn("store close error", "err", err)
			}
		}()
	}

	rm := recovery.NewManager(st)

	if *reset {
		if st == nil {
			slog.Warn("nothing to reset: store unavailable")
			return 0
		}
		// Clearing directly is safe here: no recorder exists yet, so
		// there are no queued writes for the generation check to fence.
		if err := st.ClearAll(ctx); err != nil {
			slog.Error("clear slots", "err", err)
			return 1
		}
		slog.Info("recovery slots cleared")
		return 0
	}

	// ── Recovery check ────────────────────────────────────────────────────────
	cand := rm.Check(ctx)
	if cand.HasRecovery {
		slog.Info("recoverable recording found",
			"bytes", len(cand.Payload),
			"content_type", cand.ContentType,
			"duration", cand.Duration,
		)
	}
	if *recoverOut != "" {
		return recoverToFile(ctx, rm, *recoverOut)
	}

	// ── Record ────────────────────────────────────────────────────────────────
	dev := portaudio.New(portaudio.Config{
		SampleRate:      cfg.Capture.SampleRate,
		Channels:        cfg.Capture.Channels,
		FramesPerBuffer: cfg.Capture.FramesPerBuffer,
	})
	rec, err := recorder.New(recorder.Config{
		Device:        dev,
		Store:         st,
		ChunkDuration: cfg.Recording.ChunkDuration(),
	})
	if err != nil {
		slog.Error("create recorder", "err", err)
		return 1
	}
	defer func() {
		if err := rec.Close(); err != nil {
			slog.Warn("recorder close error", "err", err)
		}
	}()

	if err := rec.Start(ctx); err != nil {
		slog.Error("start recording", "err", err)
		return 1
	}

	if *duration > 0 {
		slog.Info("recording…", "duration", *duration, "out", *out)
		select {
		case <-time.After(*duration):
		case <-ctx.Done():
			slog.Info("interrupted, stopping early")
		}
	} else {
		slog.Info("recording until Ctrl+C", "out", *out)
		<-ctx.Done()
	}

	full, err := rec.Stop(context.Background())
	if err != nil {
		slog.Error("stop recording", "err", err)
		return 1
	}
	if err := os.WriteFile(*out, full.Data, 0o644); err != nil {
		slog.Error("write recording", "path", *out, "err", err)
		return 1
	}
	slog.Info("recording written",
		"path", *out,
		"bytes", len(full.Data),
		"chunks", full.Chunks,
		"duration", full.Duration,
	)

	// Drain the fire-and-forget persistence queue before exit.
	rec.Flush()
	return 0
}

// recoverToFile writes the persisted full recording to path.
func recoverToFile(ctx context.Context, rm *recovery.Manager, path string) int {
	payload, err := rm.Recover(ctx)
	if err != nil {
		slog.Error("nothing to recover", "err", err)
		return 1
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		slog.Error("write recovered recording", "path", path, "err", err)
		return 1
	}
	observe.DefaultMetrics().RecordingsRecovered.Add(ctx, 1)
	slog.Info("recovered recording written", "path", path, "bytes", len(payload))
	return 0
}

// serveMetrics exposes the Prometheus scrape endpoint and the health probes.
func serveMetrics(addr string, probes *health.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	probes.Routes(mux)
	slog.Info("metrics endpoint listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Warn("metrics endpoint error", "err", err)
	}
}

// newLogger builds the process logger: stderr by default, a size-rotated
// file when configured.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var lvl slog.Level
	switch cfg.Level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	var w io.Writer = os.Stderr
	if cfg.File != "" {
		w = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10, // MB
			MaxBackups: 3,
		}
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
