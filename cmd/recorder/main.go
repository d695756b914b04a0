package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/daanzu/speech-training-recorder/internal/apperr"
	"github.com/daanzu/speech-training-recorder/internal/audio"
	"github.com/daanzu/speech-training-recorder/internal/config"
	"github.com/daanzu/speech-training-recorder/internal/device"
	"github.com/daanzu/speech-training-recorder/internal/metrics"
	"github.com/daanzu/speech-training-recorder/internal/prompt"
	"github.com/daanzu/speech-training-recorder/internal/server"
	"github.com/daanzu/speech-training-recorder/internal/session"
	"github.com/daanzu/speech-training-recorder/internal/store"
	"github.com/daanzu/speech-training-recorder/internal/ui"
)

const (
	serviceName    = "speech-training-recorder"
	serviceVersion = "1.0.0"
	uiLogFile      = "recorder.log"
)

// options holds the command line flags
type options struct {
	configPath       string
	envPath          string
	promptsFile      string
	saveDir          string
	promptsCount     int
	promptLenSoftMax int
}

func main() {
	opts := options{}
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file (optional)")
	flag.StringVar(&opts.envPath, "env", ".env", "Path to .env file with RECORDER_* overrides")
	flag.StringVar(&opts.promptsFile, "p", "", "File containing prompts to choose from")
	flag.StringVar(&opts.saveDir, "d", "", "Where to save .wav and metadata files")
	flag.IntVar(&opts.promptsCount, "c", 0, "Number of prompts to select and display; negative selects all")
	flag.IntVar(&opts.promptLenSoftMax, "l", 0, "Soft maximum prompt length; longer prompts are split at spaces")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), `Usage: %s -p PROMPTS [options]

Chooses a selection of prompts from a text file, displays them one at a time
to be dictated, and records the dictation to .wav files plus one metadata
record per recording.

`, os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	set := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	if err := run(opts, set); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		if apperr.IsCode(err, apperr.CodeConfiguration) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// loadConfig layers defaults, config file, .env, environment and flags, then
// checks the paths the session needs.
func loadConfig(opts options, set map[string]bool) (*config.Config, error) {
	if err := config.LoadDotEnv(opts.envPath); err != nil {
		return nil, err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	if set["p"] {
		cfg.Recorder.PromptsFile = opts.promptsFile
	}
	if set["d"] {
		cfg.Recorder.SaveDir = opts.saveDir
	}
	if set["c"] {
		if opts.promptsCount < 0 {
			cfg.Recorder.PromptsCount = nil
		} else {
			n := opts.promptsCount
			cfg.Recorder.PromptsCount = &n
		}
	}
	if set["l"] {
		cfg.Recorder.PromptLenSoftMax = opts.promptLenSoftMax
	}

	if err := cfg.Validate(); err != nil {
		return nil, apperr.E(apperr.CodeConfiguration, "loadConfig", "invalid command line", err)
	}
	if err := cfg.Recorder.CheckPaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(opts options, set map[string]bool) error {
	cfg, err := loadConfig(opts, set)
	if err != nil {
		return err
	}

	// The terminal belongs to the UI, so console logging goes to a file
	if !cfg.Logging.IsFile() {
		cfg.Logging.Output = filepath.Join(cfg.Recorder.SaveDir, uiLogFile)
	}
	logger, logCloser := initLogger(cfg.Logging)
	defer logCloser.Close()

	logger.Info("Recorder starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", opts.configPath),
	)
	logger.Info("Configuration loaded",
		slog.String("save_dir", cfg.Recorder.SaveDir),
		slog.String("prompts_file", cfg.Recorder.PromptsFile),
		slog.Int("prompt_len_soft_max", cfg.Recorder.PromptLenSoftMax),
		slog.Bool("randomize", cfg.Recorder.Randomize),
		slog.Int("drop_last_chunks", cfg.Recorder.DropLastChunks),
		slog.Duration("dropped_audio", cfg.GetDroppedDuration()),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Int("channels", cfg.Audio.Channels),
		slog.Duration("buffer_duration", cfg.Audio.GetBufferDuration()),
		slog.String("log_level", cfg.Logging.Level),
	)

	// Prompts are loaded and chunked once, before any device is opened
	lines, err := prompt.Load(cfg.Recorder.PromptsFile)
	if err != nil {
		return err
	}
	count := prompt.All
	if cfg.Recorder.PromptsCount != nil {
		count = *cfg.Recorder.PromptsCount
	}
	rng := rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), uint64(os.Getpid())))
	script, err := prompt.BuildScript(lines, count, cfg.Recorder.Randomize, cfg.Recorder.PromptLenSoftMax, rng)
	if err != nil {
		return apperr.E(apperr.CodeConfiguration, "run", "failed to build prompt script", err)
	}
	logger.Info("Prompt script built",
		slog.Int("corpus_lines", len(lines)),
		slog.Int("segments", len(script)),
	)

	fileStore, err := store.NewFileStore(cfg.Recorder.SaveDir, cfg.Recorder.MetadataFile, logger)
	if err != nil {
		return err
	}

	appMetrics := metrics.NewMetrics()

	if err := device.Init(); err != nil {
		return apperr.E(apperr.CodeDevice, "run", "audio system unavailable", err)
	}
	defer device.Terminate()

	buffer := audio.NewBuffer()
	defer buffer.Close()
	appMetrics.RegisterBuffer(buffer.GetStats)

	capture, err := audio.NewCapture(buffer, device.InputOpener(device.InputConfig{
		SampleRate:      cfg.Audio.SampleRate,
		Channels:        cfg.Audio.Channels,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
	}), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := capture.Close(); err != nil {
			logger.Error("Failed to close capture device", slog.String("error", err.Error()))
		}
	}()

	sess, err := session.New(session.Context{
		SaveDir:    cfg.Recorder.SaveDir,
		CorpusName: prompt.CorpusName(cfg.Recorder.PromptsFile),
		Script:     script,
	}, session.Config{
		Format: audio.Format{
			SampleRate:    cfg.Audio.SampleRate,
			Channels:      cfg.Audio.Channels,
			BitsPerSample: cfg.Audio.BitDepth,
		},
		DropLastChunks:   cfg.Recorder.DropLastChunks,
		StripPunctuation: cfg.Recorder.StripPunctuation,
	}, session.Deps{
		Capture: capture,
		Buffer:  buffer,
		Store:   fileStore,
		Player:  device.NewPlayer(cfg.Audio.FramesPerBuffer, logger),
		Metrics: appMetrics,
	}, logger)
	if err != nil {
		return err
	}
	if err := sess.Arm(0); err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to open terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %w", err)
	}
	defer screen.Fini()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// Quitting the UI ends the program
		defer cancel()
		return ui.New(screen, sess, logger).Run(gctx)
	})

	if cfg.HTTP.Enabled {
		httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, server.Deps{
			Session:     sess,
			Metadata:    fileStore,
			BufferStats: buffer.GetStats,
			Metrics:     appMetrics,
		})
		g.Go(func() error {
			return httpServer.Run(gctx)
		})
	}

	logger.Info("Recorder started", slog.String("session_id", sess.ID()))

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	snap := sess.Snapshot()
	logger.Info("Recorder stopped",
		slog.Uint64("recordings_saved", snap.Saved),
		slog.Int("prompts_recorded", snap.Recorded),
		slog.Int("prompts_total", snap.Total),
		slog.String("state", snap.State),
	)
	return err
}

// initLogger creates the structured logger described by cfg. File output is
// rotated by size.
func initLogger(cfg config.LoggingConfig) (*slog.Logger, io.Closer) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output io.Writer
	var closer io.Closer = nopCloser{}
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		rotating := &lumberjack.Logger{
			Filename:   cfg.Output,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		output = rotating
		closer = rotating
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
