// main package for the speech-batch CLI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-batch/internal/config"
)

// Flag descriptions.
const (
	flagAddDesc        = "Ingest the listed .txt or .zip files as positional arguments"
	flagTranscribeDesc = "Synthesize audio for every ready record"
	flagDownloadDesc   = "Bundle all transcribed audio into a zip archive"
	flagSaveDesc       = "Write one record's audio to disk, by record id"
	flagRestoreDesc    = "Re-synthesize a record whose audio handle is stale, by record id"
	flagClearDesc      = "Remove every record from the library"
	flagStatusDesc     = "Print the record library and current settings"
	flagVoicesDesc     = "Print the available voice identifiers"
	flagVoiceDesc      = "Select the synthesis voice"
	flagSpeedDesc      = "Select the synthesis speed multiplier"
	flagOutputDesc     = "Output path for -download and -save"
)

// ErrNoAction is returned when no command flag was provided.
var ErrNoAction = errors.New("no action requested")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	add        bool
	transcribe bool
	download   bool
	save       string
	restore    string
	clear      bool
	status     bool
	voices     bool
	voice      string
	speed      float64
	output     string
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags := parseFlags()
	if !flags.anyAction() {
		flag.Usage()

		return ErrNoAction
	}

	cfg, finalLog, err := setup()
	if err != nil {
		return err
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	app, err := newApplication(cfg, finalLog)
	if err != nil {
		return err
	}
	defer app.Close()

	return app.execute(context.Background(), flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags

	flag.BoolVar(&flags.add, "add", false, flagAddDesc)
	flag.BoolVar(&flags.transcribe, "transcribe", false, flagTranscribeDesc)
	flag.BoolVar(&flags.download, "download", false, flagDownloadDesc)
	flag.StringVar(&flags.save, "save", "", flagSaveDesc)
	flag.StringVar(&flags.restore, "restore", "", flagRestoreDesc)
	flag.BoolVar(&flags.clear, "clear", false, flagClearDesc)
	flag.BoolVar(&flags.status, "status", false, flagStatusDesc)
	flag.BoolVar(&flags.voices, "voices", false, flagVoicesDesc)
	flag.StringVar(&flags.voice, "voice", "", flagVoiceDesc)
	flag.Float64Var(&flags.speed, "speed", 0, flagSpeedDesc)
	flag.StringVar(&flags.output, "output", "", flagOutputDesc)
	flag.Parse()

	return flags
}

// anyAction reports whether at least one command flag was set.
func (f appFlags) anyAction() bool {
	return f.add || f.transcribe || f.download || f.save != "" || f.restore != "" ||
		f.clear || f.status || f.voices || f.voice != "" || f.speed != 0
}

// setup loads configuration and initializes the final logger. Configuration
// problems fall back to defaults: the tool must stay usable without a
// config file.
func setup() (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := logger.New(os.TempDir(), "speech-batch-bootstrap.log")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Warn("Failed to load configuration, using defaults: %v", err)

		cfg = config.Default()
	}

	closeErr := bootstrapLog.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing bootstrap logger: %v\n", closeErr)
	}

	mkdirErr := os.MkdirAll(cfg.Paths.BaseLogsDir, 0o750)
	if mkdirErr != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", mkdirErr)
	}

	finalLog, err := logger.New(cfg.Paths.BaseLogsDir, "speech-batch.log")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return cfg, finalLog, nil
}
