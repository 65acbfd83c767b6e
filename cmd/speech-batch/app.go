package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"

	"github.com/book-expert/speech-batch/internal/archive"
	"github.com/book-expert/speech-batch/internal/audiostore"
	"github.com/book-expert/speech-batch/internal/batch"
	"github.com/book-expert/speech-batch/internal/config"
	"github.com/book-expert/speech-batch/internal/core"
	"github.com/book-expert/speech-batch/internal/fileutil"
	"github.com/book-expert/speech-batch/internal/ingest"
	"github.com/book-expert/speech-batch/internal/localstore"
	"github.com/book-expert/speech-batch/internal/natsrun"
	"github.com/book-expert/speech-batch/internal/store"
	"github.com/book-expert/speech-batch/internal/synthesis"
)

const (
	voiceListTimeout  = 10 * time.Second
	defaultBundleName = "speech-batch.zip"
	filePermissions   = 0o600
)

// Static CLI errors.
var (
	ErrNoFiles        = errors.New("no files given to -add")
	ErrNothingReady   = errors.New("no ready records to transcribe")
	ErrNoAudio        = errors.New("record has no audio to save; try -restore")
	ErrRecordNotFound = errors.New("record id not found")
)

// application wires the workflow components behind the CLI commands.
type application struct {
	cfg          *config.Config
	log          *logger.Logger
	runtime      *natsrun.Runtime
	workflow     *store.Store
	pipeline     *ingest.Pipeline
	client       *synthesis.Client
	audio        *audiostore.SessionStore
	orchestrator *batch.Orchestrator
}

// newApplication boots the storage plane, rehydrates persisted state, and
// refreshes the voice list.
func newApplication(cfg *config.Config, log *logger.Logger) (*application, error) {
	err := os.MkdirAll(cfg.NATS.DataDir, 0o750)
	if err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	runtime, err := natsrun.Start(cfg.NATS.DataDir)
	if err != nil {
		return nil, err
	}

	app, err := buildApplication(cfg, log, runtime)
	if err != nil {
		runtime.Shutdown()

		return nil, err
	}

	return app, nil
}

// buildApplication assembles the components on top of a running storage plane.
func buildApplication(
	cfg *config.Config,
	log *logger.Logger,
	runtime *natsrun.Runtime,
) (*application, error) {
	jetstreamContext, err := runtime.Conn.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	keyValue, err := localstore.New(jetstreamContext, cfg.NATS.StateBucket)
	if err != nil {
		return nil, err
	}

	audio, err := audiostore.New(jetstreamContext, cfg.NATS.AudioBucket)
	if err != nil {
		return nil, err
	}

	workflow := store.New(
		store.NewPersister(keyValue, log),
		cfg.Workflow.SpeedMultipliers,
		cfg.Workflow.DefaultSpeed,
		log,
	)
	workflow.Load(context.Background())

	client := synthesis.NewClient(
		cfg.Speech.URL,
		cfg.Speech.Model,
		cfg.Speech.ResponseFormat,
		time.Duration(cfg.Speech.TimeoutSeconds)*time.Second,
	)

	app := &application{
		cfg:          cfg,
		log:          log,
		runtime:      runtime,
		workflow:     workflow,
		pipeline:     ingest.NewPipeline(log),
		client:       client,
		audio:        audio,
		orchestrator: batch.New(workflow, client, audio, runtime.Conn, cfg.NATS.AudioCreatedSubject, log),
	}

	app.refreshVoices(context.Background())

	return app, nil
}

// Close shuts the embedded storage plane down.
func (a *application) Close() {
	a.runtime.Shutdown()
}

// refreshVoices fetches the service's voice list. A fetch failure is
// invisible to the user beyond silently using the configured fallback list.
func (a *application) refreshVoices(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, voiceListTimeout)
	defer cancel()

	voices, err := a.client.ListVoices(listCtx)
	if err != nil || len(voices) == 0 {
		a.log.Warn("Voice list unavailable, using fallback: %v", err)

		voices = a.cfg.Workflow.FallbackVoices
	}

	setErr := a.workflow.SetAvailableVoices(ctx, voices)
	if setErr != nil {
		a.log.Warn("Failed to apply voice list: %v", setErr)
	}
}

// execute dispatches the requested actions. Setting changes apply first so
// a combined invocation like "-voice x -transcribe" uses the new voice.
func (a *application) execute(ctx context.Context, flags appFlags) error {
	type action struct {
		enabled bool
		run     func(context.Context) error
	}

	actions := []action{
		{flags.voice != "", func(ctx context.Context) error { return a.handleVoiceSelect(ctx, flags.voice) }},
		{flags.speed != 0, func(ctx context.Context) error { return a.handleSpeedSelect(ctx, flags.speed) }},
		{flags.add, func(ctx context.Context) error { return a.handleAdd(ctx, flag.Args()) }},
		{flags.transcribe, a.handleTranscribe},
		{flags.restore != "", func(ctx context.Context) error { return a.handleRestore(ctx, flags.restore) }},
		{flags.download, func(ctx context.Context) error { return a.handleDownloadAll(ctx, flags.output) }},
		{flags.save != "", func(ctx context.Context) error { return a.handleSave(ctx, flags.save, flags.output) }},
		{flags.clear, a.handleClear},
		{flags.voices, a.handleVoices},
		{flags.status, a.handleStatus},
	}

	for _, act := range actions {
		if !act.enabled {
			continue
		}

		err := act.run(ctx)
		if err != nil {
			return err
		}
	}

	return nil
}

// handleAdd ingests the given files into the record library.
func (a *application) handleAdd(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return ErrNoFiles
	}

	a.workflow.SetBusy(func(busy *store.BusyFlags) { busy.Reading = true })
	defer a.workflow.SetBusy(func(busy *store.BusyFlags) { busy.Reading = false })

	inputs := make([]ingest.Input, 0, len(paths))

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}

		inputs = append(inputs, ingest.Input{
			Name:        filepath.Base(path),
			ContentType: "",
			Data:        data,
		})
	}

	records := a.pipeline.Ingest(inputs)

	err := a.workflow.AddRecords(ctx, records)
	if err != nil {
		return fmt.Errorf("failed to add records: %w", err)
	}

	ready, failed := 0, 0

	for _, record := range records {
		if record.Status == core.StatusReady {
			ready++
		} else {
			failed++
		}
	}

	fmt.Printf("Added %d record(s): %d ready, %d failed\n", len(records), ready, failed)

	return nil
}

// handleTranscribe runs the batch over every ready record.
func (a *application) handleTranscribe(ctx context.Context) error {
	ready := a.workflow.RecordsByStatus(core.StatusReady)
	if len(ready) == 0 {
		return ErrNothingReady
	}

	ids := make([]string, 0, len(ready))
	for _, record := range ready {
		ids = append(ids, record.ID)
	}

	summary, err := a.orchestrator.Run(ctx, ids)
	if err != nil {
		return err
	}

	fmt.Printf("Transcribed %d record(s), %d failed\n", summary.SuccessCount, summary.ErrorCount)

	return nil
}

// handleRestore re-synthesizes one record's audio.
func (a *application) handleRestore(ctx context.Context, id string) error {
	err := a.orchestrator.Restore(ctx, id)
	if err != nil {
		return err
	}

	fmt.Printf("Restored audio for record %s\n", id)

	return nil
}

// handleDownloadAll bundles every transcribed record into one archive.
func (a *application) handleDownloadAll(ctx context.Context, output string) error {
	a.workflow.SetBusy(func(busy *store.BusyFlags) { busy.Downloading = true })
	defer a.workflow.SetBusy(func(busy *store.BusyFlags) { busy.Downloading = false })

	var bundleable []core.Record

	for _, record := range a.workflow.RecordsByStatus(core.StatusTranscribed) {
		if record.AudioSrc != "" {
			bundleable = append(bundleable, record)
		}
	}

	data, err := archive.Bundle(ctx, bundleable, a.fetchAudio)
	if err != nil {
		return fmt.Errorf("failed to bundle audio: %w", err)
	}

	if output == "" {
		output = filepath.Join(a.cfg.Paths.OutputDir, defaultBundleName)
	}

	err = os.WriteFile(output, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}

	fmt.Printf("Wrote %s (%s, %d file(s))\n",
		output, fileutil.FormatFileSize(int64(len(data))), len(bundleable))

	return nil
}

// handleSave writes one record's audio next to the configured output dir.
func (a *application) handleSave(ctx context.Context, id, output string) error {
	record, exists := a.workflow.Record(id)
	if !exists {
		return fmt.Errorf("%w: %s", ErrRecordNotFound, id)
	}

	if record.Status != core.StatusTranscribed || record.AudioSrc == "" {
		return fmt.Errorf("%w: %s", ErrNoAudio, record.Name)
	}

	data, err := a.fetchAudio(ctx, record.AudioSrc)
	if err != nil {
		return fmt.Errorf("failed to retrieve audio for %s: %w", record.Name, err)
	}

	if output == "" {
		name := fileutil.SanitizeFilename(fileutil.ReplaceExtension(record.Name, ".mp3"))
		output = filepath.Join(a.cfg.Paths.OutputDir, name)
	}

	err = os.WriteFile(output, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	fmt.Printf("Wrote %s (%s)\n", output, fileutil.FormatFileSize(int64(len(data))))

	return nil
}

// handleClear removes every record.
func (a *application) handleClear(ctx context.Context) error {
	a.workflow.ClearAll(ctx)
	fmt.Println("Cleared all records")

	return nil
}

// handleVoices prints the available voice identifiers.
func (a *application) handleVoices(_ context.Context) error {
	settings := a.workflow.Settings()

	for _, voice := range settings.AvailableVoices {
		marker := " "
		if voice == settings.SelectedVoice {
			marker = "*"
		}

		fmt.Printf("%s %s\n", marker, voice)
	}

	return nil
}

// handleVoiceSelect updates the selected voice.
func (a *application) handleVoiceSelect(ctx context.Context, voice string) error {
	err := a.workflow.SetSelectedVoice(ctx, voice)
	if err != nil {
		return err
	}

	fmt.Printf("Voice set to %s\n", voice)

	return nil
}

// handleSpeedSelect updates the selected speed multiplier.
func (a *application) handleSpeedSelect(ctx context.Context, speed float64) error {
	err := a.workflow.SetSelectedSpeed(ctx, speed)
	if err != nil {
		return err
	}

	fmt.Printf("Speed set to %gx\n", speed)

	return nil
}

// handleStatus prints the record library and settings.
func (a *application) handleStatus(_ context.Context) error {
	settings := a.workflow.Settings()
	records := a.workflow.Records()

	fmt.Printf("Voice: %s  Speed: %gx  Records: %d\n",
		settings.SelectedVoice, settings.SelectedSpeed, len(records))

	for _, record := range records {
		line := fmt.Sprintf("%-12s %-36s %s", record.Status, record.ID, record.Name)

		switch {
		case record.Status == core.StatusError:
			line += "  [" + record.Error + "]"
		case record.Status == core.StatusTranscribed && record.AudioSrc == "":
			line += "  [audio stale; -restore " + record.ID + "]"
		}

		fmt.Println(line)
	}

	return nil
}

// fetchAudio dereferences an audio handle: session handles come from the
// audio store, durable URLs from the synthesis service.
func (a *application) fetchAudio(ctx context.Context, handle string) ([]byte, error) {
	if audiostore.IsTransient(handle) {
		return a.audio.Fetch(ctx, handle)
	}

	return a.client.FetchAudio(ctx, handle)
}
