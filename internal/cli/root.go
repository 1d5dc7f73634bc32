package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fmueller/voxbatch/internal/audio"
	"github.com/fmueller/voxbatch/internal/config"
	"github.com/fmueller/voxbatch/internal/logging"
	"github.com/fmueller/voxbatch/internal/pipeline"
	"github.com/fmueller/voxbatch/internal/result"
	"github.com/fmueller/voxbatch/internal/store"
	"github.com/fmueller/voxbatch/internal/transcribe"
	"github.com/fmueller/voxbatch/internal/version"
	"github.com/fmueller/voxbatch/internal/whisper"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/spf13/cobra"
)

type appState struct {
	verbose      bool
	jsonLogs     bool
	logLevel     string
	noProgress   bool
	envFile      string
	outputDir    string
	chunkSize    time.Duration
	overlap      time.Duration
	maxAttempts  int
	workers      int
	language     string
	model        string
	apiURL       string
	prompt       string
	priorContext bool
	silenceGate  bool
	ffmpegPath   string

	overrides config.Overrides

	logger *zap.Logger
	out    io.Writer
	in     io.Reader

	processFn    func(ctx context.Context, path string) (result.FileRecord, error)
	datasetFn    func(ctx context.Context, dir string) (pipeline.Report, error)
	loadLedgerFn func() (result.Ledger, error)
}

func NewRootCmd() *cobra.Command {
	app := &appState{
		chunkSize:   pipeline.DefaultChunkSizeMS * time.Millisecond,
		overlap:     pipeline.DefaultOverlapMS * time.Millisecond,
		maxAttempts: 3,
		workers:     1,
		language:    "ur",
		model:       whisper.DefaultModel,
		out:         os.Stdout,
		in:          os.Stdin,
	}
	app.processFn = app.processFile
	app.datasetFn = app.processDataset
	app.loadLedgerFn = app.loadLedger

	cmd := &cobra.Command{
		Use:           "voxbatch",
		Short:         "Chunk, transcribe and translate audio recordings in batch",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs, Level: app.logLevel})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			app.overrides = app.collectOverrides(cmd.Flags().Changed)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runMenu(cmd.Context())
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	bindLoggingFlags(cmd, app)
	bindConfigFlags(cmd, app)
	bindChunkingFlags(cmd, app)
	bindRemoteFlags(cmd, app)

	cmd.AddCommand(newProcessCmd(app))
	cmd.AddCommand(newDatasetCmd(app))
	cmd.AddCommand(newLedgerCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func bindLoggingFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	flags.BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	flags.StringVar(&app.logLevel, "log-level", app.logLevel, "Log level (debug|info|warn|error); overrides --verbose")
	flags.BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")
}

func bindConfigFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.envFile, "env-file", app.envFile, "Path to a .env file (default .env)")
	flags.StringVar(&app.outputDir, "output-dir", app.outputDir, "Output folder for results and the ledger (default processed_data)")
	flags.StringVar(&app.ffmpegPath, "ffmpeg", app.ffmpegPath, "Path to the ffmpeg binary (default ffmpeg on PATH)")
}

func bindChunkingFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.DurationVar(&app.chunkSize, "chunk-size", app.chunkSize, "Window length")
	flags.DurationVar(&app.overlap, "overlap", app.overlap, "Overlap between consecutive windows")
	flags.IntVar(&app.workers, "workers", app.workers, "Windows of one file transcribed concurrently")
	flags.BoolVar(&app.silenceGate, "silence-gate", app.silenceGate, "Skip remote calls for near-silent windows")
}

func bindRemoteFlags(cmd *cobra.Command, app *appState) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&app.language, "language", app.language, "Language hint for transcription")
	flags.StringVar(&app.model, "model", app.model, "Speech model name")
	flags.StringVar(&app.apiURL, "api-url", app.apiURL, "Base URL of the speech API")
	flags.StringVar(&app.prompt, "prompt", app.prompt, "Static prompt sent with every window")
	flags.BoolVar(&app.priorContext, "prior-context", app.priorContext, "Pass the previous window's text as prompt (sequential only)")
	flags.IntVar(&app.maxAttempts, "max-attempts", app.maxAttempts, "Attempts per window before it is marked failed")
}

// collectOverrides keeps only flags the user set so env values still apply
// for the rest.
func (a *appState) collectOverrides(changed func(name string) bool) config.Overrides {
	o := config.Overrides{EnvFile: a.envFile}
	if changed("output-dir") {
		o.OutputDir = a.outputDir
	}
	if changed("ffmpeg") {
		o.FFmpegPath = a.ffmpegPath
	}
	if changed("chunk-size") {
		o.ChunkSize = a.chunkSize
	}
	if changed("overlap") {
		overlap := a.overlap
		o.Overlap = &overlap
	}
	if changed("workers") {
		o.Workers = a.workers
	}
	if changed("silence-gate") {
		gate := a.silenceGate
		o.SilenceGate = &gate
	}
	if changed("language") {
		o.Language = a.language
	}
	if changed("model") {
		o.Model = a.model
	}
	if changed("api-url") {
		o.APIURL = a.apiURL
	}
	if changed("prompt") {
		o.Prompt = a.prompt
	}
	if changed("prior-context") {
		prior := a.priorContext
		o.PriorContext = &prior
	}
	if changed("max-attempts") {
		o.MaxAttempts = a.maxAttempts
	}
	return o
}

func (a *appState) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.overrides)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	return cfg, nil
}

func (a *appState) openStore(cfg *config.Config) (*store.Store, error) {
	return store.New(store.Options{
		Layout: store.Layout{
			Root:         cfg.OutputDir,
			SourceFolder: cfg.SourceFolder,
			TargetFolder: cfg.TargetFolder,
		},
		Logger: a.log().Named("store"),
	})
}

// newOrchestrator wires config into the codec, speech client, adapter and
// store. It fails before any work starts if the API key is missing.
func (a *appState) newOrchestrator() (*pipeline.Orchestrator, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.RequireCredential(); err != nil {
		return nil, err
	}

	st, err := a.openStore(cfg)
	if err != nil {
		return nil, err
	}

	logger := a.log()
	client := whisper.NewClient(whisper.ClientOptions{
		BaseURL: cfg.APIURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.RequestTimeout,
		Logger:  logger.Named("whisper"),
	})
	adapter := transcribe.NewAdapter(transcribe.Options{
		Engine:      client,
		Language:    cfg.Language,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      logger,
	})
	codec := audio.NewCodec(cfg.FFmpegPath, cfg.Bitrate, logger.Named("codec"))

	if cfg.PriorContext && cfg.Workers > 1 {
		logger.Warn("prior context is ignored when windows run concurrently", zap.Int("workers", cfg.Workers))
	}

	orch := pipeline.New(codec, adapter, st, pipeline.Options{
		ChunkSizeMS:  cfg.ChunkSize.Milliseconds(),
		OverlapMS:    cfg.Overlap.Milliseconds(),
		Workers:      cfg.Workers,
		Prompt:       cfg.Prompt,
		PriorContext: cfg.PriorContext,
		SilenceGate:  cfg.SilenceGate,
		SilenceDBFS:  cfg.SilenceDBFS,
	}, logger)
	orch.Hooks = newWindowProgress(a.progressEnabled())

	logger.Debug("configuration loaded",
		zap.String("model", client.Model()),
		zap.String("language", cfg.Language),
		zap.Duration("chunk_size", cfg.ChunkSize),
		zap.Duration("overlap", cfg.Overlap),
		zap.Int("workers", cfg.Workers),
		zap.String("output_dir", cfg.OutputDir),
	)
	return orch, nil
}

func (a *appState) processFile(ctx context.Context, path string) (result.FileRecord, error) {
	orch, err := a.newOrchestrator()
	if err != nil {
		return result.FileRecord{}, err
	}
	return orch.ProcessFile(ctx, path)
}

func (a *appState) processDataset(ctx context.Context, dir string) (pipeline.Report, error) {
	orch, err := a.newOrchestrator()
	if err != nil {
		return pipeline.Report{}, err
	}
	return orch.ProcessDataset(ctx, dir)
}

func (a *appState) loadLedger() (result.Ledger, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return result.Ledger{}, err
	}
	st, err := a.openStore(cfg)
	if err != nil {
		return result.Ledger{}, err
	}
	return st.LoadLedger()
}

func (a *appState) defaultDatasetDir() string {
	if a.overrides.DatasetDir != "" {
		return a.overrides.DatasetDir
	}
	cfg, err := a.loadConfig()
	if err != nil {
		return "Dataset"
	}
	return cfg.DatasetDir
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) inReader() io.Reader {
	if a.in == nil {
		return os.Stdin
	}
	return a.in
}
