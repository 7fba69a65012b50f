package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MimeLyc/subtitle-studio/internal/config"
	"github.com/MimeLyc/subtitle-studio/internal/httpapi"
	"github.com/MimeLyc/subtitle-studio/internal/jobs"
	"github.com/MimeLyc/subtitle-studio/internal/llm"
	"github.com/MimeLyc/subtitle-studio/internal/media"
	"github.com/MimeLyc/subtitle-studio/internal/persistence"
	"github.com/MimeLyc/subtitle-studio/internal/service"
	"github.com/MimeLyc/subtitle-studio/internal/transcribe"
	"github.com/MimeLyc/subtitle-studio/internal/translator"
	"github.com/MimeLyc/subtitle-studio/pkg/log"
	"github.com/robfig/cron/v3"
)

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

type workerPool interface {
	Start(exec jobs.Executor)
	Stop()
}

// cleanupSchedule registers the cleaner on the server's cron engine.
type cleanupSchedule struct {
	cleaner  *service.Cleaner
	cron     *cron.Cron
	cronExpr string
}

func (s cleanupSchedule) Schedule(ctx context.Context) error {
	return s.cleaner.Schedule(ctx, s.cron, s.cronExpr)
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal("Failed to load .env: %v", err)
	}
	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}
	log.InitLogger(cfg.LogLevel)
	if cfg.LogFile != "" {
		fl, err := log.NewFileLogger(cfg.LogFile, cfg.LogLevel)
		if err != nil {
			log.Fatal("Failed to open log file: %v", err)
		}
		defer fl.Close()
		log.SetLogger(fl.Logger)
	}

	for _, dir := range []string{cfg.Server.UploadDir, cfg.Server.ResultsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatal("Failed to create %s: %v", dir, err)
		}
	}

	var (
		store       jobs.Store
		checkpoints service.CheckpointBackend
	)
	if cfg.Server.DBPath != "" {
		sqliteStore, err := persistence.NewSQLiteStore(cfg.Server.DBPath)
		if err != nil {
			log.Fatal("Failed to open job store: %v", err)
		}
		defer sqliteStore.Close()
		store, checkpoints = sqliteStore, sqliteStore
	}
	queue := jobs.NewQueue(cfg.Server.Workers, store)

	opts := []service.Option{}
	if checkpoints != nil {
		opts = append(opts, service.WithCheckpoints(checkpoints))
	}
	if cfg.TranslationEnabled() {
		client, err := llm.NewClient(&llm.Config{
			APIKey:      cfg.LLM.APIKey,
			APIURL:      cfg.LLM.APIURL,
			Model:       cfg.LLM.Model,
			Temperature: 0.2,
			Timeout:     cfg.LLM.Timeout,
			AppName:     "subtitle-studio",
		})
		if err != nil {
			log.Fatal("Failed to create LLM client: %v", err)
		}
		batcher := translator.NewBatcher(translator.NewLLMTranslator(client), cfg.LLM.BatchSize, cfg.LLM.Concurrency)
		opts = append(opts, service.WithTranslation(batcher))
	} else {
		log.Warn("LLM_API_KEY is not set, translation is disabled")
	}

	runner := media.ExecRunner{}
	pipelines := service.NewPipelines(
		cfg.Server.ResultsDir,
		media.NewExtractor(cfg.Transcribe.FFmpegPath, runner),
		transcribe.NewWhisper(cfg.Transcribe.WhisperPath, cfg.Transcribe.ModelPath, runner),
		opts...,
	)

	cronEngine := cron.New()
	cleaner := service.NewCleaner(cfg.Cleanup.Retention, queue, cfg.Server.UploadDir, cfg.Server.ResultsDir)

	httpSrv := httpapi.NewServer(queue, cfg.Server.UploadDir, cfg.Server.ResultsDir,
		httpapi.WithUI(cfg.Server.UIDir, cfg.Server.UIDir != ""),
		httpapi.WithMaxUploadBytes(cfg.Server.MaxUploadBytes),
		httpapi.WithTranslation(pipelines.TranslationEnabled()),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = runWithComponents(ctx, cfg,
		cleanupSchedule{cleaner: cleaner, cron: cronEngine, cronExpr: cfg.Cleanup.CronExpr},
		cronEngine, httpSrv, queue, pipelines.Execute)
	if err != nil {
		log.Fatal("Server stopped: %v", err)
	}
}

func runWithComponents(
	ctx context.Context,
	cfg *config.Config,
	sched scheduler,
	cronEngine cronEngine,
	httpSrv httpServer,
	pool workerPool,
	exec jobs.Executor,
) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()
	pool.Start(exec)

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.Server.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.Server.Addr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown: %v", err)
	}
	select {
	case <-cronEngine.Stop().Done():
	case <-shutdownCtx.Done():
	}
	pool.Stop()
	return runErr
}
