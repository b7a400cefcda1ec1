package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkorzh/tube-relay/app/api"
	"github.com/mkorzh/tube-relay/app/cache"
	"github.com/mkorzh/tube-relay/app/cfg"
	"github.com/mkorzh/tube-relay/app/channels"
	"github.com/mkorzh/tube-relay/app/database"
	"github.com/mkorzh/tube-relay/app/download"
	"github.com/mkorzh/tube-relay/app/feed"
	"github.com/mkorzh/tube-relay/app/hub"
	"github.com/mkorzh/tube-relay/app/media"
	"github.com/mkorzh/tube-relay/app/pipeline"
	"github.com/mkorzh/tube-relay/app/tasks"
	"github.com/mkorzh/tube-relay/app/upload"
)

func main() {
	// Optional .env file for local development
	_ = godotenv.Load()

	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg.Debug)

	table, err := channels.NewTable(appCfg.ChannelsFile)
	if err != nil {
		slog.Error("Failed to load channel table", "file", appCfg.ChannelsFile, "error", err)
		os.Exit(1)
	}

	// One-shot channel management verbs run without the full pipeline
	if handled := runChannelVerbs(appCfg, table); handled {
		return
	}

	for _, dir := range []string{appCfg.DownloadDir, appCfg.DataDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("Failed to create directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}

	db, err := database.NewConnection(appCfg.DataDir)
	if err != nil {
		slog.Error("Failed to open state database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	dedupRepo := database.NewDedupRepository(db)
	cacheRepo := database.NewCacheRepository(db)
	leaseRepo := database.NewLeaseRepository(db)
	checkpointRepo := database.NewCheckpointRepository(db)

	store := cache.NewStore(cacheRepo, dedupRepo,
		appCfg.CacheCapacity, appCfg.CacheFlushEvery, appCfg.DedupFlushEvery)
	parser := feed.NewParser()
	httpClient := &http.Client{Timeout: 60 * time.Second}

	var fallback download.Provider
	if appCfg.FallbackBin != "" {
		fallback = download.NewCommandProvider(appCfg.FallbackBin)
	}
	downloadStage := download.NewStage(download.NewCommandProvider(appCfg.DownloaderBin), fallback)

	ffmpeg := media.NewFFmpeg(appCfg.FFmpegBin, appCfg.FFprobeBin)
	policy := media.Policy{
		MinDuration:     appCfg.MinDuration,
		MaxDuration:     appCfg.MaxDuration,
		ExtendThreshold: appCfg.ExtendThreshold,
		ExtendTarget:    appCfg.ExtendTarget,
		PartDuration:    appCfg.PartDuration,
		PartCount:       appCfg.PartCount,
	}
	fanout := upload.NewFanout(upload.NewCommandUploader(appCfg.UploaderBin))

	orchestrator := pipeline.NewOrchestrator(store, table, downloadStage,
		ffmpeg, ffmpeg, policy, fanout, appCfg.DownloadDir, appCfg.AutoUpload)

	if appCfg.CheckOnce {
		runCheckOnce(appCfg, table, store, parser, httpClient, checkpointRepo, orchestrator)
		return
	}

	slog.Info("Starting tube-relay", "version", appCfg.Version, "channels", table.Len(),
		"auto_upload", appCfg.AutoUpload, "fast_poll", appCfg.FastPoll)

	subscriptions := hub.NewManager(appCfg.HubUrl, appCfg.TopicTemplate, appCfg.BaseUrl,
		appCfg.UserAgent, appCfg.LeaseSeconds, leaseRepo)
	if appCfg.BaseUrl != "" {
		subscriptions.Start()
		for _, ch := range table.All() {
			if err := subscriptions.Subscribe(context.Background(), ch.ChannelID); err != nil {
				slog.Warn("Initial subscription failed, renewal loop will retry",
					"channel_id", ch.ChannelID, "error", err)
			}
		}
	} else {
		slog.Warn("BASE_URL not set, push notifications disabled, relying on polling only")
	}

	scheduler := tasks.NewScheduler(table, checkpointRepo, store, httpClient, parser, orchestrator)
	scheduler.Start()

	apiHandler := api.NewHandler(orchestrator, subscriptions, table, store,
		checkpointRepo, httpClient, parser, scheduler)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal, shutting down", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error, shutting down", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()
	if appCfg.BaseUrl != "" {
		subscriptions.Stop()
	}

	orchestrator.Close(time.Duration(appCfg.ShutdownGrace) * time.Second)

	if err := store.Flush(); err != nil {
		slog.Warn("Failed to persist state on shutdown", "error", err)
	}

	slog.Info("Shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
}

// runChannelVerbs executes the one-shot channel management flags. It returns
// true when a verb was handled and the process should exit.
func runChannelVerbs(appCfg *cfg.Cfg, table *channels.Table) bool {
	switch {
	case appCfg.AddChannel != "":
		ch, err := channels.ParseSpec(appCfg.AddChannel)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid channel spec: %v\n", err)
			os.Exit(1)
		}
		if err := table.Add(ch); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to add channel: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added channel %q (%s) -> %s\n", ch.Name, ch.ChannelID, ch.DestinationAccount)
		return true

	case appCfg.RemoveChannel != "":
		if err := table.Remove(appCfg.RemoveChannel); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to remove channel: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed channel %s\n", appCfg.RemoveChannel)
		return true

	case appCfg.ListChannels:
		monitored := table.All()
		if len(monitored) == 0 {
			fmt.Println("No channels configured")
			return true
		}
		for _, ch := range monitored {
			proxy := ""
			if ch.Proxy != nil {
				proxy = fmt.Sprintf(" proxy=%s:%d", ch.Proxy.Host, ch.Proxy.Port)
			}
			fmt.Printf("%-20s %-26s -> %s%s\n", ch.Name, ch.ChannelID, ch.DestinationAccount, proxy)
		}
		return true
	}

	return false
}

// runCheckOnce polls every channel a single time and waits for any accepted
// job to finish before returning.
func runCheckOnce(appCfg *cfg.Cfg, table *channels.Table, store *cache.Store,
	parser *feed.Parser, httpClient *http.Client,
	checkpointRepo database.CheckpointRepository, orchestrator *pipeline.Orchestrator) {
	slog.Info("Running a single check cycle", "channels", table.Len())

	ctx := context.Background()
	ttl := time.Duration(appCfg.ListCacheTTL()) * time.Second

	for _, ch := range table.All() {
		task := tasks.NewCheckChannelTask(ch, httpClient, parser, store, checkpointRepo,
			orchestrator, appCfg.TopicTemplate, appCfg.UserAgent, appCfg.PollLimit, ttl)
		task.Start()
		if err := task.Execute(ctx); err != nil {
			slog.Error("Channel check failed", "channel_id", ch.ChannelID, "error", err)
		}
	}

	orchestrator.Close(time.Duration(appCfg.ShutdownGrace) * time.Second)

	if err := store.Flush(); err != nil {
		slog.Warn("Failed to persist state", "error", err)
	}
}
