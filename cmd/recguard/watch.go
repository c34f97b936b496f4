package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/recguard/internal/alert"
	"github.com/eliteGoblin/focusd/recguard/internal/daemon"
	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/infra"
	"github.com/eliteGoblin/focusd/recguard/internal/ipc"
	"github.com/eliteGoblin/focusd/recguard/internal/relay"
	"github.com/eliteGoblin/focusd/recguard/internal/signature"
	"github.com/eliteGoblin/focusd/recguard/internal/usecase"
)

const heartbeatInterval = 30 * time.Second

// recordingScheduler mirrors every toggle into status.json.
type recordingScheduler struct {
	*daemon.Scheduler
	status *ipc.StatusRecorder
}

func (s *recordingScheduler) Start() {
	s.Scheduler.Start()
	s.status.SetActive(s.Scheduler.Active())
}

func (s *recordingScheduler) Stop() {
	s.Scheduler.Stop()
	s.status.SetActive(s.Scheduler.Active())
}

func runWatch(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	if err := paths.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	logger := createLogger(paths)
	defer func() { _ = logger.Sync() }()

	registry := infra.NewWatcherRegistry(paths.DataDir)
	pid := os.Getpid()
	if err := registry.Register(pid, Version, paths.Mode); err != nil {
		return err
	}
	defer func() {
		if err := registry.Clear(pid); err != nil {
			logger.Warn("failed to clear watcher registry", zap.Error(err))
		}
	}()

	// Set up graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			logger.Info("received shutdown signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("recguard watcher starting",
		zap.String("version", Version),
		zap.String("mode", paths.Mode.String()),
		zap.String("data_dir", paths.DataDir))

	// Detection engine
	backends := infra.NewBackendSet(ctx, logger)
	for _, st := range backends.Status() {
		logger.Info("process backend",
			zap.String("backend", st.Name),
			zap.Bool("available", st.Available),
			zap.String("reason", st.Reason))
	}
	detector := usecase.NewDetector(backends.Backends(), signature.DefaultTable(), logger)

	// Event log is optional; LogSecurityEvent reports failure without it.
	var events domain.EventLog
	if store, err := infra.OpenEventLog(paths.DataDir, infra.ResolveKeyProvider(paths.DataDir)); err != nil {
		logger.Warn("event log unavailable", zap.Error(err))
	} else {
		defer store.Close()
		events = store
	}

	// Alerting
	var prompt domain.WarningPrompt = alert.NewTerminalPrompt()
	if headless {
		prompt = alert.NewLogPrompt(logger)
	}
	dispatcher := alert.NewDispatcher(prompt, cancel, logger)
	status := ipc.NewStatusRecorder(paths.DataDir, logger)
	defer func() {
		if err := ipc.RemoveStatus(paths.DataDir); err != nil {
			logger.Warn("failed to remove status file", zap.Error(err))
		}
	}()

	scheduler := &recordingScheduler{
		Scheduler: daemon.NewScheduler(
			daemon.SchedulerConfig{Interval: interval},
			detector,
			daemon.Handlers{status, dispatcher},
			logger,
		),
		status: status,
	}
	guard := usecase.NewGuard(detector, scheduler, dispatcher, events, Version, logger)

	// Display relay
	if listenAddr != "" {
		hub := relay.NewHub(guard, logger)
		dispatcher.AddSink(hub)
		go func() {
			if err := hub.ListenAndServe(ctx, listenAddr); err != nil {
				logger.Error("relay stopped", zap.Error(err))
			}
		}()
	}

	// Command channel
	watcher := ipc.NewCommandWatcher(paths.CommandDir, func(c ipc.Command) {
		handleCommand(ctx, c, guard, cancel, logger)
	}, logger)
	go func() {
		if err := watcher.Run(ctx); err != nil {
			logger.Error("command watcher stopped", zap.Error(err))
		}
	}()

	// Heartbeat for `recguard status`
	go func() {
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := registry.UpdateHeartbeat(); err != nil {
					logger.Warn("failed to update heartbeat", zap.Error(err))
				}
			}
		}
	}()

	guard.ToggleDetection(true)

	<-ctx.Done()
	logger.Info("recguard watcher stopping")

	guard.ToggleDetection(false)
	dispatcher.Close()

	if errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return ctx.Err()
}

// handleCommand maps a command file entry onto the guard.
func handleCommand(ctx context.Context, cmd ipc.Command, guard *usecase.Guard, quit context.CancelFunc, logger *zap.Logger) {
	switch cmd {
	case ipc.CmdEnable:
		guard.ToggleDetection(true)
	case ipc.CmdDisable:
		guard.ToggleDetection(false)
	case ipc.CmdCheck:
		result := guard.CheckRecordingNow(ctx)
		logger.Info("manual check finished",
			zap.Bool("detected", result.Detected),
			zap.Strings("processes", result.ProcessNames()))
	case ipc.CmdQuit:
		logger.Info("quit command received")
		quit()
	}
}
