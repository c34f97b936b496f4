// Package main is the CLI entry point for recguard.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/recguard/internal/alert"
	"github.com/eliteGoblin/focusd/recguard/internal/daemon"
	"github.com/eliteGoblin/focusd/recguard/internal/domain"
	"github.com/eliteGoblin/focusd/recguard/internal/infra"
	"github.com/eliteGoblin/focusd/recguard/internal/ipc"
	"github.com/eliteGoblin/focusd/recguard/internal/signature"
	"github.com/eliteGoblin/focusd/recguard/internal/usecase"
)

var (
	// Version info (set via ldflags)
	Version   = "1.0.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "recguard",
	Short: "Screen recording detector",
	Long: `recguard watches the running process list for screen capture and
streaming software (OBS, Bandicam, Camtasia, ...) and raises a security
alert while any of it is running.

Detection is name based and Windows first. Other platforms fall back to
whatever process backends are available.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run periodic detection until interrupted",
	Long: `Starts periodic detection immediately and keeps running until SIGINT,
SIGTERM or a 'quit' command. Detections are pushed to websocket clients
and shown as a terminal warning (unless --headless).`,
	RunE: runWatch,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one detection check now",
	RunE:  runCheck,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a watcher is running and what it saw last",
	RunE:  runStatus,
}

var enableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Resume periodic detection in the running watcher",
	RunE:  func(cmd *cobra.Command, args []string) error { return sendCommand(ipc.CmdEnable) },
}

var disableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Pause periodic detection in the running watcher",
	RunE:  func(cmd *cobra.Command, args []string) error { return sendCommand(ipc.CmdDisable) },
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known recording software",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Print(alert.RenderProducts(signature.DefaultProducts()))
	},
}

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "Probe the process backends",
	RunE:  runBackends,
}

var logEventCmd = &cobra.Command{
	Use:   "log-event <json>",
	Short: "Append a security event to the encrypted log",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogEvent,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List persisted security events in order",
	RunE:  runEvents,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	dataDir    string
	interval   time.Duration
	listenAddr string
	headless   bool
	jsonOutput bool
)

const defaultListenAddr = "127.0.0.1:7788"

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (default ~/.recguard, /var/lib/recguard as root)")
	watchCmd.Flags().DurationVar(&interval, "interval", daemon.DefaultCheckInterval, "Time between checks")
	watchCmd.Flags().StringVar(&listenAddr, "listen", defaultListenAddr, "Websocket relay address (empty disables it)")
	watchCmd.Flags().BoolVar(&headless, "headless", false, "Log warnings instead of showing a terminal prompt")
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the result as JSON")
	eventsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output events as JSON")
	backendsCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the probe as JSON")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(backendsCmd)
	rootCmd.AddCommand(logEventCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolvePaths honours --data-dir, else detects from the effective UID.
func resolvePaths() *infra.PathConfig {
	if dataDir != "" {
		return infra.NewPathConfig(dataDir)
	}
	return infra.DetectPaths()
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	backends := infra.NewBackendSet(ctx, logger)
	detector := usecase.NewDetector(backends.Backends(), signature.DefaultTable(), logger)
	guard := usecase.NewGuard(detector, nil, nil, nil, Version, logger)

	result := guard.CheckRecordingNow(ctx)
	if jsonOutput {
		return printJSON(result)
	}
	fmt.Print(alert.RenderResult(result))
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	registry := infra.NewWatcherRegistry(paths.DataDir)

	fmt.Println("\n=== recguard Status ===")
	fmt.Printf("Data directory: %s (%s)\n", paths.DataDir, paths.Mode)

	entry, alive := registry.Running()
	if !alive {
		fmt.Println("Watcher: NOT RUNNING")
		fmt.Println("\nRun 'recguard watch' to start detection.")
		return nil
	}
	fmt.Printf("Watcher: RUNNING (pid %d, v%s)\n", entry.PID, entry.AppVersion)
	if entry.LastHeartbeat > 0 {
		lastBeat := time.Unix(entry.LastHeartbeat, 0)
		fmt.Printf("Last heartbeat: %s ago\n", time.Since(lastBeat).Round(time.Second))
	}

	status, err := ipc.ReadStatus(paths.DataDir)
	if err != nil {
		fmt.Println("No status written yet")
		return nil
	}

	if status.Active {
		fmt.Println("Detection: ENABLED")
	} else {
		fmt.Println("Detection: PAUSED")
	}
	if !status.CheckedAt.IsZero() {
		fmt.Print(alert.RenderResult(domain.DetectionResult{
			Detected:  status.Detected,
			Processes: status.Processes,
			Timestamp: status.CheckedAt,
		}))
	}
	fmt.Println("=======================")
	return nil
}

// sendCommand hands cmd to the running watcher through the command file.
func sendCommand(cmd ipc.Command) error {
	paths := resolvePaths()
	if _, alive := infra.NewWatcherRegistry(paths.DataDir).Running(); !alive {
		return fmt.Errorf("no watcher running for %s", paths.DataDir)
	}
	if err := ipc.WriteCommand(paths.CommandDir, cmd); err != nil {
		return fmt.Errorf("failed to send command: %w", err)
	}
	fmt.Printf("Sent '%s' to watcher\n", cmd)
	return nil
}

func runBackends(cmd *cobra.Command, args []string) error {
	backends := infra.NewBackendSet(context.Background(), zap.NewNop())
	if jsonOutput {
		return printJSON(backends.Status())
	}
	fmt.Print(alert.RenderBackends(backends.Status()))
	return nil
}

func runLogEvent(cmd *cobra.Command, args []string) error {
	var payload map[string]any
	if err := json.Unmarshal([]byte(args[0]), &payload); err != nil {
		return fmt.Errorf("event must be a JSON object: %w", err)
	}

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	paths := resolvePaths()
	var events domain.EventLog
	if err := paths.EnsureDataDir(); err != nil {
		logger.Warn("failed to create data directory", zap.Error(err))
	} else if store, err := infra.OpenEventLog(paths.DataDir, infra.ResolveKeyProvider(paths.DataDir)); err != nil {
		logger.Warn("event log unavailable", zap.Error(err))
	} else {
		defer store.Close()
		events = store
	}

	guard := usecase.NewGuard(nil, nil, nil, events, Version, logger)
	result := guard.LogSecurityEvent(payload)
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("event not logged")
	}
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	paths := resolvePaths()
	store, err := infra.OpenEventLog(paths.DataDir, infra.ResolveKeyProvider(paths.DataDir))
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer store.Close()

	events, err := store.List()
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(events)
	}

	if len(events) == 0 {
		fmt.Println("No security events logged.")
		return nil
	}
	for _, e := range events {
		payload, _ := json.Marshal(e.Payload)
		fmt.Printf("%s  %s  v%s  %s\n",
			e.Timestamp.Format(time.RFC3339), e.ID, e.AppVersion, payload)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// createLogger logs to files in the data directory.
func createLogger(paths *infra.PathConfig) *zap.Logger {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{paths.LogPath}
	config.ErrorOutputPaths = []string{paths.ErrLogPath}
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		// Fallback to stdout if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

func runVersion(cmd *cobra.Command, args []string) {
	if jsonOutput {
		fmt.Printf(`{"version":"%s","commit":"%s","build_time":"%s"}`+"\n",
			Version, Commit, BuildTime)
	} else {
		fmt.Printf("recguard %s (commit: %s, built: %s)\n",
			Version, Commit, BuildTime)
	}
}
