// mediadeck: operator-driven media playback for a single audience display.
// Watches a media folder, keeps a sorted catalog with thumbnails, and plays
// images, audio and video through VLC on command from an HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sort"
	"syscall"
	"text/tabwriter"
	"time"

	"mediadeck/internal/api"
	"mediadeck/internal/catalog"
	"mediadeck/internal/control"
	"mediadeck/internal/display"
	"mediadeck/internal/logging"
	"mediadeck/internal/media"
	"mediadeck/internal/metadata"
	"mediadeck/internal/metrics"
	"mediadeck/internal/operator"
	"mediadeck/internal/options"
	"mediadeck/internal/playlist"
	"mediadeck/internal/store"
	"mediadeck/internal/system"
	"mediadeck/internal/vlc"

	"github.com/spf13/cobra"
)

// Build-time variables set by the Makefile via -ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
)

// thumbnailMaxAge bounds how long unused thumbnails stay in the cache.
const thumbnailMaxAge = 30 * 24 * time.Hour

func main() {
	var (
		logLevel string
		logJSON  bool
	)

	rootCmd := &cobra.Command{
		Use:   "mediadeck",
		Short: "mediadeck: operator-driven media playback for an audience display",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Setup(logLevel, logJSON)
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error); default from LOG_LEVEL")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit JSON logs")

	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(checkCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

type runFlags struct {
	mediaDir    string
	optionsPath string
	layoutPath  string
	dbPath      string
	configPath  string
	thumbCache  string
	listen      string
	monitor     string
	debounce    time.Duration
}

// runCmd starts the catalog, the playback engine, the folder watcher, the
// control API and the heartbeat client.
func runCmd() *cobra.Command {
	var f runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the player",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.mediaDir, "media", "m", "", "Media folder (overrides media_folder in the options file)")
	cmd.Flags().StringVarP(&f.optionsPath, "options", "o", defaultPath("options.yaml"), "Path to the options file")
	cmd.Flags().StringVarP(&f.layoutPath, "layout", "l", "", "Path to a monitor layout JSON file (default: single 1920x1080)")
	cmd.Flags().StringVar(&f.dbPath, "db", defaultPath("state.db"), "Path to the state database")
	cmd.Flags().StringVarP(&f.configPath, "config", "c", defaultPath("config.json"), "Path to config.json identity file")
	cmd.Flags().StringVar(&f.thumbCache, "thumb-cache", defaultPath("thumbnails"), "Thumbnail cache directory")
	cmd.Flags().StringVar(&f.listen, "listen", ":8080", "Control API listen address")
	cmd.Flags().StringVar(&f.monitor, "monitor", "", "Media monitor ID (overrides media_monitor_id)")
	cmd.Flags().DurationVar(&f.debounce, "debounce", playlist.DefaultDebounce, "Folder change debounce")

	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, f runFlags) error {
	log := logging.Named("main")
	log.Info("mediadeck starting", "version", version, "built", buildTime)

	// --- Layout ---
	layout := display.Single(1920, 1080)
	if f.layoutPath != "" {
		var err error
		layout, err = display.LoadFromFile(f.layoutPath)
		if err != nil {
			return fmt.Errorf("layout load: %w", err)
		}
		log.Info("loaded layout", "name", layout.Name, "monitors", len(layout.Monitors))
	}

	// --- Options ---
	opts := options.NewService(f.optionsPath, logging.Named("options"))
	defaults := options.Default()
	defaults.MediaMonitorID = defaultMonitor(layout).ID
	opts.SetDefaults(defaults)
	var pin options.Patch
	if f.mediaDir != "" {
		pin.MediaFolder = &f.mediaDir
	}
	if f.monitor != "" {
		pin.MediaMonitorID = &f.monitor
	}
	opts.Pin(pin)
	if err := opts.Load(); err != nil {
		return fmt.Errorf("options: %w", err)
	}
	cur := opts.Current()
	if !cmd.Flags().Changed("log-level") && os.Getenv("LOG_LEVEL") == "" {
		logging.SetLevel(cur.LogLevel)
	}

	if cur.MediaFolder != "" {
		if err := system.EnsureDir(cur.MediaFolder); err != nil {
			return fmt.Errorf("media dir %s: %w", cur.MediaFolder, err)
		}
	}

	// --- State ---
	if err := system.EnsureDir(f.thumbCache); err != nil {
		return fmt.Errorf("thumbnail cache %s: %w", f.thumbCache, err)
	}
	if n, err := system.CleanOldFiles(f.thumbCache, thumbnailMaxAge, logging.Named("system")); err == nil && n > 0 {
		log.Info("removed stale thumbnails", "count", n)
	}
	stateDir := filepath.Dir(f.dbPath)
	if err := system.EnsureDir(stateDir); err != nil {
		return fmt.Errorf("state dir %s: %w", stateDir, err)
	}
	blankImage, err := catalog.EnsureBlankScreenImage(stateDir)
	if err != nil {
		return fmt.Errorf("blank screen image: %w", err)
	}
	st, err := store.Open(ctx, f.dbPath, logging.Named("store"))
	if err != nil {
		return fmt.Errorf("state db: %w", err)
	}
	defer st.Close()

	// --- Engine ---
	mon, ok := layout.Find(cur.MediaMonitorID)
	if !ok {
		mon = defaultMonitor(layout)
	}
	engine, err := vlc.NewEngine(mon, logging.Named("vlc"))
	if err != nil {
		return fmt.Errorf("engine init: %w", err)
	}
	defer engine.Release()

	// --- Metadata ---
	thumbs := metadata.NewThumbnailGenerator(f.thumbCache, cur.ThumbnailSize, logging.Named("thumbnails"))
	metaStore := metadata.NewStore()
	queue := metadata.NewQueue(metadata.NewFFProbe(logging.Named("probe")), thumbs,
		metadata.WithStore(metaStore),
		metadata.WithObserver(metrics.NewQueueObserver()),
		metadata.WithLogger(logging.Named("queue")),
	)

	// --- Operator ---
	op, err := operator.New(ctx, operator.Deps{
		Options:          opts,
		Layout:           layout,
		Surface:          engine,
		Queue:            queue,
		Thumbnails:       thumbs,
		MetadataStore:    metaStore,
		State:            st,
		Watch:            operator.PlaylistWatch(f.debounce, logging.Named("watcher")),
		BlankScreenImage: blankImage,
		Logger:           logging.Named("operator"),
	})
	if err != nil {
		return fmt.Errorf("operator init: %w", err)
	}
	engine.SetEvents(op)

	queue.Start(ctx)
	defer queue.Stop()

	go func() {
		apply := func(o options.Options) error {
			_, err := op.ApplyOptions(ctx, o)
			return err
		}
		if err := opts.Watch(ctx, apply); err != nil {
			log.Warn("options file not watched", "error", err)
		}
	}()

	// --- Heartbeats ---
	apiClient := api.NewClient(f.configPath, version, op.Heartbeat, logging.Named("api"))
	if apiClient.Registered() {
		go apiClient.Run(ctx)
	}

	// --- Host health ---
	health := func(ctx context.Context) system.HealthStatus {
		return system.RunHealthCheck(ctx, opts.Current().MediaFolder, logging.Named("system"))
	}
	go sampleHealth(ctx, health)

	// --- Control API ---
	srv := &http.Server{
		Addr:              f.listen,
		Handler:           control.NewServer(op, health, version, logging.Named("control")).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("control API listening", "addr", f.listen)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go op.Run(runCtx)

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("control API failed", "error", err)
		cancel()
		<-op.Loop().Done()
		return fmt.Errorf("control API: %w", err)
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("control API shutdown", "error", err)
	}
	cancel()
	<-op.Loop().Done()

	log.Info("shutdown complete")
	return nil
}

// defaultMonitor prefers a non-primary monitor, which is the audience screen
// in a two-screen setup.
func defaultMonitor(l *display.Layout) display.Monitor {
	for _, m := range l.Monitors {
		if !m.Primary {
			return m
		}
	}
	return l.Monitors[0]
}

func sampleHealth(ctx context.Context, health control.HealthFunc) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		metrics.RecordHealth(health(ctx))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func scanCmd() *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "List the media a folder would contribute to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files, err := playlist.Scan(args[0])
			if err != nil {
				return err
			}
			sort.SliceStable(files, func(i, j int) bool {
				return media.Less(media.DisplayName(files[i].Path), media.DisplayName(files[j].Path))
			})

			var prober *metadata.FFProbe
			if probe {
				prober = metadata.NewFFProbe(logging.Named("probe"))
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tKIND\tDURATION\tTITLE")
			for _, file := range files {
				if file.Classification == media.Unknown {
					continue
				}
				var info metadata.Info
				if prober != nil {
					info, _ = prober.Probe(cmd.Context(), file.Path, file.Classification)
				}
				dur := "-"
				if info.Duration > 0 {
					dur = info.Duration.Round(time.Second).String()
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", media.DisplayName(file.Path), file.Classification, dur, info.Title)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Read durations and titles with ffprobe")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mediadeck %s\nBuilt: %s\nGo: %s %s/%s\n", version, buildTime, runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

func checkCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Run a system health check",
		RunE: func(cmd *cobra.Command, args []string) error {
			status := system.RunHealthCheck(cmd.Context(), dir, logging.Named("system"))
			fmt.Printf("CPU Temperature : %.1f°C\n", status.CPUTempC)
			fmt.Printf("Disk Usage      : %.1f%% (%s)\n", status.DiskUsedPct, status.DiskPath)
			fmt.Printf("Disk Free       : %d MB\n", status.DiskFreeBytes/1024/1024)
			fmt.Printf("Memory Usage    : %.1f%%\n", status.MemUsedPct)
			fmt.Printf("Load (1m)       : %.2f\n", status.Load1)
			fmt.Printf("Throttled       : %v\n", status.Throttled)
			for _, t := range status.Tools {
				where := "missing"
				if t.Found {
					where = t.Path
				}
				fmt.Printf("%-16s: %s\n", t.Name, where)
			}
			if missing := status.MissingTools(); len(missing) > 0 {
				return fmt.Errorf("missing tools: %v", missing)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&dir, "media", "m", "/", "Volume to report disk usage for")
	return cmd
}

func defaultPath(name string) string {
	if runtime.GOOS == "windows" {
		exe, _ := os.Executable()
		return filepath.Join(filepath.Dir(exe), name)
	}
	return filepath.Join("/var/lib/mediadeck", name)
}
