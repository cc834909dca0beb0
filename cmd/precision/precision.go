package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/precision.report/internal/arrival"
	"github.com/banshee-data/precision.report/internal/arrival/monitor"
	"github.com/banshee-data/precision.report/internal/arrival/network"
	"github.com/banshee-data/precision.report/internal/config"
	"github.com/banshee-data/precision.report/internal/db"
	"github.com/banshee-data/precision.report/internal/fsutil"
	"github.com/banshee-data/precision.report/internal/version"
)

var (
	iface         = flag.String("iface", "", "Network interface to capture on")
	pcapFile      = flag.String("pcap-file", "", "Replay packets from a pcap file instead of capturing live")
	outputFile    = flag.String("o", arrival.DefaultOutputFile, "Output file for measured arrival differences")
	listen        = flag.String("listen", ":8080", "HTTP listen address (empty disables the web server)")
	dbFile        = flag.String("db", "precision.db", "Path to the SQLite database file (empty disables run persistence)")
	burstSize     = flag.Int("burst-size", 0, "Timestamped packets per burst (0 uses the tuning config value)")
	batchSize     = flag.Int("batch-size", 0, "Max packets pulled per poll (0 uses the tuning config value)")
	capacity      = flag.Int("capacity", 0, "Difference store capacity (0 uses the tuning config value)")
	configFile    = flag.String("config", "", "Tuning config JSON file (default: built-in defaults)")
	migrationsDir = flag.String("migrations-dir", "migrations", "Path to the schema migrations directory")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "       %s migrate <action> [options]\n\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Captures bursts of hardware-timestamped PTP packets and records the\n")
	fmt.Fprintf(os.Stderr, "arrival-time differences within each burst in nanoseconds.\n\n")
	fmt.Fprintf(os.Stderr, "Options:\n")
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s -iface eth2\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s -pcap-file bursts.pcap -db precision.db\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s -iface eth2 -burst-size 8 -o run42.dat\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s migrate status\n", os.Args[0])
}

func loadTuning() *config.TuningConfig {
	if *configFile == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	log.Printf("Loaded tuning config from %s", *configFile)
	return cfg
}

// checkMigrations keeps the daemon off a stale schema. A database freshly
// created by NewDB already carries the latest schema inline, so it is
// stamped at the latest migration version instead of migrated. Databases
// that already track migrations get the usual version check.
func checkMigrations(database *db.DB) {
	if _, err := os.Stat(*migrationsDir); os.IsNotExist(err) {
		return
	}

	status, err := database.GetMigrationStatus(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read migration status: %v", err)
	}

	if exists, ok := status["schema_migrations_exists"].(bool); ok && !exists {
		latest, err := db.GetLatestMigrationVersion(*migrationsDir)
		if err != nil {
			log.Fatalf("Failed to determine latest migration version: %v", err)
		}
		if err := database.BaselineAtVersion(latest); err != nil {
			log.Fatalf("Failed to baseline new database: %v", err)
		}
		return
	}

	needed, err := database.CheckAndPromptMigrations(*migrationsDir)
	if err != nil {
		log.Fatalf("Migration check failed: %v", err)
	}
	if needed {
		os.Exit(1)
	}
}

// Main
func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion {
		fmt.Printf("precision %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	// Subcommands run before any capture setup.
	if flag.Arg(0) == "migrate" {
		db.RunMigrateCommand(flag.Args()[1:], *dbFile, *migrationsDir)
		return
	}

	if *iface == "" && *pcapFile == "" {
		log.Fatal("one of -iface or -pcap-file is required")
	}
	if *iface != "" && *pcapFile != "" {
		log.Fatal("-iface and -pcap-file are mutually exclusive")
	}

	tuning := loadTuning()
	cfg := arrival.Config{
		BurstSize:     tuning.GetBurstSize(),
		BatchSize:     tuning.GetBatchSize(),
		StoreCapacity: tuning.GetStoreCapacity(),
		StatsInterval: tuning.GetStatsInterval(),
	}
	// Flags override the tuning file.
	if *burstSize > 0 {
		cfg.BurstSize = *burstSize
	}
	if *batchSize > 0 {
		cfg.BatchSize = *batchSize
	}
	if *capacity > 0 {
		cfg.StoreCapacity = *capacity
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid capture configuration: %v", err)
	}

	log.Printf("precision %s (%s)", version.Version, version.GitSHA)

	// Initialize database
	var database *db.DB
	if *dbFile != "" {
		var err error
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
		checkMigrations(database)
	} else {
		log.Println("Run persistence disabled (no -db path)")
	}

	// Open the packet source: pcap replay or live device
	var source arrival.Source
	sourceLabel := *iface
	if *pcapFile != "" {
		src, err := network.NewReplaySource(*pcapFile)
		if err != nil {
			log.Fatalf("Failed to open pcap file: %v", err)
		}
		source = src
		sourceLabel = *pcapFile
		log.Printf("Replaying packets from %s", *pcapFile)
	} else {
		src, err := network.NewLiveSource(*iface, network.LiveConfig{
			SnapLen:     tuning.GetSnapLen(),
			Promiscuous: tuning.GetPromiscuous(),
			ReadTimeout: tuning.GetReadTimeout(),
			BPF:         tuning.GetBPF(),
			LinkWait:    tuning.GetLinkWait(),
		})
		if err != nil {
			log.Fatalf("Failed to open capture device %s: %v", *iface, err)
		}
		source = src
		log.Printf("Capturing on %s (burst size %d)", *iface, cfg.BurstSize)
	}
	defer source.Close()

	stats := monitor.NewCaptureStats()
	session, err := arrival.NewSession(source, cfg, stats, nil)
	if err != nil {
		log.Fatalf("Failed to create capture session: %v", err)
	}

	// Create a wait group for the web server, stats and capture routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Web server goroutine
	if *listen != "" {
		ws := monitor.NewWebServer(monitor.WebServerConfig{
			Address:   *listen,
			Stats:     stats,
			DB:        database,
			Interface: sourceLabel,
			BurstSize: cfg.BurstSize,
			OutputDir: filepath.Dir(*outputFile),
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(ctx); err != nil {
				log.Printf("Web server error: %v", err)
			}
			log.Print("Web server routine terminated")
		}()
	}

	// Rate reporting goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		stats.StartStatsLogging(ctx, tuning.GetStatsInterval())
	}()

	// Capture goroutine. A finished run, clean or fatal, takes the other
	// routines down with it.
	startedAt := time.Now()
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = session.Run(ctx)
		if runErr != nil {
			log.Printf("Capture pipeline error: %v", runErr)
		}
		stop()
	}()

	wg.Wait()
	endedAt := time.Now()

	summary := session.Summary()
	log.Printf("Capture finished: %s packets received, %s timestamped, %s evaluated",
		monitor.FormatWithCommas(int64(summary.PacketsReceived)),
		monitor.FormatWithCommas(int64(summary.PacketsTimestamped)),
		monitor.FormatWithCommas(int64(summary.PacketsEvaluated)))
	log.Printf("Differences recorded: %s (%d dropped on full store)",
		monitor.FormatWithCommas(int64(summary.DiffsRecorded)), summary.DiffsDropped)

	// A fatal pipeline error invalidates the measurement, so no output file
	// is written for it. The run row still records what happened.
	diffs := session.Drain()
	if runErr == nil {
		if err := arrival.WriteDiffFile(fsutil.OSFileSystem{}, *outputFile, diffs); err != nil {
			log.Printf("Failed to write %s: %v", *outputFile, err)
		} else {
			log.Printf("Wrote %d differences to %s", len(diffs), *outputFile)
		}
	}

	if database != nil {
		run := &db.CaptureRun{
			Interface:          sourceLabel,
			BurstSize:          cfg.BurstSize,
			StoreCapacity:      cfg.StoreCapacity,
			StartedAtNs:        startedAt.UnixNano(),
			EndedAtNs:          endedAt.UnixNano(),
			PacketsReceived:    int64(summary.PacketsReceived),
			PacketsTimestamped: int64(summary.PacketsTimestamped),
			PacketsEvaluated:   int64(summary.PacketsEvaluated),
			DiffsRecorded:      int64(summary.DiffsRecorded),
			DiffsDropped:       int64(summary.DiffsDropped),
		}
		if runErr != nil {
			run.RunError = runErr.Error()
		} else {
			run.OutputFile = *outputFile
			run.SetSummary(arrival.Summarize(diffs))
		}
		if err := database.RecordCaptureRun(run); err != nil {
			log.Printf("Failed to record capture run: %v", err)
		} else {
			log.Printf("Recorded %s", run)
		}
	}

	if runErr != nil {
		os.Exit(1)
	}
}
