package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"scribe/audio"
	"scribe/config"
	"scribe/doctor"
	"scribe/log"
	"scribe/session"
	"scribe/shutdown"
	"scribe/transcriber"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

func run() int {
	configFlag := flag.String("config", "", "config file path (default: OS-specific location)")
	langFlag := flag.String("lang", "", "comma separated language preference, primary first (e.g. en-US,hi-IN)")
	themeFlag := flag.String("theme", "", "color theme: dark or light")
	setupFlag := flag.Bool("setup", false, "Select microphone device and save it to the config file")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	testFlag := flag.Bool("test", false, "Test mode (headless, stdin-driven)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI; -tui=false prints final segments to stdout")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("scribe %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	cfgPath := *configFlag
	if cfgPath == "" {
		if cfgPath, err = config.DefaultPath(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if *doctorFlag {
		return doctor.Run(cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if *langFlag != "" {
		cfg.Languages = config.SplitLanguages(*langFlag)
	}
	if *themeFlag != "" {
		cfg.Theme = config.Theme(*themeFlag)
	}
	if *deviceFlag != "" {
		cfg.Device = *deviceFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *setupFlag {
		if err := setupDevice(cfg, cfgPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.Infof("scribe %s config=%s", version, cfgPath)

	if *testFlag {
		return runTestMode(cfg, flag.Arg(0))
	}

	factory, provider, err := transcriber.New(transcriber.Options{
		APIKey: cfg.Deepgram.APIKey,
		Model:  cfg.Deepgram.Model,
		Device: cfg.Device,
	})
	switch {
	case errors.Is(err, transcriber.ErrEngineUnavailable):
		log.Warnf("%v", err)
		factory, provider = nil, "none"
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctrl, err := session.New(factory, cfg.Languages, session.WithProvider(provider))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer ctrl.Close()

	if !*tuiFlag {
		return runLineMode(ctrl)
	}

	p := NewTUIProgram(ctrl, provider, cfg.Theme)
	if _, err := p.Run(); err != nil {
		log.Errorf("TUI error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// setupDevice runs the interactive picker and stores the choice in the
// config file.
func setupDevice(cfg *config.Config, cfgPath string) error {
	ctx, err := audio.NewContext()
	if err != nil {
		return fmt.Errorf("initializing audio: %w", err)
	}
	defer ctx.Close()

	dev, err := audio.SelectDevice(ctx)
	if err != nil {
		return err
	}
	cfg.Device = dev.Name
	if err := cfg.Save(cfgPath); err != nil {
		return err
	}
	fmt.Printf("Saved microphone %q to %s\n", dev.Name, cfgPath)
	return nil
}

// runLineMode listens until interrupted, printing each final segment.
func runLineMode(ctrl *session.Controller) int {
	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	sink := lineSink{out: os.Stdout, errOut: os.Stderr}
	diff := newSnapshotDiff(ctrl.Snapshot())
	if err := ctrl.Start(); err != nil {
		fmt.Fprintln(os.Stderr, ctrl.Snapshot().Err)
		return 1
	}
	diff.emit(ctrl.Snapshot(), sink)

	for {
		select {
		case <-ctx.Done():
			ctrl.Stop()
			diff.emit(ctrl.Snapshot(), sink)
			return 0
		case n := <-ctrl.Notifications():
			ctrl.Handle(n)
			snap := ctrl.Snapshot()
			diff.emit(snap, sink)
			if snap.State == session.Idle {
				return 1
			}
		}
	}
}
