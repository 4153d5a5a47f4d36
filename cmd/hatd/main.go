package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hatdsl/hat/internal/config"
	"github.com/hatdsl/hat/internal/integration/dummy"
	"github.com/hatdsl/hat/internal/integration/hass"
	"github.com/hatdsl/hat/internal/runtime"
	"github.com/hatdsl/hat/internal/server"
	"github.com/hatdsl/hat/internal/store"
	"github.com/hatdsl/hat/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to hat config (default: "+config.DefaultConfigPath()+")")
	sourcePath := flag.String("source", "", "override HAT source file path (defaults to config value)")
	listenAddr := flag.String("listen", "", "override HTTP listen address (defaults to config value)")
	databasePath := flag.String("db", "", "override event history database path (defaults to config value)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("hatd %s\n", version.Version)

		if result, err := version.Check(); err == nil {
			if notice := version.FormatUpdateNotice(result); notice != "" {
				fmt.Fprintln(os.Stderr, "")
				fmt.Fprintln(os.Stderr, notice)
			}
		}

		os.Exit(0)
	}

	// Log version at startup so operators can see which build is running.
	log.Printf("hatd %s starting", version.Version)

	// Check for updates at startup (non-blocking, best-effort).
	if !version.IsDev() {
		if result, err := version.Check(); err == nil {
			if notice := version.FormatUpdateNotice(result); notice != "" {
				log.Println(notice)
			}
		}
	}

	if *configPath == "" {
		*configPath = config.DefaultConfigPath()
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *sourcePath != "" {
		cfg.Source.Path = *sourcePath
	}
	if *listenAddr != "" {
		cfg.Server.ListenAddr = *listenAddr
	}
	if *databasePath != "" {
		cfg.Server.DBPath = *databasePath
	}

	if err := run(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := config.EnsureDir(cfg.Server.DBPath); err != nil {
		return fmt.Errorf("prepare database directory: %w", err)
	}
	eventStore, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("open event store: %w", err)
	}
	defer eventStore.Close()

	rt := runtime.New(runtime.WithRecorder(eventStore))
	defer rt.Close()

	if cfg.Source.Path != "" {
		source, err := os.ReadFile(cfg.Source.Path)
		if err != nil {
			return fmt.Errorf("read source file: %w", err)
		}
		if err := rt.Parse(cfg.Source.Path, string(source)); err != nil {
			return fmt.Errorf("load source: %w", err)
		}
		log.Printf("loaded %s (%d automations)", cfg.Source.Path, len(rt.AutomationNames()))
	}

	if cfg.Integrations.Dummy.Enabled {
		d := dummy.NewWithInterval(cfg.Integrations.Dummy.IntervalDuration())
		defer d.Close()
		rt.Integrate(d)
		log.Printf("integration %s registered", d.ID())
	}

	if haCfg := cfg.Integrations.HomeAssistant; haCfg != nil {
		token, err := config.ResolveCredential(haCfg.AccessToken)
		if err != nil {
			return fmt.Errorf("resolve home assistant access_token: %w", err)
		}

		ha, err := hass.Connect(ctx, haCfg.URL, token)
		if err != nil {
			return fmt.Errorf("connect to home assistant: %w", err)
		}
		defer ha.Close()
		rt.Integrate(ha)
		log.Printf("integration %s registered (home assistant %s)", ha.ID(), ha.WS().HAVersion)
	}

	srv := server.New(rt, eventStore, log.Default())
	return srv.Run(ctx, cfg.Server.ListenAddr)
}
