package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/xlab/closer"

	"github.com/nslaift/nslaift/internal/config"
	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/injector"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a .yaml or .toml config file")
		tcpAddr    = flag.String("tcp", "", "TCP listen address, overrides the config")
		wsAddr     = flag.String("ws", "", "WebSocket listen address, overrides the config")
		quicAddr   = flag.String("quic", "", "QUIC listen address, overrides the config")
		backend    = flag.String("backend", "", "render backend name")
		outputDir  = flag.String("output", "", "directory receiving rendered frames")
		format     = flag.String("format", "", "image format: tiff, png or bmp")
		reply      = flag.String("reply", "", "reply mode: status or ack")
		logLevel   = flag.String("log-level", "", "debug, info, warn or error")
		startup    = flag.String("script", "", "command file or .zy script run before serving")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error loading config:", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	override(&cfg.Server.TCPAddr, *tcpAddr)
	override(&cfg.Server.WebSocketAddr, *wsAddr)
	override(&cfg.Server.QUICAddr, *quicAddr)
	override(&cfg.Backend.Name, *backend)
	override(&cfg.Output.Dir, *outputDir)
	override(&cfg.Output.Format, *format)
	override(&cfg.Scene.Reply, *reply)
	override(&cfg.Log.Level, *logLevel)
	override(&cfg.Script.Startup, *startup)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "Invalid config:", err)
		os.Exit(1)
	}

	app, err := injector.InitializeApp(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error building server:", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	closer.Bind(func() {
		cancel()
		if err := app.Server.Close(); err != nil {
			app.Logger.Error("Server close failed", log.Error(err))
		}
		if s, ok := app.Logger.(interface{ Sync() error }); ok {
			_ = s.Sync()
		}
	})

	if cfg.Script.Startup != "" {
		report, err := app.Runner.RunFile(ctx, cfg.Script.Startup)
		if err != nil {
			app.Logger.Error("Startup script failed", log.String("path", cfg.Script.Startup), log.Error(err))
			closer.Fatalln(err)
		}
		app.Logger.Info("Startup script done",
			log.String("path", cfg.Script.Startup),
			log.Int("executed", report.Executed),
			log.Int("failures", len(report.Failures)),
		)
	}

	if err = app.Server.Start(ctx); err != nil {
		app.Logger.Error("Server start failed", log.Error(err))
		closer.Fatalln(err)
	}
	closer.Hold()
}

func override(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
