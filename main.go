package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"fluxcore/examples/actions/hello"
	examplehttp "fluxcore/examples/plugins/http"
	"fluxcore/flux/config"
	"fluxcore/flux/exec"
	"fluxcore/flux/load"
	"fluxcore/flux/plugin"
	"fluxcore/flux/router"
	"fluxcore/flux/telemetry"
)

func main() {
	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := telemetry.NewLogger(cfg.Logging.Level, false)
	slog.SetDefault(logger)

	if err := telemetry.InitTracing("fluxcore", "dev", ""); err != nil {
		slog.Warn("tracing initialization failed, continuing without spans", "error", err)
	}
	if err := telemetry.InitMetrics("fluxcore", "dev", ""); err != nil {
		slog.Warn("metrics initialization failed, continuing without metrics", "error", err)
	}

	actions := load.NewActionTable()
	actions.Register("hello", hello.Handler)

	loader := load.NewLoaderWithActionRoot(cfg.Paths.Flux, cfg.Paths.Actions, actions)
	defs := loader.LoadFluxDefinitions()
	for _, fe := range loader.GetFluxErrors() {
		slog.Warn("flux definition failed validation, route not registered", "file", fe.File, "errors", fe.Errors)
	}

	registry := plugin.NewRegistry()
	ctx := context.Background()
	for name, pc := range cfg.Plugins {
		switch pc.Type {
		case "http":
			if err := registry.Setup(ctx, name, examplehttp.New(), pc.Opts); err != nil {
				log.Fatalf("plugin %q setup failed: %v", name, err)
			}
		default:
			slog.Warn("unknown plugin type, skipping", "plugin", name, "type", pc.Type)
		}
	}

	executor := exec.NewExecutor(actions, registry, telemetry.NewMetricsRecorder())

	g := gin.Default()
	router.ApplyCORS(g, cfg.Server.CORS)
	router.Register(g, executor, map[string]any{}, defs)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := g.Run(addr); err != nil {
			log.Fatalf("server exited: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	slog.Info("shutting down")
	registry.Teardown(ctx)
}
