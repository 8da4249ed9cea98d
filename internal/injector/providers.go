package injector

import (
	"github.com/google/wire"

	"github.com/nslaift/nslaift/internal/backend"
	_ "github.com/nslaift/nslaift/internal/backend/recorder"
	_ "github.com/nslaift/nslaift/internal/backend/soft"
	"github.com/nslaift/nslaift/internal/config"
	"github.com/nslaift/nslaift/internal/core/events/bus"
	"github.com/nslaift/nslaift/internal/core/observability/log"
	"github.com/nslaift/nslaift/internal/core/protocol"
	"github.com/nslaift/nslaift/internal/core/scene"
	"github.com/nslaift/nslaift/internal/imageout"
	"github.com/nslaift/nslaift/internal/script"
	"github.com/nslaift/nslaift/internal/server"
)

// App is the assembled render server
type App struct {
	Config   config.Config
	Logger   log.Log
	Scene    *scene.Scene
	Executor *protocol.Executor
	Server   *server.Server
	Runner   *script.Runner
}

var ProviderSet = wire.NewSet(
	ProvideLogger,
	ProvideBus,
	ProvideBackend,
	ProvideSink,
	ProvideScene,
	ProvideExecutor,
	ProvideServer,
	ProvideRunner,
	wire.Struct(new(App), "*"),
)

func ProvideLogger(cfg config.Config) (log.Log, error) {
	return log.NewWithConfig(cfg.Log)
}

func ProvideBus() bus.EventBus {
	return bus.New()
}

func ProvideBackend(cfg config.Config, logger log.Log) (backend.Backend, error) {
	return backend.Open(cfg.Backend.Name, backend.Options{
		Workers: cfg.Backend.Workers,
		Logger:  logger,
	})
}

// ProvideSink writes frames below cfg.Output.Dir, or drops them when no
// directory is configured
func ProvideSink(cfg config.Config) (imageout.Sink, error) {
	if cfg.Output.Dir == "" {
		return imageout.Discard, nil
	}
	format, err := imageout.ParseFormat(cfg.Output.Format)
	if err != nil {
		return nil, err
	}
	return imageout.NewFileSink(cfg.Output.Dir, format)
}

func ProvideScene(cfg config.Config, b backend.Backend, sink imageout.Sink, eventBus bus.EventBus, logger log.Log) (*scene.Scene, error) {
	background, err := cfg.Scene.BackgroundColor()
	if err != nil {
		return nil, err
	}
	return scene.New(scene.Config{
		Backend:    b,
		Sink:       sink,
		Bus:        eventBus,
		Logger:     logger,
		Background: background,
	})
}

func ProvideExecutor(cfg config.Config, s *scene.Scene, logger log.Log) (*protocol.Executor, error) {
	mode, err := cfg.Scene.ReplyMode()
	if err != nil {
		return nil, err
	}
	return protocol.NewExecutor(s, mode, logger), nil
}

func ProvideServer(cfg config.Config, executor *protocol.Executor, eventBus bus.EventBus, logger log.Log) *server.Server {
	return server.NewServer(cfg.Server.ServerConfig(), executor, eventBus, logger)
}

func ProvideRunner(executor *protocol.Executor, logger log.Log) *script.Runner {
	return script.NewRunner(executor, logger)
}
