package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medrelief/internal/cache"
	"medrelief/internal/config"
	"medrelief/internal/controller"
	"medrelief/internal/logging"
	"medrelief/internal/models"
	"medrelief/internal/repository"
	"medrelief/internal/router"
	"medrelief/internal/service"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	repo       *repository.Repository
	cache      *cache.ResponseCache
	service    *service.Service
	controller *controller.Controller
	logger     *zap.Logger
	stopSig    chan os.Signal
	cfg        *config.Config

	Done chan struct{}
}

type option func(*App)

func WithConfig(cfg *config.Config) option {
	return func(app *App) {
		app.cfg = cfg
	}
}

func WithLogger(logger *zap.Logger) option {
	return func(app *App) {
		app.logger = logger
	}
}

func NewApp(opts ...option) (*App, error) {
	var err error

	app := &App{
		stopSig: make(chan os.Signal, 2),
		Done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(app)
	}

	if app.cfg == nil {
		app.cfg, err = config.NewConfig()
		if err != nil {
			return nil, err
		}
	}

	if app.logger == nil {
		app.logger, err = logging.New(app.cfg.LogLevel)
		if err != nil {
			return nil, err
		}
	}

	app.repo, err = repository.NewRepository(nil, &app.cfg.PostgresConfig, app.logger.Named("repository"))
	if err != nil {
		return nil, err
	}

	home := models.Region{Province: app.cfg.HomeProvince, City: app.cfg.HomeCity}

	app.cache = cache.NewResponseCache(app.cfg.CacheConfig.TTL, app.cfg.CacheConfig.Capacity)
	app.service = service.NewService(app.repo, app.cache, home, app.logger.Named("service"))
	app.controller = controller.NewController(app.service, app.cache, app.cfg.AdminToken, app.logger.Named("controller"))

	return app, nil
}

// Service exposes the reconciliation service to non-HTTP entry points.
func (app *App) Service() *service.Service {
	return app.service
}

// Close releases the storage of an app that was never Run. The schema is
// kept regardless of AutoMigrateDown.
func (app *App) Close() error {
	err := app.repo.CloseDB()
	_ = app.logger.Sync()
	return err
}

// Run serves HTTP until SIGINT/SIGTERM or a server failure, then shuts down
// gracefully and closes the repository.
func (app *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Notify(app.stopSig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(app.stopSig)

	go func() {
		select {
		case sig := <-app.stopSig:
			app.logger.Info("received signal", zap.String("signal", sig.String()))
			cancel()
		case <-ctx.Done():
		}
	}()

	server := &http.Server{
		Addr:         app.cfg.ServerAddress,
		Handler:      router.NewRouter(app.controller),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.logger.Info("server started, listening for connections", zap.String("address", app.cfg.ServerAddress))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app.App.Run: http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		app.cache.Start()
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		timeout, tcancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer tcancel()

		app.logger.Info("shutting down http server")
		err := server.Shutdown(timeout)
		app.cache.Stop()
		if err != nil {
			return fmt.Errorf("app.App.Run: shutdown: %w", err)
		}
		return nil
	})

	err := g.Wait()
	if err != nil {
		app.logger.Error("app stopped with error", zap.Error(err))
	}

	app.logger.Info("closing repository")
	if cerr := app.repo.Close(); cerr != nil {
		app.logger.Error("repository closing error", zap.Error(cerr))
	}

	app.logger.Info("exiting app")
	_ = app.logger.Sync()
	close(app.Done)
	return err
}
