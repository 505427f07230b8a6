package main

import (
	"context"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/lobbychat/internal/metrics"
	"github.com/Tyrowin/lobbychat/internal/server"
)

func main() {
	// Local .env is optional.
	_ = godotenv.Load()

	config := server.NewConfigFromEnv()
	logger := server.NewLogger(config.Env, os.Stdout)
	logger.Info("starting lobby chat server", "env", config.Env)

	srv := server.New(config, logger, metrics.New())
	srv.StartHub()

	httpServer := server.CreateServer(config.Port, srv.SetupRoutes())
	go func() {
		if err := server.StartServer(httpServer, logger); err != nil {
			logger.Error("server crashed", "err", err)
			os.Exit(1)
		}
	}()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"lobbychat": func(ctx context.Context) error {
				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return server.ShutdownServer(ctx, httpServer, logger) })
				g.Go(func() error { return srv.Hub().Shutdown(ctx) })
				return g.Wait()
			},
		},
	)

	exitCode := <-wait
	logger.Info("server exited", "code", exitCode)
	os.Exit(exitCode)
}
