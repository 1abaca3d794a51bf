package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"fitspo-feed/httpapi"
	"fitspo-feed/scheduler"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the daily rank refresh",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			app, err := load(ctx)
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			return serve(ctx, app)
		},
	}
}

func serve(ctx context.Context, app *App) error {
	logger := app.Logger

	sched := scheduler.New(app.Config.Feed.Location(), app.Ranks, logger)
	if spec := app.Config.Feed.RefreshCron; spec != "" {
		if err := sched.Schedule(spec); err != nil {
			return err
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := httpapi.NewServer(app.Config.HTTP.Addr, httpapi.Deps{
		Manager:   app.Manager,
		Hot:       app.Hot,
		Ranks:     app.Ranks,
		Paginator: app.Paginator,
		Explorer:  app.Explorer,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A cold cache is filled lazily on read anyway.
		_ = sched.RunNow(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
