package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/pevans/linkfeed/api"
	"github.com/pevans/linkfeed/logger"
	"github.com/pevans/linkfeed/scheduler"
	"github.com/pevans/linkfeed/store"
)

const shutdownTimeout = 10 * time.Second

var (
	serveRunNow bool
	serveAddr   string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the query API and crawl on a schedule",
	Long: `Start the HTTP query API over stored articles and published feeds, and
run a crawl every schedule.interval. Use --run-now to crawl once at startup.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveRunNow, "run-now", false, "Run a crawl immediately at startup")
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := cmd.Context()

	st, err := store.Open(ctx, cfg.Storage.Driver, cfg.Storage.DSN)
	if err != nil {
		return err
	}
	defer st.Close()

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(st, cfg.Feeds.OutputDir, log).SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched := scheduler.New(newOrchestrator(cfg, log), cfg.Schedule.Interval, log)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Query API listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("query API: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := sched.Start(gCtx); err != nil {
			return err
		}
		<-gCtx.Done()
		sched.Stop()
		return nil
	})

	if serveRunNow {
		g.Go(func() error {
			if _, err := sched.RunNow(gCtx); err != nil && !errors.Is(err, scheduler.ErrAlreadyRunning) {
				log.Error("Startup crawl failed", logger.Err(err))
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down query API: %w", err)
		}
		return nil
	})

	return g.Wait()
}
