package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/stevemurr/recordstore/config"
	"github.com/stevemurr/recordstore/datastore"
	"github.com/stevemurr/recordstore/handler"
	"github.com/stevemurr/recordstore/logging"
	"github.com/stevemurr/recordstore/store"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "config file (yaml, json, toml or env)")
	pflag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	log, closeLog := logging.Setup(cfg.Log)
	slog.SetDefault(log)
	if err := run(cfg, log); err != nil {
		log.Error("server error", "err", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

func run(cfg *config.Config, log *slog.Logger) error {
	s, err := store.New(cfg.Backend, cfg.DataDir)
	if err != nil {
		return err
	}
	if c, ok := s.(io.Closer); ok {
		defer c.Close()
	}

	d, err := datastore.New(s, datastore.WithLogger(log))
	if err != nil {
		return err
	}

	h := handler.New(d, s, handler.WithPrimaryKey(cfg.PrimaryKey), handler.WithLogger(log))
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler.AccessLog(handler.CORS(h, cfg.AllowedOrigins), log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("record store starting", "addr", server.Addr, "backend", cfg.Backend, "data", cfg.DataDir)
		errc <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
